package exts

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer = "autojoin"
	ownerLocal  = "owner"
)

// IssueToken signs a bearer token whose subject is the owner id.
func IssueToken(secret, owner string, duration time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   owner,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(secret))
}

// ReadToken verifies a token and returns its owner.
func ReadToken(secret, raw string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	} else if !token.Valid || len(claims.Subject) == 0 {
		return "", fmt.Errorf("invalid token subject")
	}
	return claims.Subject, nil
}

func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := strings.TrimSpace(strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer"))
		if len(raw) == 0 {
			raw = c.Query("tk")
		}
		if len(raw) == 0 {
			return fiber.NewError(fiber.StatusUnauthorized, "no token, authorization denied")
		}

		owner, err := ReadToken(secret, raw)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		c.Locals(ownerLocal, owner)
		return c.Next()
	}
}

// GetOwner returns the owner authenticated by AuthMiddleware.
func GetOwner(c *fiber.Ctx) string {
	owner, _ := c.Locals(ownerLocal).(string)
	return owner
}
