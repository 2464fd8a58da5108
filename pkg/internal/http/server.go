package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"git.solsynth.dev/hypernet/autojoin/pkg/internal/http/api"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/services"
)

type HTTPApp struct {
	app  *fiber.App
	bind string
}

type Options struct {
	Bind        string
	Secret      string
	PrintRoutes bool
}

func NewServer(orc *services.Orchestrator, opts Options) *HTTPApp {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		EnableIPValidation:    true,
		ServerHeader:          "Hypernet.AutoJoin",
		AppName:               "Hypernet.AutoJoin",
		ProxyHeader:           fiber.HeaderXForwardedFor,
		JSONEncoder:           jsoniter.ConfigCompatibleWithStandardLibrary.Marshal,
		JSONDecoder:           jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal,
		BodyLimit:             1 * 1024 * 1024,
		EnablePrintRoutes:     opts.PrintRoutes,
	})

	app.Use(cors.New(cors.Config{
		AllowCredentials: true,
		AllowMethods: strings.Join([]string{
			fiber.MethodGet,
			fiber.MethodPost,
			fiber.MethodHead,
			fiber.MethodOptions,
			fiber.MethodPut,
			fiber.MethodDelete,
			fiber.MethodPatch,
		}, ","),
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
	}))

	app.Use(logger.New(logger.Config{
		Format: "${status} | ${latency} | ${method} ${path}\n",
		Output: log.Logger,
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api.MapAPIs(app, "/api", orc, opts.Secret)

	return &HTTPApp{app: app, bind: opts.Bind}
}

func (v *HTTPApp) App() *fiber.App {
	return v.app
}

func (v *HTTPApp) Listen() error {
	return v.app.Listen(v.bind)
}

func (v *HTTPApp) Shutdown() error {
	return v.app.Shutdown()
}
