package api

import (
	"github.com/gofiber/fiber/v2"

	"git.solsynth.dev/hypernet/autojoin/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/services"
)

var orchestrator *services.Orchestrator

func MapAPIs(app *fiber.App, baseURL string, orc *services.Orchestrator, secret string) {
	orchestrator = orc

	api := app.Group(baseURL).Use(exts.AuthMiddleware(secret)).Name("API")
	{
		meetings := api.Group("/meetings").Name("Meetings API")
		{
			meetings.Get("/", listMeetings)
			meetings.Post("/", scheduleMeeting)
			meetings.Get("/:id", getMeeting)
			meetings.Get("/:id/transcription", getTranscription)
			meetings.Post("/:id/join", joinMeeting)
			meetings.Delete("/:id/session", endSession)
		}
	}
}
