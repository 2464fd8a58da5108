package api

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/gofiber/fiber/v2"

	"git.solsynth.dev/hypernet/autojoin/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/models"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/services"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/store"
)

func listMeetings(c *fiber.Ctx) error {
	owner := exts.GetOwner(c)

	if meetings, err := orchestrator.ListMeetings(c.UserContext(), owner); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	} else {
		return c.JSON(meetings)
	}
}

func scheduleMeeting(c *fiber.Ctx) error {
	var data services.MeetingRequest
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}
	data.OwnerID = exts.GetOwner(c)

	meeting, err := services.BuildMeeting(data)
	if err != nil {
		return toHttpError(err)
	}
	if meeting, err = orchestrator.ScheduleMeeting(c.UserContext(), meeting); err != nil {
		return toHttpError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(meeting)
}

func getMeeting(c *fiber.Ctx) error {
	meeting, err := orchestrator.GetOwnedMeeting(c.UserContext(), exts.GetOwner(c), c.Params("id"))
	if err != nil {
		return toHttpError(err)
	}
	return c.JSON(meeting)
}

func getTranscription(c *fiber.Ctx) error {
	meeting, err := orchestrator.GetOwnedMeeting(c.UserContext(), exts.GetOwner(c), c.Params("id"))
	if err != nil {
		return toHttpError(err)
	}

	path, err := orchestrator.GetTranscriptPath(c.UserContext(), meeting.ID)
	if err != nil {
		return toHttpError(err)
	}
	return c.Download(path, filepath.Base(path))
}

// joinMeeting triggers the join right away instead of waiting for the
// scheduled time.
func joinMeeting(c *fiber.Ctx) error {
	meeting, err := orchestrator.GetOwnedMeeting(c.UserContext(), exts.GetOwner(c), c.Params("id"))
	if err != nil {
		return toHttpError(err)
	}
	if meeting.Status != models.MeetingStatusScheduled {
		return fiber.NewError(fiber.StatusConflict, "meeting is "+meeting.Status)
	}

	go orchestrator.RunJoin(context.Background(), meeting.ID)
	return c.SendStatus(fiber.StatusAccepted)
}

func endSession(c *fiber.Ctx) error {
	meeting, err := orchestrator.GetOwnedMeeting(c.UserContext(), exts.GetOwner(c), c.Params("id"))
	if err != nil {
		return toHttpError(err)
	}

	if err := orchestrator.EndSession(c.UserContext(), meeting.ID); err != nil {
		return toHttpError(err)
	}
	return c.SendStatus(fiber.StatusOK)
}

func toHttpError(err error) error {
	var invalid *services.ValidationError
	switch {
	case errors.As(err, &invalid):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, services.ErrMeetingNotOwned):
		return fiber.NewError(fiber.StatusNotFound, "meeting not found")
	case errors.Is(err, services.ErrTranscriptUnavailable):
		return fiber.NewError(fiber.StatusNotFound, "transcription not found")
	case errors.Is(err, services.ErrNoActiveSession):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
