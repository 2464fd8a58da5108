package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"git.solsynth.dev/hypernet/autojoin/pkg/internal/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError rejects a meeting before it is stored or scheduled.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// MeetingRequest is what a caller submits to schedule a meeting. Nil
// pointers take the defaults: auto join on, microphone and camera off,
// transcription on.
type MeetingRequest struct {
	OwnerID                string    `json:"-"`
	Provider               string    `json:"provider" validate:"required"`
	Link                   string    `json:"link"`
	MeetingCode            string    `json:"meeting_code"`
	Passcode               string    `json:"passcode"`
	ScheduledAt            time.Time `json:"scheduled_at" validate:"required"`
	DisplayName            string    `json:"display_name" validate:"max=64"`
	MicrophoneEnabled      *bool     `json:"microphone_enabled"`
	CameraEnabled          *bool     `json:"camera_enabled"`
	AutoJoin               *bool     `json:"auto_join"`
	TranscriptionRequested *bool     `json:"transcription_requested"`
}

// BuildMeeting validates the request and turns it into a record ready to be
// created.
func BuildMeeting(req MeetingRequest) (models.Meeting, error) {
	if err := validate.Struct(req); err != nil {
		return models.Meeting{}, toValidationError(err)
	}

	provider, err := models.ParseProvider(req.Provider)
	if err != nil {
		return models.Meeting{}, &ValidationError{Field: "provider", Reason: err.Error()}
	}

	meeting := models.Meeting{
		OwnerID:  req.OwnerID,
		Provider: provider,
		JoinTarget: models.JoinTarget{
			Link:        strings.TrimSpace(req.Link),
			MeetingCode: strings.ReplaceAll(strings.TrimSpace(req.MeetingCode), " ", ""),
			Passcode:    req.Passcode,
		},
		ScheduledAt: req.ScheduledAt,
		Media: models.MediaPreferences{
			MicrophoneEnabled: lo.FromPtrOr(req.MicrophoneEnabled, false),
			CameraEnabled:     lo.FromPtrOr(req.CameraEnabled, false),
			AutoJoin:          lo.FromPtrOr(req.AutoJoin, true),
		},
		TranscriptionRequested: lo.FromPtrOr(req.TranscriptionRequested, true),
		DisplayName:            strings.TrimSpace(req.DisplayName),
	}

	return meeting, ValidateJoinTarget(meeting.Provider, meeting.JoinTarget)
}

// ValidateJoinTarget checks the fields each provider needs to be joined.
func ValidateJoinTarget(provider models.Provider, target models.JoinTarget) error {
	switch provider {
	case models.ProviderGoogleMeet, models.ProviderTeams:
		if err := validate.Var(target.Link, "required,http_url"); err != nil {
			return &ValidationError{Field: "link", Reason: fmt.Sprintf("%s requires a valid meeting link", provider.DisplayText())}
		}
	case models.ProviderZoom:
		if err := validate.Var(target.MeetingCode, "required,numeric"); err != nil {
			return &ValidationError{Field: "meeting_code", Reason: "Zoom requires a numeric meeting code"}
		}
		if err := validate.Var(target.Link, "required,http_url"); err != nil {
			return &ValidationError{Field: "link", Reason: "Zoom requires the meeting invite link"}
		}
	default:
		return &ValidationError{Field: "provider", Reason: fmt.Sprintf("unsupported provider %q", provider)}
	}
	return nil
}

func toValidationError(err error) error {
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		first := errs[0]
		return &ValidationError{
			Field:  strings.ToLower(first.Field()),
			Reason: fmt.Sprintf("failed on the %q rule", first.Tag()),
		}
	}
	return &ValidationError{Field: "request", Reason: err.Error()}
}

// ScheduleMeeting stores a validated meeting and arms its join trigger.
func (v *Orchestrator) ScheduleMeeting(ctx context.Context, meeting models.Meeting) (models.Meeting, error) {
	if err := ValidateJoinTarget(meeting.Provider, meeting.JoinTarget); err != nil {
		return meeting, err
	}
	if meeting.ScheduledAt.IsZero() {
		return meeting, &ValidationError{Field: "scheduled_at", Reason: "a join time is required"}
	}

	id, err := v.store.Create(ctx, &meeting)
	if err != nil {
		return meeting, fmt.Errorf("unable to create meeting: %w", err)
	}
	meeting.ID = id

	v.arm(meeting)
	v.log.Info().
		Str("meeting", id).
		Str("provider", string(meeting.Provider)).
		Time("scheduled_at", meeting.ScheduledAt).
		Msg("Meeting scheduled")
	return meeting, nil
}

func (v *Orchestrator) arm(meeting models.Meeting) {
	v.scheduler.Arm(meeting.ID, meeting.ScheduledAt, func(id string) {
		v.RunJoin(context.Background(), id)
	})
	v.observe()
}

func (v *Orchestrator) GetMeeting(ctx context.Context, id string) (models.Meeting, error) {
	return v.store.Get(ctx, id)
}

// GetOwnedMeeting returns the meeting only if it belongs to owner.
func (v *Orchestrator) GetOwnedMeeting(ctx context.Context, owner, id string) (models.Meeting, error) {
	meeting, err := v.store.Get(ctx, id)
	if err != nil {
		return meeting, err
	} else if meeting.OwnerID != owner {
		return models.Meeting{}, ErrMeetingNotOwned
	}
	return meeting, nil
}

// ListMeetings returns the owner's meetings, latest join time first.
func (v *Orchestrator) ListMeetings(ctx context.Context, owner string) ([]models.Meeting, error) {
	return v.store.ListByOwner(ctx, owner, true)
}

// GetTranscriptPath returns the transcript file of a completed meeting.
func (v *Orchestrator) GetTranscriptPath(ctx context.Context, id string) (string, error) {
	meeting, err := v.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if meeting.Status != models.MeetingStatusCompleted || meeting.TranscriptPath == nil || len(*meeting.TranscriptPath) == 0 {
		return "", ErrTranscriptUnavailable
	}
	return *meeting.TranscriptPath, nil
}
