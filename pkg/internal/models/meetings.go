package models

import (
	"fmt"
	"strings"
	"time"
)

type Provider string

const (
	ProviderGoogleMeet = Provider("google_meet")
	ProviderTeams      = Provider("teams")
	ProviderZoom       = Provider("zoom")
)

var AvailableProviders = []Provider{ProviderGoogleMeet, ProviderTeams, ProviderZoom}

// ParseProvider accepts both the canonical identifiers and the display names
// used by the web form ("Google Meet", "Microsoft Teams", "Zoom").
func ParseProvider(raw string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "google_meet", "google meet", "googlemeet", "meet":
		return ProviderGoogleMeet, nil
	case "teams", "microsoft teams", "microsoft_teams":
		return ProviderTeams, nil
	case "zoom":
		return ProviderZoom, nil
	default:
		return Provider(raw), fmt.Errorf("unknown provider %q", raw)
	}
}

func (v Provider) DisplayText() string {
	switch v {
	case ProviderGoogleMeet:
		return "Google Meet"
	case ProviderTeams:
		return "Microsoft Teams"
	case ProviderZoom:
		return "Zoom"
	default:
		return string(v)
	}
}

type MeetingStatus = string

const (
	MeetingStatusScheduled  = MeetingStatus("scheduled")
	MeetingStatusInProgress = MeetingStatus("in-progress")
	MeetingStatusCompleted  = MeetingStatus("completed")
	MeetingStatusFailed     = MeetingStatus("failed")
)

// MeetingStatusPredecessors lists the states a meeting may move from to reach
// the keyed state. Terminal states have no successors.
var MeetingStatusPredecessors = map[MeetingStatus][]MeetingStatus{
	MeetingStatusInProgress: {MeetingStatusScheduled},
	MeetingStatusCompleted:  {MeetingStatusInProgress},
	MeetingStatusFailed:     {MeetingStatusScheduled, MeetingStatusInProgress},
}

func IsTerminalStatus(status MeetingStatus) bool {
	return status == MeetingStatusCompleted || status == MeetingStatusFailed
}

type JoinTarget struct {
	Link        string `json:"link" bson:"link"`
	MeetingCode string `json:"meeting_code,omitempty" bson:"meeting_code,omitempty"`
	Passcode    string `json:"passcode,omitempty" bson:"passcode,omitempty"`
}

type MediaPreferences struct {
	MicrophoneEnabled bool `json:"microphone_enabled" bson:"microphone_enabled"`
	CameraEnabled     bool `json:"camera_enabled" bson:"camera_enabled"`
	AutoJoin          bool `json:"auto_join" bson:"auto_join"`
}

type Meeting struct {
	ID        string    `json:"id" bson:"_id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`

	OwnerID                string           `json:"owner_id" bson:"owner_id" gorm:"index"`
	Provider               Provider         `json:"provider" bson:"provider"`
	JoinTarget             JoinTarget       `json:"join_target" bson:"join_target" gorm:"embedded;embeddedPrefix:join_"`
	ScheduledAt            time.Time        `json:"scheduled_at" bson:"scheduled_at" gorm:"index"`
	Media                  MediaPreferences `json:"media" bson:"media" gorm:"embedded;embeddedPrefix:media_"`
	TranscriptionRequested bool             `json:"transcription_requested" bson:"transcription_requested"`
	DisplayName            string           `json:"display_name" bson:"display_name"`

	Status         MeetingStatus `json:"status" bson:"status" gorm:"index"`
	TranscriptPath *string       `json:"transcript_path" bson:"transcript_path,omitempty"`
	FailureReason  *string       `json:"failure_reason" bson:"failure_reason,omitempty"`
	JoinConfirmed  *bool         `json:"join_confirmed" bson:"join_confirmed,omitempty"`
	StartedAt      *time.Time    `json:"started_at" bson:"started_at,omitempty"`
	EndedAt        *time.Time    `json:"ended_at" bson:"ended_at,omitempty"`
}

// MeetingPatch carries the derived fields the orchestrator is allowed to
// write. Nil fields are left untouched.
type MeetingPatch struct {
	TranscriptPath *string
	FailureReason  *string
	JoinConfirmed  *bool
	StartedAt      *time.Time
	EndedAt        *time.Time
}

func (v MeetingPatch) IsEmpty() bool {
	return v.TranscriptPath == nil && v.FailureReason == nil && v.JoinConfirmed == nil &&
		v.StartedAt == nil && v.EndedAt == nil
}

// Apply copies the patch onto an in-memory meeting.
func (v MeetingPatch) Apply(meeting *Meeting) {
	if v.TranscriptPath != nil {
		meeting.TranscriptPath = v.TranscriptPath
	}
	if v.FailureReason != nil {
		meeting.FailureReason = v.FailureReason
	}
	if v.JoinConfirmed != nil {
		meeting.JoinConfirmed = v.JoinConfirmed
	}
	if v.StartedAt != nil {
		meeting.StartedAt = v.StartedAt
	}
	if v.EndedAt != nil {
		meeting.EndedAt = v.EndedAt
	}
}
