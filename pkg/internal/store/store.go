// Package store persists meeting records. The orchestrator only depends on
// the Store interface; gorm and mongo back it in production.
package store

import (
	"context"
	"errors"

	"git.solsynth.dev/hypernet/autojoin/pkg/internal/models"
)

var (
	ErrNotFound = errors.New("meeting not found")
	// ErrStaleTransition is returned when a status write lost a race or would
	// move a record backwards.
	ErrStaleTransition = errors.New("meeting status does not allow this transition")
)

type Store interface {
	Create(ctx context.Context, meeting *models.Meeting) (string, error)
	Get(ctx context.Context, id string) (models.Meeting, error)
	Update(ctx context.Context, id string, patch models.MeetingPatch) error
	// Transition moves the record to the given status only if its current
	// status is one of the allowed predecessors, writing patch atomically.
	Transition(ctx context.Context, id string, to models.MeetingStatus, patch models.MeetingPatch) error
	ListByOwner(ctx context.Context, ownerID string, scheduleDescending bool) ([]models.Meeting, error)
	ListByStatus(ctx context.Context, status models.MeetingStatus) ([]models.Meeting, error)
}

func predecessorsOf(to models.MeetingStatus) ([]models.MeetingStatus, error) {
	from, ok := models.MeetingStatusPredecessors[to]
	if !ok || len(from) == 0 {
		return nil, ErrStaleTransition
	}
	return from, nil
}
