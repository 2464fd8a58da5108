package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"git.solsynth.dev/hypernet/autojoin/pkg/internal/models"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (v *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := v.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (v *GormStore) Create(ctx context.Context, meeting *models.Meeting) (string, error) {
	if meeting.ID == "" {
		meeting.ID = uuid.NewString()
	}
	if meeting.Status == "" {
		meeting.Status = models.MeetingStatusScheduled
	}
	if err := v.db.WithContext(ctx).Create(meeting).Error; err != nil {
		return "", err
	}
	return meeting.ID, nil
}

func (v *GormStore) Get(ctx context.Context, id string) (models.Meeting, error) {
	var meeting models.Meeting
	if err := v.db.WithContext(ctx).Where("id = ?", id).First(&meeting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return meeting, ErrNotFound
		}
		return meeting, err
	}
	return meeting, nil
}

func (v *GormStore) Update(ctx context.Context, id string, patch models.MeetingPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	tx := v.db.WithContext(ctx).
		Model(&models.Meeting{}).
		Where("id = ?", id).
		Updates(patchColumns(patch))
	if tx.Error != nil {
		return tx.Error
	} else if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (v *GormStore) Transition(ctx context.Context, id string, to models.MeetingStatus, patch models.MeetingPatch) error {
	from, err := predecessorsOf(to)
	if err != nil {
		return err
	}

	columns := patchColumns(patch)
	columns["status"] = to
	tx := v.db.WithContext(ctx).
		Model(&models.Meeting{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(columns)
	if tx.Error != nil {
		return tx.Error
	} else if tx.RowsAffected > 0 {
		return nil
	}

	if _, err := v.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: to %s", ErrStaleTransition, to)
}

func (v *GormStore) ListByOwner(ctx context.Context, ownerID string, scheduleDescending bool) ([]models.Meeting, error) {
	order := "scheduled_at ASC"
	if scheduleDescending {
		order = "scheduled_at DESC"
	}

	var meetings []models.Meeting
	if err := v.db.WithContext(ctx).
		Where(&models.Meeting{OwnerID: ownerID}).
		Order(order).
		Find(&meetings).Error; err != nil {
		return meetings, err
	}
	return meetings, nil
}

func (v *GormStore) ListByStatus(ctx context.Context, status models.MeetingStatus) ([]models.Meeting, error) {
	var meetings []models.Meeting
	if err := v.db.WithContext(ctx).
		Where(&models.Meeting{Status: status}).
		Order("scheduled_at ASC").
		Find(&meetings).Error; err != nil {
		return meetings, err
	}
	return meetings, nil
}

func patchColumns(patch models.MeetingPatch) map[string]any {
	columns := map[string]any{"updated_at": time.Now()}
	if patch.TranscriptPath != nil {
		columns["transcript_path"] = *patch.TranscriptPath
	}
	if patch.FailureReason != nil {
		columns["failure_reason"] = *patch.FailureReason
	}
	if patch.JoinConfirmed != nil {
		columns["join_confirmed"] = *patch.JoinConfirmed
	}
	if patch.StartedAt != nil {
		columns["started_at"] = *patch.StartedAt
	}
	if patch.EndedAt != nil {
		columns["ended_at"] = *patch.EndedAt
	}
	return columns
}
