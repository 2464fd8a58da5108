package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.solsynth.dev/hypernet/autojoin/pkg/internal/models"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/store"
)

const interruptedReason = "interrupted by restart"

// Teardown ends the live session of a meeting: it releases the browser and
// transcription, marks the meeting completed and drops the registry entry.
// Both the duration timer and EndSession end up here.
func (v *Orchestrator) Teardown(ctx context.Context, id string) error {
	session, ok := v.registry.Remove(id)
	if !ok {
		return ErrNoActiveSession
	}
	log := v.log.With().Str("meeting", id).Logger()

	v.scheduler.Cancel(session.Teardown())
	session.Release(log)
	v.observe()

	ended := time.Now()
	err := v.store.Transition(ctx, id, models.MeetingStatusCompleted, models.MeetingPatch{EndedAt: &ended})
	if err != nil {
		return fmt.Errorf("unable to mark meeting completed: %w", err)
	}

	log.Info().
		Dur("duration", ended.Sub(session.StartedAt)).
		Str("transcript", session.TranscriptPath()).
		Msg("Meeting session ended")
	return nil
}

// EndSession leaves a meeting before its duration elapsed.
func (v *Orchestrator) EndSession(ctx context.Context, id string) error {
	v.log.Info().Str("meeting", id).Msg("Ending meeting session on request...")
	return v.Teardown(ctx, id)
}

// Recover restores the schedule after a restart. Scheduled meetings get their
// trigger armed again; meetings left in progress by the previous process
// have lost their browser and are marked failed.
func (v *Orchestrator) Recover(ctx context.Context) (int, error) {
	interrupted, err := v.store.ListByStatus(ctx, models.MeetingStatusInProgress)
	if err != nil {
		return 0, fmt.Errorf("unable to list in-progress meetings: %w", err)
	}
	for _, meeting := range interrupted {
		if _, ok := v.registry.Lookup(meeting.ID); ok {
			continue
		}
		reason := interruptedReason
		ended := time.Now()
		err := v.store.Transition(ctx, meeting.ID, models.MeetingStatusFailed, models.MeetingPatch{
			FailureReason: &reason,
			EndedAt:       &ended,
		})
		if err != nil && !errors.Is(err, store.ErrStaleTransition) {
			v.log.Error().Err(err).Str("meeting", meeting.ID).Msg("An error occurred when failing interrupted meeting")
		}
	}

	scheduled, err := v.store.ListByStatus(ctx, models.MeetingStatusScheduled)
	if err != nil {
		return 0, fmt.Errorf("unable to list scheduled meetings: %w", err)
	}
	for _, meeting := range scheduled {
		v.arm(meeting)
	}

	v.log.Info().
		Int("rearmed", len(scheduled)).
		Int("interrupted", len(interrupted)).
		Msg("Meeting schedule recovered")
	return len(scheduled), nil
}

// Shutdown ends every live session as completed.
func (v *Orchestrator) Shutdown(ctx context.Context) {
	for _, id := range v.registry.IDs() {
		if err := v.Teardown(ctx, id); err != nil && !errors.Is(err, ErrNoActiveSession) {
			v.log.Error().Err(err).Str("meeting", id).Msg("An error occurred when ending session on shutdown")
		}
	}
}
