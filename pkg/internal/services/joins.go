package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"git.solsynth.dev/hypernet/autojoin/pkg/internal/adapters"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/browser"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/metrics"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/models"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/registry"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/store"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/transcription"
)

// attempt tracks what a single join has acquired so the failure path can
// give back exactly that.
type attempt struct {
	meeting models.Meeting
	log     zerolog.Logger

	page       browser.Page
	session    *registry.ActiveSession
	registered bool
	confirmed  bool
	conflict   bool
	err        error
}

// RunJoin moves a scheduled meeting into a live session. It never returns an
// error or panics: every failure after the in-progress mark ends with the
// record failed and everything acquired released.
func (v *Orchestrator) RunJoin(ctx context.Context, id string) {
	log := v.log.With().Str("meeting", id).Logger()

	meeting, err := v.store.Get(ctx, id)
	if err != nil {
		log.Error().Err(err).Msg("An error occurred when loading meeting to join")
		return
	}
	if !meeting.Media.AutoJoin {
		log.Info().Msg("Auto join disabled for meeting, skipping...")
		return
	}

	started := time.Now()
	err = v.store.Transition(ctx, id, models.MeetingStatusInProgress, models.MeetingPatch{StartedAt: &started})
	if errors.Is(err, store.ErrStaleTransition) {
		log.Warn().Msg("Meeting is no longer scheduled, another join owns it")
		return
	} else if err != nil {
		log.Error().Err(err).Msg("An error occurred when marking meeting in progress")
		return
	}

	log = log.With().Str("provider", string(meeting.Provider)).Logger()
	log.Info().Msg("Joining meeting...")

	att := &attempt{meeting: meeting, log: log}
	defer v.finish(ctx, att, started)
	att.err = v.join(ctx, att)
}

func (v *Orchestrator) join(ctx context.Context, att *attempt) error {
	meeting := att.meeting

	adapter, err := v.adapters.Resolve(meeting.Provider)
	if err != nil {
		return err
	}

	result, err := adapter.Join(ctx, adapters.Request{
		Target:      meeting.JoinTarget,
		Media:       meeting.Media,
		DisplayName: lo.Ternary(len(meeting.DisplayName) > 0, meeting.DisplayName, v.defaultDisplayName),
		Diagnostics: v.diagnostics(meeting.ID, att.log),
	})
	if err != nil {
		return err
	}
	att.page = result.Page
	att.confirmed = result.Confirmed

	session := &registry.ActiveSession{
		MeetingID: meeting.ID,
		Page:      result.Page,
		StartedAt: time.Now(),
	}
	if err := v.registry.Register(meeting.ID, session); err != nil {
		att.conflict = true
		return err
	}
	att.session = session
	att.registered = true
	v.observe()

	if !result.Confirmed {
		att.log.Warn().Msg("Joined meeting without seeing the in-meeting UI, keeping session as unconfirmed")
	}
	if err := v.store.Update(ctx, meeting.ID, models.MeetingPatch{JoinConfirmed: &result.Confirmed}); err != nil {
		return fmt.Errorf("unable to record join: %w", err)
	}

	if meeting.TranscriptionRequested {
		if err := v.startTranscription(ctx, att); err != nil {
			return err
		}
	}

	teardown := v.scheduler.After(v.sessionDuration, func() {
		if err := v.Teardown(context.Background(), meeting.ID); err != nil && !errors.Is(err, ErrNoActiveSession) {
			v.log.Error().Err(err).Str("meeting", meeting.ID).Msg("An error occurred when tearing down meeting")
		}
	})
	if !session.SetTeardown(teardown) {
		v.scheduler.Cancel(teardown)
		att.log.Info().Msg("Session ended while joining, skipping teardown timer")
	}
	v.observe()

	att.log.Info().
		Bool("confirmed", result.Confirmed).
		Dur("teardown_after", v.sessionDuration).
		Msg("Meeting joined")
	return nil
}

// startTranscription starts transcribing into a new file. Only a failure to
// record the transcript path fails the join; engine, audio and file errors
// leave the meeting joined without a transcript.
func (v *Orchestrator) startTranscription(ctx context.Context, att *attempt) error {
	meeting := att.meeting
	log := att.log.With().Str("component", "transcription").Logger()

	if err := os.MkdirAll(v.transcriptDir, 0o755); err != nil {
		log.Error().Err(err).Msg("An error occurred when creating transcript directory, continuing without transcript")
		return nil
	}
	path := filepath.Join(v.transcriptDir, transcriptFilename(meeting.ID, time.Now()))
	sink, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Error().Err(err).Msg("An error occurred when creating transcript, continuing without transcript")
		return nil
	}

	stream, err := v.audio.Open(ctx)
	if err != nil {
		_ = sink.Close()
		_ = os.Remove(path)
		metrics.TranscriptionFailuresTotal.Inc()
		log.Error().Err(err).Msg("An error occurred when opening meeting audio, continuing without transcript")
		return nil
	}

	session, err := transcription.Start(ctx, v.engine, v.speech, stream, sink, log)
	if err != nil {
		_ = os.Remove(path)
		metrics.TranscriptionFailuresTotal.Inc()
		log.Error().Err(err).Msg("An error occurred when starting transcription, continuing without transcript")
		return nil
	}
	if !att.session.AttachTranscription(session, path) {
		log.Info().Msg("Session ended before transcription attached, discarding transcript")
		return nil
	}

	if err := v.store.Update(ctx, meeting.ID, models.MeetingPatch{TranscriptPath: &path}); err != nil {
		return fmt.Errorf("unable to record transcript path: %w", err)
	}
	log.Info().Str("path", path).Msg("Transcription attached to meeting")
	return nil
}

// finish is the single exit of a join attempt. It converts panics into
// failures and performs the failure cleanup exactly once.
func (v *Orchestrator) finish(ctx context.Context, att *attempt, started time.Time) {
	if r := recover(); r != nil {
		att.err = fmt.Errorf("panic during join: %v", r)
		att.log.Error().Str("stack", string(debug.Stack())).Msg("Recovered from panic during join")
	}

	metrics.RecordJoin(string(att.meeting.Provider), att.confirmed, att.err, time.Since(started).Seconds())

	if att.err == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)
	id := att.meeting.ID

	if att.conflict {
		att.log.Warn().Err(att.err).Msg("Meeting already has a live session, dropping this browser")
		if att.page != nil {
			if err := att.page.Close(); err != nil {
				att.log.Warn().Err(err).Msg("An error occurred when closing browser")
			}
		}
		return
	}

	if att.registered {
		v.registry.RemoveIf(id, att.session)
		v.scheduler.Cancel(att.session.Teardown())
		att.session.Release(att.log)
	} else if att.page != nil {
		if err := att.page.Close(); err != nil {
			att.log.Warn().Err(err).Msg("An error occurred when closing browser")
		}
	}
	v.observe()

	reason := failureReason(att.err)
	ended := time.Now()
	err := v.store.Transition(ctx, id, models.MeetingStatusFailed, models.MeetingPatch{
		FailureReason: &reason,
		EndedAt:       &ended,
	})
	if err != nil {
		att.log.Error().Err(err).Msg("An error occurred when marking meeting failed")
	}
	att.log.Error().Err(att.err).Msg("Unable to join meeting")
}

func (v *Orchestrator) diagnostics(id string, log zerolog.Logger) adapters.Diagnostics {
	if len(v.screenshotDir) == 0 {
		return adapters.NopDiagnostics{}
	}
	return adapters.DirDiagnostics{Dir: filepath.Join(v.screenshotDir, id), Log: log}
}

func failureReason(err error) string {
	var denied *adapters.AdmissionDeniedError
	if errors.As(err, &denied) && denied.NeedsHost {
		return "Meeting not joinable, host admission required or meeting not started: " + denied.Indicator
	}
	return err.Error()
}

func transcriptFilename(id string, at time.Time) string {
	stamp := strings.NewReplacer(":", "_", ".", "_", "-", "_").Replace(at.UTC().Format("2006-01-02T15:04:05.000Z"))
	return fmt.Sprintf("meeting_%s_%s.txt", id, stamp)
}
