package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.solsynth.dev/hypernet/autojoin/pkg/internal/adapters"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/models"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/scheduler"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/transcription"
)

type harness struct {
	orchestrator *Orchestrator
	store        *memoryStore
	adapter      *fakeAdapter
	engine       *scriptedEngine
	transcripts  string
}

func newHarness(t *testing.T, adapter *fakeAdapter, engine *scriptedEngine, duration time.Duration) *harness {
	t.Helper()

	sched := scheduler.New(zerolog.Nop(), time.UTC)
	sched.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		sched.Stop(ctx)
	})

	if engine == nil {
		engine = &scriptedEngine{}
	}
	h := &harness{
		store:       newMemoryStore(),
		adapter:     adapter,
		engine:      engine,
		transcripts: t.TempDir(),
	}
	h.orchestrator = NewOrchestrator(Options{
		Store:           h.store,
		Adapters:        adapters.NewSet(adapter),
		Scheduler:       sched,
		Engine:          engine,
		SessionDuration: duration,
		TranscriptDir:   h.transcripts,
		Log:             zerolog.Nop(),
	})
	return h
}

// seed stores a meeting directly so RunJoin can be driven without a trigger.
func (h *harness) seed(t *testing.T, provider models.Provider, mutate ...func(*models.Meeting)) string {
	t.Helper()
	meeting := models.Meeting{
		OwnerID:     "owner",
		Provider:    provider,
		JoinTarget:  models.JoinTarget{Link: "https://meet.google.com/abc-defg-hij", MeetingCode: "1234567890"},
		ScheduledAt: time.Now().Add(time.Hour),
		Media:       models.MediaPreferences{AutoJoin: true},
	}
	for _, fn := range mutate {
		fn(&meeting)
	}
	id, err := h.store.Create(context.Background(), &meeting)
	require.NoError(t, err)
	return id
}

func (h *harness) meeting(t *testing.T, id string) models.Meeting {
	t.Helper()
	meeting, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return meeting
}

func TestScheduleMeetingRejectsZoomWithoutCode(t *testing.T) {
	h := newHarness(t, &fakeAdapter{provider: models.ProviderZoom}, nil, time.Hour)

	meeting, err := BuildMeeting(MeetingRequest{
		OwnerID:     "owner",
		Provider:    "Zoom",
		ScheduledAt: time.Now().Add(time.Hour),
	})
	var invalid *ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "meeting_code", invalid.Field)

	_, err = h.orchestrator.ScheduleMeeting(context.Background(), meeting)
	require.ErrorAs(t, err, &invalid)

	list, err := h.orchestrator.ListMeetings(context.Background(), "owner")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, h.orchestrator.scheduler.Pending())
}

func TestZoomRequiresInviteLink(t *testing.T) {
	_, err := BuildMeeting(MeetingRequest{
		Provider:    "zoom",
		MeetingCode: "123 456 7890",
		ScheduledAt: time.Now(),
	})
	var invalid *ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "link", invalid.Field)

	meeting, err := BuildMeeting(MeetingRequest{
		Provider:    "zoom",
		MeetingCode: "123 456 7890",
		Link:        "https://zoom.us/j/1234567890",
		ScheduledAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, "1234567890", meeting.JoinTarget.MeetingCode)
}

func TestBuildMeetingDefaults(t *testing.T) {
	meeting, err := BuildMeeting(MeetingRequest{
		OwnerID:     "owner",
		Provider:    "Google Meet",
		Link:        " https://meet.google.com/abc-defg-hij ",
		ScheduledAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProviderGoogleMeet, meeting.Provider)
	assert.Equal(t, "https://meet.google.com/abc-defg-hij", meeting.JoinTarget.Link)
	assert.True(t, meeting.Media.AutoJoin)
	assert.False(t, meeting.Media.MicrophoneEnabled)
	assert.False(t, meeting.Media.CameraEnabled)
	assert.True(t, meeting.TranscriptionRequested)

	_, err = BuildMeeting(MeetingRequest{Provider: "teams", ScheduledAt: time.Now(), Link: "not a link"})
	assert.Error(t, err)
	_, err = BuildMeeting(MeetingRequest{Provider: "webex", ScheduledAt: time.Now()})
	assert.Error(t, err)
	_, err = BuildMeeting(MeetingRequest{Provider: "zoom", MeetingCode: "123 456 7890"})
	assert.Error(t, err, "join time is required")
}

func TestScheduleMeetingFiresJoin(t *testing.T) {
	h := newHarness(t, &fakeAdapter{provider: models.ProviderGoogleMeet, confirmed: true}, nil, time.Hour)

	meeting, err := h.orchestrator.ScheduleMeeting(context.Background(), models.Meeting{
		OwnerID:     "owner",
		Provider:    models.ProviderGoogleMeet,
		JoinTarget:  models.JoinTarget{Link: "https://meet.google.com/abc-defg-hij"},
		ScheduledAt: time.Now().Add(-time.Minute),
		Media:       models.MediaPreferences{AutoJoin: true},
	})
	require.NoError(t, err)
	require.NotEmpty(t, meeting.ID)

	require.Eventually(t, func() bool {
		return h.orchestrator.Registry().Len() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.MeetingStatusInProgress, h.store.status(meeting.ID))
	assert.EqualValues(t, 1, h.adapter.calls.Load())
	assert.Equal(t, []string{"Meeting Automator Bot"}, h.adapter.displayNames())
}

func TestRunJoinAutoJoinDisabled(t *testing.T) {
	h := newHarness(t, &fakeAdapter{provider: models.ProviderGoogleMeet}, nil, time.Hour)
	id := h.seed(t, models.ProviderGoogleMeet, func(m *models.Meeting) { m.Media.AutoJoin = false })

	h.orchestrator.RunJoin(context.Background(), id)

	assert.Equal(t, models.MeetingStatusScheduled, h.store.status(id))
	assert.Zero(t, h.adapter.calls.Load())
}

func TestRunJoinWithTranscriptionThenTeardown(t *testing.T) {
	engine := &scriptedEngine{events: []transcription.Event{
		{SpeakerTag: 1, Transcript: "hello", IsFinal: true},
		{SpeakerTag: 2, Transcript: "world", IsFinal: true},
	}}
	h := newHarness(t, &fakeAdapter{provider: models.ProviderGoogleMeet, confirmed: true}, engine, time.Hour)
	id := h.seed(t, models.ProviderGoogleMeet, func(m *models.Meeting) {
		m.TranscriptionRequested = true
		m.DisplayName = "Notetaker"
	})

	h.orchestrator.RunJoin(context.Background(), id)

	meeting := h.meeting(t, id)
	require.Equal(t, models.MeetingStatusInProgress, meeting.Status)
	require.NotNil(t, meeting.TranscriptPath)
	assert.Equal(t, h.transcripts, filepath.Dir(*meeting.TranscriptPath))
	assert.True(t, lo.FromPtr(meeting.JoinConfirmed))
	assert.Equal(t, []string{"Notetaker"}, h.adapter.displayNames())

	_, ok := h.orchestrator.Registry().Lookup(id)
	require.True(t, ok)

	_, err := h.orchestrator.GetTranscriptPath(context.Background(), id)
	assert.ErrorIs(t, err, ErrTranscriptUnavailable)

	require.Eventually(t, func() bool {
		raw, _ := os.ReadFile(*meeting.TranscriptPath)
		return string(raw) == "Speaker 1: hello\nSpeaker 2: world\n"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.orchestrator.EndSession(context.Background(), id))

	meeting = h.meeting(t, id)
	assert.Equal(t, models.MeetingStatusCompleted, meeting.Status)
	assert.NotNil(t, meeting.EndedAt)
	assert.EqualValues(t, 1, h.adapter.lastPage().closed.Load())
	assert.EqualValues(t, 1, engine.closed.Load())
	assert.Zero(t, h.orchestrator.Registry().Len())
	assert.Zero(t, h.orchestrator.scheduler.Pending(), "teardown timer cancelled")

	path, err := h.orchestrator.GetTranscriptPath(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, *meeting.TranscriptPath, path)

	assert.ErrorIs(t, h.orchestrator.EndSession(context.Background(), id), ErrNoActiveSession)
	assert.EqualValues(t, 1, h.adapter.lastPage().closed.Load())
}

func TestTeardownTimerCompletesMeeting(t *testing.T) {
	engine := &scriptedEngine{}
	h := newHarness(t, &fakeAdapter{provider: models.ProviderTeams}, engine, 50*time.Millisecond)
	id := h.seed(t, models.ProviderTeams, func(m *models.Meeting) { m.TranscriptionRequested = true })

	h.orchestrator.RunJoin(context.Background(), id)
	require.Equal(t, models.MeetingStatusInProgress, h.store.status(id))
	assert.False(t, lo.FromPtr(h.meeting(t, id).JoinConfirmed), "unconfirmed join kept as success")

	require.Eventually(t, func() bool {
		return h.store.status(id) == models.MeetingStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	assert.EqualValues(t, 1, h.adapter.lastPage().closed.Load())
	assert.EqualValues(t, 1, engine.closed.Load())
	_, ok := h.orchestrator.Registry().Lookup(id)
	assert.False(t, ok)
}

func TestRunJoinMissingJoinButtonFails(t *testing.T) {
	h := newHarness(t, &fakeAdapter{
		provider: models.ProviderGoogleMeet,
		err: &adapters.ElementNotFoundError{
			Provider:  models.ProviderGoogleMeet,
			Step:      "join_click",
			Selectors: []string{`button[aria-label="Join now"]`},
		},
	}, nil, time.Hour)
	id := h.seed(t, models.ProviderGoogleMeet)

	h.orchestrator.RunJoin(context.Background(), id)

	meeting := h.meeting(t, id)
	assert.Equal(t, models.MeetingStatusFailed, meeting.Status)
	require.NotNil(t, meeting.FailureReason)
	assert.Contains(t, *meeting.FailureReason, "not found")
	_, ok := h.orchestrator.Registry().Lookup(id)
	assert.False(t, ok)
}

func TestRunJoinNeedsHostReason(t *testing.T) {
	h := newHarness(t, &fakeAdapter{
		provider: models.ProviderZoom,
		err: &adapters.AdmissionDeniedError{
			Provider:  models.ProviderZoom,
			Indicator: "Please wait for the host to start this meeting",
			NeedsHost: true,
		},
	}, nil, time.Hour)
	id := h.seed(t, models.ProviderZoom)

	h.orchestrator.RunJoin(context.Background(), id)

	meeting := h.meeting(t, id)
	assert.Equal(t, models.MeetingStatusFailed, meeting.Status)
	assert.Contains(t, lo.FromPtr(meeting.FailureReason), "host admission required")
}

func TestRunJoinFailureAfterRegisterReleasesOnce(t *testing.T) {
	engine := &scriptedEngine{}
	h := newHarness(t, &fakeAdapter{provider: models.ProviderGoogleMeet, confirmed: true}, engine, time.Hour)
	id := h.seed(t, models.ProviderGoogleMeet)
	h.store.failPatch.Store(true)

	h.orchestrator.RunJoin(context.Background(), id)

	meeting := h.meeting(t, id)
	assert.Equal(t, models.MeetingStatusFailed, meeting.Status)
	assert.Contains(t, lo.FromPtr(meeting.FailureReason), "unable to record join")
	assert.EqualValues(t, 1, h.adapter.lastPage().closed.Load())
	assert.Zero(t, h.orchestrator.Registry().Len())
	assert.Zero(t, h.orchestrator.scheduler.Pending())
}

func TestRunJoinUnsupportedProvider(t *testing.T) {
	h := newHarness(t, &fakeAdapter{provider: models.ProviderGoogleMeet}, nil, time.Hour)
	id := h.seed(t, models.ProviderTeams)

	h.orchestrator.RunJoin(context.Background(), id)

	meeting := h.meeting(t, id)
	assert.Equal(t, models.MeetingStatusFailed, meeting.Status)
	assert.Contains(t, lo.FromPtr(meeting.FailureReason), "unsupported meeting provider")
}

func TestRunJoinRecoversPanic(t *testing.T) {
	h := newHarness(t, &fakeAdapter{provider: models.ProviderGoogleMeet, panicWith: "selector engine exploded"}, nil, time.Hour)
	id := h.seed(t, models.ProviderGoogleMeet)

	assert.NotPanics(t, func() {
		h.orchestrator.RunJoin(context.Background(), id)
	})

	meeting := h.meeting(t, id)
	assert.Equal(t, models.MeetingStatusFailed, meeting.Status)
	assert.Contains(t, lo.FromPtr(meeting.FailureReason), "selector engine exploded")
}

func TestRunJoinConcurrentSingleSession(t *testing.T) {
	h := newHarness(t, &fakeAdapter{provider: models.ProviderGoogleMeet, confirmed: true, delay: 20 * time.Millisecond}, nil, time.Hour)
	id := h.seed(t, models.ProviderGoogleMeet)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.orchestrator.RunJoin(context.Background(), id)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, h.adapter.calls.Load())
	assert.Equal(t, 1, h.orchestrator.Registry().Len())
	assert.Equal(t, models.MeetingStatusInProgress, h.store.status(id))
}

func TestTranscriptionStartErrorKeepsJoin(t *testing.T) {
	engine := &scriptedEngine{err: errors.New("no credentials")}
	h := newHarness(t, &fakeAdapter{provider: models.ProviderGoogleMeet, confirmed: true}, engine, time.Hour)
	id := h.seed(t, models.ProviderGoogleMeet, func(m *models.Meeting) { m.TranscriptionRequested = true })

	h.orchestrator.RunJoin(context.Background(), id)

	meeting := h.meeting(t, id)
	assert.Equal(t, models.MeetingStatusInProgress, meeting.Status)
	assert.Nil(t, meeting.TranscriptPath)
	assert.Equal(t, 1, h.orchestrator.Registry().Len())

	entries, err := os.ReadDir(h.transcripts)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecover(t *testing.T) {
	h := newHarness(t, &fakeAdapter{provider: models.ProviderGoogleMeet}, nil, time.Hour)
	due := h.seed(t, models.ProviderGoogleMeet, func(m *models.Meeting) { m.ScheduledAt = time.Now().Add(-time.Minute) })
	stale := h.seed(t, models.ProviderGoogleMeet, func(m *models.Meeting) { m.Status = models.MeetingStatusInProgress })
	done := h.seed(t, models.ProviderGoogleMeet, func(m *models.Meeting) { m.Status = models.MeetingStatusCompleted })

	rearmed, err := h.orchestrator.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rearmed)

	interrupted := h.meeting(t, stale)
	assert.Equal(t, models.MeetingStatusFailed, interrupted.Status)
	assert.Equal(t, "interrupted by restart", lo.FromPtr(interrupted.FailureReason))
	assert.Equal(t, models.MeetingStatusCompleted, h.store.status(done))

	require.Eventually(t, func() bool {
		return h.store.status(due) == models.MeetingStatusInProgress
	}, 2*time.Second, 10*time.Millisecond)
}

func TestShutdownCompletesLiveSessions(t *testing.T) {
	h := newHarness(t, &fakeAdapter{provider: models.ProviderGoogleMeet}, nil, time.Hour)
	first := h.seed(t, models.ProviderGoogleMeet)
	second := h.seed(t, models.ProviderGoogleMeet)

	h.orchestrator.RunJoin(context.Background(), first)
	h.orchestrator.RunJoin(context.Background(), second)
	require.Equal(t, 2, h.orchestrator.Registry().Len())

	h.orchestrator.Shutdown(context.Background())

	assert.Zero(t, h.orchestrator.Registry().Len())
	assert.Equal(t, models.MeetingStatusCompleted, h.store.status(first))
	assert.Equal(t, models.MeetingStatusCompleted, h.store.status(second))
	for _, page := range h.adapter.pages {
		assert.EqualValues(t, 1, page.closed.Load())
	}
}

func TestGetOwnedMeeting(t *testing.T) {
	h := newHarness(t, &fakeAdapter{provider: models.ProviderGoogleMeet}, nil, time.Hour)
	id := h.seed(t, models.ProviderGoogleMeet)

	_, err := h.orchestrator.GetOwnedMeeting(context.Background(), "owner", id)
	require.NoError(t, err)
	_, err = h.orchestrator.GetOwnedMeeting(context.Background(), "intruder", id)
	assert.ErrorIs(t, err, ErrMeetingNotOwned)
}

func TestDoArtifactCleanup(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "stale")
	fresh := filepath.Join(dir, "fresh")
	require.NoError(t, os.MkdirAll(stale, 0o755))
	require.NoError(t, os.MkdirAll(fresh, 0o755))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	DoArtifactCleanup(dir, 24*time.Hour)

	assert.NoDirExists(t, stale)
	assert.DirExists(t, fresh)

	DoArtifactCleanup(filepath.Join(dir, "missing"), time.Hour)
}
