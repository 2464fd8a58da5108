package services

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"git.solsynth.dev/hypernet/autojoin/pkg/internal/adapters"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/audio"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/config"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/metrics"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/registry"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/scheduler"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/store"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/transcription"
)

const DefaultSessionDuration = 3 * time.Hour

var (
	ErrNoActiveSession       = errors.New("meeting has no active session")
	ErrTranscriptUnavailable = errors.New("transcript is not available")
	ErrMeetingNotOwned       = errors.New("meeting belongs to another owner")
)

type Options struct {
	Store     store.Store
	Adapters  adapters.Set
	Registry  *registry.Registry
	Scheduler *scheduler.Scheduler
	Engine    transcription.Engine
	Audio     audio.Source
	Speech    transcription.Config

	// SessionDuration is how long a joined meeting is kept before the
	// automatic teardown.
	SessionDuration    time.Duration
	DefaultDisplayName string
	TranscriptDir      string
	ScreenshotDir      string

	Log zerolog.Logger
}

// Orchestrator drives every meeting from scheduled to a terminal state.
type Orchestrator struct {
	store     store.Store
	adapters  adapters.Set
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
	engine    transcription.Engine
	audio     audio.Source
	speech    transcription.Config

	sessionDuration    time.Duration
	defaultDisplayName string
	transcriptDir      string
	screenshotDir      string

	log zerolog.Logger
}

func NewOrchestrator(opts Options) *Orchestrator {
	v := &Orchestrator{
		store:              opts.Store,
		adapters:           opts.Adapters,
		registry:           opts.Registry,
		scheduler:          opts.Scheduler,
		engine:             opts.Engine,
		audio:              opts.Audio,
		speech:             opts.Speech,
		sessionDuration:    opts.SessionDuration,
		defaultDisplayName: opts.DefaultDisplayName,
		transcriptDir:      opts.TranscriptDir,
		screenshotDir:      opts.ScreenshotDir,
		log:                opts.Log,
	}

	if v.registry == nil {
		v.registry = registry.New()
	}
	if v.engine == nil {
		v.engine = transcription.NoopEngine{}
	}
	if v.audio == nil {
		v.audio = audio.SilentSource{}
	}
	if v.speech == (transcription.Config{}) {
		v.speech = transcription.DefaultConfig()
	}
	if v.sessionDuration <= 0 {
		v.sessionDuration = DefaultSessionDuration
	}
	if len(v.defaultDisplayName) == 0 {
		v.defaultDisplayName = config.DefaultDisplayName
	}
	return v
}

func (v *Orchestrator) Registry() *registry.Registry {
	return v.registry
}

func (v *Orchestrator) observe() {
	metrics.ActiveSessions.Set(float64(v.registry.Len()))
	metrics.PendingTimers.Set(float64(v.scheduler.Pending()))
}
