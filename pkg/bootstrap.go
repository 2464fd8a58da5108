package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"git.solsynth.dev/hypernet/autojoin/pkg/internal/adapters"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/audio"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/browser"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/config"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/database"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/logging"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/registry"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/scheduler"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/services"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/store"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/transcription"
)

type pingStore interface {
	store.Store
	Ping(ctx context.Context) error
}

// runtime holds every long-lived component built from settings.toml.
type runtime struct {
	settings     config.Settings
	store        pingStore
	scheduler    *scheduler.Scheduler
	orchestrator *services.Orchestrator

	closers []func(ctx context.Context) error
}

func loadSettings(path string) (config.Settings, io.Closer, error) {
	if err := config.Setup(path); err != nil {
		return config.Settings{}, nil, fmt.Errorf("unable to read settings: %w", err)
	}
	settings, err := config.Load()
	if err != nil {
		return config.Settings{}, nil, err
	}

	rotator, err := logging.Setup(settings.Logging)
	if err != nil {
		return config.Settings{}, nil, fmt.Errorf("unable to set up logging: %w", err)
	}
	return settings, rotator, nil
}

func boot(ctx context.Context, path string) (*runtime, error) {
	settings, rotator, err := loadSettings(path)
	if err != nil {
		return nil, err
	}

	rt := &runtime{settings: settings}
	rt.closers = append(rt.closers, func(context.Context) error { return rotator.Close() })
	if rt.store, err = openStore(ctx, settings.Database, rt); err != nil {
		rt.close(ctx)
		return nil, err
	}

	engine, err := openEngine(ctx, settings.Speech, rt)
	if err != nil {
		rt.close(ctx)
		return nil, err
	}
	source, err := audio.New(settings.Audio.Source, settings.Audio.PulseSource)
	if err != nil {
		rt.close(ctx)
		return nil, err
	}

	driver := &browser.ChromeDriver{
		Headless: settings.Browser.Headless,
		ExecPath: settings.Browser.ExecPath,
		Width:    settings.Browser.Width,
		Height:   settings.Browser.Height,
	}
	base := adapters.Base{Driver: driver, Log: log.Logger}

	rt.scheduler = scheduler.New(log.Logger, settings.Sessions.Location)
	rt.orchestrator = services.NewOrchestrator(services.Options{
		Store:     rt.store,
		Adapters:  adapters.NewSet(adapters.NewGoogleMeet(base), adapters.NewTeams(base), adapters.NewZoom(base)),
		Registry:  registry.New(),
		Scheduler: rt.scheduler,
		Engine:    engine,
		Audio:     source,
		Speech: transcription.Config{
			Language:        settings.Speech.Language,
			SampleRateHertz: transcription.DefaultConfig().SampleRateHertz,
			MinSpeakers:     int32(settings.Speech.MinSpeakers),
			MaxSpeakers:     int32(settings.Speech.MaxSpeakers),
		},
		SessionDuration:    settings.Sessions.MaxDuration,
		DefaultDisplayName: settings.Sessions.DisplayName,
		TranscriptDir:      settings.Paths.Transcripts,
		ScreenshotDir:      settings.Paths.Screenshots,
		Log:                log.Logger,
	})
	return rt, nil
}

func openStore(ctx context.Context, settings config.DatabaseSettings, rt *runtime) (pingStore, error) {
	switch settings.Driver {
	case "mongo":
		mongo, err := store.NewMongoStore(ctx, settings.MongoUri, settings.MongoName)
		if err != nil {
			return nil, fmt.Errorf("unable to connect to mongo: %w", err)
		}
		rt.closers = append(rt.closers, mongo.Close)
		return mongo, nil
	default:
		if err := database.NewSource(settings.Dsn, false); err != nil {
			return nil, fmt.Errorf("unable to connect to database: %w", err)
		} else if err := database.RunMigration(database.C); err != nil {
			return nil, fmt.Errorf("unable to run database auto migration: %w", err)
		}
		rt.closers = append(rt.closers, func(context.Context) error {
			conn, err := database.C.DB()
			if err != nil {
				return err
			}
			return conn.Close()
		})
		return store.NewGormStore(database.C), nil
	}
}

func openEngine(ctx context.Context, settings config.SpeechSettings, rt *runtime) (transcription.Engine, error) {
	if settings.Engine != "google" {
		return transcription.NoopEngine{}, nil
	}

	var opts []option.ClientOption
	if len(settings.Credentials) > 0 {
		opts = append(opts, option.WithCredentialsFile(settings.Credentials))
	}
	engine, err := transcription.NewGoogleEngine(ctx, opts...)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func(context.Context) error { return engine.Close() })
	return engine, nil
}

func (v *runtime) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for i := len(v.closers) - 1; i >= 0; i-- {
		if err := v.closers[i](ctx); err != nil {
			log.Warn().Err(err).Msg("An error occurred when closing resource")
		}
	}
}
