package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	pkg "git.solsynth.dev/hypernet/autojoin/pkg/internal"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/grpc"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/http"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/services"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler with the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *configPath)
		},
	}
}

func serve(ctx context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := boot(ctx, configPath)
	if err != nil {
		log.Error().Err(err).Msg("An error occurred when booting up.")
		return err
	}
	defer rt.close(context.Background())

	// Configure timed tasks
	rt.scheduler.Start()
	if _, err := rt.orchestrator.Recover(ctx); err != nil {
		log.Error().Err(err).Msg("An error occurred when recovering meeting schedule.")
	}
	screenshots := rt.settings.Paths
	if _, err := rt.scheduler.Every("@every 60m", func() {
		services.DoArtifactCleanup(screenshots.Screenshots, screenshots.ScreenshotRetention)
	}); err != nil {
		return err
	}

	// Server
	server := http.NewServer(rt.orchestrator, http.Options{
		Bind:        rt.settings.Bind,
		Secret:      rt.settings.Security.Secret,
		PrintRoutes: rt.settings.PrintRoutes,
	})
	health := grpc.NewGrpc(rt.store)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(server.Listen)
	group.Go(func() error {
		return health.Listen(rt.settings.GrpcBind)
	})

	// Messages
	log.Info().Msgf("AutoJoin v%s is started...", pkg.AppVersion)

	group.Go(func() error {
		<-gctx.Done()
		log.Info().Msgf("AutoJoin v%s is quitting...", pkg.AppVersion)

		quit, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		rt.orchestrator.Shutdown(quit)
		rt.scheduler.Stop(quit)
		health.Stop()
		return server.Shutdown()
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("An error occurred when running servers.")
		return err
	}
	return nil
}
