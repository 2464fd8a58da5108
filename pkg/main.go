package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	pkg "git.solsynth.dev/hypernet/autojoin/pkg/internal"
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	serve := newServeCmd(&configPath)
	rootCmd := &cobra.Command{
		Use:           "autojoin",
		Short:         "Join scheduled online meetings and transcribe them",
		Version:       pkg.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          serve.RunE,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to settings.toml")

	rootCmd.AddCommand(serve)
	rootCmd.AddCommand(newJoinCmd(&configPath))
	rootCmd.AddCommand(newMeetingsCmd(&configPath))
	rootCmd.AddCommand(newTokenCmd(&configPath))

	return rootCmd
}
