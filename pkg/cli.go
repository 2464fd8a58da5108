package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"git.solsynth.dev/hypernet/autojoin/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/models"
)

func newJoinCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "join <meeting-id>",
		Short: "Join a scheduled meeting now and stay until it ends",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := boot(ctx, *configPath)
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			rt.scheduler.Start()
			defer rt.scheduler.Stop(context.Background())

			id := args[0]
			rt.orchestrator.RunJoin(ctx, id)

			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				if _, ok := rt.orchestrator.Registry().Lookup(id); !ok {
					break
				}
				select {
				case <-ctx.Done():
					rt.orchestrator.Shutdown(context.Background())
				case <-ticker.C:
				}
			}

			meeting, err := rt.orchestrator.GetMeeting(context.Background(), id)
			if err != nil {
				return err
			}
			printMeeting(os.Stdout, meeting)
			return nil
		},
	}
}

func newMeetingsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "meetings <owner-id>",
		Short: "List the meetings of an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := boot(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			meetings, err := rt.orchestrator.ListMeetings(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(meetings) == 0 {
				fmt.Println("No meetings found")
				return nil
			}
			for _, meeting := range meetings {
				printMeeting(os.Stdout, meeting)
			}
			return nil
		},
	}
}

func newTokenCmd(configPath *string) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "token <owner-id>",
		Short: "Issue a bearer token for the HTTP API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, rotator, err := loadSettings(*configPath)
			if err != nil {
				return err
			}
			defer rotator.Close()

			if duration <= 0 {
				duration = settings.Security.TokenDuration
			}
			token, err := exts.IssueToken(settings.Security.Secret, args[0], duration)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&duration, "ttl", 0, "token lifetime, defaults to security.token_duration")
	return cmd
}

var statusColors = map[models.MeetingStatus]*color.Color{
	models.MeetingStatusScheduled:  color.New(color.FgCyan),
	models.MeetingStatusInProgress: color.New(color.FgYellow),
	models.MeetingStatusCompleted:  color.New(color.FgGreen),
	models.MeetingStatusFailed:     color.New(color.FgRed),
}

func printMeeting(out *os.File, meeting models.Meeting) {
	status := lo.ValueOr(statusColors, meeting.Status, color.New(color.Reset))
	fmt.Fprintf(out, "%s  %-16s %-12s %s",
		meeting.ID,
		meeting.Provider.DisplayText(),
		status.Sprint(meeting.Status),
		meeting.ScheduledAt.Local().Format("2006-01-02 15:04"),
	)
	if meeting.FailureReason != nil {
		fmt.Fprintf(out, "  %s", color.RedString(*meeting.FailureReason))
	}
	if meeting.TranscriptPath != nil {
		fmt.Fprintf(out, "  %s", *meeting.TranscriptPath)
	}
	fmt.Fprintln(out)
}
