package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"snipper/internal/config"
	"snipper/internal/db"
	"snipper/internal/digest"
	"snipper/internal/scheduler"
	"snipper/internal/types"
)

func newPreviewCmd() *cobra.Command {
	var (
		userID string
		offset int
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Render a user's digest without sending it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			deps, err := loadDeps(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			s, err := deps.Schedules.Get(ctx, userID)
			if err != nil {
				return err
			}
			recs, w, err := deps.Adapter.FetchRecordsInWindow(ctx, s, offset, deps.Config.Digest.RecordLimit)
			if err != nil {
				return err
			}
			return writePreview(cmd.OutOrStdout(), s, recs, w)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User ID (required)")
	cmd.Flags().IntVar(&offset, "offset", 1, "Weeks back; 1 is the week that just ended")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func writePreview(out io.Writer, s *types.UserSchedule, recs []types.Record, w types.Window) error {
	loc, err := s.Location()
	if err != nil {
		return err
	}
	d, err := digest.FormatDigest(recs, s.RecordFormat, s.DateFormat, w.Start.In(loc))
	if errors.Is(err, digest.ErrNothingToReport) {
		fmt.Fprintf(out, "nothing to report between %s and %s\n",
			w.Start.In(loc).Format(time.RFC3339), w.End.In(loc).Format(time.RFC3339))
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "To:      %s\n", s.Email)
	fmt.Fprintf(out, "Subject: %s\n\n", digest.Subject(s.DisplayName(), d.DateLabel))
	fmt.Fprint(out, digest.MailBody(d.DateLabel, d.Body))
	return nil
}

func newTriggerCmd() *cobra.Command {
	var (
		offset int
		force  bool
		userID string
		email  string
	)

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Start a digest run for one recipient, or for everyone with --force",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := triggerRequest(offset, force, userID, email)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			deps, err := loadDeps(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			step, err := deps.Fanout.Start(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "started: trace=%s batch=%t\n", step.TraceID, step.IsBatch())
			return nil
		},
	}

	cmd.Flags().IntVar(&offset, "offset", 1, "Weeks back")
	cmd.Flags().BoolVar(&force, "force", false, "Send to every user regardless of schedule")
	cmd.Flags().StringVar(&userID, "user", "", "Recipient user ID")
	cmd.Flags().StringVar(&email, "email", "", "Recipient email")
	return cmd
}

// triggerRequest builds the operator's request. Operators are trusted, so
// Admin is always set.
func triggerRequest(offset int, force bool, userID, email string) (scheduler.TriggerRequest, error) {
	if offset < 0 {
		return scheduler.TriggerRequest{}, fmt.Errorf("--offset must not be negative")
	}
	if !force && userID == "" && email == "" {
		return scheduler.TriggerRequest{}, fmt.Errorf("one of --user, --email or --force is required")
	}
	return scheduler.TriggerRequest{
		Offset:         offset,
		Force:          force,
		Admin:          true,
		RecipientID:    userID,
		RecipientEmail: email,
	}, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(config.NewSecretProvider(os.Getenv("APP_ENV"), os.Getenv("AWS_REGION")))
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if err := db.Migrate(cfg.Database.URL.Unmask(), cliLogger()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
