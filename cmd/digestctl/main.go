// Command digestctl is the operator CLI for the digest pipeline.
//
//	digestctl window --day 1 --hour 15 --tz America/Los_Angeles --offset 1
//	digestctl preview --user tg_42 --offset 1
//	digestctl trigger --email someone@example.com
//	digestctl trigger --force
//	digestctl migrate
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"snipper/internal/app"
	"snipper/internal/config"
)

var logLevel string

func main() {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "digestctl: %v\n", err)
		os.Exit(1)
	}
}

// NewRootCmd constructs the root command; exposed for unit testing.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "digestctl",
		Short:         "Operate the weekly digest pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(newWindowCmd())
	root.AddCommand(newPreviewCmd())
	root.AddCommand(newTriggerCmd())
	root.AddCommand(newMigrateCmd())
	return root
}

// loadDeps loads configuration and assembles the pipeline for commands that
// need the stores. The caller must Close the result.
func loadDeps(ctx context.Context) (*app.Deps, error) {
	cfg, err := config.LoadConfig(config.NewSecretProvider(os.Getenv("APP_ENV"), os.Getenv("AWS_REGION")))
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return app.Build(ctx, cfg, cliLogger())
}

func cliLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(logLevel)}))
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelWarn
	}
	return lvl
}
