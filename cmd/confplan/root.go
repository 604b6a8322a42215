package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/confplan-io/confplan/internal/conference"
	"github.com/confplan-io/confplan/internal/config"
	"github.com/confplan-io/confplan/internal/session"
	"github.com/confplan-io/confplan/internal/storage"
)

// Store backends selectable with --store.
const (
	backendPostgres = "postgres"
	backendMemory   = "memory"
)

func newRootCmd() *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "confplan",
		Short: "Conference planning service speaking JSON lines on stdin/stdout",
		Long: `confplan reads one JSON request per stdin line and answers each with one
JSON response line on stdout. The first request must be "open", which names
the PostgreSQL database and credentials; the schema is installed on first
contact. EOF on stdin shuts the service down.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), backend)
		},
	}

	cmd.Flags().StringVar(&backend, "store", backendPostgres,
		`store backend: "postgres" or "memory" (volatile, for smoke runs)`)

	cmd.AddCommand(newMigrateCmd(), newVersionCmd())

	return cmd
}

// runServe wires the opener for the chosen backend and runs the request loop
// until stdin is exhausted.
func runServe(ctx context.Context, backend string) error {
	logger := newLogger()

	var opener session.Opener

	switch backend {
	case backendPostgres:
		opener = func(ctx context.Context, database, login, password string) (conference.Store, error) {
			return storage.Open(ctx, database, login, password, logger)
		}
	case backendMemory:
		opener = func(_ context.Context, database, _, _ string) (conference.Store, error) {
			logger.Info("using volatile in-memory store", "database", database)

			return storage.NewMemoryStore(), nil
		}
	default:
		return fmt.Errorf("unknown store backend %q", backend)
	}

	dispatcher := session.NewDispatcher(opener, logger)

	return dispatcher.Run(ctx, os.Stdin, os.Stdout)
}

// newLogger builds the structured logger. Output goes to stderr; stdout
// carries only protocol responses. LOG_SOURCE=true adds source locations to
// every record.
func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level:     config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		AddSource: config.GetEnvBool("LOG_SOURCE", false),
	}))
}
