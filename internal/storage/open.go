package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/confplan-io/confplan/internal/conference"
	"github.com/confplan-io/confplan/migrations"
)

// Open connects to the named database with the given credentials, installs
// the schema if it is not present yet, and returns a ready store. This is the
// production session.Opener.
func Open(ctx context.Context, database, login, password string, logger *slog.Logger) (conference.Store, error) {
	cfg := LoadConfig()

	dsn, err := cfg.DSN(database, login, password)
	if err != nil {
		return nil, err
	}

	conn, err := NewConnection(ctx, cfg, dsn)
	if err != nil {
		return nil, err
	}

	if err := migrations.Apply(conn.DB()); err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("installing schema: %w", err)
	}

	logger.Info("database session established", "url", migrations.MaskDatabaseURL(dsn))

	return NewConferenceStore(conn, logger), nil
}
