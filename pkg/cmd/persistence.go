package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agridesk/agridesk/pkg/persistence"
	"github.com/agridesk/agridesk/pkg/persistence/file"
	"github.com/agridesk/agridesk/pkg/persistence/postgresql"
)

// NewPersistence selects a persistence implementation from the database URL
// scheme. postgres:// URLs get the PostgreSQL layer; anything else is
// treated as a file path for the development file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL persistence: %w", err)
		}

		return p, nil
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	parts := strings.SplitN(databaseURL, "://", 2)
	if len(parts) < 2 {
		return "file"
	}

	return parts[0]
}
