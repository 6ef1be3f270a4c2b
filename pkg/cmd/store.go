// Package cmd provides common initialization functions for
// command-line applications.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/docflow/docflow/pkg/recordstore"
	"github.com/docflow/docflow/pkg/recordstore/file"
	"github.com/docflow/docflow/pkg/recordstore/postgresql"
	"github.com/docflow/docflow/pkg/recordstore/redis"
)

// NewRecordStore constructs a record store from a database URL. The
// scheme selects the backend; anything without a recognized scheme is
// treated as a file path.
func NewRecordStore(ctx context.Context, logger *slog.Logger, databaseURL string) (recordstore.Store, error) {
	switch parseStoreProvider(databaseURL) {
	case "postgres":
		return postgresql.NewStore(ctx, logger, databaseURL)
	case "redis":
		return redis.NewStore(databaseURL)
	default:
		return file.NewStore(databaseURL), nil
	}
}

func parseStoreProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	switch scheme {
	case "postgres", "postgresql":
		return "postgres"
	case "redis", "rediss":
		return "redis"
	default:
		return "file"
	}
}
