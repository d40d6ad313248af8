package store

import (
	"context"
	"strings"
)

// NewKV creates a postgres-backed store when a database URL is configured, a
// SQLite file store when a path is configured, otherwise in-memory.
func NewKV(ctx context.Context, databaseURL, databasePath string) (KV, error) {
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresKV(ctx, databaseURL)
	}
	if strings.TrimSpace(databasePath) != "" {
		return NewSQLiteKV(databasePath)
	}
	return NewInMemoryKV(), nil
}
