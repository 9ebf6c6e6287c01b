package main

import (
	"context"
	"strings"

	"github.com/samber/oops"

	"github.com/hongminglow/coverage-api/internal/storage"
	"github.com/hongminglow/coverage-api/internal/storage/memory"
	"github.com/hongminglow/coverage-api/internal/storage/postgres"
	"github.com/hongminglow/coverage-api/internal/storage/sqlite"
)

const (
	storePostgres = "postgres"
	storeSQLite   = "sqlite"
	storeMemory   = "memory"
)

// storeKind reports which store a database URL selects, or "" if none.
func storeKind(databaseURL string) string {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return storePostgres
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return storeSQLite
	case strings.HasPrefix(databaseURL, "memory://"):
		return storeMemory
	default:
		return ""
	}
}

// openStore connects to the store selected by the URL scheme.
func openStore(ctx context.Context, databaseURL string) (storage.UserStore, error) {
	switch storeKind(databaseURL) {
	case storePostgres:
		return postgres.NewUserStore(ctx, databaseURL)
	case storeSQLite:
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		if path == "" {
			return nil, oops.Code("CONFIG_INVALID").Errorf("sqlite DATABASE_URL needs a path")
		}
		return sqlite.NewUserStore(ctx, path)
	case storeMemory:
		return memory.NewUserStore(), nil
	default:
		return nil, oops.Code("CONFIG_INVALID").
			With("scheme", scheme(databaseURL)).
			Errorf("DATABASE_URL must start with postgres://, postgresql://, sqlite:// or memory://")
	}
}

func scheme(databaseURL string) string {
	if i := strings.Index(databaseURL, "://"); i >= 0 {
		return databaseURL[:i]
	}
	return ""
}
