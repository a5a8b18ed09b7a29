package collab

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/augmentcore/corehub/internal/core/lifecycle"
)

// Schema is the SQL DDL for the running_apps table backing [PostgresUserStore].
const Schema = `
CREATE TABLE IF NOT EXISTS running_apps (
    user_id      TEXT NOT NULL,
    package_name TEXT NOT NULL,
    started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, package_name)
);
`

// DB is the minimal database interface [PostgresUserStore] needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresUserStore is a [lifecycle.UserStore] backed by Postgres.
type PostgresUserStore struct {
	db DB
}

var _ lifecycle.UserStore = (*PostgresUserStore)(nil)

// NewPostgresUserStore returns a PostgresUserStore backed by db.
func NewPostgresUserStore(db DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

// Migrate creates the running_apps table if it does not already exist.
func (s *PostgresUserStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("userstore: migrate: %w", err)
	}
	return nil
}

// AddRunningApp implements lifecycle.UserStore.
func (s *PostgresUserStore) AddRunningApp(ctx context.Context, userID, packageName string) error {
	const query = `
		INSERT INTO running_apps (user_id, package_name)
		VALUES ($1, $2)
		ON CONFLICT (user_id, package_name) DO NOTHING`
	if _, err := s.db.Exec(ctx, query, userID, packageName); err != nil {
		return fmt.Errorf("userstore: add running app: %w", err)
	}
	return nil
}

// RemoveRunningApp implements lifecycle.UserStore.
func (s *PostgresUserStore) RemoveRunningApp(ctx context.Context, userID, packageName string) error {
	const query = `DELETE FROM running_apps WHERE user_id = $1 AND package_name = $2`
	if _, err := s.db.Exec(ctx, query, userID, packageName); err != nil {
		return fmt.Errorf("userstore: remove running app: %w", err)
	}
	return nil
}

// UserStoreGuard wraps a [lifecycle.UserStore] and makes every operation
// non-fatal: a failure is logged and swallowed rather than propagated, so a
// degraded persistence backend never blocks app start/stop. IsDegraded
// reports whether the most recent call failed.
type UserStoreGuard struct {
	store    lifecycle.UserStore
	logger   *slog.Logger
	degraded atomic.Bool
}

var _ lifecycle.UserStore = (*UserStoreGuard)(nil)

// NewUserStoreGuard wraps store. logger may be nil to use slog.Default().
func NewUserStoreGuard(store lifecycle.UserStore, logger *slog.Logger) *UserStoreGuard {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserStoreGuard{store: store, logger: logger}
}

// AddRunningApp delegates to the wrapped store, swallowing any error.
func (g *UserStoreGuard) AddRunningApp(ctx context.Context, userID, packageName string) error {
	if err := g.store.AddRunningApp(ctx, userID, packageName); err != nil {
		g.degraded.Store(true)
		g.logger.Warn("user store guard: AddRunningApp failed, swallowing error",
			"user_id", userID, "package_name", packageName, "error", err)
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// RemoveRunningApp delegates to the wrapped store, swallowing any error.
func (g *UserStoreGuard) RemoveRunningApp(ctx context.Context, userID, packageName string) error {
	if err := g.store.RemoveRunningApp(ctx, userID, packageName); err != nil {
		g.degraded.Store(true)
		g.logger.Warn("user store guard: RemoveRunningApp failed, swallowing error",
			"user_id", userID, "package_name", packageName, "error", err)
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// IsDegraded reports whether the wrapped store's most recent operation
// failed.
func (g *UserStoreGuard) IsDegraded() bool {
	return g.degraded.Load()
}
