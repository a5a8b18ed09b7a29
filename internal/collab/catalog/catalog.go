// Package catalog implements the Postgres-backed app catalog adapter (C14):
// resolving installed-app metadata and validating TPA API keys against the
// `apps` table.
package catalog

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/augmentcore/corehub/internal/core/lifecycle"
)

// Schema is the SQL DDL for the apps table.
const Schema = `
CREATE TABLE IF NOT EXISTS apps (
    package_name    TEXT PRIMARY KEY,
    public_base_url TEXT NOT NULL,
    is_system_app   BOOLEAN NOT NULL DEFAULT false,
    api_key_hash    TEXT NOT NULL,
    permissions     JSONB NOT NULL DEFAULT '[]',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a Postgres-backed implementation of [lifecycle.Catalog] plus API
// key validation for the TPA connection front-end.
type Store struct {
	db DB
}

// Compile-time interface check.
var _ lifecycle.Catalog = (*Store)(nil)

// New returns a Store backed by db. Callers are responsible for calling
// Migrate before issuing queries.
func New(db DB) *Store {
	return &Store{db: db}
}

// Migrate creates the apps table if it does not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("catalog: migrate: %w", err)
	}
	return nil
}

// GetApp implements lifecycle.Catalog.
func (s *Store) GetApp(ctx context.Context, packageName string) (lifecycle.AppDescriptor, bool, error) {
	const query = `
		SELECT public_base_url, is_system_app, permissions
		FROM apps WHERE package_name = $1`

	var (
		baseURL  string
		isSystem bool
		permsRaw []string
	)
	err := s.db.QueryRow(ctx, query, packageName).Scan(&baseURL, &isSystem, &permsRaw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lifecycle.AppDescriptor{}, false, nil
		}
		return lifecycle.AppDescriptor{}, false, fmt.Errorf("catalog: get app %s: %w", packageName, err)
	}

	perms := make(map[string]bool, len(permsRaw))
	for _, p := range permsRaw {
		perms[p] = true
	}
	return lifecycle.AppDescriptor{
		PackageName:   packageName,
		PublicBaseURL: baseURL,
		IsSystemApp:   isSystem,
		Permissions:   perms,
	}, true, nil
}

// ValidateAPIKey checks apiKey against the stored hash for packageName, and
// for system apps additionally requires clientIP to be loopback or
// RFC1918/RFC4193 private space.
func (s *Store) ValidateAPIKey(ctx context.Context, packageName, apiKey, clientIP string) (bool, error) {
	const query = `SELECT api_key_hash, is_system_app FROM apps WHERE package_name = $1`

	var (
		storedHash string
		isSystem   bool
	)
	err := s.db.QueryRow(ctx, query, packageName).Scan(&storedHash, &isSystem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("catalog: validate api key for %s: %w", packageName, err)
	}

	if subtle.ConstantTimeCompare([]byte(hashAPIKey(apiKey)), []byte(storedHash)) != 1 {
		return false, nil
	}
	if isSystem && !isPrivateAddress(clientIP) {
		return false, nil
	}
	return true, nil
}

func hashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// isPrivateAddress reports whether addr (a bare IP or "host:port") names a
// loopback or private (RFC1918/RFC4193) address, required for system-app
// connect-back validation.
func isPrivateAddress(addr string) bool {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate()
}
