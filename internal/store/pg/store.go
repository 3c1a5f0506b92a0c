// Package pg is the PostgreSQL credential store adapter over pgxpool.
package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/weddary/weddary/internal/credential"
	"github.com/weddary/weddary/internal/oauth/provider"
	"github.com/weddary/weddary/internal/observability/logger"
)

// Store wraps a pgx pool.
type Store struct{ pool *pgxpool.Pool }

// Config tunes the pool.
type Config struct {
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
}

// New parses the DSN and opens the pool. Startup is non-blocking: a failed
// ping is logged, not fatal, so the app can come up while the DB recovers.
func New(ctx context.Context, dsn string, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		logger.L().Warn("pg startup ping failed", logger.Component("store.pg"), logger.Err(err))
	}
	return &Store{pool: pool}, nil
}

// Pool exposes the underlying pool for migrations and health checks.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close shuts the pool down. Idempotent.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// EventExists implements credential.EventResolver.
func (s *Store) EventExists(ctx context.Context, eventID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM events WHERE id = $1)`, eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("pg: event exists: %w", err)
	}
	return exists, nil
}

// Get implements credential.Store.
func (s *Store) Get(ctx context.Context, eventID int64, p provider.ID) (*credential.TenantCredential, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT event_id, provider, client_id, client_secret, redirect_uri,
		       access_token, refresh_token, token_expiry, account_email,
		       enabled, updated_at
		  FROM oauth_credentials
		 WHERE event_id = $1 AND provider = $2`,
		eventID, string(p),
	)
	var (
		c           credential.TenantCredential
		prov        string
		clientID    *string
		secret      *string
		redirectURI *string
		access      *string
		refresh     *string
		email       *string
	)
	err := row.Scan(&c.EventID, &prov, &clientID, &secret, &redirectURI,
		&access, &refresh, &c.TokenExpiry, &email, &c.Enabled, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, credential.ErrNotFound
		}
		return nil, fmt.Errorf("pg: get credential: %w", err)
	}
	c.Provider = provider.ID(prov)
	c.ClientID = deref(clientID)
	c.ClientSecret = deref(secret)
	c.RedirectURI = deref(redirectURI)
	c.AccessToken = deref(access)
	c.RefreshToken = deref(refresh)
	c.AccountEmail = deref(email)
	return &c, nil
}

// Merge implements credential.Store as one UPSERT: only the patched columns
// are written, and the whole patch is a single statement so a token pair can
// never be half-persisted.
func (s *Store) Merge(ctx context.Context, eventID int64, p provider.ID, patch credential.Patch) error {
	if patch.IsEmpty() {
		return nil
	}

	cols := []string{"event_id", "provider", "updated_at"}
	args := []any{eventID, string(p), time.Now()}
	add := func(col string, v any) {
		cols = append(cols, col)
		args = append(args, v)
	}
	if patch.ClientID != nil {
		add("client_id", *patch.ClientID)
	}
	if patch.ClientSecret != nil {
		add("client_secret", *patch.ClientSecret)
	}
	if patch.RedirectURI != nil {
		add("redirect_uri", *patch.RedirectURI)
	}
	if patch.AccessToken != nil {
		add("access_token", *patch.AccessToken)
	}
	if patch.RefreshToken != nil {
		add("refresh_token", *patch.RefreshToken)
	}
	if patch.TokenExpiry != nil {
		add("token_expiry", *patch.TokenExpiry)
	}
	if patch.AccountEmail != nil {
		add("account_email", *patch.AccountEmail)
	}
	if patch.Enabled != nil {
		add("enabled", *patch.Enabled)
	}

	placeholders := make([]string, len(cols))
	sets := make([]string, 0, len(cols)-2)
	for i, col := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if col != "event_id" && col != "provider" {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO oauth_credentials (%s)
		VALUES (%s)
		ON CONFLICT (event_id, provider) DO UPDATE SET %s`,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(sets, ", "),
	)
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("pg: merge credential: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
