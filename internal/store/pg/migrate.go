package pg

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/weddary/weddary/internal/observability/logger"
)

// Migrate applies every .sql file in dir of fsys, in lexical order. Files are
// written to be idempotent (IF NOT EXISTS), so re-running is safe.
func (s *Store) Migrate(ctx context.Context, fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("pg: read migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && path.Ext(e.Name()) == ".sql" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	log := logger.From(ctx).With(logger.Component("pg.migrate"))
	for _, name := range names {
		sql, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return fmt.Errorf("pg: read migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("pg: apply migration %s: %w", name, err)
		}
		log.Info("migration applied", logger.Any("file", name))
	}
	return nil
}
