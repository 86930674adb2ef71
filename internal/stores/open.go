package stores

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/maxmusicschool/schoolauth/internal/config"
	"github.com/maxmusicschool/schoolauth/records"
)

// ErrNoMigrations is returned by Migrate for the memory adapter.
var ErrNoMigrations = errors.New("memory store has no schema to migrate")

type Options struct {
	// Migrate applies pending migrations after connecting.
	Migrate bool
}

// Handle is an opened store. Close releases the database handle, if any.
type Handle struct {
	records.Store
	close func() error
}

func (h *Handle) Close() error {
	if h == nil || h.close == nil {
		return nil
	}
	return h.close()
}

// Open connects the adapter named in c.DBAdapter.
func Open(ctx context.Context, c *config.Config, opts Options) (*Handle, error) {
	switch c.DBAdapter {
	case config.AdapterMemory:
		return &Handle{Store: records.NewMemoryStore()}, nil
	case config.AdapterSQLite, config.AdapterPostgres:
		s, err := openSQL(ctx, c)
		if err != nil {
			return nil, err
		}
		if opts.Migrate {
			if err := s.Migrate(ctx); err != nil {
				_ = s.Close()
				return nil, err
			}
		}
		return &Handle{Store: s, close: s.Close}, nil
	}
	return nil, fmt.Errorf("unknown adapter %q", c.DBAdapter)
}

// Migrate applies pending migrations and closes the connection.
func Migrate(ctx context.Context, c *config.Config) error {
	if c.DBAdapter == config.AdapterMemory {
		return ErrNoMigrations
	}
	h, err := Open(ctx, c, Options{Migrate: true})
	if err != nil {
		return err
	}
	return h.Close()
}

func openSQL(ctx context.Context, c *config.Config) (*records.SQLStore, error) {
	if c.DBAdapter == config.AdapterPostgres {
		return records.Open(ctx, records.DialectPostgres, c.DatabaseURL)
	}
	if c.SQLiteFile != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(c.SQLiteFile), 0o750); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	return records.Open(ctx, records.DialectSQLite, c.SQLiteFile)
}
