package records

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestSQLiteStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return newSQLiteStore(t) })
}

func TestSQLiteMigrateIsIdempotent(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestOpenRejectsUnknownDialect(t *testing.T) {
	_, err := Open(context.Background(), Dialect("oracle"), "x")
	require.Error(t, err)
}

func TestSQLiteRebind(t *testing.T) {
	s := &SQLStore{dialect: DialectSQLite}
	require.Equal(t, "SELECT 1 WHERE a = ?1 AND b = ?2", s.q("SELECT 1 WHERE a = $1 AND b = $2"))

	pg := &SQLStore{dialect: DialectPostgres}
	require.Equal(t, "a = $1", pg.q("a = $1"))
}
