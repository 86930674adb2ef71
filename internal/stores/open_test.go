package stores

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/maxmusicschool/schoolauth/internal/config"
	"github.com/maxmusicschool/schoolauth/records"
	"github.com/stretchr/testify/require"
)

func TestOpenMemory(t *testing.T) {
	h, err := Open(context.Background(), &config.Config{DBAdapter: config.AdapterMemory}, Options{})
	require.NoError(t, err)
	require.IsType(t, &records.MemoryStore{}, h.Store)
	require.NoError(t, h.Close())

	err = Migrate(context.Background(), &config.Config{DBAdapter: config.AdapterMemory})
	require.ErrorIs(t, err, ErrNoMigrations)
}

func TestOpenSQLiteAppliesMigrations(t *testing.T) {
	ctx := context.Background()
	c := &config.Config{
		DBAdapter:  config.AdapterSQLite,
		SQLiteFile: filepath.Join(t.TempDir(), "nested", "school.db"),
	}

	require.NoError(t, Migrate(ctx, c))

	h, err := Open(ctx, c, Options{Migrate: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	_, err = h.CreateTeacher(ctx, records.Teacher{
		ID: "t1", Name: "Asha", Email: "asha@school.test", PasswordHash: "x",
		Subject: "Guitar", Status: records.StatusActive,
	})
	require.NoError(t, err)
	got, err := h.TeacherByEmail(ctx, "asha@school.test")
	require.NoError(t, err)
	require.Equal(t, "t1", got.ID)
}

func TestOpenUnknownAdapter(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{DBAdapter: "mongo"}, Options{})
	require.Error(t, err)
}
