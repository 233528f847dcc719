package settings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "promobot/pkg/logx"
)

func openT(t *testing.T, cfg Config) Store {
	t.Helper()
	st, err := Open(cfg, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestFileStoreLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	tests := []struct {
		name string
		body string // empty: file absent
	}{
		{name: "missing"},
		{name: "garbage", body: "{not json"},
		{name: "wrong type", body: `{"interval_hours":"abc"}`},
		{name: "zero", body: `{"interval_hours":0}`},
		{name: "negative", body: `{"interval_hours":-3}`},
		{name: "empty object", body: `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			if tt.body != "" {
				require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))
			}
			st := openT(t, Config{Path: path})
			assert.Equal(t, Default(), st.Load(ctx))

			// Load must never create or rewrite the file.
			b, err := os.ReadFile(path)
			if tt.body == "" {
				assert.True(t, os.IsNotExist(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.body, string(b))
			}
		})
	}
}

func TestFileStoreSaveLoad(t *testing.T) {
	ctx := context.Background()
	for _, name := range []string{"config.json", "settings.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			st := openT(t, Config{Driver: "file", Path: path})

			require.NoError(t, st.Save(ctx, Settings{IntervalHours: 3}))
			assert.Equal(t, Settings{IntervalHours: 3}, st.Load(ctx))

			_, err := os.Stat(path + ".tmp")
			assert.True(t, os.IsNotExist(err), "temp file must not linger")

			// A fresh store (process restart) sees the persisted value.
			again := openT(t, Config{Path: path})
			assert.Equal(t, 3, again.Load(ctx).IntervalHours)
		})
	}
}

func TestFileStoreWireFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	st := openT(t, Config{Path: path})
	require.NoError(t, st.Save(context.Background(), Settings{IntervalHours: 2}))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"interval_hours":2}`, string(b))
}

func TestFileStoreSaveRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	st := openT(t, Config{Path: path})

	err := st.Save(context.Background(), Settings{IntervalHours: 0})
	require.ErrorIs(t, err, ErrInvalid)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileStoreSaveFailureIsPersistenceError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	// Parent "directory" is a regular file, so the write cannot complete.
	st := openT(t, Config{Path: filepath.Join(blocker, "config.json")})
	err := st.Save(context.Background(), Settings{IntervalHours: 4})

	var pe *PersistenceError
	require.True(t, errors.As(err, &pe), "want *PersistenceError, got %v", err)
	assert.Equal(t, Default(), st.Load(context.Background()))
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db", "settings.db")

	st := openT(t, Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second})
	assert.Equal(t, Default(), st.Load(ctx))

	require.NoError(t, st.Save(ctx, Settings{IntervalHours: 5}))
	require.NoError(t, st.Save(ctx, Settings{IntervalHours: 6}))
	assert.Equal(t, 6, st.Load(ctx).IntervalHours)
	require.NoError(t, st.Close())

	again := openT(t, Config{Driver: "sqlite", Path: path})
	assert.Equal(t, 6, again.Load(ctx).IntervalHours)
	require.ErrorIs(t, again.Save(ctx, Settings{IntervalHours: -1}), ErrInvalid)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "etcd"}, logx.Nop())
	require.Error(t, err)

	_, err = Open(Config{Driver: "sqlite"}, logx.Nop())
	require.Error(t, err, "sqlite needs a path")
}

func TestIsLockError(t *testing.T) {
	assert.True(t, isLockError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, isLockError(errors.New("no such table")))
	assert.False(t, isLockError(nil))
}
