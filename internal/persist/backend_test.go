package persist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/l1jgo/savemaster/internal/config"
)

// exerciseBackend runs the behaviour every Backend shares.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	slots, err := b.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, slots)

	_, err = b.Read(ctx, 4)
	assert.True(t, errors.Is(err, ErrSlotNotFound), "got %v", err)

	require.NoError(t, b.Write(ctx, 4, []byte("four")))
	require.NoError(t, b.Write(ctx, 1, []byte("one")))
	require.NoError(t, b.Write(ctx, 12, []byte("twelve")))

	slots, err = b.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 12}, slots)

	got, err := b.Read(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, "four", string(got))

	require.NoError(t, b.Write(ctx, 4, []byte("FOUR")))
	got, err = b.Read(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, "FOUR", string(got))

	require.NoError(t, b.Delete(ctx, 4))
	require.NoError(t, b.Delete(ctx, 4), "deleting a missing slot is a no-op")
	_, err = b.Read(ctx, 4)
	assert.True(t, errors.Is(err, ErrSlotNotFound))

	slots, err = b.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 12}, slots)
}

func TestFileBackend(t *testing.T) {
	b, err := NewFileBackend(t.TempDir(), "Slot", ".savegame")
	require.NoError(t, err)
	exerciseBackend(t, b)
}

func TestFileBackend_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir, "Slot", ".savegame")
	require.NoError(t, err)

	for _, name := range []string{"Slot.savegame", "Slot01.savegame", "Slot-1.savegame", "SlotX.savegame", "Slot3.txt", "Other3.savegame"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "Slot9.savegame"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Slot2.savegame"), []byte("x"), 0o644))

	slots, err := b.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2}, slots)
}

func TestFileBackend_Path(t *testing.T) {
	b := &FileBackend{dir: "SaveData", prefix: "Slot", ext: ".savegame"}
	assert.Equal(t, filepath.Join("SaveData", "Slot3.savegame"), b.Path(3))
}

func TestFileBackend_CanceledContext(t *testing.T) {
	b, err := NewFileBackend(t.TempDir(), "Slot", ".savegame")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Write(ctx, 0, []byte("x")), context.Canceled)
}

func TestSQLBackend(t *testing.T) {
	b, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "db", "saves.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	exerciseBackend(t, b)
}

func TestSQLBackend_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saves.db")
	ctx := context.Background()

	b, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, b.Write(ctx, 2, []byte("two")))
	require.NoError(t, b.Close())

	b, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer b.Close()
	got, err := b.Read(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), " ")
	assert.Error(t, err)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func TestRedisBackend(t *testing.T) {
	_, client := newTestRedis(t)
	b := NewRedisBackend(client, "test")
	t.Cleanup(func() { _ = b.Close() })
	exerciseBackend(t, b)
}

func TestRedisBackend_KeyLayout(t *testing.T) {
	mr, client := newTestRedis(t)
	b := NewRedisBackend(client, "game")
	defer b.Close()

	require.NoError(t, b.Write(context.Background(), 3, []byte("three")))

	v, err := mr.Get("game:slot:3")
	require.NoError(t, err)
	assert.Equal(t, "three", v)
	members, err := mr.Members("game:slots")
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, members)
}

func TestPostgresBackend(t *testing.T) {
	dsn := os.Getenv("SAVEMASTER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SAVEMASTER_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	db, err := OpenDB(ctx, config.PostgresConfig{DSN: dsn, MaxOpenConns: 2}, zap.NewNop())
	require.NoError(t, err)
	_, err = db.Pool.Exec(ctx, `DELETE FROM save_slots`)
	require.NoError(t, err)

	b := NewSlotRepo(db)
	t.Cleanup(func() { _ = b.Close() })
	exerciseBackend(t, b)
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg := config.Default().Storage
	cfg.Dir = filepath.Join(dir, "files")
	b, err := OpenBackend(ctx, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, b)

	cfg.Backend = "SQLite"
	cfg.SQLite.Path = filepath.Join(dir, "saves.db")
	b, err = OpenBackend(ctx, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLBackend{}, b)
	require.NoError(t, b.Close())

	mr := miniredis.RunT(t)
	cfg.Backend = "redis"
	cfg.Redis.Addr = mr.Addr()
	b, err = OpenBackend(ctx, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &RedisBackend{}, b)
	require.NoError(t, b.Close())

	cfg.Backend = "tape"
	_, err = OpenBackend(ctx, cfg, nil)
	assert.True(t, errors.Is(err, ErrUnknownBackend))
}
