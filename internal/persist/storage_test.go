package persist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func exerciseStorage(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, KeySession); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing key, got %v", err)
	}

	if err := s.Set(ctx, KeySession, []byte(`{"isAuthenticated":true}`)); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := s.Get(ctx, KeySession)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"isAuthenticated":true}` {
		t.Fatalf("unexpected value %q", got)
	}

	if err := s.Set(ctx, KeySession, []byte(`{}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = s.Get(ctx, KeySession)
	if string(got) != `{}` {
		t.Fatalf("expected overwritten value, got %q", got)
	}

	if err := s.Remove(ctx, KeySession); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove(ctx, KeySession); err != nil {
		t.Fatalf("second remove should be a no-op, got %v", err)
	}
	if _, err := s.Get(ctx, KeySession); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
}

func TestMemoryStorage(t *testing.T) {
	exerciseStorage(t, NewMemoryStorage())
}

func TestFileStorage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	s, err := NewFileStorage(dir)
	if err != nil {
		t.Fatalf("new file storage: %v", err)
	}
	exerciseStorage(t, s)

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestFileStorage_RejectsPathKeys(t *testing.T) {
	s, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("new file storage: %v", err)
	}

	if err := s.Set(context.Background(), "../escape", []byte("x")); err == nil {
		t.Fatalf("expected invalid key error")
	}
}

func TestRedisStorage(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping redis storage test")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	exerciseStorage(t, NewRedisStorage(rdb, "kidshub-test:"+t.Name()+":"))
}
