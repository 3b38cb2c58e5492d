package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type payload struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

func newRedisHelper(t *testing.T, prefix string) (*CacheHelper, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCacheHelper(client, prefix), mr
}

func TestStores_Contract(t *testing.T) {
	redisHelper, _ := newRedisHelper(t, "test:")
	stores := map[string]Store{
		"redis":  redisHelper,
		"memory": NewMemoryCache("test:"),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var got payload
			if err := store.Get(ctx, "missing", &got); !errors.Is(err, ErrCacheNotFound) {
				t.Errorf("Get() missing error = %v, want ErrCacheNotFound", err)
			}

			want := payload{ID: "s1", Count: 3}
			if err := store.Set(ctx, "s1", want, time.Hour); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if err := store.Get(ctx, "s1", &got); err != nil || got != want {
				t.Errorf("Get() = %+v, %v; want %+v", got, err, want)
			}

			if err := store.SetString(ctx, "user:kim", "s1", time.Hour); err != nil {
				t.Fatal(err)
			}
			if s, err := store.GetString(ctx, "user:kim"); err != nil || s != "s1" {
				t.Errorf("GetString() = %q, %v", s, err)
			}

			if ok, _ := store.Exists(ctx, "s1"); !ok {
				t.Error("Exists() = false after Set")
			}
			if err := store.Delete(ctx, "s1", "user:kim"); err != nil {
				t.Fatal(err)
			}
			if ok, _ := store.Exists(ctx, "s1"); ok {
				t.Error("Exists() = true after Delete")
			}
		})
	}
}

func TestStores_InvalidatePattern(t *testing.T) {
	redisHelper, _ := newRedisHelper(t, "stats:")
	stores := map[string]Store{
		"redis":  redisHelper,
		"memory": NewMemoryCache("stats:"),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, key := range []string{"student:kim", "student:lee", "system"} {
				if err := store.SetString(ctx, key, "x", time.Hour); err != nil {
					t.Fatal(err)
				}
			}

			if err := store.InvalidatePattern(ctx, "student:*"); err != nil {
				t.Fatalf("InvalidatePattern() error = %v", err)
			}
			for _, key := range []string{"student:kim", "student:lee"} {
				if ok, _ := store.Exists(ctx, key); ok {
					t.Errorf("%s survived invalidation", key)
				}
			}
			if ok, _ := store.Exists(ctx, "system"); !ok {
				t.Error("unrelated key was invalidated")
			}
		})
	}
}

func TestCacheHelper_TTL(t *testing.T) {
	helper, mr := newRedisHelper(t, "draft:")
	ctx := context.Background()

	if err := helper.SetString(ctx, "d1", "text", time.Hour); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("draft:d1"); ttl != time.Hour {
		t.Errorf("TTL = %v, want 1h", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if _, err := helper.GetString(ctx, "d1"); !errors.Is(err, ErrCacheNotFound) {
		t.Errorf("GetString() after expiry error = %v", err)
	}
}

func TestMemoryCache_TTL(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mc := NewMemoryCache("quiz:")
	mc.now = func() time.Time { return now }
	ctx := context.Background()

	if err := mc.SetString(ctx, "s1", "v", time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := mc.SetString(ctx, "forever", "v", 0); err != nil {
		t.Fatal(err)
	}

	now = now.Add(59 * time.Second)
	if ok, _ := mc.Exists(ctx, "s1"); !ok {
		t.Error("entry expired early")
	}

	now = now.Add(time.Second)
	if ok, _ := mc.Exists(ctx, "s1"); ok {
		t.Error("entry should expire at its deadline")
	}
	if ok, _ := mc.Exists(ctx, "forever"); !ok {
		t.Error("zero TTL should not expire")
	}
}

func TestCacheHelper_NilClient(t *testing.T) {
	helper := NewCacheHelper(nil, "x:")
	ctx := context.Background()

	var p payload
	if err := helper.Get(ctx, "k", &p); !errors.Is(err, ErrCacheNotAvailable) {
		t.Errorf("Get() error = %v", err)
	}
	if err := helper.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
}

func TestCacheOrExecute(t *testing.T) {
	store := NewMemoryCache("stats:")
	ctx := context.Background()
	calls := 0
	fetch := func() (interface{}, error) {
		calls++
		return payload{ID: "sys", Count: calls}, nil
	}

	var first, second payload
	if err := CacheOrExecute(ctx, store, "system", &first, time.Minute, fetch); err != nil {
		t.Fatal(err)
	}
	if err := CacheOrExecute(ctx, store, "system", &second, time.Minute, fetch); err != nil {
		t.Fatal(err)
	}
	if calls != 1 || second.Count != 1 {
		t.Errorf("calls = %d, second = %+v; want cached value", calls, second)
	}

	cm := &CacheManager{Stats: store}
	InvalidateAllStats(ctx, cm)
	if err := CacheOrExecute(ctx, store, "system", &second, time.Minute, fetch); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want refetch after invalidation", calls)
	}

	boom := errors.New("boom")
	err := CacheOrExecute(ctx, store, "other", &second, time.Minute, func() (interface{}, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped fetch error", err)
	}
}

func TestCacheManager_Fallback(t *testing.T) {
	cm := NewCacheManager(nil)
	if cm.Distributed() {
		t.Error("nil client should not be distributed")
	}
	if err := cm.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := cm.Session.SetString(context.Background(), "a", "b", time.Minute); err != nil {
		t.Errorf("memory session store unusable: %v", err)
	}
}
