package settings

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLocalVersion(t *testing.T) {
	ctx := context.Background()
	v := &LocalVersion{}
	if got := v.Current(ctx); got != 0 {
		t.Fatalf("fresh counter = %d, want 0", got)
	}
	if got := v.Bump(ctx); got != 1 {
		t.Fatalf("first bump = %d, want 1", got)
	}
	if got := v.Current(ctx); got != 1 {
		t.Fatalf("after bump = %d, want 1", got)
	}
}

func TestRedisVersionSharesCounter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	a := NewRedisVersion(client, "settings-version")
	b := NewRedisVersion(client, "settings-version")

	a.Bump(ctx)
	a.Bump(ctx)
	if got := b.Current(ctx); got != 2 {
		t.Fatalf("second process sees %d, want 2", got)
	}
}

func TestRedisVersionFallsBackOnError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	v := NewRedisVersion(client, "settings-version")
	v.Bump(ctx)
	if got := v.Current(ctx); got != 1 {
		t.Fatalf("counter = %d, want 1", got)
	}

	// Once the backend is gone the last seen value keeps being served.
	mr.Close()
	if got := v.Current(ctx); got != 1 {
		t.Errorf("fallback = %d, want 1", got)
	}
	if got := v.Bump(ctx); got != 1 {
		t.Errorf("bump fallback = %d, want 1", got)
	}
}
