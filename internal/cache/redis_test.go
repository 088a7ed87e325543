package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestCache(t *testing.T) (*ResponseCache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	c, err := NewResponseCache("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create response cache: %v", err)
	}
	return c, s
}

func TestSetAndGet(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	key := Key("generate-structure", []byte(`{"description":"a todo app"}`))

	if _, ok := c.Get(ctx, key); ok {
		t.Fatal("expected miss before set")
	}

	if err := c.Set(ctx, key, []byte(`{"stack":"mern"}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, ok := c.Get(ctx, key)
	if !ok {
		t.Fatal("expected hit after set")
	}
	if string(value) != `{"stack":"mern"}` {
		t.Fatalf("unexpected cached value: %s", value)
	}
}

func TestGetAfterExpiry(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	key := Key("project-guidance", []byte(`{"title":"Tracker"}`))
	if err := c.Set(ctx, key, []byte(`{}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	s.FastForward(defaultTTL + time.Second)

	if _, ok := c.Get(ctx, key); ok {
		t.Fatal("expected miss after TTL expired")
	}
}

func TestPingReflectsServerState(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()

	ctx := context.Background()
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping against live server: %v", err)
	}

	s.Close()
	if err := c.Ping(ctx); err == nil {
		t.Fatal("Ping should fail once the server is down")
	}
}

func TestKeyIsStableAndDistinct(t *testing.T) {
	a := Key("generate-structure", []byte(`{"description":"a todo app"}`))
	b := Key("generate-structure", []byte(`{"description":"a todo app"}`))
	if a != b {
		t.Fatal("identical inputs must produce identical keys")
	}

	other := Key("project-guidance", []byte(`{"description":"a todo app"}`))
	if a == other {
		t.Fatal("different endpoints must produce different keys")
	}

	otherPayload := Key("generate-structure", []byte(`{"description":"a blog"}`))
	if a == otherPayload {
		t.Fatal("different payloads must produce different keys")
	}
}
