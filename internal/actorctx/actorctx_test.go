package actorctx

import (
	"context"
	"testing"
)

func TestUserIDRoundTrip(t *testing.T) {
	if _, ok := UserIDFrom(context.Background()); ok {
		t.Fatalf("empty context must not carry a user")
	}

	ctx := WithUserID(context.Background(), "user-1")
	id, ok := UserIDFrom(ctx)
	if !ok || id != "user-1" {
		t.Fatalf("expected user-1, got %q %v", id, ok)
	}

	if _, ok := UserIDFrom(WithUserID(context.Background(), "")); ok {
		t.Fatalf("empty id must read as absent")
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(WithUserID(context.Background(), "user-1"), "req-9")

	id, ok := RequestIDFrom(ctx)
	if !ok || id != "req-9" {
		t.Fatalf("expected req-9, got %q %v", id, ok)
	}
	if uid, _ := UserIDFrom(ctx); uid != "user-1" {
		t.Fatalf("user id lost, got %q", uid)
	}
}
