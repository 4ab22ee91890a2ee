package assurance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestSessionStore(t *testing.T) (*SessionStore, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(rdb, testConfig().Session)

	return store, mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestSessionCreateAndGet(t *testing.T) {
	store, _, done := newTestSessionStore(t)
	defer done()
	ctx := context.Background()

	sess, err := store.Create(ctx, "u1", true)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected a session id")
	}
	if !sess.MfaCompletedAt.IsZero() {
		t.Fatal("new session must not have MFA completed")
	}

	loaded, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if loaded.SubjectID != "u1" || !loaded.SigningUp {
		t.Fatalf("loaded session mismatch: %+v", loaded)
	}
	if !loaded.MfaCompletedAt.IsZero() {
		t.Fatal("zero MfaCompletedAt must survive the round-trip as zero")
	}
}

func TestSessionPendingActionPersists(t *testing.T) {
	store, _, done := newTestSessionStore(t)
	defer done()
	ctx := context.Background()

	sess, err := store.Create(ctx, "u1", false)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	sess.PendingAction = "/account/delete"
	sess.MfaCompletedAt = time.Now()
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if loaded.PendingAction != "/account/delete" {
		t.Fatalf("pending action lost: %q", loaded.PendingAction)
	}
	if loaded.MfaCompletedAt.IsZero() {
		t.Fatal("MfaCompletedAt lost")
	}
}

func TestSessionGetMissing(t *testing.T) {
	store, _, done := newTestSessionStore(t)
	defer done()

	_, err := store.Get(context.Background(), "no-such-session")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionExpiresLazily(t *testing.T) {
	store, _, done := newTestSessionStore(t)
	defer done()
	ctx := context.Background()

	base := time.Now()
	store.now = func() time.Time { return base }

	sess, err := store.Create(ctx, "u1", false)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	store.now = func() time.Time { return base.Add(31 * time.Minute) }
	_, err = store.Get(ctx, sess.ID)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestSessionTouchSlidesDeadline(t *testing.T) {
	store, _, done := newTestSessionStore(t)
	defer done()
	ctx := context.Background()

	base := time.Now()
	store.now = func() time.Time { return base }

	sess, err := store.Create(ctx, "u1", false)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// 29 minutes in, activity refreshes the deadline
	store.now = func() time.Time { return base.Add(29 * time.Minute) }
	sess, err = store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if err := store.Touch(ctx, sess); err != nil {
		t.Fatalf("touch failed: %v", err)
	}

	// 31 minutes after creation would have been past the original deadline
	store.now = func() time.Time { return base.Add(31 * time.Minute) }
	if _, err := store.Get(ctx, sess.ID); err != nil {
		t.Fatalf("touched session should still be live: %v", err)
	}
}

func TestSessionTouchNoOpWithoutSliding(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := testConfig().Session
	cfg.SlidingExpiration = false
	store := NewSessionStore(rdb, cfg)
	ctx := context.Background()

	sess, err := store.Create(ctx, "u1", false)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	before := sess.ExpiresAt
	if err := store.Touch(ctx, sess); err != nil {
		t.Fatalf("touch failed: %v", err)
	}
	if !sess.ExpiresAt.Equal(before) {
		t.Fatal("fixed-deadline touch must not move ExpiresAt")
	}
}

func TestSessionDeleteIdempotent(t *testing.T) {
	store, _, done := newTestSessionStore(t)
	defer done()
	ctx := context.Background()

	sess, err := store.Create(ctx, "u1", false)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("second delete must be a no-op: %v", err)
	}
	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
}
