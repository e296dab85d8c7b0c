package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestSessionStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewStore(client, "crs", 30*time.Minute), mr
}

func TestCreateGetRoundTrip(t *testing.T) {
	s, _ := newTestSessionStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created session has empty ID")
	}
	if created.State != StateAnonymous {
		t.Fatalf("State = %v, want anonymous", created.State)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != created.ID || got.State != StateAnonymous {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestSavePersistsMutations(t *testing.T) {
	s, _ := newTestSessionStore(t)
	ctx := context.Background()

	session, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	session.State = StateRequested
	session.AccountID = "acct-1"
	session.Identifier = "user@example.com"
	session.CSRFToken = "csrf-token"
	session.BindToken = "bind-token"
	session.CodeIssuedAt = time.Now().Unix()

	if err := s.Save(ctx, session); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != StateRequested || got.AccountID != "acct-1" ||
		got.Identifier != "user@example.com" || got.CSRFToken != "csrf-token" ||
		got.BindToken != "bind-token" || got.CodeIssuedAt != session.CodeIssuedAt {
		t.Fatalf("mutations lost: %+v", got)
	}
}

func TestGetUnknownSession(t *testing.T) {
	s, _ := newTestSessionStore(t)

	if _, err := s.Get(context.Background(), "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if _, err := s.Get(context.Background(), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty ID: got %v, want ErrNotFound", err)
	}
}

func TestRegenerateInvalidatesOldID(t *testing.T) {
	s, _ := newTestSessionStore(t)
	ctx := context.Background()

	session, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	oldID := session.ID

	session.State = StateCodeVerified
	if err := s.Regenerate(ctx, session); err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if session.ID == oldID {
		t.Fatal("Regenerate did not change the session ID")
	}

	if _, err := s.Get(ctx, oldID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old ID: got %v, want ErrNotFound", err)
	}

	got, err := s.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get new ID: %v", err)
	}
	if got.State != StateCodeVerified {
		t.Fatalf("State = %v, want code_verified", got.State)
	}
}

func TestDestroy(t *testing.T) {
	s, _ := newTestSessionStore(t)
	ctx := context.Background()

	session, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.Destroy(ctx, session.ID); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := s.Get(ctx, session.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}

	// Destroying again is a no-op.
	if err := s.Destroy(ctx, session.ID); err != nil {
		t.Fatalf("second Destroy: %v", err)
	}
}

func TestExpiredSessionIsGone(t *testing.T) {
	s, mr := newTestSessionStore(t)
	ctx := context.Background()

	session, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	mr.FastForward(31 * time.Minute)

	if _, err := s.Get(ctx, session.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
