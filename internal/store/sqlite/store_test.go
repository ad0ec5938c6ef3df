package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"relayboard/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("file::memory:?cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndListEventsExcludesHeartbeats(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)

	events := []domain.Event{
		{Kind: domain.KindServerConnect, Timestamp: base, ServerAddr: "10.0.0.9", Code: 77},
		{Kind: domain.KindRepeaterHeartbeat, Timestamp: base.Add(10 * time.Second)},
		{Kind: domain.KindSessionStart, Timestamp: base.Add(20 * time.Second), ViewerAddr: "10.0.0.5", ServerAddr: "10.0.0.9", Code: 77},
	}
	for _, e := range events {
		if err := store.RecordEvent(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.RecentEvents(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events (heartbeat excluded), got %d", len(got))
	}
	if got[0].Kind != domain.KindSessionStart || got[1].Kind != domain.KindServerConnect {
		t.Fatalf("expected newest-first ordering, got %s then %s", got[0].Kind, got[1].Kind)
	}
	if got[0].Code != 77 || got[0].ViewerAddr != "10.0.0.5" {
		t.Fatalf("unexpected event fields: %+v", got[0])
	}
}

func TestRecentEventsLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		e := domain.Event{Kind: domain.KindViewerConnect, Timestamp: time.Now().Add(time.Duration(i) * time.Second), Code: i}
		if err := store.RecordEvent(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	got, err := store.RecentEvents(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected limit of 3, got %d", len(got))
	}
}

func TestAuthSessionLifecycleMarks(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	sess := domain.AuthSession{
		SessionID:  1234567890,
		SerialID:   "ABC",
		ClientAddr: "10.0.0.9",
		ServerSlot: "host:5500",
		CreatedAt:  time.Now(),
	}
	if err := store.RecordAuthSession(ctx, sess); err != nil {
		t.Fatal(err)
	}

	if err := store.MarkAuthSessionUsed(ctx, sess.SessionID); err != nil {
		t.Fatal(err)
	}
	// Resolved records cannot be re-marked.
	if err := store.MarkAuthSessionExpired(ctx, sess.SessionID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows re-marking a used session, got %v", err)
	}

	recs, err := store.ListAuthRecords(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected one record, got %d", len(recs))
	}
	r := recs[0]
	if r.Status != domain.AuthRecordUsed {
		t.Fatalf("expected status used, got %s", r.Status)
	}
	if r.UsedAt == nil {
		t.Fatal("expected used_at set")
	}
	if r.SessionID != sess.SessionID || r.SerialID != "ABC" {
		t.Fatalf("unexpected record: %+v", r)
	}
}

func TestMarkUnknownSession(t *testing.T) {
	store := openTestStore(t)
	if err := store.MarkAuthSessionUsed(context.Background(), 42); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows for unknown session, got %v", err)
	}
}
