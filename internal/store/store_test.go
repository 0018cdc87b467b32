package store

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestContradictionSupersession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := NewMemoryEntry("agent-a", EntryTypeFact, "Terence lives in Los Angeles", 0.9, "test-model")
	a.ID = NewID()
	if err := s.InsertEntry(ctx, a); err != nil {
		t.Fatalf("insert a: %v", err)
	}

	b := NewMemoryEntry("agent-a", EntryTypeFact, "Terence lives in Irvine", 0.9, "test-model")
	b.ID = NewID()
	if err := s.SupersedeAndInsert(ctx, a.ID, b, "contradiction"); err != nil {
		t.Fatalf("supersede: %v", err)
	}

	active, err := s.LoadActiveEntries(ctx, "agent-a", 0)
	if err != nil {
		t.Fatalf("load active: %v", err)
	}
	if len(active) != 1 || active[0].ID != b.ID {
		t.Fatalf("expected only B active, got %+v", active)
	}
}

func TestInsertEntryConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := NewMemoryEntry("agent-a", EntryTypeFact, "fact one", 0.5, "m")
	e.ID = "fixed-id"
	if err := s.InsertEntry(ctx, e); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := s.InsertEntry(ctx, e); err == nil {
		t.Fatal("expected conflict error on duplicate id")
	}
}

func TestArchiveExcess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		e := NewMemoryEntry("agent-a", EntryTypeFact, "content", 0.5, "m")
		e.LastAccessed = time.Now().Add(time.Duration(i) * time.Minute)
		if err := s.InsertEntry(ctx, e); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	archived, err := s.ArchiveExcess(ctx, "agent-a", 3)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if archived != 2 {
		t.Fatalf("expected 2 archived, got %d", archived)
	}
	active, err := s.LoadActiveEntries(ctx, "agent-a", 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("expected 3 active remaining, got %d", len(active))
	}
}

func TestResolveEntityIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e1, err := s.ResolveEntity(ctx, "Terence", "person", "m")
	if err != nil {
		t.Fatalf("resolve 1: %v", err)
	}
	e2, err := s.ResolveEntity(ctx, "Terence", "person", "m")
	if err != nil {
		t.Fatalf("resolve 2: %v", err)
	}
	if e1.ID != e2.ID {
		t.Fatalf("expected idempotent resolution, got %s vs %s", e1.ID, e2.ID)
	}
	if e1.ID != EntityID("Terence", "person") {
		t.Fatalf("expected deterministic id, got %s", e1.ID)
	}
}

func TestInsertRelationshipClosesPriorEdge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	src := EntityID("Terence", "person")
	dst1 := EntityID("Los Angeles", "place")
	dst2 := EntityID("Irvine", "place")

	if err := s.InsertRelationship(ctx, src, dst1, "lives_in", 0.9, "m"); err != nil {
		t.Fatalf("insert rel 1: %v", err)
	}
	if err := s.InsertRelationship(ctx, src, dst2, "lives_in", 0.9, "m"); err != nil {
		t.Fatalf("insert rel 2: %v", err)
	}
	active, err := s.ActiveRelationships(ctx, 10)
	if err != nil {
		t.Fatalf("active rels: %v", err)
	}
	count := 0
	for _, r := range active {
		if r.SourceID == src && r.Relation == "lives_in" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one active edge for (source,relation), got %d", count)
	}
}

func TestSummaryInsertMarksSignalsProcessed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.UpsertConversation(ctx, "conv-1", "agent-a"); err != nil {
		t.Fatalf("upsert conv: %v", err)
	}
	if _, err := s.InsertPendingSignal(ctx, PendingSignal{AgentID: "agent-a", ConversationID: "conv-1", SignalType: "turn", UserMessage: "hi"}); err != nil {
		t.Fatalf("insert signal: %v", err)
	}
	err := s.InsertSummaryAndMarkProcessed(ctx, ConversationSummary{
		AgentID: "agent-a", ConversationID: "conv-1", Summary: "summary text",
		Model: "m", ConversationAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("insert summary: %v", err)
	}
	pending, err := s.PendingSignalsForConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected all signals processed, got %d pending", len(pending))
	}
}

func TestInsertProfileVersionSupersedesPrior(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v1, err := s.InsertProfileVersion(ctx, "profile v1", "m", 10, nil)
	if err != nil {
		t.Fatalf("insert v1: %v", err)
	}
	v2, err := s.InsertProfileVersion(ctx, "profile v2", "m", 10, nil)
	if err != nil {
		t.Fatalf("insert v2: %v", err)
	}
	if v2 != v1+1 {
		t.Fatalf("expected version %d, got %d", v1+1, v2)
	}

	row := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM user_profile WHERE status=$1`, EntryStatusActive)
	var activeCount int
	if err := row.Scan(&activeCount); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if activeCount != 1 {
		t.Fatalf("expected exactly one active profile row, got %d", activeCount)
	}

	row = s.db.QueryRow(ctx, `SELECT status FROM user_profile WHERE version=$1`, v1)
	var priorStatus string
	if err := row.Scan(&priorStatus); err != nil {
		t.Fatalf("scan prior: %v", err)
	}
	if priorStatus != EntryStatusSuperseded {
		t.Fatalf("expected prior version superseded, got %q", priorStatus)
	}
}

func TestPurgeOldEventData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.InsertProcessingLog(ctx, ProcessingLog{AgentID: "a", TaskType: "extract", Status: "ok", CreatedAt: time.Now().AddDate(0, 0, -40)}); err != nil {
		t.Fatalf("insert log: %v", err)
	}
	if err := s.PurgeOldEventData(ctx, 30); err != nil {
		t.Fatalf("purge: %v", err)
	}
	row := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM processing_log`)
	var n int
	if err := row.Scan(&n); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected purged log rows, got %d remaining", n)
	}
}
