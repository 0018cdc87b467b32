package search

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/osaurus/memory-core/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	svc, err := New(context.Background(), st, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, st
}

func TestSearchEntriesLexicalOnlyWithoutEmbedder(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	entries := []store.MemoryEntry{
		store.NewMemoryEntry("agent-a", store.EntryTypeFact, "Terence lives in Irvine California", 0.9, "m"),
		store.NewMemoryEntry("agent-a", store.EntryTypeFact, "Terence enjoys hiking on weekends", 0.9, "m"),
		store.NewMemoryEntry("agent-a", store.EntryTypeFact, "The project deadline is next Friday", 0.9, "m"),
	}
	for i := range entries {
		entries[i].ID = store.NewID()
		if err := st.InsertEntry(ctx, entries[i]); err != nil {
			t.Fatalf("insert entry: %v", err)
		}
		if err := svc.IndexEntry(ctx, "agent-a", entries[i].ID, entries[i].Content); err != nil {
			t.Fatalf("index entry: %v", err)
		}
	}

	got, err := svc.SearchEntries(ctx, Options{
		AgentID: "agent-a", Query: "Irvine", TopK: 2, Lambda: 0.7, FetchMultiplier: 3,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected at least one match")
	}
	if got[0].Content != entries[0].Content {
		t.Fatalf("expected the Irvine entry to rank first, got %q", got[0].Content)
	}
}

func TestSearchEntriesRespectsTopK(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := store.NewMemoryEntry("agent-a", store.EntryTypeFact, "repeated fact about the project timeline", 0.5, "m")
		e.ID = store.NewID()
		if err := st.InsertEntry(ctx, e); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := svc.IndexEntry(ctx, "agent-a", e.ID, e.Content); err != nil {
			t.Fatalf("index: %v", err)
		}
	}

	got, err := svc.SearchEntries(ctx, Options{
		AgentID: "agent-a", Query: "project timeline", TopK: 2, Lambda: 0.7, FetchMultiplier: 3,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) > 2 {
		t.Fatalf("expected at most 2 results, got %d", len(got))
	}
}

func TestMMRSelectTopOneIsArgmax(t *testing.T) {
	candidates := []Candidate{
		{SourceID: "a", FusedScore: 0.9, Tokens: map[string]struct{}{"alpha": {}}},
		{SourceID: "b", FusedScore: 0.5, Tokens: map[string]struct{}{"beta": {}}},
		{SourceID: "c", FusedScore: 0.3, Tokens: map[string]struct{}{"gamma": {}}},
	}
	sortByScoreDesc(candidates)
	selected := MMRSelect(candidates, 2, 0.7)
	if len(selected) > 2 {
		t.Fatalf("expected at most 2 selected, got %d", len(selected))
	}
	if selected[0].SourceID != "a" {
		t.Fatalf("expected top-1 to be the overall argmax (a), got %s", selected[0].SourceID)
	}
}

func TestMMRSelectPenalizesDuplicateContent(t *testing.T) {
	dup := map[string]struct{}{"terence": {}, "lives": {}, "in": {}, "irvine": {}}
	distinct := map[string]struct{}{"project": {}, "deadline": {}, "is": {}, "friday": {}}
	candidates := []Candidate{
		{SourceID: "a", FusedScore: 0.95, Tokens: dup},
		{SourceID: "b", FusedScore: 0.94, Tokens: dup},
		{SourceID: "c", FusedScore: 0.5, Tokens: distinct},
	}
	sortByScoreDesc(candidates)
	selected := MMRSelect(candidates, 2, 0.5)
	if len(selected) != 2 {
		t.Fatalf("expected 2 selected, got %d", len(selected))
	}
	if selected[1].SourceID != "c" {
		t.Fatalf("expected the diverse candidate (c) to beat the near-duplicate (b) for slot 2, got %s", selected[1].SourceID)
	}
}

func TestTemporalDecayMonotonicallyDecreasesWithAge(t *testing.T) {
	recent := TemporalDecay(1, 30)
	old := TemporalDecay(60, 30)
	if !(recent > old) {
		t.Fatalf("expected recent decay %f > old decay %f", recent, old)
	}
	if TemporalDecay(0, 30) != 1.0 {
		t.Fatalf("expected zero-age decay to be 1.0")
	}
}

func TestSearchChunksWindowKeepsRecentChunk(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	if err := st.UpsertConversation(ctx, "conv-1", "agent-a"); err != nil {
		t.Fatalf("upsert conv: %v", err)
	}
	if _, err := st.AppendChunk(ctx, "agent-a", "conv-1", store.ChunkRoleUser, "recent message about budgets", 5); err != nil {
		t.Fatalf("append chunk: %v", err)
	}

	got, err := svc.SearchChunks(ctx, Options{
		AgentID: "agent-a", Query: "budgets", TopK: 5, Lambda: 0.7, FetchMultiplier: 3, DaysWindow: 7,
	})
	if err != nil {
		t.Fatalf("search chunks: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected the recent chunk to match within the window, got %d", len(got))
	}

	gotOutside, err := svc.SearchChunks(ctx, Options{
		AgentID: "agent-a", Query: "budgets", TopK: 5, Lambda: 0.7, FetchMultiplier: 3, DaysWindow: 0,
	})
	if err != nil {
		t.Fatalf("search chunks unbounded: %v", err)
	}
	if len(gotOutside) != 1 {
		t.Fatalf("expected unbounded window to also match, got %d", len(gotOutside))
	}
}
