package contextasm

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/osaurus/memory-core/internal/config"
	"github.com/osaurus/memory-core/internal/store"
)

func newTestAssembler(t *testing.T) (*Assembler, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	cfg := config.Resolve(nil)
	return New(st, nil, cfg, zerolog.Nop()), st
}

func TestAssembleIncludesWorkingMemoryAndProfile(t *testing.T) {
	a, st := newTestAssembler(t)
	ctx := context.Background()

	if _, err := st.InsertProfileVersion(ctx, "Likes terse answers.", "test-model", 10, nil); err != nil {
		t.Fatalf("insert profile: %v", err)
	}

	entry := store.NewMemoryEntry("agent-a", "fact", "User lives in Irvine", 0.9, "test-model")
	entry.ID = store.NewID()
	if err := st.InsertEntry(ctx, entry); err != nil {
		t.Fatalf("insert entry: %v", err)
	}

	block, err := a.Assemble(ctx, "agent-a", "")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if !strings.Contains(block, "Likes terse answers.") {
		t.Fatalf("expected profile content in block, got: %s", block)
	}
	if !strings.Contains(block, "User lives in Irvine") {
		t.Fatalf("expected working memory content in block, got: %s", block)
	}
}

func TestAssembleCachesWithinTTL(t *testing.T) {
	a, st := newTestAssembler(t)
	ctx := context.Background()

	entry := store.NewMemoryEntry("agent-a", "fact", "first fact", 0.9, "test-model")
	entry.ID = store.NewID()
	if err := st.InsertEntry(ctx, entry); err != nil {
		t.Fatalf("insert entry: %v", err)
	}

	first, err := a.Assemble(ctx, "agent-a", "")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	later := store.NewMemoryEntry("agent-a", "fact", "second fact added after cache warm", 0.9, "test-model")
	later.ID = store.NewID()
	if err := st.InsertEntry(ctx, later); err != nil {
		t.Fatalf("insert entry: %v", err)
	}

	second, err := a.Assemble(ctx, "agent-a", "")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if first != second {
		t.Fatalf("expected cached block to be reused, got different results")
	}

	a.Invalidate("agent-a")
	third, err := a.Assemble(ctx, "agent-a", "")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if !strings.Contains(third, "second fact added after cache warm") {
		t.Fatalf("expected invalidated cache to pick up new entry, got: %s", third)
	}
}

func TestAssembleRespectsWorkingMemoryBudget(t *testing.T) {
	a, st := newTestAssembler(t)
	a.cfg.WorkingMemoryBudgetTokens = 5 // 20 chars
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := store.NewMemoryEntry("agent-a", "fact", strings.Repeat("x", 30), 0.9, "test-model")
		e.ID = store.NewID()
		if err := st.InsertEntry(ctx, e); err != nil {
			t.Fatalf("insert entry: %v", err)
		}
	}

	block, err := a.Assemble(ctx, "agent-a", "")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if strings.Contains(block, "## Working Memory") {
		t.Fatalf("expected oversized entries to be excluded entirely, got: %s", block)
	}
}

func TestAssembleQueryAwareBypassesCache(t *testing.T) {
	a, st := newTestAssembler(t)
	ctx := context.Background()

	if _, err := a.Assemble(ctx, "agent-a", ""); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	fresh := store.NewMemoryEntry("agent-a", "fact", "fresh fact after warm", 0.9, "test-model")
	fresh.ID = store.NewID()
	if err := st.InsertEntry(ctx, fresh); err != nil {
		t.Fatalf("insert entry: %v", err)
	}
	block, err := a.Assemble(ctx, "agent-a", "what city")
	if err != nil {
		t.Fatalf("query-aware assemble: %v", err)
	}
	if !strings.Contains(block, "fresh fact after warm") {
		t.Fatalf("expected query-aware assemble to bypass the warm cache, got: %s", block)
	}
}
