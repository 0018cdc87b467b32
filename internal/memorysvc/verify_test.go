package memorysvc

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/osaurus/memory-core/internal/config"
	"github.com/osaurus/memory-core/internal/store"
)

func newTestServiceNoSearch(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	cfg := config.Resolve(nil)
	svc := New(st, nil, nil, nil, cfg, zerolog.Nop())
	return svc, st
}

func TestVerifyContradictionSupersedes(t *testing.T) {
	svc, st := newTestServiceNoSearch(t)
	ctx := context.Background()

	a := store.NewMemoryEntry("agent-a", store.EntryTypeFact, "Terence lives in Los Angeles", 0.9, "m")
	a.ID = store.NewID()
	if err := st.InsertEntry(ctx, a); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	b := store.NewMemoryEntry("agent-a", store.EntryTypeFact, "Terence lives in Irvine", 0.9, "m")
	b.ID = store.NewID()

	active, err := st.LoadActiveEntries(ctx, "agent-a", 0)
	if err != nil {
		t.Fatalf("load active: %v", err)
	}
	result, err := svc.verifyAndInsert(ctx, b, active)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Outcome != outcomeSupersede {
		t.Fatalf("expected supersede, got %s", result.Outcome)
	}

	stillActive, err := st.LoadActiveEntries(ctx, "agent-a", 0)
	if err != nil {
		t.Fatalf("load active after: %v", err)
	}
	if len(stillActive) != 1 || stillActive[0].ID != b.ID {
		t.Fatalf("expected only B active, got %+v", stillActive)
	}
}

func TestVerifyWordOverlapDedupSkips(t *testing.T) {
	svc, st := newTestServiceNoSearch(t)
	ctx := context.Background()

	a := store.NewMemoryEntry("agent-a", store.EntryTypeFact, "User likes Swift", 0.9, "m")
	a.ID = store.NewID()
	if err := st.InsertEntry(ctx, a); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	b := store.NewMemoryEntry("agent-a", store.EntryTypeFact, "user likes swift", 0.9, "m")
	b.ID = store.NewID()

	active, err := st.LoadActiveEntries(ctx, "agent-a", 0)
	if err != nil {
		t.Fatalf("load active: %v", err)
	}
	result, err := svc.verifyAndInsert(ctx, b, active)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Outcome != outcomeSkipDuplicate {
		t.Fatalf("expected skip_duplicate, got %s", result.Outcome)
	}

	stillActive, err := st.LoadActiveEntries(ctx, "agent-a", 0)
	if err != nil {
		t.Fatalf("load active after: %v", err)
	}
	if len(stillActive) != 1 || stillActive[0].ID != a.ID {
		t.Fatalf("expected only A active, got %+v", stillActive)
	}
}

func TestVerifyDifferentNonContradictableTypesBothActive(t *testing.T) {
	svc, st := newTestServiceNoSearch(t)
	ctx := context.Background()

	a := store.NewMemoryEntry("agent-a", store.EntryTypePreference, "Terence lives in LA", 0.9, "m")
	a.ID = store.NewID()
	if err := st.InsertEntry(ctx, a); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	b := store.NewMemoryEntry("agent-a", store.EntryTypeFact, "Terence lives in Irvine", 0.9, "m")
	b.ID = store.NewID()

	active, err := st.LoadActiveEntries(ctx, "agent-a", 0)
	if err != nil {
		t.Fatalf("load active: %v", err)
	}
	result, err := svc.verifyAndInsert(ctx, b, active)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Outcome != outcomeKeepNovel {
		t.Fatalf("expected keep_novel, got %s", result.Outcome)
	}

	stillActive, err := st.LoadActiveEntries(ctx, "agent-a", 0)
	if err != nil {
		t.Fatalf("load active after: %v", err)
	}
	if len(stillActive) != 2 {
		t.Fatalf("expected both entries active, got %d", len(stillActive))
	}
}
