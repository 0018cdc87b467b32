package maintenance

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/osaurus/memory-core/internal/config"
	"github.com/osaurus/memory-core/internal/store"
)

func TestSchedulerStartRegistersJobsAndStops(t *testing.T) {
	st, err := store.Open(context.Background(), ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = st.Close(context.Background()) }()

	cfg := config.Resolve(nil)
	s := New(st, cfg, zerolog.Nop())
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(s.c.Entries()) != 3 {
		t.Fatalf("expected 3 scheduled jobs, got %d", len(s.c.Entries()))
	}
	s.Stop()
}

func TestSchedulerRunsMaintenancePassesDirectly(t *testing.T) {
	st, err := store.Open(context.Background(), ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = st.Close(context.Background()) }()

	cfg := config.Resolve(nil)
	s := New(st, cfg, zerolog.Nop())

	s.runOptimize()
	s.runPurge()
	s.runVacuum()
}
