package memorysvc

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/osaurus/memory-core/internal/config"
	"github.com/osaurus/memory-core/internal/modelservice"
	"github.com/osaurus/memory-core/internal/store"
)

// stubModel is a fixed-script modelservice.Service test double: each call
// pops the next scripted response in order.
type stubModel struct {
	name      string
	responses []string
	calls     int
}

func (m *stubModel) Name() string { return m.name }

func (m *stubModel) Generate(ctx context.Context, req modelservice.Request) (*modelservice.Response, error) {
	i := m.calls
	m.calls++
	if i >= len(m.responses) {
		return &modelservice.Response{Content: "{\"entries\":[]}"}, nil
	}
	return &modelservice.Response{Content: m.responses[i]}, nil
}

// waitFor polls cond every 5ms until it returns true or 2 seconds elapse,
// needed because extraction now runs on the service's background worker
// rather than inline within RecordConversationTurn.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !cond() {
		t.Fatal("condition not met before deadline")
	}
}

func newTurnTestService(t *testing.T, model *stubModel) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	cfg := config.Resolve(nil)
	cfg.CoreModelProvider = "stub"
	cfg.CoreModelName = "stub-model"
	svc := New(st, nil, []modelservice.Service{model}, nil, cfg, zerolog.Nop())
	return svc, st
}

func TestRecordConversationTurnPersistsChunksAndSignalEvenWhenDisabled(t *testing.T) {
	model := &stubModel{name: "stub"}
	svc, st := newTurnTestService(t, model)
	svc.cfg.Enabled = false
	ctx := context.Background()

	if err := svc.RecordConversationTurn(ctx, "hello", "hi there", "agent-a", "conv-1", nil); err != nil {
		t.Fatalf("record turn: %v", err)
	}

	chunks, err := st.ChunksForConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("chunks: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if model.calls != 0 {
		t.Fatalf("expected no model calls while disabled, got %d", model.calls)
	}
}

func TestRecordConversationTurnExtractsAndInsertsEntry(t *testing.T) {
	model := &stubModel{
		name:      "stub",
		responses: []string{`{"entries":[{"type":"fact","content":"User lives in Irvine","confidence":0.9,"tags":[]}]}`},
	}
	svc, st := newTurnTestService(t, model)
	ctx := context.Background()

	if err := svc.RecordConversationTurn(ctx, "I live in Irvine", "Got it.", "agent-a", "conv-1", nil); err != nil {
		t.Fatalf("record turn: %v", err)
	}

	var active []store.MemoryEntry
	waitFor(t, func() bool {
		var err error
		active, err = st.LoadActiveEntries(ctx, "agent-a", 0)
		if err != nil {
			t.Fatalf("load active: %v", err)
		}
		return len(active) > 0
	})
	if len(active) != 1 || active[0].Content != "User lives in Irvine" {
		t.Fatalf("expected one extracted entry, got %+v", active)
	}

	contributions, err := st.ActiveUnincorporatedContributions(ctx)
	if err != nil {
		t.Fatalf("contributions: %v", err)
	}
	if len(contributions) != 1 {
		t.Fatalf("expected one profile contribution, got %d", len(contributions))
	}
}

func TestRecordConversationTurnUpsertsGraphEntitiesAndRelationships(t *testing.T) {
	model := &stubModel{
		name: "stub",
		responses: []string{`{"entries":[{"type":"relationship","content":"Terence works at Acme","confidence":0.8,"tags":[]}],` +
			`"entities":[{"name":"Terence","type":"person"},{"name":"Acme","type":"company"}],` +
			`"relationships":[{"source":"Terence","relation":"works_at","target":"Acme","confidence":0.8}]}`},
	}
	svc, st := newTurnTestService(t, model)
	ctx := context.Background()

	if err := svc.RecordConversationTurn(ctx, "Terence works at Acme", "", "agent-a", "conv-1", nil); err != nil {
		t.Fatalf("record turn: %v", err)
	}

	var relationships []store.GraphRelationship
	waitFor(t, func() bool {
		var err error
		relationships, err = st.ActiveRelationships(ctx, 10)
		if err != nil {
			t.Fatalf("relationships: %v", err)
		}
		return len(relationships) > 0
	})
	if len(relationships) != 1 || relationships[0].Relation != "works_at" {
		t.Fatalf("expected one works_at relationship, got %+v", relationships)
	}
}

func TestRecordConversationTurnSessionChangeFlushesSummaryInBackground(t *testing.T) {
	model := &stubModel{
		name:      "stub",
		responses: []string{`{"entries":[]}`, `{"entries":[]}`, "A short recap of the first conversation."},
	}
	svc, st := newTurnTestService(t, model)
	ctx := context.Background()

	if err := svc.RecordConversationTurn(ctx, "first turn", "ack", "agent-a", "conv-1", nil); err != nil {
		t.Fatalf("record turn 1: %v", err)
	}
	if err := svc.RecordConversationTurn(ctx, "second turn", "ack", "agent-a", "conv-2", nil); err != nil {
		t.Fatalf("record turn 2: %v", err)
	}

	// The session-change summary is detached (§5: "scheduled immediately,
	// not awaited"), so give the background goroutine a moment to land.
	deadline := time.Now().Add(2 * time.Second)
	var summaries []store.ConversationSummary
	var err error
	for time.Now().Before(deadline) {
		summaries, err = st.SummariesForAgent(ctx, "agent-a", 0)
		if err != nil {
			t.Fatalf("summaries: %v", err)
		}
		if len(summaries) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(summaries) != 1 || summaries[0].ConversationID != "conv-1" {
		t.Fatalf("expected a flushed summary for conv-1, got %+v", summaries)
	}

	signals, err := st.PendingSignalsForConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("pending signals: %v", err)
	}
	if len(signals) != 0 {
		t.Fatalf("expected conv-1 signals to be marked processed, got %d pending", len(signals))
	}
}
