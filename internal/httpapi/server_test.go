package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/osaurus/memory-core/internal/config"
	"github.com/osaurus/memory-core/internal/contextasm"
	"github.com/osaurus/memory-core/internal/memorysvc"
	"github.com/osaurus/memory-core/internal/modelservice"
	"github.com/osaurus/memory-core/internal/store"
)

type stubModel struct{}

func (stubModel) Name() string { return "stub" }
func (stubModel) Generate(ctx context.Context, req modelservice.Request) (*modelservice.Response, error) {
	return &modelservice.Response{Content: `{"entries":[]}`}, nil
}

func newTestServer(t *testing.T, chatNext http.Handler) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	cfg := config.Resolve(nil)
	cfg.Agents = []config.Agent{{ID: "agent-a", Name: "Agent A", IsBuiltIn: true}}

	mem := memorysvc.New(st, nil, []modelservice.Service{stubModel{}}, nil, cfg, zerolog.Nop())
	asm := contextasm.New(st, nil, cfg, zerolog.Nop())
	return New(st, mem, asm, chatNext, cfg, zerolog.Nop()), st
}

func TestHandleMemoryIngestRejectsMissingFields(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/memory/ingest", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleMemoryIngestRejectsInvalidTurn(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	body := `{"agent_id":"agent-a","conversation_id":"conv-1","turns":[{"assistant":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/memory/ingest", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] != "invalid_turn" {
		t.Fatalf("expected invalid_turn, got %q", resp["error"])
	}
}

func TestHandleMemoryIngestPersistsTurns(t *testing.T) {
	srv, st := newTestServer(t, nil)
	body := `{"agent_id":"agent-a","conversation_id":"conv-1","turns":[{"user":"hello","assistant":"hi there"}]}`
	req := httptest.NewRequest(http.MethodPost, "/memory/ingest", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "ok" || resp["turns_ingested"].(float64) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	chunks, err := st.ChunksForConversation(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("chunks: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 persisted chunks, got %d", len(chunks))
	}
}

func TestHandleListAgentsReportsConfiguredRoster(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/agents", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Agents []agentResponse `json:"agents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Agents) != 1 || resp.Agents[0].ID != "agent-a" {
		t.Fatalf("unexpected agents list: %+v", resp.Agents)
	}
}

func TestHandleListAgentsReportsCountsByType(t *testing.T) {
	srv, st := newTestServer(t, nil)
	ctx := context.Background()

	fact := store.NewMemoryEntry("agent-a", store.EntryTypeFact, "fact one", 0.9, "test-model")
	fact.ID = store.NewID()
	if err := st.InsertEntry(ctx, fact); err != nil {
		t.Fatalf("insert fact: %v", err)
	}
	pref := store.NewMemoryEntry("agent-a", store.EntryTypePreference, "pref one", 0.9, "test-model")
	pref.ID = store.NewID()
	if err := st.InsertEntry(ctx, pref); err != nil {
		t.Fatalf("insert preference: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/agents", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Agents []agentResponse `json:"agents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(resp.Agents))
	}
	got := resp.Agents[0]
	if got.MemoryEntryCount != 2 {
		t.Fatalf("expected total count 2, got %d", got.MemoryEntryCount)
	}
	if got.MemoryEntryCountByType[store.EntryTypeFact] != 1 || got.MemoryEntryCountByType[store.EntryTypePreference] != 1 {
		t.Fatalf("expected one fact and one preference in breakdown, got %+v", got.MemoryEntryCountByType)
	}
}

func TestHandleChatCompletionsInjectsMemoryBlock(t *testing.T) {
	var captured []byte
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		captured = buf.Bytes()
		w.WriteHeader(http.StatusOK)
	})
	srv, st := newTestServer(t, next)

	e := store.NewMemoryEntry("agent-a", "fact", "User lives in Irvine", 0.9, "test-model")
	e.ID = store.NewID()
	if err := st.InsertEntry(context.Background(), e); err != nil {
		t.Fatalf("insert entry: %v", err)
	}

	body := `{"model":"gpt","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/chat/completions", strings.NewReader(body))
	req.Header.Set(agentIDHeader, "agent-a")
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(string(captured), "User lives in Irvine") {
		t.Fatalf("expected injected memory block, got: %s", captured)
	}
}

func TestHandleChatCompletionsPassesThroughWithoutHeader(t *testing.T) {
	var sawBody string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		sawBody = buf.String()
		w.WriteHeader(http.StatusOK)
	})
	srv, _ := newTestServer(t, next)

	body := `{"model":"gpt","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if sawBody != body {
		t.Fatalf("expected untouched body, got: %s", sawBody)
	}
}
