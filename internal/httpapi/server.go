// Package httpapi exposes the memory core's minimal HTTP surface: transparent
// memory injection on /chat/completions, turn ingestion, and an agent
// roster/diagnostics endpoint. Grounded on the teacher's
// pkg/connector/provisioning.go for method-pattern route registration and
// exhttp.WriteJSONResponse for response bodies.
package httpapi

import (
	"net/http"

	"github.com/rs/zerolog"
	"go.mau.fi/util/exhttp"

	"github.com/osaurus/memory-core/internal/config"
	"github.com/osaurus/memory-core/internal/contextasm"
	"github.com/osaurus/memory-core/internal/memorysvc"
	"github.com/osaurus/memory-core/internal/store"
)

// agentIDHeader is the header read on /chat/completions to determine whose
// memory to inject, per spec §4.9.
const agentIDHeader = "X-Osaurus-Agent-Id"

// maxIngestBodyBytes is the /memory/ingest rejection threshold.
const maxIngestBodyBytes = 1 << 20 // 1 MiB

// Server wires the memory core's HTTP handlers. This surface is
// memory-related only: /chat/completions performs memory injection and
// delegates the actual completion to chatNext, which the host supplies
// (the core has no chat model of its own).
type Server struct {
	st        *store.Store
	memory    *memorysvc.Service
	assembler *contextasm.Assembler
	chatNext  http.Handler
	cfg       config.Resolved
	log       zerolog.Logger
}

// New constructs a Server. chatNext handles the request once this core's
// memory block has been injected into its system message; it may be nil in
// deployments that only use the ingest/agents endpoints.
func New(st *store.Store, memory *memorysvc.Service, assembler *contextasm.Assembler, chatNext http.Handler, cfg config.Resolved, log zerolog.Logger) *Server {
	return &Server{
		st:        st,
		memory:    memory,
		assembler: assembler,
		chatNext:  chatNext,
		cfg:       cfg,
		log:       log.With().Str("component", "httpapi").Logger(),
	}
}

// Routes returns the configured mux. Unmatched chat-completion targets are
// expected to be layered in by the caller (e.g. a reverse proxy to the
// actual chat backend); this mux only owns the memory-related surface.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/completions", s.handleChatCompletions)
	mux.HandleFunc("POST /memory/ingest", s.handleMemoryIngest)
	mux.HandleFunc("GET /agents", s.handleListAgents)
	return mux
}

func writeError(w http.ResponseWriter, status int, code string) {
	exhttp.WriteJSONResponse(w, status, map[string]any{"error": code})
}
