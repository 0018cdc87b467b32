package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.mau.fi/util/exhttp"
)

// ingestTurn is one element of /memory/ingest's "turns" array.
type ingestTurn struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// ingestRequest is the /memory/ingest request body, spec §4.9.
type ingestRequest struct {
	AgentID        string       `json:"agent_id"`
	ConversationID string       `json:"conversation_id"`
	Turns          []ingestTurn `json:"turns"`
}

// handleMemoryIngest implements POST /memory/ingest: each turn is recorded
// in order via RecordConversationTurn, which itself returns as soon as
// signals are durable and continues extraction asynchronously, so this
// handler's response reflects persistence, not full processing.
func (s *Server) handleMemoryIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBodyBytes)

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large")
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}

	if req.AgentID == "" || req.ConversationID == "" || len(req.Turns) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	for _, t := range req.Turns {
		if t.User == "" {
			writeError(w, http.StatusBadRequest, "invalid_turn")
			return
		}
	}

	for _, t := range req.Turns {
		if err := s.memory.RecordConversationTurn(r.Context(), t.User, t.Assistant, req.AgentID, req.ConversationID, nil); err != nil {
			s.log.Warn().Err(err).Str("agent_id", req.AgentID).Str("conversation_id", req.ConversationID).Msg("failed to record conversation turn")
			writeError(w, http.StatusInternalServerError, "internal_error")
			return
		}
	}

	if s.assembler != nil {
		s.assembler.Invalidate(req.AgentID)
	}

	exhttp.WriteJSONResponse(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"turns_ingested": len(req.Turns),
	})
}
