package httpapi

import (
	"net/http"

	"go.mau.fi/util/exhttp"
)

// agentResponse is one element of GET /agents' "agents" array.
type agentResponse struct {
	ID                     string         `json:"id"`
	Name                   string         `json:"name"`
	Description            string         `json:"description,omitempty"`
	DefaultModel           string         `json:"default_model,omitempty"`
	IsBuiltIn              bool           `json:"is_built_in"`
	MemoryEntryCount       int            `json:"memory_entry_count"`
	MemoryEntryCountByType map[string]int `json:"memory_entry_counts_by_type,omitempty"`
	CreatedAt              string         `json:"created_at"`
	UpdatedAt              string         `json:"updated_at"`
}

// handleListAgents implements GET /agents: the configured agent roster plus
// each agent's active-entry count and its per-type breakdown from the
// Store. Every configured agent is reported regardless of whether it has
// any memory yet.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	out := make([]agentResponse, 0, len(s.cfg.Agents))
	for _, a := range s.cfg.Agents {
		count, err := s.st.CountActiveEntries(r.Context(), a.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("agent_id", a.ID).Msg("failed to count active entries")
		}
		byType, err := s.st.CountActiveEntriesByType(r.Context(), a.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("agent_id", a.ID).Msg("failed to count active entries by type")
		}
		out = append(out, agentResponse{
			ID:                     a.ID,
			Name:                   a.Name,
			Description:            a.Description,
			DefaultModel:           a.DefaultModel,
			IsBuiltIn:              a.IsBuiltIn,
			MemoryEntryCount:       count,
			MemoryEntryCountByType: byType,
			CreatedAt:              a.CreatedAt.Format(timeFormat),
			UpdatedAt:              a.UpdatedAt.Format(timeFormat),
		})
	}
	exhttp.WriteJSONResponse(w, http.StatusOK, map[string]any{"agents": out})
}

const timeFormat = "2006-01-02T15:04:05Z07:00"
