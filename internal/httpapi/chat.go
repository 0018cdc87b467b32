package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
)

// handleChatCompletions implements spec §4.9's memory-injection hook: read
// X-Osaurus-Agent-Id, assemble that agent's memory block, and prepend it
// (separated by a blank line) to the request's system message before
// handing off to chatNext. Absent the header, or with no assembler
// configured, the request is forwarded untouched; with chatNext unset,
// forwardChat answers 501.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	agentID := r.Header.Get(agentIDHeader)
	if agentID == "" || s.assembler == nil {
		s.forwardChat(w, r)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	_ = r.Body.Close()

	block, err := s.assembler.Assemble(r.Context(), agentID, "")
	if err != nil {
		s.log.Warn().Err(err).Str("agent_id", agentID).Msg("memory assembly failed, forwarding without injection")
		r.Body = io.NopCloser(bytes.NewReader(body))
		s.forwardChat(w, r)
		return
	}
	if block == "" {
		r.Body = io.NopCloser(bytes.NewReader(body))
		s.forwardChat(w, r)
		return
	}

	rewritten, err := injectSystemMessage(body, block)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to parse chat body for memory injection, forwarding unchanged")
		r.Body = io.NopCloser(bytes.NewReader(body))
		s.forwardChat(w, r)
		return
	}

	r.Body = io.NopCloser(bytes.NewReader(rewritten))
	r.ContentLength = int64(len(rewritten))
	s.forwardChat(w, r)
}

func (s *Server) forwardChat(w http.ResponseWriter, r *http.Request) {
	if s.chatNext == nil {
		writeError(w, http.StatusNotImplemented, "chat_backend_not_configured")
		return
	}
	s.chatNext.ServeHTTP(w, r)
}

// injectSystemMessage prepends block to the first "system" message in a
// generic chat-completions body, or synthesizes one at the front of
// "messages" if none exists.
func injectSystemMessage(body []byte, block string) ([]byte, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	rawMessages, ok := payload["messages"]
	if !ok {
		return body, nil
	}

	var messages []map[string]json.RawMessage
	if err := json.Unmarshal(rawMessages, &messages); err != nil {
		return nil, err
	}

	for i, m := range messages {
		var role string
		if err := json.Unmarshal(m["role"], &role); err != nil {
			continue
		}
		if role != "system" {
			continue
		}
		var content string
		if err := json.Unmarshal(m["content"], &content); err != nil {
			continue
		}
		m["content"] = mustMarshalString(block + "\n\n" + content)
		messages[i] = m
		return reencode(payload, messages)
	}

	synthesized := map[string]json.RawMessage{
		"role":    mustMarshalString("system"),
		"content": mustMarshalString(block),
	}
	messages = append([]map[string]json.RawMessage{synthesized}, messages...)
	return reencode(payload, messages)
}

func reencode(payload map[string]json.RawMessage, messages []map[string]json.RawMessage) ([]byte, error) {
	raw, err := json.Marshal(messages)
	if err != nil {
		return nil, err
	}
	payload["messages"] = raw
	return json.Marshal(payload)
}

func mustMarshalString(s string) json.RawMessage {
	raw, _ := json.Marshal(s)
	return raw
}
