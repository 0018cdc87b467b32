package memorysvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/osaurus/memory-core/internal/memerr"
	"github.com/osaurus/memory-core/internal/modelservice"
	"github.com/osaurus/memory-core/internal/store"
	"github.com/osaurus/memory-core/internal/textsim"
	"github.com/osaurus/memory-core/internal/tokencount"
)

// extractionTemperature and extractionMaxTokens are the fixed call
// parameters from spec §4.7 step 4.
const (
	extractionTemperature = 0.3
	extractionMaxTokens   = 2048
)

// profileContributionJaccardThreshold gates step 7's profile-fact dedup.
const profileContributionJaccardThreshold = 0.6

// RecordConversationTurn implements spec §4.7's record_conversation_turn.
// It persists the raw turn before doing any model work and returns as soon
// as that is durable; extraction (steps 3-11: the model call, verification,
// profile/graph writes, and session-change handling) is handed off to the
// service's single extraction worker, which drains turns in arrival order
// so a slow or unavailable core model never blocks the caller — matching
// the HTTP surface's "turns_ingested as soon as signals are persisted;
// extraction continues asynchronously" contract (spec §4.9).
func (s *Service) RecordConversationTurn(ctx context.Context, userMsg, assistantMsg, agentID, conversationID string, sessionDate *time.Time) error {
	start := time.Now()

	if err := s.persistTurn(ctx, agentID, conversationID, userMsg, assistantMsg); err != nil {
		return err
	}

	if !s.cfg.Enabled {
		return nil
	}

	s.extractionQueue <- extractionJob{
		agentID:        agentID,
		conversationID: conversationID,
		userMsg:        userMsg,
		assistantMsg:   assistantMsg,
		sessionDate:    sessionDate,
		start:          start,
	}
	return nil
}

// persistTurn appends both chunks, upserts the conversation, and records
// the pending signal — spec §4.7 step 1.
func (s *Service) persistTurn(ctx context.Context, agentID, conversationID, userMsg, assistantMsg string) error {
	if err := s.st.UpsertConversation(ctx, conversationID, agentID); err != nil {
		return err
	}

	userChunk, err := s.st.AppendChunk(ctx, agentID, conversationID, store.ChunkRoleUser, userMsg, tokencount.Count(userMsg, s.cfg.CoreModelName))
	if err != nil {
		return err
	}
	s.indexChunkBestEffort(ctx, userChunk)

	if assistantMsg != "" {
		assistantChunk, err := s.st.AppendChunk(ctx, agentID, conversationID, store.ChunkRoleAssistant, assistantMsg, tokencount.Count(assistantMsg, s.cfg.CoreModelName))
		if err != nil {
			return err
		}
		s.indexChunkBestEffort(ctx, assistantChunk)
	}

	_, err = s.st.InsertPendingSignal(ctx, store.PendingSignal{
		AgentID:          agentID,
		ConversationID:   conversationID,
		SignalType:       "turn",
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
	})
	return err
}

func (s *Service) indexChunkBestEffort(ctx context.Context, c store.Chunk) {
	if s.search == nil {
		return
	}
	if err := s.search.IndexChunk(ctx, c.ID, c.Content); err != nil {
		s.log.Warn().Err(err).Str("chunk_id", c.ID).Msg("failed to index chunk")
	}
}

// extractAndApply runs spec §4.7 steps 3-9: build and send the extraction
// prompt, parse the response, verify and write entries, profile
// contributions, and graph updates, then log the outcome.
func (s *Service) extractAndApply(ctx context.Context, agentID, conversationID, userMsg, assistantMsg string, sessionDate *time.Time, start time.Time) error {
	active, err := s.st.LoadActiveEntries(ctx, agentID, extractionPromptEntryLimit)
	if err != nil {
		return err
	}

	prompt := buildExtractionPrompt(active, userMsg, assistantMsg, sessionDate)
	resp, err := s.callModel(ctx, modelservice.Request{
		SystemPrompt: extractionSystemPrompt,
		UserPrompt:   prompt,
		Temperature:  extractionTemperature,
		MaxTokens:    extractionMaxTokens,
	})
	if err != nil {
		s.logProcessing(ctx, agentID, "extraction", "error", err.Error(), 0, 0, time.Since(start))
		return err
	}

	result, err := parseExtractionResponse(resp.Content)
	if err != nil {
		if errors.Is(err, memerr.ErrExtractionEmpty) {
			s.logProcessing(ctx, agentID, "extraction", "success", "no entries extracted", resp.PromptTokens, resp.CompletionTokens, time.Since(start))
			return nil
		}
		s.logProcessing(ctx, agentID, "extraction", "error", err.Error(), resp.PromptTokens, resp.CompletionTokens, time.Since(start))
		return err
	}

	kept, err := s.applyExtractedEntries(ctx, agentID, conversationID, result.Entries, active)
	if err != nil {
		s.logProcessing(ctx, agentID, "extraction", "error", err.Error(), resp.PromptTokens, resp.CompletionTokens, time.Since(start))
		return err
	}

	if err := s.applyProfileContributions(ctx, agentID, conversationID, kept); err != nil {
		s.log.Warn().Err(err).Msg("failed to record profile contributions")
	}

	if err := s.applyGraphUpdates(ctx, result.Entities, result.Relationships); err != nil {
		s.log.Warn().Err(err).Msg("failed to apply graph updates")
	}

	if s.cfg.MaxEntriesPerAgent > 0 {
		if _, err := s.st.ArchiveExcess(ctx, agentID, s.cfg.MaxEntriesPerAgent); err != nil {
			s.log.Warn().Err(err).Msg("failed to archive excess entries")
		}
	}

	s.logProcessing(ctx, agentID, "extraction", "success", fmt.Sprintf("%d entries kept", len(kept)), resp.PromptTokens, resp.CompletionTokens, time.Since(start))
	return nil
}

// applyExtractedEntries converts parsed entries into MemoryEntry rows and
// runs them through the verification pipeline (§4.7.1), returning the
// entries that ended up active (kept novel or superseding).
func (s *Service) applyExtractedEntries(ctx context.Context, agentID, conversationID string, parsed []extractedEntry, active []store.MemoryEntry) ([]store.MemoryEntry, error) {
	var kept []store.MemoryEntry
	for _, p := range parsed {
		candidate := store.NewMemoryEntry(agentID, p.Type, p.Content, p.Confidence, s.cfg.CoreModelName)
		candidate.ID = store.NewID()
		candidate.SourceConversationID = conversationID
		candidate.Tags = p.Tags

		result, err := s.verifyAndInsert(ctx, candidate, active)
		if err != nil {
			return kept, err
		}
		s.logProcessing(ctx, agentID, "verification", string(result.Outcome), "", 0, 0, 0)
		if result.EntryID != "" {
			candidate.ID = result.EntryID
			kept = append(kept, candidate)
			active = append(active, candidate)
		}
	}
	return kept, nil
}

// applyProfileContributions implements spec §4.7 step 7: entries that
// survived verification are recorded as profile contribution events,
// deduplicated against already-pending contributions at
// jaccard > PROFILE_CONTRIBUTION_JACCARD_THRESHOLD = 0.6.
func (s *Service) applyProfileContributions(ctx context.Context, agentID, conversationID string, kept []store.MemoryEntry) error {
	if len(kept) == 0 {
		return nil
	}
	pending, err := s.st.ActiveUnincorporatedContributions(ctx)
	if err != nil {
		return err
	}
	for _, entry := range kept {
		duplicate := false
		for _, p := range pending {
			if textsim.Jaccard(entry.Content, p.Content) > profileContributionJaccardThreshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		ev := store.ProfileEvent{
			AgentID:        agentID,
			ConversationID: conversationID,
			Content:        entry.Content,
			Model:          s.cfg.CoreModelName,
		}
		if err := s.st.InsertProfileContribution(ctx, ev); err != nil {
			return err
		}
		pending = append(pending, ev)
	}
	return nil
}

// applyGraphUpdates implements spec §4.7 step 8: resolve every mentioned
// entity, then upsert every relationship edge between resolved entities.
func (s *Service) applyGraphUpdates(ctx context.Context, entities []extractedEntityRef, relationships []extractedRelationship) error {
	resolved := make(map[string]store.GraphEntity, len(entities))
	for _, e := range entities {
		typ := e.Type
		if typ == "" {
			typ = store.EntityTypeUnknown
		}
		ge, err := s.st.ResolveEntity(ctx, e.Name, typ, s.cfg.CoreModelName)
		if err != nil {
			return err
		}
		resolved[e.Name] = ge
	}

	for _, rel := range relationships {
		source, err := s.resolveNamedEntity(ctx, resolved, rel.Source)
		if err != nil {
			return err
		}
		target, err := s.resolveNamedEntity(ctx, resolved, rel.Target)
		if err != nil {
			return err
		}
		if err := s.st.InsertRelationship(ctx, source.ID, target.ID, rel.Relation, rel.Confidence, s.cfg.CoreModelName); err != nil {
			return err
		}
	}
	return nil
}

// resolveNamedEntity returns the already-resolved entity for name if the
// extraction response's "entities" array covered it, otherwise resolves it
// on demand as type "unknown".
func (s *Service) resolveNamedEntity(ctx context.Context, resolved map[string]store.GraphEntity, name string) (store.GraphEntity, error) {
	if ge, ok := resolved[name]; ok {
		return ge, nil
	}
	ge, err := s.st.ResolveEntity(ctx, name, store.EntityTypeUnknown, s.cfg.CoreModelName)
	if err != nil {
		return store.GraphEntity{}, err
	}
	resolved[name] = ge
	return ge, nil
}

// logProcessing writes a processing_log row for an extraction attempt
// (spec §4.7 step 9) or a verification outcome. Logging failures are
// themselves only logged.
func (s *Service) logProcessing(ctx context.Context, agentID, taskType, status, details string, inputTokens, outputTokens int, duration time.Duration) {
	log := store.ProcessingLog{
		AgentID:      agentID,
		TaskType:     taskType,
		Model:        s.cfg.CoreModelName,
		Status:       status,
		Details:      details,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		DurationMS:   duration.Milliseconds(),
	}
	if err := s.st.InsertProcessingLog(ctx, log); err != nil {
		s.log.Warn().Err(err).Msg("failed to write processing log")
	}
}

// handleSessionChange implements spec §4.7 step 11 / §5's "flush-then-
// replace": when the active conversation for an agent changes, the
// outgoing conversation's debounce is cancelled and its summary is
// kicked off immediately rather than waiting out the debounce delay —
// but, per §5's "scheduled immediately (not awaited)", detached so the
// triggering turn is never blocked on it.
func (s *Service) handleSessionChange(agentID, conversationID string) {
	s.mu.Lock()
	prior, hadPrior := s.activeConversation[agentID]
	changed := hadPrior && prior != conversationID
	if changed {
		s.cancelDebounceLocked(prior)
	}
	s.activeConversation[agentID] = conversationID
	s.armDebounceLocked(agentID, conversationID)
	s.mu.Unlock()

	if changed {
		go func() {
			if err := s.GenerateConversationSummary(context.Background(), agentID, prior); err != nil {
				s.log.Warn().Err(err).Str("conversation_id", prior).Msg("session-change summary generation failed")
			}
		}()
	}
}
