package memorysvc

import (
	"context"

	"github.com/osaurus/memory-core/internal/modelservice"
	"github.com/osaurus/memory-core/internal/store"
	"github.com/osaurus/memory-core/internal/tokencount"
)

// summaryTemperature keeps summaries factual rather than creative.
const summaryTemperature = 0.2

// GenerateConversationSummary implements spec §4.7
// generate_conversation_summary(): it loads every pending signal for the
// conversation in order, asks the core model for a summary, and persists
// it while atomically flipping those signals to processed.
func (s *Service) GenerateConversationSummary(ctx context.Context, agentID, conversationID string) error {
	signals, err := s.st.PendingSignalsForConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if len(signals) == 0 {
		return nil
	}

	prompt := buildSummaryPrompt(signals)
	resp, err := s.callModel(ctx, modelservice.Request{
		SystemPrompt: summarySystemPrompt,
		UserPrompt:   prompt,
		Temperature:  summaryTemperature,
		MaxTokens:    s.cfg.SummaryBudgetTokens,
	})
	if err != nil {
		return err
	}
	content := stripPreamble(resp.Content)
	tokenCount := tokencount.Count(content, s.cfg.CoreModelName)

	sum := store.ConversationSummary{
		ID:             store.NewID(),
		AgentID:        agentID,
		ConversationID: conversationID,
		Summary:        content,
		TokenCount:     tokenCount,
		Model:          s.cfg.CoreModelName,
		ConversationAt: signals[0].CreatedAt,
	}
	if err := s.st.InsertSummaryAndMarkProcessed(ctx, sum); err != nil {
		return err
	}
	if s.search != nil {
		if err := s.search.IndexSummary(ctx, sum.ID, sum.Summary); err != nil {
			s.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("failed to index conversation summary")
		}
	}
	return nil
}
