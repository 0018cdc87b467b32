// Package contextasm builds the textual memory block injected into chat
// completions: user overrides, profile, working memory, summaries, and key
// relationships, each under its own character budget, plus an optional
// query-aware recall pass. Grounded on the teacher's pkg/agents/prompt.go
// for the lines-then-join prompt-section idiom, and on its per-room caches
// (e.g. pkg/connector's session caches) for the TTL'd per-agent cache.
package contextasm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/osaurus/memory-core/internal/config"
	"github.com/osaurus/memory-core/internal/search"
	"github.com/osaurus/memory-core/internal/store"
)

// cacheTTL is the assembled-block cache lifetime per agent.
const cacheTTL = 10 * time.Second

// maxKeyRelationships bounds the "Key Relationships" section.
const maxKeyRelationships = 30

type cacheEntry struct {
	block     string
	expiresAt time.Time
}

// Assembler is the ContextAssembler actor: an in-memory TTL cache sitting
// in front of Store and SearchService reads.
type Assembler struct {
	st     *store.Store
	search *search.Service
	cfg    config.Resolved
	log    zerolog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New constructs an Assembler.
func New(st *store.Store, searchSvc *search.Service, cfg config.Resolved, log zerolog.Logger) *Assembler {
	return &Assembler{
		st:     st,
		search: searchSvc,
		cfg:    cfg,
		log:    log.With().Str("component", "contextasm").Logger(),
		cache:  make(map[string]cacheEntry),
	}
}

// Invalidate clears the cached block for agentID, or every agent's cache
// when agentID is empty.
func (a *Assembler) Invalidate(agentID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if agentID == "" {
		a.cache = make(map[string]cacheEntry)
		return
	}
	delete(a.cache, agentID)
}

// Assemble builds the memory block for agentID. The cache is only
// consulted when query is empty, per spec §4.8: "Cache is always bypassed
// when the caller supplies a query."
func (a *Assembler) Assemble(ctx context.Context, agentID, query string) (string, error) {
	if query == "" {
		if cached, ok := a.cached(agentID); ok {
			return cached, nil
		}
	}

	var b builder
	if err := a.appendUserOverrides(ctx, &b); err != nil {
		return "", err
	}
	if err := a.appendUserProfile(ctx, &b); err != nil {
		return "", err
	}
	touchIDs, err := a.appendWorkingMemory(ctx, agentID, &b)
	if err != nil {
		return "", err
	}
	if err := a.appendSummaries(ctx, agentID, &b); err != nil {
		return "", err
	}
	if err := a.appendKeyRelationships(ctx, &b); err != nil {
		return "", err
	}

	if query != "" {
		if err := a.appendQueryAware(ctx, agentID, query, b.String(), &b, &touchIDs); err != nil {
			return "", err
		}
	}

	if len(touchIDs) > 0 {
		if err := a.st.TouchEntries(ctx, touchIDs); err != nil {
			a.log.Warn().Err(err).Msg("failed to touch emitted working-memory entries")
		}
	}

	block := b.String()
	if query == "" {
		a.store(agentID, block)
	}
	return block, nil
}

func (a *Assembler) cached(agentID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.cache[agentID]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.block, true
}

func (a *Assembler) store(agentID, block string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache[agentID] = cacheEntry{block: block, expiresAt: time.Now().Add(cacheTTL)}
}

// builder accumulates output sections; each section enforces its own
// character budget independently, appending lines in order with no
// reordering for packing, per spec §4.8.
type builder struct {
	sections []string
}

func (b *builder) addSection(title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	b.sections = append(b.sections, title+"\n"+strings.Join(lines, "\n"))
}

func (b *builder) String() string {
	return strings.Join(b.sections, "\n\n")
}

// budgetLines appends candidate lines in order until the next line would
// exceed budgetTokens*charsPerToken characters.
func budgetLines(candidates []string, budgetTokens int) []string {
	limit := budgetTokens * config.CharsPerToken
	used := 0
	var out []string
	for _, line := range candidates {
		if used+len(line) > limit {
			break
		}
		out = append(out, line)
		used += len(line)
	}
	return out
}

func (a *Assembler) appendUserOverrides(ctx context.Context, b *builder) error {
	edits, err := a.st.ActiveUserEdits(ctx)
	if err != nil {
		return err
	}
	lines := make([]string, len(edits))
	for i, e := range edits {
		lines[i] = e.Content
	}
	b.addSection("## User Overrides", lines)
	return nil
}

func (a *Assembler) appendUserProfile(ctx context.Context, b *builder) error {
	profile, err := a.st.CurrentProfile(ctx)
	if err != nil {
		return err
	}
	if profile == nil || strings.TrimSpace(profile.Content) == "" {
		return nil
	}
	b.addSection("## User Profile", []string{profile.Content})
	return nil
}

// appendWorkingMemory renders active entries, newest-last-accessed first,
// and returns the IDs of the entries that made it into the budget so the
// caller can batch a touch() afterward.
func (a *Assembler) appendWorkingMemory(ctx context.Context, agentID string, b *builder) ([]string, error) {
	entries, err := a.st.LoadActiveEntries(ctx, agentID, 0)
	if err != nil {
		return nil, err
	}
	candidates := make([]string, len(entries))
	for i, e := range entries {
		candidates[i] = formatEntryLine(e)
	}
	lines := budgetLines(candidates, a.cfg.WorkingMemoryBudgetTokens)
	b.addSection("## Working Memory", lines)

	ids := make([]string, 0, len(lines))
	for i, line := range lines {
		_ = line
		ids = append(ids, entries[i].ID)
	}
	return ids, nil
}

func formatEntryLine(e store.MemoryEntry) string {
	line := fmt.Sprintf("- [%s] %s", e.Type, e.Content)
	if !e.ValidFrom.IsZero() {
		line += fmt.Sprintf(" (date: %s)", e.ValidFrom.Format("2006-01-02"))
	}
	return line
}

func (a *Assembler) appendSummaries(ctx context.Context, agentID string, b *builder) error {
	summaries, err := a.st.SummariesForAgent(ctx, agentID, a.cfg.SummaryRetentionDays)
	if err != nil {
		return err
	}
	candidates := make([]string, len(summaries))
	for i, s := range summaries {
		candidates[i] = fmt.Sprintf("- [date: %s] %s", s.ConversationAt.Format("2006-01-02"), s.Summary)
	}
	lines := budgetLines(candidates, a.cfg.SummaryBudgetTokens)
	b.addSection("## Recent Conversation Summaries", lines)
	return nil
}

func (a *Assembler) appendKeyRelationships(ctx context.Context, b *builder) error {
	relationships, err := a.st.ActiveRelationships(ctx, maxKeyRelationships)
	if err != nil {
		return err
	}
	candidates := make([]string, 0, len(relationships))
	for _, r := range relationships {
		source, err := a.st.EntityNameByID(ctx, r.SourceID)
		if err != nil {
			return err
		}
		target, err := a.st.EntityNameByID(ctx, r.TargetID)
		if err != nil {
			return err
		}
		candidates = append(candidates, fmt.Sprintf("- %s -> %s -> %s", source, r.Relation, target))
	}
	lines := budgetLines(candidates, a.cfg.GraphBudgetTokens)
	b.addSection("## Key Relationships", lines)
	return nil
}

// appendQueryAware implements spec §4.8's query-aware mode: relevant
// entries and chunks not already present verbatim in the base block,
// each under its own working_memory_budget_tokens allowance.
func (a *Assembler) appendQueryAware(ctx context.Context, agentID, query, baseBlock string, b *builder, touchIDs *[]string) error {
	if a.search == nil {
		return nil
	}

	entries, err := a.search.SearchEntries(ctx, search.Options{
		AgentID: agentID, Query: query, TopK: a.cfg.RecallTopK,
		Lambda: a.cfg.MMRLambda, FetchMultiplier: a.cfg.MMRFetchMultiplier,
		HalfLifeDays: a.cfg.TemporalDecayHalfLifeDays,
	})
	if err != nil {
		return err
	}
	var entryCandidates []string
	var entryIDs []string
	for _, e := range entries {
		if strings.Contains(baseBlock, e.Content) {
			continue
		}
		entryCandidates = append(entryCandidates, formatEntryLine(e))
		entryIDs = append(entryIDs, e.ID)
	}
	entryLines := budgetLines(entryCandidates, a.cfg.WorkingMemoryBudgetTokens)
	b.addSection("## Relevant Memories", entryLines)
	*touchIDs = append(*touchIDs, entryIDs[:len(entryLines)]...)

	chunks, err := a.search.SearchChunks(ctx, search.Options{
		AgentID: agentID, Query: query, TopK: a.cfg.RecallTopK,
		Lambda: a.cfg.MMRLambda, FetchMultiplier: a.cfg.MMRFetchMultiplier,
	})
	if err != nil {
		return err
	}
	var chunkCandidates []string
	for _, sc := range chunks {
		if strings.Contains(baseBlock, sc.Chunk.Content) {
			continue
		}
		line := fmt.Sprintf("- %s", sc.Chunk.Content)
		if !sc.Chunk.CreatedAt.IsZero() {
			line += fmt.Sprintf(" (date: %s)", sc.Chunk.CreatedAt.Format("2006-01-02"))
		}
		chunkCandidates = append(chunkCandidates, line)
	}
	chunkLines := budgetLines(chunkCandidates, a.cfg.WorkingMemoryBudgetTokens)
	b.addSection("## Relevant Conversation Excerpts", chunkLines)
	return nil
}
