package memorysvc

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/osaurus/memory-core/internal/store"
)

// extractionSystemPrompt instructs the model to respond with JSON only,
// per spec §4.7 step 4.
const extractionSystemPrompt = `You extract durable memory facts from one conversation turn.
Respond with JSON only, matching this schema, and nothing else (no prose, no code fences):
{"entries":[{"type":"fact|preference|decision|correction|commitment|relationship|skill","content":"...","confidence":0.0-1.0,"tags":["..."]}],"entities":[{"name":"...","type":"person|company|place|project|tool|concept|event|unknown"}],"relationships":[{"source":"...","relation":"...","target":"...","confidence":0.0-1.0}]}
Only extract what is new and durable. If the turn contains nothing worth remembering, respond with {"entries":[]}.`

// buildExtractionPrompt assembles the user turn plus existing-memory stubs
// into the extraction prompt, in the lines-then-join style the teacher
// uses for its own prompt builders (pkg/agents/prompt.go).
func buildExtractionPrompt(active []store.MemoryEntry, userMsg, assistantMsg string, sessionDate *time.Time) string {
	var lines []string
	if sessionDate != nil {
		lines = append(lines, fmt.Sprintf("Session date: %s", sessionDate.Format("2006-01-02")), "")
	}

	if len(active) > 0 {
		lines = append(lines, "Existing memory (do not repeat these, only extract what is new):")
		for _, e := range active {
			lines = append(lines, fmt.Sprintf("- [%s] %s", e.Type, truncateForPrompt(e.Content, 200)))
		}
		lines = append(lines, "")
	}

	lines = append(lines, "Conversation turn:")
	lines = append(lines, fmt.Sprintf("User: %s", userMsg))
	if assistantMsg != "" {
		lines = append(lines, fmt.Sprintf("Assistant: %s", assistantMsg))
	}

	return strings.Join(lines, "\n")
}

// profileSystemPrompt forbids invention, preambles, and placeholders, per
// spec §4.7 regenerate_profile().
const profileSystemPrompt = `You maintain a user profile document from accumulated facts about the user.
Rules:
- Write ONLY the profile content itself. No preamble, no "Here is the updated profile:", no sign-off.
- Never invent facts. Only include what is supported by the provided contributions and edits.
- Never include placeholder text like "[insert detail]" or "TBD".
- Prefer concise, well-organized prose or short sections over a bare list.`

// buildProfileRegenerationPrompt assembles the current profile, pending
// contributions, and standing user edits for a regeneration call.
func buildProfileRegenerationPrompt(current *store.Profile, contributions []store.ProfileEvent, edits []store.UserEdit) string {
	var lines []string
	if current != nil && strings.TrimSpace(current.Content) != "" {
		lines = append(lines, "Current profile:", current.Content, "")
	}

	if len(contributions) > 0 {
		lines = append(lines, "New contributions to incorporate:")
		for _, c := range contributions {
			lines = append(lines, fmt.Sprintf("- %s", c.Content))
		}
		lines = append(lines, "")
	}

	if len(edits) > 0 {
		lines = append(lines, "User-authored edits (authoritative, never contradict these):")
		for _, e := range edits {
			lines = append(lines, fmt.Sprintf("- %s", e.Content))
		}
		lines = append(lines, "")
	}

	lines = append(lines, "Write the complete, updated profile document now.")
	return strings.Join(lines, "\n")
}

// summarySystemPrompt instructs a terse, factual conversation summary.
const summarySystemPrompt = `You summarize a conversation for long-term recall.
Rules:
- Write ONLY the summary itself. No preamble, no sign-off.
- Be concise: a few sentences capturing what was discussed and decided.
- Do not invent details not present in the conversation.`

// buildSummaryPrompt renders pending signals (in order) as a turn-by-turn
// transcript for summarization.
func buildSummaryPrompt(signals []store.PendingSignal) string {
	var lines []string
	lines = append(lines, "Conversation:")
	for _, sig := range signals {
		lines = append(lines, fmt.Sprintf("User: %s", sig.UserMessage))
		if sig.AssistantMessage != "" {
			lines = append(lines, fmt.Sprintf("Assistant: %s", sig.AssistantMessage))
		}
	}
	lines = append(lines, "", "Write the summary now.")
	return strings.Join(lines, "\n")
}

// preambleRE matches common model throat-clearing the teacher's output
// never wants to ship verbatim (e.g. "Certainly! Here is the summary:").
var preambleRE = regexp.MustCompile(`(?i)^\s*(certainly|sure|of course|here (is|are)|here'?s)[^\n]*[:\n]\s*`)

// stripPreamble removes a single leading preamble line/clause, per spec
// §4.7's "strip common preambles via regex".
func stripPreamble(text string) string {
	return strings.TrimSpace(preambleRE.ReplaceAllString(strings.TrimSpace(text), ""))
}

func truncateForPrompt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
