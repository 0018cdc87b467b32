package store

import "time"

// MemoryEntry mirrors spec §3's "Memory entry" row.
type MemoryEntry struct {
	ID                   string
	AgentID              string
	Type                 string
	Content              string
	Confidence           float64
	Model                string
	SourceConversationID string
	Tags                 []string
	Status               string
	SupersededBy         string
	CreatedAt            time.Time
	LastAccessed         time.Time
	AccessCount          int
	ValidFrom            time.Time
	ValidUntil           *time.Time
}

const (
	EntryStatusActive     = "active"
	EntryStatusSuperseded = "superseded"
	EntryStatusArchived   = "archived"
	EntryStatusDeleted    = "deleted"
)

// Contradictable entry types, per spec §4.7.1 layer 2.
const (
	EntryTypeFact       = "fact"
	EntryTypePreference = "preference"
	EntryTypeDecision   = "decision"
	EntryTypeCorrection = "correction"
	EntryTypeCommitment = "commitment"
	EntryTypeRelation   = "relationship"
	EntryTypeSkill      = "skill"
)

// MaxEntryContentChars is the truncation boundary from spec §8: "Content
// longer than 50 000 characters is truncated (not rejected) on entry
// construction."
const MaxEntryContentChars = 50000

// NewMemoryEntry clamps confidence to [0,1] and truncates content,
// matching spec §8's boundary behaviors.
func NewMemoryEntry(agentID, typ, content string, confidence float64, model string) MemoryEntry {
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}
	if len(content) > MaxEntryContentChars {
		if r := []rune(content); len(r) > MaxEntryContentChars {
			content = string(r[:MaxEntryContentChars])
		}
	}
	now := time.Now().UTC()
	return MemoryEntry{
		AgentID:      agentID,
		Type:         typ,
		Content:      content,
		Confidence:   confidence,
		Model:        model,
		Status:       EntryStatusActive,
		CreatedAt:    now,
		LastAccessed: now,
		ValidFrom:    now,
	}
}

// IsContradictable reports whether a and b's types can form a
// "contradictable pair" per spec §4.7.1 layer 2: equal types, or both in
// {fact, correction, commitment}.
func IsContradictable(a, b string) bool {
	if a == b {
		return true
	}
	set := map[string]bool{EntryTypeFact: true, EntryTypeCorrection: true, EntryTypeCommitment: true}
	return set[a] && set[b]
}

// Profile mirrors the single-row-per-version "User profile" entity.
type Profile struct {
	Version     int
	Content     string
	TokenCount  int
	Model       string
	Status      string
	GeneratedAt time.Time
}

// ProfileEvent mirrors "Profile event".
type ProfileEvent struct {
	ID              string
	AgentID         string
	ConversationID  string
	EventType       string // "contribution" | "regeneration"
	Content         string
	Model           string
	Status          string
	IncorporatedIn  *int
	CreatedAt       time.Time
}

const (
	ProfileEventContribution = "contribution"
	ProfileEventRegeneration = "regeneration"
)

// UserEdit mirrors "User edit".
type UserEdit struct {
	ID        string
	Content   string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// ConversationSummary mirrors "Conversation summary".
type ConversationSummary struct {
	ID             string
	AgentID        string
	ConversationID string
	Summary        string
	TokenCount     int
	Model          string
	ConversationAt time.Time
	Status         string
	CreatedAt      time.Time
}

// Conversation mirrors "Conversation".
type Conversation struct {
	ID            string
	AgentID       string
	Title         string
	StartedAt     time.Time
	LastMessageAt time.Time
	MessageCount  int
	Status        string
}

// Chunk mirrors "Chunk".
type Chunk struct {
	ID             string
	ConversationID string
	ChunkIndex     int
	Role           string // "user" | "assistant"
	Content        string
	TokenCount     int
	CreatedAt      time.Time
}

const (
	ChunkRoleUser      = "user"
	ChunkRoleAssistant = "assistant"
)

// PendingSignal mirrors "Pending signal".
type PendingSignal struct {
	ID                string
	AgentID           string
	ConversationID    string
	SignalType        string
	UserMessage       string
	AssistantMessage  string
	Status            string // "pending" | "processed"
	CreatedAt         time.Time
}

const (
	SignalStatusPending   = "pending"
	SignalStatusProcessed = "processed"
)

// GraphEntity mirrors "Graph entity".
type GraphEntity struct {
	ID        string
	Name      string
	Type      string
	Metadata  string
	Model     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

const EntityTypeUnknown = "unknown"

// GraphRelationship mirrors "Graph relationship".
type GraphRelationship struct {
	ID         string
	SourceID   string
	TargetID   string
	Relation   string
	Confidence float64
	Model      string
	ValidFrom  time.Time
	ValidUntil *time.Time
	CreatedAt  time.Time
}

// ProcessingLog mirrors "Processing log".
type ProcessingLog struct {
	ID           string
	AgentID      string
	TaskType     string
	Model        string
	Status       string
	Details      string
	InputTokens  int
	OutputTokens int
	DurationMS   int64
	CreatedAt    time.Time
}

// MemoryEvent mirrors "Memory event".
type MemoryEvent struct {
	ID        string
	EntryID   string
	EventType string // created | superseded | deleted | verification
	AgentID   string
	Model     string
	Reason    string
	CreatedAt time.Time
}

const (
	MemoryEventCreated      = "created"
	MemoryEventSuperseded   = "superseded"
	MemoryEventDeleted      = "deleted"
	MemoryEventVerification = "verification"
)
