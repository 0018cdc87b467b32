package store

import (
	"github.com/google/uuid"
	"github.com/rs/xid"
)

// NewID generates a random 128-bit id for entities whose identity has no
// deterministic content basis (memory entries, conversations, chunks,
// summaries, signals, profile events, user edits).
func NewID() string { return uuid.NewString() }

// NewLogID generates a compact, sortable id for high-volume append-only
// rows (processing_log, memory_events) where a monotonically sortable id
// helps cheap range scans during retention purges.
func NewLogID() string { return xid.New().String() }
