package types

import "time"

// MemoryTier identifies which storage tier a memory record lives in.
type MemoryTier string

const (
	// TierWorking is the capacity-bounded, low-latency tier. Not durable.
	TierWorking MemoryTier = "working"

	// TierDurable is the persisted, searchable long-term tier.
	TierDurable MemoryTier = "durable"
)

// DefaultImportance is assigned to memories stored without a score and
// without a configured scorer.
const DefaultImportance = 0.5

// MemoryRecord represents a single memory entry in either tier.
type MemoryRecord struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Importance float64        `json:"importance"`
	Tags       []string       `json:"tags,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Tier       MemoryTier     `json:"tier,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// CompositeScore returns the retention/ordering key used by the working
// tier: importance dominates, timestamp breaks ties toward recency.
func (r MemoryRecord) CompositeScore() float64 {
	return r.Importance*10 + float64(r.CreatedAt.Unix())/1e10
}

// MemoryStats provides statistics about memory usage.
type MemoryStats struct {
	WorkingCount int       `json:"working_count"`
	DurableCount int       `json:"durable_count"`
	OldestRecord time.Time `json:"oldest_record,omitempty"`
	NewestRecord time.Time `json:"newest_record,omitempty"`
}
