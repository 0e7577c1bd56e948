package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/lumaflow/luma/types"
)

// DefaultWorkingCapacity bounds the working tier when no capacity is
// configured.
const DefaultWorkingCapacity = 10

// WorkingMemory is the in-process short-term tier. When capacity is
// exceeded the record with the lowest composite score is evicted, so
// importance dominates and recency breaks ties.
type WorkingMemory struct {
	mu       sync.RWMutex
	records  []*types.MemoryRecord
	capacity int
	now      func() time.Time
}

// NewWorkingMemory creates a working tier holding at most capacity
// records. Values below 1 fall back to DefaultWorkingCapacity.
func NewWorkingMemory(capacity int) *WorkingMemory {
	if capacity < 1 {
		capacity = DefaultWorkingCapacity
	}
	return &WorkingMemory{
		capacity: capacity,
		now:      time.Now,
	}
}

// Add stores a record, evicting the lowest-scoring one if the tier is
// full. The evicted record (possibly the argument itself, if it scores
// lowest) is returned so callers can decide whether to persist it.
func (w *WorkingMemory) Add(rec *types.MemoryRecord) *types.MemoryRecord {
	if rec.ID == "" {
		rec.ID = NewWorkingID()
	}
	now := w.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Tier = types.TierWorking

	w.mu.Lock()
	defer w.mu.Unlock()

	w.records = append(w.records, rec)
	if len(w.records) <= w.capacity {
		return nil
	}

	sort.Slice(w.records, func(i, j int) bool {
		return w.records[i].CompositeScore() < w.records[j].CompositeScore()
	})
	evicted := w.records[0]
	w.records = w.records[1:]
	return evicted
}

// Get returns the record with the given ID.
func (w *WorkingMemory) Get(id string) (*types.MemoryRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, rec := range w.records {
		if rec.ID == id {
			return rec, true
		}
	}
	return nil, false
}

// Remove deletes the record with the given ID.
func (w *WorkingMemory) Remove(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, rec := range w.records {
		if rec.ID == id {
			w.records = append(w.records[:i], w.records[i+1:]...)
			return true
		}
	}
	return false
}

// Search returns all records matching query, unordered.
func (w *WorkingMemory) Search(query string) []*types.MemoryRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []*types.MemoryRecord
	for _, rec := range w.records {
		if matchesQuery(rec, query) {
			out = append(out, rec)
		}
	}
	return out
}

// Drain removes and returns every record whose importance exceeds
// threshold.
func (w *WorkingMemory) Drain(threshold float64) []*types.MemoryRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	var drained []*types.MemoryRecord
	kept := w.records[:0]
	for _, rec := range w.records {
		if rec.Importance > threshold {
			drained = append(drained, rec)
		} else {
			kept = append(kept, rec)
		}
	}
	w.records = kept
	return drained
}

// Len reports the number of records currently held.
func (w *WorkingMemory) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.records)
}

// All returns a snapshot of the current records.
func (w *WorkingMemory) All() []*types.MemoryRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*types.MemoryRecord, len(w.records))
	copy(out, w.records)
	return out
}
