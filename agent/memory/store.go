package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lumaflow/luma/types"
)

// Store is the durable memory tier. Implementations persist records and
// answer substring searches over content and tags.
type Store interface {
	// Add persists a record. A missing ID is assigned; timestamps are
	// filled in when zero.
	Add(ctx context.Context, rec *types.MemoryRecord) error

	// Get returns the record with the given ID, or ErrMemoryNotFound.
	Get(ctx context.Context, id string) (*types.MemoryRecord, error)

	// Search returns up to limit records whose content or tags contain
	// query (case-insensitive), ordered by importance then recency.
	Search(ctx context.Context, query string, limit int) ([]*types.MemoryRecord, error)

	// Update overwrites content, importance, tags and metadata of an
	// existing record.
	Update(ctx context.Context, rec *types.MemoryRecord) error

	// Delete removes a record. It reports whether a record was removed;
	// deleting an unknown ID is not an error.
	Delete(ctx context.Context, id string) (bool, error)

	// Close releases backing resources.
	Close() error
}

// NewDurableID mints an identifier for a durable-tier record.
func NewDurableID() string {
	return fmt.Sprintf("mem_%s", uuid.NewString())
}

// NewWorkingID mints an identifier for a working-tier record.
func NewWorkingID() string {
	return fmt.Sprintf("wm_%s", uuid.NewString())
}

// matchesQuery reports whether rec's content or any tag contains query,
// case-insensitive. An empty query matches everything.
func matchesQuery(rec *types.MemoryRecord, query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(rec.Content), q) {
		return true
	}
	for _, tag := range rec.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}
