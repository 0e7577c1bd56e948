package memory

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/lumaflow/luma/internal/metrics"
	"github.com/lumaflow/luma/types"
)

// Manager thresholds used when the corresponding Config field is zero.
const (
	DefaultPromoteThreshold     = 0.7
	DefaultConsolidateThreshold = 0.5
)

// Config tunes a Manager.
type Config struct {
	// WorkingCapacity bounds the working tier.
	WorkingCapacity int
	// PromoteThreshold sends new records with importance strictly above
	// it straight to the durable tier.
	PromoteThreshold float64
	// ConsolidateThreshold controls which working records Consolidate
	// moves to the durable tier (importance strictly above it).
	ConsolidateThreshold float64
	// Metrics records writes, evictions and searches when set.
	Metrics *metrics.Collector
}

// RememberOptions modifies a single Remember call.
type RememberOptions struct {
	// Importance overrides scoring when non-nil.
	Importance *float64
	// Durable forces the record into the durable tier regardless of
	// importance.
	Durable bool
	// Tags and Metadata are attached to the stored record.
	Tags     []string
	Metadata map[string]any
}

// Manager routes records between the working and durable tiers and merges
// the two on retrieval.
type Manager struct {
	working *WorkingMemory
	durable Store
	scorer  Scorer
	logger  *zap.Logger
	metrics *metrics.Collector

	promoteThreshold     float64
	consolidateThreshold float64
}

// NewManager wires the two tiers together. scorer may be nil, in which
// case unspecified importance defaults to types.DefaultImportance. A nil
// logger disables logging.
func NewManager(durable Store, cfg Config, scorer Scorer, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PromoteThreshold == 0 {
		cfg.PromoteThreshold = DefaultPromoteThreshold
	}
	if cfg.ConsolidateThreshold == 0 {
		cfg.ConsolidateThreshold = DefaultConsolidateThreshold
	}
	return &Manager{
		working:              NewWorkingMemory(cfg.WorkingCapacity),
		durable:              durable,
		scorer:               scorer,
		logger:               logger.Named("memory"),
		metrics:              cfg.Metrics,
		promoteThreshold:     cfg.PromoteThreshold,
		consolidateThreshold: cfg.ConsolidateThreshold,
	}
}

// Working exposes the working tier, mainly for tests and diagnostics.
func (m *Manager) Working() *WorkingMemory { return m.working }

// Remember stores content in the appropriate tier and returns the record
// ID. Records scoring strictly above the promote threshold, or explicitly
// marked durable, bypass the working tier.
func (m *Manager) Remember(ctx context.Context, content string, opts RememberOptions) (string, error) {
	importance := types.DefaultImportance
	switch {
	case opts.Importance != nil:
		importance = clamp01(*opts.Importance)
	case m.scorer != nil:
		importance = m.scorer.Score(ctx, content)
	}

	rec := &types.MemoryRecord{
		Content:    content,
		Importance: importance,
		Tags:       opts.Tags,
		Metadata:   opts.Metadata,
	}

	if opts.Durable || importance > m.promoteThreshold {
		rec.ID = NewDurableID()
		if err := m.durable.Add(ctx, rec); err != nil {
			return "", err
		}
		m.logger.Debug("memory promoted to durable tier",
			zap.String("id", rec.ID),
			zap.Float64("importance", importance),
		)
		m.metrics.RecordMemoryWrite("durable")
		return rec.ID, nil
	}

	evicted := m.working.Add(rec)
	if evicted != nil {
		m.logger.Debug("working memory evicted record",
			zap.String("id", evicted.ID),
			zap.Float64("importance", evicted.Importance),
		)
		m.metrics.RecordMemoryEviction()
	}
	m.metrics.RecordMemoryWrite("working")
	return rec.ID, nil
}

// Retrieve searches both tiers, deduplicates by ID and returns up to
// limit records ordered by composite score, highest first.
func (m *Manager) Retrieve(ctx context.Context, query string, limit int) ([]*types.MemoryRecord, error) {
	if limit <= 0 {
		limit = 5
	}
	m.metrics.RecordMemorySearch()

	durableHits, err := m.durable.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	workingHits := m.working.Search(query)

	seen := make(map[string]bool, len(workingHits)+len(durableHits))
	merged := make([]*types.MemoryRecord, 0, len(workingHits)+len(durableHits))
	for _, rec := range workingHits {
		if !seen[rec.ID] {
			seen[rec.ID] = true
			merged = append(merged, rec)
		}
	}
	for _, rec := range durableHits {
		if !seen[rec.ID] {
			seen[rec.ID] = true
			merged = append(merged, rec)
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].CompositeScore() > merged[j].CompositeScore()
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// Get looks a record up by ID, working tier first.
func (m *Manager) Get(ctx context.Context, id string) (*types.MemoryRecord, error) {
	if rec, ok := m.working.Get(id); ok {
		return rec, nil
	}
	return m.durable.Get(ctx, id)
}

// Forget removes a record from whichever tier holds it. It reports false,
// not an error, when no tier holds the ID.
func (m *Manager) Forget(ctx context.Context, id string) (bool, error) {
	if m.working.Remove(id) {
		return true, nil
	}
	return m.durable.Delete(ctx, id)
}

// Consolidate moves every working record with importance strictly above
// the consolidate threshold into the durable tier. Records are re-keyed
// on promotion; the count of moved records is returned.
func (m *Manager) Consolidate(ctx context.Context) (int, error) {
	drained := m.working.Drain(m.consolidateThreshold)
	moved := 0
	for _, rec := range drained {
		promoted := &types.MemoryRecord{
			Content:    rec.Content,
			Importance: rec.Importance,
			Tags:       rec.Tags,
			Metadata:   rec.Metadata,
			CreatedAt:  rec.CreatedAt,
		}
		if err := m.durable.Add(ctx, promoted); err != nil {
			// Put the record back so a transient store failure loses
			// nothing.
			m.working.Add(rec)
			return moved, err
		}
		moved++
		m.metrics.RecordMemoryWrite("durable")
	}
	if moved > 0 {
		m.logger.Info("working memory consolidated", zap.Int("moved", moved))
	}
	return moved, nil
}

// Stats summarizes the working tier. Durable counts depend on the store
// backend and are left zero when unknown.
func (m *Manager) Stats() types.MemoryStats {
	records := m.working.All()
	stats := types.MemoryStats{WorkingCount: len(records)}
	for _, rec := range records {
		if stats.OldestRecord.IsZero() || rec.CreatedAt.Before(stats.OldestRecord) {
			stats.OldestRecord = rec.CreatedAt
		}
		if rec.CreatedAt.After(stats.NewestRecord) {
			stats.NewestRecord = rec.CreatedAt
		}
	}
	return stats
}
