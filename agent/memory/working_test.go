package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/lumaflow/luma/types"
)

func TestWorkingMemoryEvictsLowestImportance(t *testing.T) {
	t.Parallel()

	w := NewWorkingMemory(3)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	w.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for i, importance := range []float64{0.9, 0.2, 0.8} {
		evicted := w.Add(&types.MemoryRecord{
			ID:         fmt.Sprintf("m%d", i),
			Content:    fmt.Sprintf("content %d", i),
			Importance: importance,
		})
		assert.Nil(t, evicted)
	}

	// Capacity exceeded: the 0.2 record loses despite being newer than m0.
	evicted := w.Add(&types.MemoryRecord{ID: "m3", Content: "content 3", Importance: 0.7})
	require.NotNil(t, evicted)
	assert.Equal(t, "m1", evicted.ID)
	assert.Equal(t, 3, w.Len())
}

func TestWorkingMemoryRecencyBreaksTies(t *testing.T) {
	t.Parallel()

	w := NewWorkingMemory(2)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	w.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Hour)
	}

	w.Add(&types.MemoryRecord{ID: "old", Importance: 0.5})
	w.Add(&types.MemoryRecord{ID: "mid", Importance: 0.5})
	evicted := w.Add(&types.MemoryRecord{ID: "new", Importance: 0.5})

	require.NotNil(t, evicted)
	assert.Equal(t, "old", evicted.ID)
}

func TestWorkingMemorySearchAndRemove(t *testing.T) {
	t.Parallel()

	w := NewWorkingMemory(10)
	w.Add(&types.MemoryRecord{ID: "a", Content: "the user prefers dark mode"})
	w.Add(&types.MemoryRecord{ID: "b", Content: "weather was sunny", Tags: []string{"weather"}})

	hits := w.Search("DARK")
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)

	hits = w.Search("weather")
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ID)

	assert.True(t, w.Remove("a"))
	assert.False(t, w.Remove("a"))
	assert.Equal(t, 1, w.Len())
}

func TestWorkingMemoryDrain(t *testing.T) {
	t.Parallel()

	w := NewWorkingMemory(10)
	w.Add(&types.MemoryRecord{ID: "low", Importance: 0.3})
	w.Add(&types.MemoryRecord{ID: "edge", Importance: 0.5})
	w.Add(&types.MemoryRecord{ID: "high", Importance: 0.6})

	drained := w.Drain(0.5)
	require.Len(t, drained, 1)
	assert.Equal(t, "high", drained[0].ID)
	// Exactly at the threshold stays put.
	assert.Equal(t, 2, w.Len())
}

func TestWorkingMemoryCapacityProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 8).Draw(t, "capacity")
		count := rapid.IntRange(0, 40).Draw(t, "count")

		w := NewWorkingMemory(capacity)
		minImportance := 2.0
		for i := 0; i < count; i++ {
			importance := rapid.Float64Range(0, 1).Draw(t, fmt.Sprintf("imp%d", i))
			if importance < minImportance {
				minImportance = importance
			}
			w.Add(&types.MemoryRecord{
				ID:         fmt.Sprintf("m%d", i),
				Importance: importance,
			})
		}

		require.LessOrEqual(t, w.Len(), capacity)
		// Whatever survives scores at least as high as the weakest input.
		for _, rec := range w.All() {
			require.GreaterOrEqual(t, rec.Importance+1e-9, minImportance)
		}
	})
}
