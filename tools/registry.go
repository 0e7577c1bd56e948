package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumaflow/luma/internal/metrics"
	"github.com/lumaflow/luma/types"
)

// Observation is the uniform invocation result handed back to the agent
// loop. Tool failures are carried inside it rather than as Go errors so a
// misbehaving tool can never abort a run.
type Observation map[string]any

// Registry is a concurrency-safe name-to-tool table.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Descriptor
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewRegistry creates an empty registry. A nil logger disables logging.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:  make(map[string]Descriptor),
		logger: logger.Named("tools"),
	}
}

// SetMetrics attaches a collector recording invocation counts and
// durations. A nil collector disables recording.
func (r *Registry) SetMetrics(c *metrics.Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = c
}

// Register adds a tool. Registering a name twice is a hard error: silently
// replacing a tool would change agent behaviour without a trace.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return types.NewError(types.ErrToolExecution, "tool name must not be empty")
	}
	if d.Fn == nil {
		return types.NewError(types.ErrToolExecution, fmt.Sprintf("tool %q has no function", d.Name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[d.Name]; exists {
		return types.NewError(types.ErrToolDuplicate, fmt.Sprintf("tool %q already registered", d.Name))
	}
	r.tools[d.Name] = d
	r.logger.Debug("tool registered", zap.String("tool", d.Name))
	return nil
}

// MustRegister registers a tool and panics on failure. Intended for static
// tool sets assembled at startup.
func (r *Registry) MustRegister(d Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Get returns the descriptor for name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Schemas exports every registered tool as a schema suitable for a model
// request, ordered by name.
func (r *Registry) Schemas() ([]types.ToolSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	schemas := make([]types.ToolSchema, 0, len(names))
	for _, name := range names {
		d := r.tools[name]
		params, err := d.Schema()
		if err != nil {
			return nil, fmt.Errorf("schema for tool %q: %w", name, err)
		}
		schemas = append(schemas, types.ToolSchema{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  params,
		})
	}
	return schemas, nil
}

// Invoke runs the named tool and always returns an observation. Unknown
// names, tool errors, panics and timeouts all surface as an "error" entry
// so callers can feed the observation straight back to the model.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) Observation {
	d, ok := r.Get(name)
	if !ok {
		r.logger.Warn("unknown tool requested", zap.String("tool", name))
		r.collector().RecordToolInvocation(name, "not_found", 0)
		return Observation{
			"error":           types.NewError(types.ErrToolNotFound, fmt.Sprintf("tool %q not found", name)).Error(),
			"available_tools": r.Names(),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout())
	defer cancel()

	start := time.Now()
	result, err := r.run(ctx, d, args)
	elapsed := time.Since(start)

	if err != nil {
		r.logger.Warn("tool failed",
			zap.String("tool", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		r.collector().RecordToolInvocation(name, invocationStatus(err), elapsed)
		return Observation{"error": err.Error()}
	}

	r.logger.Debug("tool completed",
		zap.String("tool", name),
		zap.Duration("elapsed", elapsed),
	)
	r.collector().RecordToolInvocation(name, "ok", elapsed)
	return Observation{"result": result}
}

func (r *Registry) collector() *metrics.Collector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics
}

func invocationStatus(err error) string {
	if e, ok := err.(*types.Error); ok && e.Code == types.ErrToolTimeout {
		return "timeout"
	}
	return "error"
}

type toolOutcome struct {
	result any
	err    error
}

func (r *Registry) run(ctx context.Context, d Descriptor, args map[string]any) (result any, err error) {
	done := make(chan toolOutcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- toolOutcome{err: fmt.Errorf("tool %q panicked: %v", d.Name, rec)}
			}
		}()
		res, err := d.Fn(ctx, args)
		done <- toolOutcome{result: res, err: err}
	}()

	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, types.NewError(types.ErrToolTimeout,
				fmt.Sprintf("tool %q timed out after %s", d.Name, d.timeout()))
		}
		return nil, ctx.Err()
	case out := <-done:
		return out.result, out.err
	}
}
