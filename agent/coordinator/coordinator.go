// Package coordinator executes task plans. Steps whose dependencies are
// satisfied run concurrently; an unresolvable dependency graph terminates
// the plan as blocked rather than spinning.
package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lumaflow/luma/agent/planner"
	"github.com/lumaflow/luma/types"
)

// Executor runs a single plan step on behalf of the named agent.
type Executor interface {
	ExecuteStep(ctx context.Context, step *types.PlanStep) (string, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, step *types.PlanStep) (string, error)

func (f ExecutorFunc) ExecuteStep(ctx context.Context, step *types.PlanStep) (string, error) {
	return f(ctx, step)
}

// Config tunes a Coordinator.
type Config struct {
	// MaxConcurrency caps how many ready steps run at once. Zero means
	// unbounded.
	MaxConcurrency int
	// ReviseOnFailure asks the planner for one revised plan when steps
	// fail, then executes the revision. Requires a planner.
	ReviseOnFailure bool
}

// Coordinator drives a plan to a terminal status.
type Coordinator struct {
	executor Executor
	planner  *planner.Planner
	config   Config
	logger   *zap.Logger
}

// New creates a Coordinator. plan revision is disabled when p is nil.
// A nil logger disables logging.
func New(executor Executor, p *planner.Planner, cfg Config, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		executor: executor,
		planner:  p,
		config:   cfg,
		logger:   logger.Named("coordinator"),
	}
}

// Run plans the task and executes it, optionally revising once after
// failures. The executed plan is returned with its terminal status set.
func (c *Coordinator) Run(ctx context.Context, task string, capabilities []planner.Capability) (*types.Plan, error) {
	if c.planner == nil {
		return nil, fmt.Errorf("coordinator has no planner configured")
	}
	plan := c.planner.CreatePlan(ctx, task, capabilities)
	results, err := c.Execute(ctx, plan)
	if err != nil {
		return plan, err
	}

	if plan.Status == types.PlanFailed && c.config.ReviseOnFailure {
		c.logger.Info("plan failed, requesting revision", zap.String("task", task))
		revised := c.planner.RevisePlan(ctx, plan, results)
		if _, err := c.Execute(ctx, revised); err != nil {
			return revised, err
		}
		return revised, nil
	}
	return plan, nil
}

// Execute runs every step of plan, waves of ready steps at a time, and
// sets the plan's terminal status. Step results are reported for plan
// revision. The returned error is reserved for context cancellation and
// blocked plans; ordinary step failures end with types.PlanFailed.
func (c *Coordinator) Execute(ctx context.Context, plan *types.Plan) ([]planner.StepResult, error) {
	plan.Status = types.PlanExecuting
	for i := range plan.Steps {
		if plan.Steps[i].Status == "" {
			plan.Steps[i].Status = types.StepPending
		}
	}
	completed := make(map[int]bool)
	var results []planner.StepResult
	anyFailed := false

	for {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		ready := plan.ReadySteps(completed)
		if len(ready) == 0 {
			if plan.Blocked(completed) {
				plan.Status = types.PlanBlocked
				return results, types.NewError(types.ErrPlanBlocked,
					fmt.Sprintf("plan %q has unresolvable dependencies", plan.Task))
			}
			break
		}

		waveResults := c.runWave(ctx, ready)
		if err := ctx.Err(); err != nil {
			return results, err
		}

		for _, r := range waveResults {
			results = append(results, r)
			step := plan.Step(r.StepID)
			if r.Status == types.StepCompleted {
				completed[r.StepID] = true
				step.Status = types.StepCompleted
				step.Result = r.Output
			} else {
				anyFailed = true
				step.Status = types.StepFailed
				step.Error = r.Error
			}
		}

		if anyFailed {
			// Failed steps never satisfy dependencies, so downstream
			// steps would block. Stop the plan here.
			plan.Status = types.PlanFailed
			return results, nil
		}
	}

	plan.Status = types.PlanCompleted
	return results, nil
}

// runWave executes one set of independent steps concurrently.
func (c *Coordinator) runWave(ctx context.Context, steps []*types.PlanStep) []planner.StepResult {
	var mu sync.Mutex
	results := make([]planner.StepResult, 0, len(steps))

	g, ctx := errgroup.WithContext(ctx)
	if c.config.MaxConcurrency > 0 {
		g.SetLimit(c.config.MaxConcurrency)
	}

	for _, step := range steps {
		step := step
		step.Status = types.StepRunning
		g.Go(func() error {
			output, err := c.executor.ExecuteStep(ctx, step)

			result := planner.StepResult{StepID: step.ID, Status: types.StepCompleted, Output: output}
			if err != nil {
				result.Status = types.StepFailed
				result.Error = err.Error()
				c.logger.Warn("step failed",
					zap.Int("step", step.ID),
					zap.String("agent", step.Agent),
					zap.Error(err),
				)
			} else {
				c.logger.Debug("step completed",
					zap.Int("step", step.ID),
					zap.String("agent", step.Agent),
				)
			}

			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			// Step failures are data, not group errors: the rest of the
			// wave keeps running.
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Summary renders a short human-readable report of an executed plan.
func Summary(plan *types.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan %q: %s\n", plan.Task, plan.Status)
	for _, step := range plan.Steps {
		fmt.Fprintf(&b, "  [%d] %s (%s): %s", step.ID, step.Description, step.Agent, step.Status)
		if step.Error != "" {
			fmt.Fprintf(&b, " - %s", step.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}
