package types

// PlanStatus is the lifecycle state of a plan.
type PlanStatus string

const (
	PlanExecuting PlanStatus = "executing"
	PlanCompleted PlanStatus = "completed"
	PlanFailed    PlanStatus = "failed"
	// PlanBlocked is terminal: pending steps remain but none can ever become
	// ready (unresolvable dependency graph). A blocked plan never loops.
	PlanBlocked PlanStatus = "blocked"
)

// StepStatus is the lifecycle state of a single plan step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// PlanStep is one unit of a decomposed task, assigned to an agent role and
// gated by dependencies on other steps.
type PlanStep struct {
	ID             int        `json:"id"`
	Agent          string     `json:"agent"`
	Description    string     `json:"description"`
	ExpectedOutput string     `json:"expected_output,omitempty"`
	Dependencies   []int      `json:"dependencies,omitempty"`
	Status         StepStatus `json:"status,omitempty"`
	Result         string     `json:"result,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// Plan is an ordered, dependency-graphed decomposition of a task.
type Plan struct {
	Task            string     `json:"task"`
	Analysis        string     `json:"analysis,omitempty"`
	Steps           []PlanStep `json:"steps"`
	SuccessCriteria string     `json:"success_criteria,omitempty"`
	Status          PlanStatus `json:"status,omitempty"`
}

// Step returns the step with the given id, or nil.
func (p *Plan) Step(id int) *PlanStep {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// ReadySteps returns the pending steps whose dependencies are all in the
// completed set. Steps referencing unknown ids never become ready.
func (p *Plan) ReadySteps(completed map[int]bool) []*PlanStep {
	var ready []*PlanStep
	for i := range p.Steps {
		step := &p.Steps[i]
		if step.Status != "" && step.Status != StepPending {
			continue
		}
		ok := true
		for _, dep := range step.Dependencies {
			if !completed[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, step)
		}
	}
	return ready
}

// Blocked reports whether the plan has pending steps but none of them can
// become ready given the completed set: every remaining step waits on a
// dependency that is neither completed nor pending-resolvable.
func (p *Plan) Blocked(completed map[int]bool) bool {
	pending := 0
	for i := range p.Steps {
		if p.Steps[i].Status == "" || p.Steps[i].Status == StepPending {
			pending++
		}
	}
	if pending == 0 {
		return false
	}
	if len(p.ReadySteps(completed)) > 0 {
		return false
	}
	// No ready step: blocked unless a running step may still unblock one.
	for i := range p.Steps {
		if p.Steps[i].Status == StepRunning {
			return false
		}
	}
	return true
}
