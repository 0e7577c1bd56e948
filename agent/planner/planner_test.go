package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumaflow/luma/testutil/mocks"
	"github.com/lumaflow/luma/types"
)

const planReply = "```json\n" + `{
  "task": "build a landing page",
  "analysis": "needs research then implementation",
  "steps": [
    {"id": 1, "agent": "researcher", "description": "gather requirements", "expected_output": "requirement notes", "dependencies": []},
    {"id": 2, "agent": "coder", "description": "implement the page", "expected_output": "html files", "dependencies": [1]}
  ],
  "success_criteria": "page renders"
}` + "\n```"

func TestCreatePlanParsesFencedJSON(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().WithResponse(planReply)
	p := New(provider, "m", nil)

	plan := p.CreatePlan(context.Background(), "build a landing page", []Capability{
		{Name: "researcher", Description: "finds information"},
		{Name: "coder", Description: "writes code"},
	})

	require.Len(t, plan.Steps, 2)
	assert.Equal(t, types.PlanExecuting, plan.Status)
	assert.Equal(t, "researcher", plan.Steps[0].Agent)
	assert.Equal(t, types.StepPending, plan.Steps[0].Status)
	assert.Equal(t, []int{1}, plan.Steps[1].Dependencies)
	assert.Equal(t, "page renders", plan.SuccessCriteria)

	// The prompt restricts agent names to the declared roles.
	prompt := provider.Calls()[0].Request.Messages[1].Content
	assert.Contains(t, prompt, "MUST ONLY use the following agents in your plan: researcher, coder")
}

func TestCreatePlanBareJSON(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().WithResponse(
		`{"task":"t","steps":[{"id":1,"agent":"default","task":"do it","dependencies":[]}]}`)
	p := New(provider, "m", nil)

	plan := p.CreatePlan(context.Background(), "t", nil)
	require.Len(t, plan.Steps, 1)
	// The legacy "task" step key is accepted as the description.
	assert.Equal(t, "do it", plan.Steps[0].Description)
}

func TestCreatePlanFallbackOnGarbage(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().WithResponse("I think you should just do the thing.")
	p := New(provider, "m", nil)

	plan := p.CreatePlan(context.Background(), "deploy the service", nil)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, 1, plan.Steps[0].ID)
	assert.Equal(t, "default", plan.Steps[0].Agent)
	assert.Equal(t, "deploy the service", plan.Steps[0].Description)
	assert.Equal(t, "Failed to generate structured plan", plan.Analysis)
}

func TestCreatePlanFallbackOnProviderError(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().WithError(errors.New("upstream down"))
	p := New(provider, "m", nil)

	plan := p.CreatePlan(context.Background(), "any task", nil)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "any task", plan.Steps[0].Description)
}

func TestCreatePlanFallbackOnEmptySteps(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().WithResponse(`{"task":"t","steps":[]}`)
	p := New(provider, "m", nil)

	plan := p.CreatePlan(context.Background(), "t", nil)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "default", plan.Steps[0].Agent)
}

func TestRevisePlanParsesReply(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().WithResponse("```json\n" + `{
  "task": "build a landing page",
  "analysis": "step 2 failed, splitting it",
  "steps": [
    {"id": 1, "agent": "researcher", "description": "gather requirements", "dependencies": []},
    {"id": 2, "agent": "coder", "description": "scaffold page", "dependencies": [1]},
    {"id": 3, "agent": "coder", "description": "fill in content", "dependencies": [2]}
  ]
}` + "\n```")
	p := New(provider, "m", nil)

	original := &types.Plan{Task: "build a landing page", Steps: []types.PlanStep{
		{ID: 1, Agent: "researcher", Description: "gather requirements", Status: types.StepCompleted},
		{ID: 2, Agent: "coder", Description: "implement the page", Status: types.StepFailed},
	}}
	revised := p.RevisePlan(context.Background(), original, []StepResult{
		{StepID: 1, Status: types.StepCompleted, Output: "notes"},
		{StepID: 2, Status: types.StepFailed, Error: "syntax error"},
	})

	require.Len(t, revised.Steps, 3)
	assert.Equal(t, "step 2 failed, splitting it", revised.Analysis)

	prompt := provider.Calls()[0].Request.Messages[1].Content
	assert.Contains(t, prompt, "Status: failed")
	assert.Contains(t, prompt, "syntax error")
}

func TestRevisePlanFallbackAnnotatesFailures(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().WithResponse("sorry, cannot help")
	p := New(provider, "m", nil)

	original := &types.Plan{Task: "t", Steps: []types.PlanStep{
		{ID: 1, Agent: "a"}, {ID: 2, Agent: "b"}, {ID: 3, Agent: "c"},
	}}
	revised := p.RevisePlan(context.Background(), original, []StepResult{
		{StepID: 1, Status: types.StepCompleted},
		{StepID: 2, Status: types.StepFailed},
		{StepID: 3, Status: types.StepFailed},
	})

	assert.Equal(t, "Revised plan due to failures in steps: 2, 3", revised.Analysis)
	assert.Len(t, revised.Steps, 3)
	// The original plan is not mutated.
	assert.Empty(t, original.Analysis)
}
