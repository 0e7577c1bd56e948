// Package planner decomposes high-level tasks into dependency-ordered
// steps assigned to named agent roles. Planning is fail-open: a reply the
// model mangles degrades to a single-step plan instead of an error.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/lumaflow/luma/llm"
	"github.com/lumaflow/luma/types"
)

// Capability describes an agent role the planner may assign steps to.
type Capability struct {
	Name        string
	Description string
	Tools       []types.ToolSchema
}

// StepResult reports the outcome of one executed step, for plan revision.
type StepResult struct {
	StepID int
	Status types.StepStatus
	Output string
	Error  string
}

// Planner builds and revises task plans through the model.
type Planner struct {
	provider     llm.Provider
	model        string
	systemPrompt string
	logger       *zap.Logger
}

const defaultSystemPrompt = `You are a task planner that breaks complex tasks into manageable steps.
Analyze the task, create a logical execution plan and assign each step to the most appropriate agent.
Plans must be comprehensive, well structured and follow the requested JSON format exactly.`

// New creates a Planner. A nil logger disables logging.
func New(provider llm.Provider, model string, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		provider:     provider,
		model:        model,
		systemPrompt: defaultSystemPrompt,
		logger:       logger.Named("planner"),
	}
}

// CreatePlan decomposes task into steps restricted to the given agent
// roles. A provider failure or unparseable reply yields a one-step
// fallback plan assigning the whole task to the "default" agent.
func (p *Planner) CreatePlan(ctx context.Context, task string, capabilities []Capability) *types.Plan {
	prompt := p.buildPlanPrompt(task, capabilities)

	resp, err := p.provider.Completion(ctx, &llm.ChatRequest{
		Model: p.model,
		Messages: []types.Message{
			types.NewSystemMessage(p.systemPrompt),
			types.NewUserMessage(prompt),
		},
	})
	if err != nil {
		p.logger.Warn("plan generation failed, using fallback", zap.Error(err))
		return fallbackPlan(task)
	}

	plan, ok := parsePlan(llm.ResponseText(resp))
	if !ok {
		p.logger.Warn("plan reply not parseable, using fallback")
		return fallbackPlan(task)
	}
	if plan.Task == "" {
		plan.Task = task
	}
	plan.Status = types.PlanExecuting
	for i := range plan.Steps {
		plan.Steps[i].Status = types.StepPending
	}
	return plan
}

// RevisePlan asks the model to adjust a plan after partial execution. An
// unusable reply returns a copy of the original annotated with the failed
// step IDs instead.
func (p *Planner) RevisePlan(ctx context.Context, original *types.Plan, results []StepResult) *types.Plan {
	prompt := p.buildRevisionPrompt(original, results)

	resp, err := p.provider.Completion(ctx, &llm.ChatRequest{
		Model: p.model,
		Messages: []types.Message{
			types.NewSystemMessage(p.systemPrompt),
			types.NewUserMessage(prompt),
		},
	})
	if err != nil {
		p.logger.Warn("plan revision failed, annotating original", zap.Error(err))
		return fallbackRevision(original, results)
	}

	revised, ok := parsePlan(llm.ResponseText(resp))
	if !ok {
		return fallbackRevision(original, results)
	}
	if revised.Task == "" {
		revised.Task = original.Task
	}
	revised.Status = types.PlanExecuting
	for i := range revised.Steps {
		if revised.Steps[i].Status == "" {
			revised.Steps[i].Status = types.StepPending
		}
	}
	return revised
}

func (p *Planner) buildPlanPrompt(task string, capabilities []Capability) string {
	names := make([]string, 0, len(capabilities))
	for _, c := range capabilities {
		if c.Name != "" {
			names = append(names, c.Name)
		}
	}
	validAgents := "none"
	if len(names) > 0 {
		validAgents = strings.Join(names, ", ")
	}

	var b strings.Builder
	b.WriteString("# Task Planning Request\n\n## Task Description\n")
	b.WriteString(task)
	b.WriteString("\n\n")
	if len(capabilities) > 0 {
		b.WriteString("## Available Agents and Capabilities\n")
		for _, c := range capabilities {
			fmt.Fprintf(&b, "- **%s**: %s\n", c.Name, c.Description)
			for _, tool := range c.Tools {
				fmt.Fprintf(&b, "  - %s: %s\n", tool.Name, tool.Description)
			}
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "## Available Agents\nIMPORTANT: You MUST ONLY use the following agents in your plan: %s\nDo NOT specify any other agent names.\n\n", validAgents)
	b.WriteString(`## Planning Instructions
1. Analyze the task to understand the requirements and constraints
2. Break the task into sequential, logical steps
3. For each step specify the subtask, the agent handling it and its expected output
4. Order the steps so dependencies are resolved

## Output Format
Provide the plan as JSON:

` + "```json" + `
{
  "task": "original task description",
  "analysis": "your analysis of the task",
  "steps": [
    {
      "id": 1,
      "agent": "agent_name",
      "description": "specific subtask description",
      "expected_output": "what this step should produce",
      "dependencies": []
    }
  ],
  "success_criteria": "how to determine if the task is complete"
}
` + "```\n")
	fmt.Fprintf(&b, "CRITICAL: every agent name MUST come from this list: %s\n", validAgents)
	return b.String()
}

func (p *Planner) buildRevisionPrompt(original *types.Plan, results []StepResult) string {
	raw, err := json.MarshalIndent(original, "", "  ")
	if err != nil {
		raw = []byte("{}")
	}

	var b strings.Builder
	b.WriteString("# Plan Revision Request\n\n## Original Plan\n```json\n")
	b.Write(raw)
	b.WriteString("\n```\n\n## Execution Results\n")
	if len(results) == 0 {
		b.WriteString("No execution results available.\n")
	}
	for _, r := range results {
		fmt.Fprintf(&b, "**Step %d**\n- Status: %s\n", r.StepID, r.Status)
		if r.Error != "" {
			fmt.Fprintf(&b, "- Error: %s\n", r.Error)
		}
		fmt.Fprintf(&b, "- Output: %s\n\n", r.Output)
	}
	b.WriteString(`## Revision Instructions
1. Analyze the execution results, especially failures
2. Identify steps that need to be modified, replaced or added
3. Create a revised plan that addresses the issues while keeping the original goal

Provide the revised plan in the same JSON format as the original.
`)
	return b.String()
}

var jsonBlockPattern = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// parsePlan extracts a plan from a model reply, preferring a fenced json
// block over the raw text. Step descriptions are accepted under either a
// "description" or a "task" key.
func parsePlan(reply string) (*types.Plan, bool) {
	candidate := strings.TrimSpace(reply)
	if m := jsonBlockPattern.FindStringSubmatch(candidate); m != nil {
		candidate = m[1]
	}

	var raw struct {
		Task     string `json:"task"`
		Analysis string `json:"analysis"`
		Steps    []struct {
			ID             int    `json:"id"`
			Agent          string `json:"agent"`
			Description    string `json:"description"`
			Task           string `json:"task"`
			ExpectedOutput string `json:"expected_output"`
			Dependencies   []int  `json:"dependencies"`
		} `json:"steps"`
		SuccessCriteria string `json:"success_criteria"`
	}
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return nil, false
	}
	if len(raw.Steps) == 0 {
		return nil, false
	}

	plan := &types.Plan{
		Task:            raw.Task,
		Analysis:        raw.Analysis,
		SuccessCriteria: raw.SuccessCriteria,
	}
	for _, s := range raw.Steps {
		desc := s.Description
		if desc == "" {
			desc = s.Task
		}
		plan.Steps = append(plan.Steps, types.PlanStep{
			ID:             s.ID,
			Agent:          s.Agent,
			Description:    desc,
			ExpectedOutput: s.ExpectedOutput,
			Dependencies:   s.Dependencies,
		})
	}
	return plan, true
}

func fallbackPlan(task string) *types.Plan {
	return &types.Plan{
		Task:     task,
		Analysis: "Failed to generate structured plan",
		Steps: []types.PlanStep{{
			ID:             1,
			Agent:          "default",
			Description:    task,
			ExpectedOutput: "Task result",
			Status:         types.StepPending,
		}},
		SuccessCriteria: "Task is completed successfully",
		Status:          types.PlanExecuting,
	}
}

func fallbackRevision(original *types.Plan, results []StepResult) *types.Plan {
	revised := *original
	revised.Steps = make([]types.PlanStep, len(original.Steps))
	copy(revised.Steps, original.Steps)

	var failed []string
	for _, r := range results {
		if r.Status == types.StepFailed {
			failed = append(failed, fmt.Sprintf("%d", r.StepID))
		}
	}
	revised.Analysis = fmt.Sprintf("Revised plan due to failures in steps: %s", strings.Join(failed, ", "))
	return &revised
}
