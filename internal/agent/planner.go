package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/rahul/exoscope/internal/observability"
	"github.com/rahul/exoscope/internal/plan"
	"github.com/rahul/exoscope/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

// MaxPromptColumns bounds how many catalog columns are listed in the planner prompt.
const MaxPromptColumns = 200

// PlanContext is everything a planner sees for one request.
type PlanContext struct {
	Trace   tools.Trace
	Message string
	Table   string
	Columns []string
	Tools   []tools.Descriptor
	History []llms.MessageContent
}

// Planner turns a request into a plan. Implementations never fail: a plan they cannot
// build comes from the fallback heuristic instead.
type Planner interface {
	Plan(ctx context.Context, pc PlanContext) plan.Plan
}

// IntentPlanner asks the model for a JSON plan and falls back to keyword heuristics when the
// model is missing, errors or returns anything that does not decode into a valid plan.
type IntentPlanner struct {
	Model    llms.Model
	Prompts  *PromptManager
	Fallback FallbackPlanner
	Logger   *observability.Logger
}

func NewIntentPlanner(model llms.Model, prompts *PromptManager, logger *observability.Logger) *IntentPlanner {
	return &IntentPlanner{
		Model:   model,
		Prompts: prompts,
		Logger:  logger,
	}
}

func (p *IntentPlanner) Plan(ctx context.Context, pc PlanContext) plan.Plan {
	if p.Model == nil {
		return p.fallback(pc, "no model configured")
	}

	systemPrompt, err := p.Prompts.GetPlannerPrompt()
	if err != nil {
		log.Printf("Warning: planner prompt unavailable: %v", err)
	}

	request := buildPlannerContext(pc)
	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
	}
	messages = append(messages, pc.History...)
	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(request)},
	})

	resp, err := p.Model.GenerateContent(ctx, messages, llms.WithTemperature(0.1))
	if err != nil {
		return p.fallback(pc, fmt.Sprintf("model error: %v", err))
	}
	if len(resp.Choices) == 0 {
		return p.fallback(pc, "model returned no choices")
	}

	raw := resp.Choices[0].Content
	p.Logger.LogLLM(pc.Trace.ChatID, pc.Trace.TaskID, request, raw)

	result, err := ParsePlan(raw)
	if err != nil {
		return p.fallback(pc, err.Error())
	}
	if err := checkTools(result, pc.Tools); err != nil {
		return p.fallback(pc, err.Error())
	}

	p.Logger.LogPlan(pc.Trace.ChatID, pc.Trace.TaskID, result)
	return result
}

func (p *IntentPlanner) fallback(pc PlanContext, reason string) plan.Plan {
	p.Logger.LogFallback(pc.Trace.ChatID, pc.Trace.TaskID, reason)
	result := p.Fallback.Plan(pc.Message, pc.Table, pc.Columns)
	p.Logger.LogPlan(pc.Trace.ChatID, pc.Trace.TaskID, result)
	return result
}

// ParsePlan extracts the JSON object from raw model output, tolerating a markdown code fence
// and surrounding prose, and decodes it strictly.
func ParsePlan(raw string) (plan.Plan, error) {
	payload, err := extractJSON(raw)
	if err != nil {
		return plan.Plan{}, fmt.Errorf("%w: %v", plan.ErrInvalidPlan, err)
	}
	return plan.Decode([]byte(payload))
}

func extractJSON(response string) (string, error) {
	response = stripCodeFence(response)
	if json.Valid([]byte(response)) {
		return response, nil
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start != -1 && end > start {
		candidate := response[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	preview := response
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("no JSON object in response: %q", preview)
}

func stripCodeFence(response string) string {
	trimmed := strings.TrimSpace(response)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		// drop a language tag such as json
		if nl := strings.IndexByte(trimmed, '\n'); nl != -1 && !strings.ContainsAny(trimmed[:nl], "{[") {
			trimmed = trimmed[nl+1:]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

// checkTools rejects a plan that uses a tool the planner was not offered.
func checkTools(p plan.Plan, offered []tools.Descriptor) error {
	allowed := make(map[plan.Tool]bool, len(offered))
	for _, d := range offered {
		allowed[d.Name] = true
	}
	for i, s := range p.Steps {
		if !allowed[s.Tool()] {
			return fmt.Errorf("%w: step %d uses unavailable tool %s", plan.ErrInvalidPlan, i+1, s.Tool())
		}
	}
	return nil
}

func buildPlannerContext(pc PlanContext) string {
	var b strings.Builder

	b.WriteString("## Available Tools\n")
	for _, d := range pc.Tools {
		fmt.Fprintf(&b, "- %s: %s", d.Name, d.Description)
		if len(d.Parameters) > 0 {
			if params, err := json.Marshal(d.Parameters); err == nil {
				fmt.Fprintf(&b, " Parameters: %s", params)
			}
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\n## Active Table\n%s\n", pc.Table)

	columns := pc.Columns
	if len(columns) > MaxPromptColumns {
		columns = columns[:MaxPromptColumns]
	}
	if len(columns) == 0 {
		b.WriteString("\n## Columns\n(unknown)\n")
	} else {
		fmt.Fprintf(&b, "\n## Columns (%d of %d)\n%s\n", len(columns), len(pc.Columns), strings.Join(columns, ", "))
	}

	fmt.Fprintf(&b, "\n## Request\n%s\n", pc.Message)
	return b.String()
}
