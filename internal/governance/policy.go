package governance

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request contains the context of a tool call to be evaluated.
type Request struct {
	Tool      string
	Arguments string
	QueryID   string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
	// Match is the label of the rule that denied the request, if any.
	Match string
}

// PolicyEngine evaluates tool calls against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

type denyRule struct {
	re    *regexp.Regexp
	label string
}

// DefaultPolicyEngine denies whole tools by name and arguments by pattern.
type DefaultPolicyEngine struct {
	DeniedTools map[string]bool
	rules       []denyRule
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedTools: make(map[string]bool),
	}
}

func (e *DefaultPolicyEngine) DenyTool(name string) {
	e.DeniedTools[name] = true
}

// DenyArguments denies any request whose arguments match pattern.
func (e *DefaultPolicyEngine) DenyArguments(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.rules = append(e.rules, denyRule{re: re, label: pattern})
	return nil
}

// DenySubstrings denies arguments containing any of tokens, case-insensitively.
func (e *DefaultPolicyEngine) DenySubstrings(tokens ...string) {
	for _, tok := range tokens {
		e.rules = append(e.rules, denyRule{
			re:    regexp.MustCompile(`(?i)` + regexp.QuoteMeta(tok)),
			label: strings.ToLower(tok),
		})
	}
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if e.DeniedTools[req.Tool] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Tool '%s' is restricted by system policy", req.Tool),
			Match:  req.Tool,
		}, nil
	}

	for _, r := range e.rules {
		if r.re.MatchString(req.Arguments) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("Arguments match restricted pattern: %s", r.label),
				Match:  r.label,
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}
