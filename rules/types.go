// Package rules implements the conditional rule engine: rule storage,
// applicability selection, condition evaluation, and best-effort action
// execution with an append-only execution log.
package rules

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/complyflow/engine/condition"
)

// ActionKind identifies what an action does when its owning rule
// matches. Each kind is dispatched to a registered ActionTarget.
type ActionKind string

const (
	ActionAddFramework        ActionKind = "add_framework"
	ActionRemoveFramework     ActionKind = "remove_framework"
	ActionSetFlag             ActionKind = "set_flag"
	ActionAddTask             ActionKind = "add_task"
	ActionRemoveTask          ActionKind = "remove_task"
	ActionAddControl          ActionKind = "add_control"
	ActionSetTimeline         ActionKind = "set_timeline"
	ActionSendNotification    ActionKind = "send_notification"
	ActionTriggerWorkflow     ActionKind = "trigger_workflow"
	ActionSetApprovalRequired ActionKind = "set_approval_required"
	ActionAdjustScope         ActionKind = "adjust_scope"
	ActionCreateRecommendation ActionKind = "create_recommendation"
)

var knownActionKinds = map[ActionKind]bool{
	ActionAddFramework: true, ActionRemoveFramework: true,
	ActionSetFlag: true, ActionAddTask: true, ActionRemoveTask: true,
	ActionAddControl: true, ActionSetTimeline: true,
	ActionSendNotification: true, ActionTriggerWorkflow: true,
	ActionSetApprovalRequired: true, ActionAdjustScope: true,
	ActionCreateRecommendation: true,
}

// Action is one entry of a rule's action list.
type Action struct {
	Kind       ActionKind     `json:"type"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// EventAny marks a rule as unrestricted: it is considered for every
// trigger event.
const EventAny = "*"

// Rule is a named condition-action pair evaluated when its trigger
// event fires. Rules are immutable once loaded for an evaluation pass.
//
// The guard is authored either as a JSON condition tree (Condition,
// parsed from ConditionJSON at load time) or as a CEL expression
// (Expression, compiled once by the engine). When both are present the
// tree wins.
type Rule struct {
	ID          string
	Code        string
	Name        string
	Description string
	Category    string

	// TriggerEvent restricts evaluation to one event type; empty or
	// EventAny means the rule runs for every event.
	TriggerEvent string

	ConditionJSON string
	Condition     *condition.Node
	Expression    string

	Actions []Action

	// Priority orders evaluation; lower runs first. Ties break on
	// ascending Code.
	Priority    int
	StopOnMatch bool

	// TenantID scopes the rule to one tenant; nil means platform-wide.
	TenantID *string

	EffectiveFrom *time.Time
	EffectiveTo   *time.Time

	Version   int
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Invocation carries the ambient call context threaded explicitly
// through every evaluation: no globals, no framework ambient state.
type Invocation struct {
	TenantID      *string
	ActorID       string
	CorrelationID string
	Now           time.Time
}

// ExecutionStatus classifies the outcome of one rule evaluation.
type ExecutionStatus string

const (
	StatusEvaluated      ExecutionStatus = "Evaluated"
	StatusMatched        ExecutionStatus = "Matched"
	StatusExecuted       ExecutionStatus = "Executed"
	StatusPartialFailure ExecutionStatus = "PartialFailure"
	StatusFailed         ExecutionStatus = "Failed"
)

// ActionResult records the outcome of a single dispatched action.
type ActionResult struct {
	Kind   ActionKind `json:"kind"`
	OK     bool       `json:"ok"`
	Detail string     `json:"detail,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// RuleExecution is one append-only execution log row: a snapshot of a
// single rule evaluation, matched or not.
type RuleExecution struct {
	ID            string
	TenantID      *string
	RuleID        string
	RuleCode      string
	TriggerEvent  string
	CorrelationID string
	ContextJSON   string
	Matched       bool
	ActionResults []ActionResult
	Status        ExecutionStatus
	Error         string
	Duration      time.Duration
	ExecutedAt    time.Time
}

// EvaluationReport aggregates one full evaluation pass over the
// applicable rules of an event.
type EvaluationReport struct {
	TriggerEvent   string
	TotalEvaluated int
	TotalMatched   int
	Matched        []*Rule
	Executions     []*RuleExecution
	Stopped        bool
}

// ValidateRule checks a rule document before it is activated. All
// configuration errors surface here, never at evaluation time.
func ValidateRule(r *Rule) error {
	if r.Code == "" {
		return fmt.Errorf("rule code is required")
	}
	if r.Name == "" {
		return fmt.Errorf("rule %s: name is required", r.Code)
	}
	if r.Priority < 1 || r.Priority > 1000 {
		return fmt.Errorf("rule %s: priority %d outside range 1-1000", r.Code, r.Priority)
	}
	if r.EffectiveFrom != nil && r.EffectiveTo != nil && r.EffectiveTo.Before(*r.EffectiveFrom) {
		return fmt.Errorf("rule %s: effective window ends before it starts", r.Code)
	}

	if r.ConditionJSON != "" {
		node, err := condition.Parse([]byte(r.ConditionJSON))
		if err != nil {
			return fmt.Errorf("rule %s: %w", r.Code, err)
		}
		r.Condition = node
	}

	for i, a := range r.Actions {
		if !knownActionKinds[a.Kind] {
			return fmt.Errorf("rule %s: action %d has unknown type %q", r.Code, i, a.Kind)
		}
	}

	return nil
}

// ParseActions decodes a JSON action list document.
func ParseActions(data []byte) ([]Action, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var actions []Action
	if err := json.Unmarshal(data, &actions); err != nil {
		return nil, fmt.Errorf("invalid actions JSON: %w", err)
	}
	return actions, nil
}

// EncodeActions renders an action list back to its JSON document form
// for persistence.
func EncodeActions(actions []Action) (string, error) {
	if len(actions) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(actions)
	if err != nil {
		return "", fmt.Errorf("failed to encode actions: %w", err)
	}
	return string(data), nil
}
