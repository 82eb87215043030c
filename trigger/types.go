// Package trigger routes domain events to registered event triggers
// under cooldown, daily-cap, and delay constraints, invoking target
// agent actions and recording every firing.
package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/complyflow/engine/condition"
)

// EventTrigger binds an event type to an agent action, guarded by an
// optional condition tree and throttled per entity.
type EventTrigger struct {
	ID          string
	Code        string
	Name        string
	Description string

	// EventType names the domain event this trigger listens for.
	EventType string

	// AgentName and AgentAction identify the downstream agent call
	// made when the trigger fires.
	AgentName   string
	AgentAction string

	// ConditionJSON is an optional guard evaluated against the event
	// payload; empty means fire unconditionally.
	ConditionJSON string
	Condition     *condition.Node

	// CooldownSeconds is the minimum interval between successive
	// firings for one entity; 0 disables the cooldown.
	CooldownSeconds int

	// MaxDailyExecutions caps firings per (trigger, entity) per UTC
	// day; 0 means unlimited.
	MaxDailyExecutions int

	// DelaySeconds postpones firing after the event arrives.
	DelaySeconds int

	TenantID  *string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks a trigger document before activation.
func (t *EventTrigger) Validate() error {
	if t.Code == "" {
		return fmt.Errorf("trigger code is required")
	}
	if t.EventType == "" {
		return fmt.Errorf("trigger %s: event type is required", t.Code)
	}
	if t.CooldownSeconds < 0 || t.MaxDailyExecutions < 0 || t.DelaySeconds < 0 {
		return fmt.Errorf("trigger %s: throttle values must be non-negative", t.Code)
	}
	if t.ConditionJSON != "" {
		node, err := condition.Parse([]byte(t.ConditionJSON))
		if err != nil {
			return fmt.Errorf("trigger %s: %w", t.Code, err)
		}
		t.Condition = node
	}
	return nil
}

// ExecutionStatus classifies the outcome of one trigger firing attempt.
type ExecutionStatus string

const (
	// StatusTriggered: guards passed and the firing was recorded, but
	// no agent is bound to the trigger.
	StatusTriggered ExecutionStatus = "Triggered"
	// StatusConditionNotMet: the guard condition rejected the payload.
	StatusConditionNotMet ExecutionStatus = "ConditionNotMet"
	// StatusAgentInvoked: the agent call was launched without waiting
	// for its outcome.
	StatusAgentInvoked ExecutionStatus = "AgentInvoked"
	// StatusCompleted: the agent call returned success.
	StatusCompleted ExecutionStatus = "Completed"
	// StatusFailed: the agent call returned an error or timed out.
	StatusFailed ExecutionStatus = "Failed"
	// StatusSkipped: throttled (cooldown or daily cap) or inactive.
	StatusSkipped ExecutionStatus = "Skipped"
)

// TriggerExecution is one append-only firing record keyed by
// (trigger, entity, timestamp).
type TriggerExecution struct {
	ID           string
	TriggerID    string
	TriggerCode  string
	TenantID     *string
	EntityType   string
	EntityID     string
	EventType    string
	PayloadJSON  string
	Status       ExecutionStatus
	Detail       string
	Error        string
	ScheduledFor *time.Time
	ExecutedAt   time.Time
}

// Event is one domain event offered to the dispatcher. Delivery is
// at-least-once; consumers must tolerate duplicates.
type Event struct {
	Name       string
	TenantID   *string
	EntityType string
	EntityID   string
	Payload    map[string]any
	OccurredAt time.Time
}

// AgentInvocation is the payload handed to the downstream agent when a
// trigger fires.
type AgentInvocation struct {
	AgentName   string
	AgentAction string
	TriggerCode string
	TenantID    *string
	EntityType  string
	EntityID    string
	Payload     map[string]any
}

// AgentInvoker performs the downstream agent call. Implementations
// must be idempotent: a firing may be delivered more than once.
type AgentInvoker interface {
	Invoke(ctx context.Context, inv AgentInvocation) error
}

// AgentInvokerFunc adapts a function to AgentInvoker.
type AgentInvokerFunc func(ctx context.Context, inv AgentInvocation) error

func (f AgentInvokerFunc) Invoke(ctx context.Context, inv AgentInvocation) error {
	return f(ctx, inv)
}
