package rules

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Command is the narrow payload handed to an action-target
// collaborator. Targets must be idempotent: delivery is at-least-once.
type Command struct {
	Kind          ActionKind
	Parameters    map[string]any
	TenantID      *string
	RuleCode      string
	CorrelationID string
	Context       map[string]any
}

// ActionTarget is implemented by the external collaborators that own
// each action type (framework catalog, task manager, notifier,
// workflow engine, recommendation store).
type ActionTarget interface {
	Apply(ctx context.Context, cmd Command) error
}

// ActionTargetFunc adapts a function to ActionTarget.
type ActionTargetFunc func(ctx context.Context, cmd Command) error

func (f ActionTargetFunc) Apply(ctx context.Context, cmd Command) error {
	return f(ctx, cmd)
}

// Executor sequences a matched rule's action list across the
// registered targets and records per-action outcomes. It only
// dispatches and records; the targets do the work.
type Executor struct {
	targets map[ActionKind]ActionTarget
	timeout time.Duration
	mu      sync.RWMutex
}

// NewExecutor creates an executor. timeout bounds each individual
// action dispatch; zero means no per-action deadline.
func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{
		targets: make(map[ActionKind]ActionTarget),
		timeout: timeout,
	}
}

// Register binds an action kind to its owning collaborator. Later
// registrations replace earlier ones.
func (e *Executor) Register(kind ActionKind, target ActionTarget) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.targets[kind] = target
}

func (e *Executor) target(kind ActionKind) (ActionTarget, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.targets[kind]
	return t, ok
}

// Execute dispatches every action of a matched rule, best-effort: a
// failing action is recorded and its siblings still run. The returned
// status is Executed when all actions succeeded, Failed when all
// failed, and PartialFailure for a mix. A rule with no actions yields
// Matched.
func (e *Executor) Execute(ctx context.Context, inv Invocation, rule *Rule, evalCtx map[string]any) ([]ActionResult, ExecutionStatus) {
	if len(rule.Actions) == 0 {
		return nil, StatusMatched
	}

	results := make([]ActionResult, 0, len(rule.Actions))
	failures := 0

	for _, action := range rule.Actions {
		result := e.applyOne(ctx, inv, rule, action, evalCtx)
		if !result.OK {
			failures++
		}
		results = append(results, result)
	}

	switch failures {
	case 0:
		return results, StatusExecuted
	case len(results):
		return results, StatusFailed
	default:
		return results, StatusPartialFailure
	}
}

func (e *Executor) applyOne(ctx context.Context, inv Invocation, rule *Rule, action Action, evalCtx map[string]any) ActionResult {
	target, ok := e.target(action.Kind)
	if !ok {
		// An unbound action kind is recorded, not executed. This keeps
		// newly authored rules safe to activate before every
		// collaborator is wired.
		return ActionResult{
			Kind:   action.Kind,
			OK:     true,
			Detail: fmt.Sprintf("action type %s recorded but no target registered", action.Kind),
		}
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	cmd := Command{
		Kind:          action.Kind,
		Parameters:    action.Parameters,
		TenantID:      inv.TenantID,
		RuleCode:      rule.Code,
		CorrelationID: inv.CorrelationID,
		Context:       evalCtx,
	}

	if err := target.Apply(ctx, cmd); err != nil {
		detail := "action failed"
		if errors.Is(err, context.DeadlineExceeded) {
			detail = "action target exceeded its timeout"
		}
		return ActionResult{Kind: action.Kind, OK: false, Detail: detail, Error: err.Error()}
	}

	return ActionResult{Kind: action.Kind, OK: true}
}
