package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"
)

// celCostLimit bounds expression evaluation cost so a pathological
// guard cannot exhaust the evaluator.
const celCostLimit = 1_000_000

// Engine runs the full evaluation pass for an event: select the
// applicable rules, evaluate each guard, dispatch matched actions, and
// append one execution row per evaluated rule.
//
// Thread-safe: guards are compiled under the write lock, evaluation
// takes the read lock.
type Engine struct {
	env      *cel.Env
	store    RuleStore
	log      ExecutionLog
	executor *Executor
	cache    RulesCache
	tieBreak TieBreak
	logger   *slog.Logger
	programs map[string]cel.Program
	mu       sync.RWMutex
}

// NewEngine creates an engine with the default CEL environment, which
// exposes the evaluation context as a single dynamic map named ctx.
func NewEngine(store RuleStore, execLog ExecutionLog, executor *Executor, logger *slog.Logger) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("ctx", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return NewEngineWithEnv(env, store, execLog, executor, logger)
}

// NewEngineWithEnv creates an engine with a custom CEL environment.
// Multi-tenant deployments use this to expose tenant-specific schema
// variables to guard expressions.
func NewEngineWithEnv(env *cel.Env, store RuleStore, execLog ExecutionLog, executor *Executor, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	en := &Engine{
		env:      env,
		store:    store,
		log:      execLog,
		executor: executor,
		cache:    NewInMemoryRulesCache(DefaultCacheConfig()),
		tieBreak: TenantFirst,
		logger:   logger,
		programs: make(map[string]cel.Program),
	}

	if err := en.CompileAllRules(); err != nil {
		return nil, fmt.Errorf("failed to compile rules: %w", err)
	}

	return en, nil
}

// SetTieBreak changes the platform/tenant precedence used when two
// applicable rules share priority and code.
func (en *Engine) SetTieBreak(tb TieBreak) {
	en.mu.Lock()
	defer en.mu.Unlock()
	en.tieBreak = tb
}

// CompileRule compiles a rule's CEL guard expression and caches the
// program. Rules guarded by a condition tree alone have nothing to
// compile and are skipped.
func (en *Engine) CompileRule(ruleID, expression string) error {
	if expression == "" {
		return nil
	}

	ast, issues := en.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := en.env.Program(ast,
		cel.EvalOptions(cel.OptTrackState),
		cel.CostLimit(celCostLimit),
	)
	if err != nil {
		return fmt.Errorf("program creation error: %w", err)
	}

	en.mu.Lock()
	en.programs[ruleID] = prog
	en.mu.Unlock()

	return nil
}

// CompileAllRules validates and compiles every active rule from the
// store and primes the cache.
func (en *Engine) CompileAllRules() error {
	rules, err := en.store.ListActive()
	if err != nil {
		return err
	}

	for _, rule := range rules {
		if err := ValidateRule(rule); err != nil {
			return fmt.Errorf("failed to load rule %s: %w", rule.ID, err)
		}
		if err := en.CompileRule(rule.ID, rule.Expression); err != nil {
			return fmt.Errorf("failed to compile rule %s: %w", rule.ID, err)
		}
	}

	en.cache.Set(rules)
	return nil
}

// AddRule validates, compiles, and stores a new rule. If persistence
// fails the compiled program is removed again so the engine never holds
// a program for a rule the store does not know.
func (en *Engine) AddRule(r *Rule) error {
	if _, err := en.store.Get(r.ID); err == nil {
		return fmt.Errorf("rule with ID %s already exists", r.ID)
	}

	if err := ValidateRule(r); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}
	if err := en.CompileRule(r.ID, r.Expression); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}

	if err := en.store.Add(r); err != nil {
		en.mu.Lock()
		delete(en.programs, r.ID)
		en.mu.Unlock()
		return err
	}

	en.cache.Invalidate()
	return nil
}

// UpdateRule validates the new document, recompiles its guard, and
// persists it.
func (en *Engine) UpdateRule(r *Rule) error {
	if err := ValidateRule(r); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}
	if err := en.CompileRule(r.ID, r.Expression); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}

	if err := en.store.Update(r); err != nil {
		return err
	}

	en.cache.Invalidate()
	return nil
}

// DeleteRule removes a rule from the store and drops its compiled
// program.
func (en *Engine) DeleteRule(ruleID string) error {
	if err := en.store.Delete(ruleID); err != nil {
		return err
	}

	en.mu.Lock()
	delete(en.programs, ruleID)
	en.mu.Unlock()

	en.cache.Invalidate()
	return nil
}

// activeRules returns the active rules list, from cache when warm.
func (en *Engine) activeRules() ([]*Rule, error) {
	if rules := en.cache.Get(); rules != nil {
		return rules, nil
	}

	rules, err := en.store.ListActive()
	if err != nil {
		return nil, err
	}
	en.cache.Set(rules)
	return rules, nil
}

// ProcessEvent runs one full evaluation pass: every applicable rule is
// evaluated in order, matched rules dispatch their actions, and every
// evaluation appends an execution row. A guard that errors counts as
// not matched; the error is recorded, never propagated to siblings.
// A matched rule with StopOnMatch set suppresses the remaining rules.
func (en *Engine) ProcessEvent(ctx context.Context, inv Invocation, triggerEvent string, evalCtx map[string]any) (*EvaluationReport, error) {
	all, err := en.activeRules()
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	now := inv.Now
	if now.IsZero() {
		now = time.Now()
	}

	applicable := ApplicableRules(all, triggerEvent, inv.TenantID, now, en.tieBreak)

	report := &EvaluationReport{TriggerEvent: triggerEvent}
	contextJSON := encodeContext(evalCtx)

	for _, rule := range applicable {
		start := time.Now()
		matched, evalErr := en.evaluateGuard(rule, evalCtx)

		exec := &RuleExecution{
			ID:            uuid.New().String(),
			TenantID:      inv.TenantID,
			RuleID:        rule.ID,
			RuleCode:      rule.Code,
			TriggerEvent:  triggerEvent,
			CorrelationID: inv.CorrelationID,
			ContextJSON:   contextJSON,
			Matched:       matched,
			Status:        StatusEvaluated,
			ExecutedAt:    start,
		}
		if evalErr != nil {
			exec.Error = evalErr.Error()
			en.logger.Warn("rule guard evaluation failed",
				"rule_code", rule.Code,
				"trigger_event", triggerEvent,
				"error", evalErr)
		}

		report.TotalEvaluated++

		if matched {
			report.TotalMatched++
			report.Matched = append(report.Matched, rule)

			results, status := en.executor.Execute(ctx, inv, rule, evalCtx)
			exec.ActionResults = results
			exec.Status = status

			if status == StatusPartialFailure || status == StatusFailed {
				en.logger.Warn("rule action dispatch incomplete",
					"rule_code", rule.Code,
					"status", string(status))
			}
		}

		exec.Duration = time.Since(start)
		if err := en.log.Append(exec); err != nil {
			en.logger.Error("failed to append execution log", "rule_code", rule.Code, "error", err)
		}
		report.Executions = append(report.Executions, exec)

		if matched && rule.StopOnMatch {
			report.Stopped = true
			break
		}
	}

	return report, nil
}

// encodeContext snapshots the evaluation context for the execution
// log. Encoding failures degrade to an empty object rather than
// blocking the pass.
func encodeContext(evalCtx map[string]any) string {
	if len(evalCtx) == 0 {
		return "{}"
	}
	data, err := json.Marshal(evalCtx)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// evaluateGuard applies a rule's guard to the evaluation context. The
// condition tree takes precedence; a compiled CEL expression is the
// fallback form; a rule with neither matches unconditionally.
func (en *Engine) evaluateGuard(rule *Rule, evalCtx map[string]any) (bool, error) {
	if rule.Condition != nil {
		matched, evalErr := rule.Condition.Check(evalCtx)
		if evalErr != nil {
			return false, evalErr
		}
		return matched, nil
	}

	if rule.Expression != "" {
		en.mu.RLock()
		prog, exists := en.programs[rule.ID]
		en.mu.RUnlock()

		if !exists {
			if err := en.CompileRule(rule.ID, rule.Expression); err != nil {
				return false, err
			}
			en.mu.RLock()
			prog = en.programs[rule.ID]
			en.mu.RUnlock()
		}

		out, _, err := prog.Eval(map[string]any{"ctx": evalCtx})
		if err != nil {
			return false, err
		}
		matched, ok := out.Value().(bool)
		if !ok {
			// Non-boolean result is treated as no match.
			return false, nil
		}
		return matched, nil
	}

	return true, nil
}
