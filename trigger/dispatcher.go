package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DispatcherConfig tunes firing behavior.
type DispatcherConfig struct {
	// AgentTimeout bounds each agent invocation; 0 means no deadline.
	AgentTimeout time.Duration

	// AwaitAgent makes the firing goroutine wait for the agent call
	// and record Completed or Failed. When false the call is launched
	// and the firing is recorded as AgentInvoked.
	AwaitAgent bool
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		AgentTimeout: 30 * time.Second,
		AwaitAgent:   true,
	}
}

// Dispatcher routes incoming events to their triggers. Ingest never
// blocks on agent I/O: each firing runs on its own goroutine, and
// firings for one (trigger, entity) pair are serialized through a
// keyed mutex so concurrent events cannot double-fire inside a
// cooldown window.
type Dispatcher struct {
	store    TriggerStore
	log      ExecutionLog
	invoker  AgentInvoker
	throttle *Throttle
	locks    *keyedMutex
	config   DispatcherConfig
	logger   *slog.Logger

	wg       sync.WaitGroup
	timersMu sync.Mutex
	timers   map[*time.Timer]struct{}
	closed   bool
}

// NewDispatcher creates a dispatcher. invoker may be nil when no agent
// backend is wired; firings are then recorded as Triggered.
func NewDispatcher(store TriggerStore, execLog ExecutionLog, invoker AgentInvoker, config DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:    store,
		log:      execLog,
		invoker:  invoker,
		throttle: NewThrottle(),
		locks:    newKeyedMutex(),
		config:   config,
		logger:   logger,
		timers:   make(map[*time.Timer]struct{}),
	}
}

// Ingest offers one event to every matching trigger and returns
// immediately. Firing, including any configured delay, happens in the
// background.
func (d *Dispatcher) Ingest(ctx context.Context, ev Event) error {
	if ev.Name == "" {
		return fmt.Errorf("event name is required")
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	triggers, err := d.store.ListActiveForEvent(ev.Name, ev.TenantID)
	if err != nil {
		return fmt.Errorf("failed to list triggers for %s: %w", ev.Name, err)
	}

	d.timersMu.Lock()
	if d.closed {
		d.timersMu.Unlock()
		return fmt.Errorf("dispatcher is shut down")
	}
	for _, t := range triggers {
		t := t
		if t.DelaySeconds > 0 {
			delay := time.Duration(t.DelaySeconds) * time.Second
			scheduledFor := time.Now().Add(delay)
			d.wg.Add(1)
			var timer *time.Timer
			timer = time.AfterFunc(delay, func() {
				defer d.wg.Done()
				d.removeTimer(timer)
				d.fire(t, ev, &scheduledFor)
			})
			d.timers[timer] = struct{}{}
		} else {
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				d.fire(t, ev, nil)
			}()
		}
	}
	d.timersMu.Unlock()

	return nil
}

func (d *Dispatcher) removeTimer(timer *time.Timer) {
	d.timersMu.Lock()
	delete(d.timers, timer)
	d.timersMu.Unlock()
}

// Shutdown stops accepting events, cancels pending delayed firings,
// and waits for in-flight firings to finish or ctx to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.timersMu.Lock()
	d.closed = true
	for timer := range d.timers {
		if timer.Stop() {
			d.wg.Done()
		}
	}
	d.timers = make(map[*time.Timer]struct{})
	d.timersMu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown interrupted: %w", ctx.Err())
	}
}

// fire runs the guard chain for one (trigger, entity) pair and records
// exactly one execution row for the attempt. Guards are checked in
// order: active, condition, then throttle (daily cap before cooldown).
// scheduledFor is set for delayed firings and nil otherwise.
func (d *Dispatcher) fire(t *EventTrigger, ev Event, scheduledFor *time.Time) {
	unlock := d.locks.Lock(pairKey(t.ID, ev.EntityID))
	defer unlock()

	now := time.Now()
	exec := &TriggerExecution{
		ID:           uuid.New().String(),
		TriggerID:    t.ID,
		TriggerCode:  t.Code,
		TenantID:     ev.TenantID,
		EntityType:   ev.EntityType,
		EntityID:     ev.EntityID,
		EventType:    ev.Name,
		PayloadJSON:  encodePayload(ev.Payload),
		ScheduledFor: scheduledFor,
		ExecutedAt:   now,
	}

	if !t.Active {
		exec.Status = StatusSkipped
		exec.Detail = "trigger inactive"
		d.append(exec)
		return
	}

	if t.Condition != nil {
		matched, evalErr := t.Condition.Check(ev.Payload)
		if evalErr != nil {
			// Guard failure fails closed; the firing is suppressed
			// and the cause recorded.
			exec.Status = StatusConditionNotMet
			exec.Error = evalErr.Error()
			d.append(exec)
			return
		}
		if !matched {
			exec.Status = StatusConditionNotMet
			d.append(exec)
			return
		}
	}

	decision := d.throttle.Admit(t, ev.EntityID, now)
	if !decision.Admitted {
		exec.Status = StatusSkipped
		exec.Detail = decision.Reason
		d.append(exec)
		return
	}

	if d.invoker == nil || t.AgentName == "" {
		exec.Status = StatusTriggered
		d.append(exec)
		return
	}

	inv := AgentInvocation{
		AgentName:   t.AgentName,
		AgentAction: t.AgentAction,
		TriggerCode: t.Code,
		TenantID:    ev.TenantID,
		EntityType:  ev.EntityType,
		EntityID:    ev.EntityID,
		Payload:     ev.Payload,
	}

	if !d.config.AwaitAgent {
		exec.Status = StatusAgentInvoked
		d.append(exec)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.invoke(inv); err != nil {
				d.logger.Error("agent invocation failed",
					"trigger_code", t.Code, "entity_id", ev.EntityID, "error", err)
			}
		}()
		return
	}

	if err := d.invoke(inv); err != nil {
		exec.Status = StatusFailed
		exec.Error = err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			exec.Detail = "agent exceeded its timeout"
		}
	} else {
		exec.Status = StatusCompleted
	}
	d.append(exec)
}

func (d *Dispatcher) invoke(inv AgentInvocation) error {
	ctx := context.Background()
	if d.config.AgentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.AgentTimeout)
		defer cancel()
	}
	return d.invoker.Invoke(ctx, inv)
}

func (d *Dispatcher) append(exec *TriggerExecution) {
	if err := d.log.Append(exec); err != nil {
		d.logger.Error("failed to append trigger execution",
			"trigger_code", exec.TriggerCode, "error", err)
	}
}

func encodePayload(payload map[string]any) string {
	if len(payload) == 0 {
		return "{}"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(data)
}
