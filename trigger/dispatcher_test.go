package trigger

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func newTestDispatcher(t *testing.T, invoker AgentInvoker) (*Dispatcher, *InMemoryTriggerStore, *InMemoryExecutionLog) {
	t.Helper()
	store := NewInMemoryTriggerStore()
	log := NewInMemoryExecutionLog()
	d := NewDispatcher(store, log, invoker, DefaultDispatcherConfig(), nil)
	return d, store, log
}

func drain(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestDispatcherFiresAndCompletes(t *testing.T) {
	var invoked atomic.Int32
	invoker := AgentInvokerFunc(func(ctx context.Context, inv AgentInvocation) error {
		invoked.Add(1)
		return nil
	})
	d, store, log := newTestDispatcher(t, invoker)

	trg := &EventTrigger{
		ID: "t1", Code: "ONBOARD", EventType: "company.created",
		AgentName: "onboarding", AgentAction: "start", Active: true,
	}
	if err := store.Add(trg); err != nil {
		t.Fatalf("Add: %v", err)
	}

	err := d.Ingest(context.Background(), Event{
		Name: "company.created", EntityType: "company", EntityID: "c1",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	drain(t, d)

	if invoked.Load() != 1 {
		t.Errorf("expected one agent invocation, got %d", invoked.Load())
	}
	rows, _ := log.Recent("t1", 10)
	if len(rows) != 1 || rows[0].Status != StatusCompleted {
		t.Fatalf("expected one Completed execution, got %+v", rows)
	}
}

func TestDispatcherGuardCondition(t *testing.T) {
	var invoked atomic.Int32
	invoker := AgentInvokerFunc(func(ctx context.Context, inv AgentInvocation) error {
		invoked.Add(1)
		return nil
	})
	d, store, log := newTestDispatcher(t, invoker)

	trg := &EventTrigger{
		ID: "t1", Code: "GUARDED", EventType: "task.completed",
		AgentName: "progress", AgentAction: "recalculate", Active: true,
		ConditionJSON: `{"field": "task.critical", "op": "equals", "value": true}`,
	}
	if err := trg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := store.Add(trg); err != nil {
		t.Fatalf("Add: %v", err)
	}

	d.Ingest(context.Background(), Event{
		Name: "task.completed", EntityID: "e1",
		Payload: map[string]any{"task": map[string]any{"critical": false}},
	})
	drain(t, d)

	if invoked.Load() != 0 {
		t.Error("agent must not be invoked when the guard condition rejects")
	}
	rows, _ := log.Recent("t1", 10)
	if len(rows) != 1 || rows[0].Status != StatusConditionNotMet {
		t.Fatalf("expected a ConditionNotMet row, got %+v", rows)
	}
}

func TestDispatcherThrottledFiringIsSkipped(t *testing.T) {
	invoker := AgentInvokerFunc(func(ctx context.Context, inv AgentInvocation) error {
		return nil
	})
	d, store, log := newTestDispatcher(t, invoker)

	trg := &EventTrigger{
		ID: "t1", Code: "CAPPED", EventType: "evidence.uploaded",
		AgentName: "review", AgentAction: "queue", Active: true,
		MaxDailyExecutions: 1,
	}
	if err := store.Add(trg); err != nil {
		t.Fatalf("Add: %v", err)
	}

	for i := 0; i < 2; i++ {
		d.Ingest(context.Background(), Event{
			Name: "evidence.uploaded", EntityID: "e1",
		})
		// Serialize the two events so the second observes the first
		// firing's counter.
		drainOnce(t, d)
	}

	rows, _ := log.Recent("t1", 10)
	if len(rows) != 2 {
		t.Fatalf("expected 2 execution rows, got %d", len(rows))
	}
	if rows[0].Status != StatusSkipped || rows[1].Status != StatusCompleted {
		t.Errorf("expected newest Skipped over Completed, got %s, %s", rows[0].Status, rows[1].Status)
	}
	if rows[0].Detail == "" {
		t.Error("throttle rejection should record its reason")
	}
}

// drainOnce waits for in-flight firings without closing the dispatcher.
func drainOnce(t *testing.T, d *Dispatcher) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for firings")
	}
}

func TestDispatcherAgentFailureRecorded(t *testing.T) {
	invoker := AgentInvokerFunc(func(ctx context.Context, inv AgentInvocation) error {
		return errors.New("agent unreachable")
	})
	d, store, log := newTestDispatcher(t, invoker)

	trg := &EventTrigger{
		ID: "t1", Code: "FAILING", EventType: "e",
		AgentName: "a", AgentAction: "b", Active: true,
	}
	store.Add(trg)

	d.Ingest(context.Background(), Event{Name: "e", EntityID: "x"})
	drain(t, d)

	rows, _ := log.Recent("t1", 10)
	if len(rows) != 1 || rows[0].Status != StatusFailed || rows[0].Error == "" {
		t.Fatalf("expected a Failed row with the error recorded, got %+v", rows)
	}
}

func TestDispatcherNoAgentBound(t *testing.T) {
	d, store, log := newTestDispatcher(t, nil)

	trg := &EventTrigger{ID: "t1", Code: "PLAIN", EventType: "e", Active: true}
	store.Add(trg)

	d.Ingest(context.Background(), Event{Name: "e", EntityID: "x"})
	drain(t, d)

	rows, _ := log.Recent("t1", 10)
	if len(rows) != 1 || rows[0].Status != StatusTriggered {
		t.Fatalf("expected a Triggered row, got %+v", rows)
	}
}

func TestDispatcherIngestNonBlocking(t *testing.T) {
	release := make(chan struct{})
	invoker := AgentInvokerFunc(func(ctx context.Context, inv AgentInvocation) error {
		<-release
		return nil
	})
	d, store, _ := newTestDispatcher(t, invoker)

	trg := &EventTrigger{ID: "t1", Code: "SLOW", EventType: "e", AgentName: "a", Active: true}
	store.Add(trg)

	start := time.Now()
	if err := d.Ingest(context.Background(), Event{Name: "e", EntityID: "x"}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("ingest blocked on agent I/O for %s", elapsed)
	}

	close(release)
	drain(t, d)
}

func TestDispatcherDelayedFiringRecordsSchedule(t *testing.T) {
	d, store, log := newTestDispatcher(t, nil)

	trg := &EventTrigger{
		ID: "t1", Code: "DELAYED", EventType: "e", Active: true,
		DelaySeconds: 1,
	}
	store.Add(trg)

	before := time.Now()
	if err := d.Ingest(context.Background(), Event{Name: "e", EntityID: "x"}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	var rows []*TriggerExecution
	for time.Now().Before(deadline) {
		rows, _ = log.Recent("t1", 10)
		if len(rows) > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 execution row, got %d", len(rows))
	}
	if rows[0].ScheduledFor == nil {
		t.Fatal("delayed firing must record its scheduled time")
	}
	want := before.Add(time.Second)
	if diff := rows[0].ScheduledFor.Sub(want); diff < -time.Second || diff > time.Second {
		t.Errorf("ScheduledFor = %v, want about %v", rows[0].ScheduledFor, want)
	}
	if rows[0].ExecutedAt.Before(*rows[0].ScheduledFor) {
		t.Errorf("firing executed at %v, before its schedule %v",
			rows[0].ExecutedAt, rows[0].ScheduledFor)
	}
	drain(t, d)
}

func TestDispatcherShutdownRejectsNewEvents(t *testing.T) {
	d, store, _ := newTestDispatcher(t, nil)
	store.Add(&EventTrigger{ID: "t1", Code: "C", EventType: "e", Active: true})

	drain(t, d)

	if err := d.Ingest(context.Background(), Event{Name: "e", EntityID: "x"}); err == nil {
		t.Error("a shut-down dispatcher must reject new events")
	}
}

func TestTriggerValidate(t *testing.T) {
	tests := []struct {
		name    string
		trigger EventTrigger
		wantErr bool
	}{
		{"valid", EventTrigger{Code: "C", EventType: "e"}, false},
		{"missing code", EventTrigger{EventType: "e"}, true},
		{"missing event type", EventTrigger{Code: "C"}, true},
		{"negative cooldown", EventTrigger{Code: "C", EventType: "e", CooldownSeconds: -1}, true},
		{"malformed condition", EventTrigger{Code: "C", EventType: "e", ConditionJSON: `{"nope`}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.trigger.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
