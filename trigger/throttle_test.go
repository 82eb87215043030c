package trigger

import (
	"sync"
	"testing"
	"time"
)

func TestThrottleCooldownWindow(t *testing.T) {
	th := NewThrottle()
	trg := &EventTrigger{ID: "t1", Code: "COOLDOWN", CooldownSeconds: 3600}
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if d := th.Admit(trg, "entity-1", start); !d.Admitted {
		t.Fatalf("first firing should be admitted, got %q", d.Reason)
	}
	if d := th.Admit(trg, "entity-1", start.Add(1800*time.Second)); d.Admitted {
		t.Error("firing at t=1800 inside a 3600s cooldown should be rejected")
	}
	if d := th.Admit(trg, "entity-1", start.Add(3700*time.Second)); !d.Admitted {
		t.Errorf("firing at t=3700 after the cooldown should be admitted, got %q", d.Reason)
	}
}

func TestThrottleCooldownPerEntity(t *testing.T) {
	th := NewThrottle()
	trg := &EventTrigger{ID: "t1", CooldownSeconds: 3600}
	now := time.Now()

	if d := th.Admit(trg, "entity-1", now); !d.Admitted {
		t.Fatal("entity-1 first firing should be admitted")
	}
	if d := th.Admit(trg, "entity-2", now); !d.Admitted {
		t.Error("entity-2 must have its own cooldown window")
	}
}

func TestThrottleDailyCap(t *testing.T) {
	th := NewThrottle()
	trg := &EventTrigger{ID: "t1", MaxDailyExecutions: 3}
	day := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if d := th.Admit(trg, "e", day.Add(time.Duration(i)*time.Hour)); !d.Admitted {
			t.Fatalf("firing %d within the cap should be admitted", i+1)
		}
	}
	if d := th.Admit(trg, "e", day.Add(4*time.Hour)); d.Admitted {
		t.Error("fourth firing should exceed the daily cap")
	}
	if d := th.Admit(trg, "e", day.Add(24*time.Hour)); !d.Admitted {
		t.Error("the counter should reset on the next UTC day")
	}
}

func TestThrottleConcurrentSameEntity(t *testing.T) {
	th := NewThrottle()
	trg := &EventTrigger{ID: "t1", CooldownSeconds: 3600}
	now := time.Now()

	const attempts = 50
	admitted := make(chan bool, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted <- th.Admit(trg, "entity-1", now).Admitted
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for ok := range admitted {
		if ok {
			count++
		}
	}
	if count != 1 {
		t.Errorf("exactly one concurrent firing should be admitted, got %d", count)
	}
}
