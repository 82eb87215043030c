package trigger

import (
	"fmt"
	"sync"
	"time"
)

// Decision is a throttle verdict. Admitted firings are already counted
// when the decision returns: admission and increment are one atomic
// step, so concurrent events on the same entity cannot both pass.
type Decision struct {
	Admitted bool
	Reason   string
}

// Throttle enforces cooldown and daily-cap limits per (trigger,
// entity). Counters bucket by UTC day.
type Throttle struct {
	lastFired map[string]time.Time
	daily     map[string]int
	mu        sync.Mutex
}

func NewThrottle() *Throttle {
	return &Throttle{
		lastFired: make(map[string]time.Time),
		daily:     make(map[string]int),
	}
}

func pairKey(triggerID, entityID string) string {
	return triggerID + "|" + entityID
}

func dayKey(triggerID, entityID string, now time.Time) string {
	return triggerID + "|" + entityID + "|" + now.UTC().Format("2006-01-02")
}

// Admit performs the atomic read-check-increment for one firing
// attempt. Checked in order: daily cap, then cooldown. On admission
// the daily counter is incremented and the last-fired time recorded
// before the lock is released.
func (th *Throttle) Admit(t *EventTrigger, entityID string, now time.Time) Decision {
	th.mu.Lock()
	defer th.mu.Unlock()

	if t.MaxDailyExecutions > 0 {
		key := dayKey(t.ID, entityID, now)
		if th.daily[key] >= t.MaxDailyExecutions {
			return Decision{Reason: fmt.Sprintf("daily cap of %d reached", t.MaxDailyExecutions)}
		}
	}

	if t.CooldownSeconds > 0 {
		last, fired := th.lastFired[pairKey(t.ID, entityID)]
		if fired {
			elapsed := now.Sub(last)
			cooldown := time.Duration(t.CooldownSeconds) * time.Second
			if elapsed < cooldown {
				return Decision{Reason: fmt.Sprintf("cooldown active for another %s", (cooldown - elapsed).Round(time.Second))}
			}
		}
	}

	if t.MaxDailyExecutions > 0 {
		th.daily[dayKey(t.ID, entityID, now)]++
	}
	th.lastFired[pairKey(t.ID, entityID)] = now

	return Decision{Admitted: true}
}

// keyedMutex serializes work per string key. Locks are created on
// first use and retained; the key space is bounded by the number of
// (trigger, entity) pairs seen.
type keyedMutex struct {
	locks map[string]*sync.Mutex
	mu    sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock function.
func (km *keyedMutex) Lock(key string) func() {
	km.mu.Lock()
	l, ok := km.locks[key]
	if !ok {
		l = &sync.Mutex{}
		km.locks[key] = l
	}
	km.mu.Unlock()

	l.Lock()
	return l.Unlock
}
