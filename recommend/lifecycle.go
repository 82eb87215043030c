package recommend

import (
	"fmt"
	"time"
)

// StateTransitionError reports an illegal lifecycle change. The
// recommendation's state is left untouched.
type StateTransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("recommendation %s: illegal transition %s -> %s", e.ID, e.From, e.To)
}

// EffectiveStatus applies lazy expiry: a Pending recommendation past
// its expiry reads as Expired without a store write.
func EffectiveStatus(r *Recommendation, now time.Time) Status {
	if r.Status == StatusPending && r.ExpiresAt != nil && now.After(*r.ExpiresAt) {
		return StatusExpired
	}
	return r.Status
}

// Transition moves a recommendation to a new status. Only Pending
// recommendations may transition. A Pending recommendation past its
// expiry is already Expired: the only write it still accepts is the
// one that materializes the expiry.
func Transition(r *Recommendation, to Status, actedBy string, now time.Time) error {
	from := EffectiveStatus(r, now)

	if from.Terminal() {
		if from == StatusExpired && r.Status == StatusPending && to == StatusExpired {
			r.Status = StatusExpired
			t := now
			r.ActedAt = &t
			return nil
		}
		return &StateTransitionError{ID: r.ID, From: from, To: to}
	}
	if to == StatusPending {
		return &StateTransitionError{ID: r.ID, From: from, To: to}
	}

	r.Status = to
	if actedBy != "" {
		r.ActedBy = actedBy
	}
	t := now
	r.ActedAt = &t
	return nil
}
