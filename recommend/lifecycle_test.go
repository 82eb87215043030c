package recommend

import (
	"errors"
	"testing"
	"time"
)

func pendingRec(id string) Recommendation {
	return Recommendation{
		ID:         id,
		EntityType: "assessment",
		EntityID:   "a-1",
		ActionType: Remind,
		Title:      "Clear overdue tasks",
		Confidence: 80,
		Priority:   2,
		Status:     StatusPending,
		CreatedAt:  time.Now(),
	}
}

func TestTransitionFromPending(t *testing.T) {
	now := time.Now()

	for _, to := range []Status{StatusAccepted, StatusRejected, StatusExecuted, StatusDismissed, StatusExpired} {
		t.Run(string(to), func(t *testing.T) {
			rec := pendingRec("r-1")
			if err := Transition(&rec, to, "user-1", now); err != nil {
				t.Fatalf("Transition to %s: %v", to, err)
			}
			if rec.Status != to {
				t.Errorf("status = %s, want %s", rec.Status, to)
			}
			if rec.ActedBy != "user-1" {
				t.Errorf("ActedBy = %q, want user-1", rec.ActedBy)
			}
			if rec.ActedAt == nil || !rec.ActedAt.Equal(now) {
				t.Errorf("ActedAt = %v, want %v", rec.ActedAt, now)
			}
		})
	}
}

func TestTransitionTerminalAbsorbs(t *testing.T) {
	now := time.Now()

	for _, from := range []Status{StatusAccepted, StatusRejected, StatusExecuted, StatusDismissed, StatusExpired} {
		for _, to := range []Status{StatusPending, StatusAccepted, StatusRejected, StatusExecuted, StatusDismissed, StatusExpired} {
			t.Run(string(from)+"_to_"+string(to), func(t *testing.T) {
				rec := pendingRec("r-1")
				rec.Status = from

				err := Transition(&rec, to, "user-1", now)
				if err == nil {
					t.Fatalf("Transition %s -> %s succeeded, want error", from, to)
				}
				var ste *StateTransitionError
				if !errors.As(err, &ste) {
					t.Fatalf("error type = %T, want *StateTransitionError", err)
				}
				if ste.From != from || ste.To != to {
					t.Errorf("error = %v, want from %s to %s", ste, from, to)
				}
				if rec.Status != from {
					t.Errorf("status changed to %s", rec.Status)
				}
			})
		}
	}
}

func TestTransitionBackToPendingRejected(t *testing.T) {
	rec := pendingRec("r-1")
	err := Transition(&rec, StatusPending, "", time.Now())
	if err == nil {
		t.Fatal("Transition to Pending succeeded, want error")
	}
}

func TestEffectiveStatusLazyExpiry(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	rec := pendingRec("r-1")
	rec.ExpiresAt = &future
	if got := EffectiveStatus(&rec, now); got != StatusPending {
		t.Errorf("unexpired: EffectiveStatus = %s, want Pending", got)
	}

	rec.ExpiresAt = &past
	if got := EffectiveStatus(&rec, now); got != StatusExpired {
		t.Errorf("expired: EffectiveStatus = %s, want Expired", got)
	}
	// The stored row is untouched until a sweep materializes it.
	if rec.Status != StatusPending {
		t.Errorf("stored status = %s, want Pending", rec.Status)
	}

	// Acting on a lazily expired recommendation is rejected.
	if err := Transition(&rec, StatusAccepted, "user-1", now); err == nil {
		t.Error("Transition on expired recommendation succeeded, want error")
	}

	// The sweep's own Pending -> Expired write is still allowed.
	if err := Transition(&rec, StatusExpired, "", now); err != nil {
		t.Fatalf("materializing expiry: %v", err)
	}
	if rec.Status != StatusExpired {
		t.Errorf("status = %s, want Expired", rec.Status)
	}
}

func TestStoreSweep(t *testing.T) {
	store := NewInMemoryStore()
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	expired := pendingRec("r-expired")
	expired.ExpiresAt = &past
	fresh := pendingRec("r-fresh")
	fresh.ExpiresAt = &future
	acted := pendingRec("r-acted")
	acted.ExpiresAt = &past
	acted.Status = StatusAccepted

	for _, rec := range []Recommendation{expired, fresh, acted} {
		if err := store.Add(rec); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	swept, err := store.Sweep(now)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if swept != 1 {
		t.Errorf("swept = %d, want 1", swept)
	}

	got, err := store.Get("r-expired")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusExpired {
		t.Errorf("r-expired status = %s, want Expired", got.Status)
	}

	got, _ = store.Get("r-fresh")
	if got.Status != StatusPending {
		t.Errorf("r-fresh status = %s, want Pending", got.Status)
	}
	got, _ = store.Get("r-acted")
	if got.Status != StatusAccepted {
		t.Errorf("r-acted status = %s, want Accepted", got.Status)
	}
}

func TestStoreUpdateStatus(t *testing.T) {
	store := NewInMemoryStore()
	now := time.Now()

	rec := pendingRec("r-1")
	if err := store.Add(rec); err != nil {
		t.Fatalf("Add: %v", err)
	}

	updated, err := store.UpdateStatus("r-1", StatusAccepted, "user-7", now)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.Status != StatusAccepted || updated.ActedBy != "user-7" {
		t.Errorf("updated = %+v", updated)
	}

	if _, err := store.UpdateStatus("r-1", StatusRejected, "user-7", now); err == nil {
		t.Error("second transition succeeded, want error")
	}

	if _, err := store.UpdateStatus("missing", StatusAccepted, "", now); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing id error = %v, want ErrNotFound", err)
	}
}

func TestListPendingExcludesExpiredAndOrders(t *testing.T) {
	store := NewInMemoryStore()
	now := time.Now()
	past := now.Add(-time.Hour)

	mk := func(id string, priority, confidence int) Recommendation {
		rec := pendingRec(id)
		rec.Priority = priority
		rec.Confidence = confidence
		return rec
	}

	expired := mk("r-expired", 1, 99)
	expired.ExpiresAt = &past

	for _, rec := range []Recommendation{
		mk("r-low", 3, 70),
		mk("r-high", 1, 85),
		mk("r-mid", 2, 90),
		mk("r-high2", 1, 60),
		expired,
	} {
		if err := store.Add(rec); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	recs, err := store.ListPending(nil, "assessment", "a-1", now)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}

	var ids []string
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}
	want := []string{"r-high", "r-high2", "r-mid", "r-low"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %s, want %s", i, ids[i], want[i])
		}
	}
}

func TestListPendingTenantScope(t *testing.T) {
	store := NewInMemoryStore()
	now := time.Now()
	acme := "acme"
	other := "globex"

	tenantRec := pendingRec("r-acme")
	tenantRec.TenantID = &acme
	otherRec := pendingRec("r-globex")
	otherRec.TenantID = &other

	for _, rec := range []Recommendation{tenantRec, otherRec, pendingRec("r-global")} {
		if err := store.Add(rec); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	recs, err := store.ListPending(&acme, "assessment", "a-1", now)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "r-acme" {
		t.Errorf("recs = %+v, want only r-acme", recs)
	}

	recs, _ = store.ListPending(nil, "assessment", "a-1", now)
	if len(recs) != 3 {
		t.Errorf("unscoped list returned %d recommendations, want 3", len(recs))
	}
}
