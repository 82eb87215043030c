package rules

import (
	"sort"
	"time"
)

// TieBreak decides precedence between a platform-wide rule and a
// tenant-scoped rule that share the same priority and code. The source
// data does not constrain this, so deployments choose.
type TieBreak int

const (
	// TenantFirst runs tenant-scoped rules before platform rules on
	// equal (priority, code). Default.
	TenantFirst TieBreak = iota
	// PlatformFirst runs platform rules first.
	PlatformFirst
)

// ApplicableRules filters and orders rules for one evaluation pass:
// active, inside their effective window at now, scoped to the tenant
// (or platform-wide), and bound to the trigger event (or unrestricted).
// Ordering is ascending priority, then ascending rule code, then the
// configured scope tie-break. The input slice is not modified.
func ApplicableRules(all []*Rule, triggerEvent string, tenantID *string, now time.Time, tb TieBreak) []*Rule {
	matched := make([]*Rule, 0, len(all))
	for _, r := range all {
		if !r.Active {
			continue
		}
		if r.EffectiveFrom != nil && now.Before(*r.EffectiveFrom) {
			continue
		}
		if r.EffectiveTo != nil && now.After(*r.EffectiveTo) {
			continue
		}
		if r.TriggerEvent != "" && r.TriggerEvent != EventAny && r.TriggerEvent != triggerEvent {
			continue
		}
		if r.TenantID != nil {
			if tenantID == nil || *r.TenantID != *tenantID {
				continue
			}
		}
		matched = append(matched, r)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return scopeRank(a, tb) < scopeRank(b, tb)
	})

	return matched
}

func scopeRank(r *Rule, tb TieBreak) int {
	tenantScoped := r.TenantID != nil
	if tb == PlatformFirst {
		if tenantScoped {
			return 1
		}
		return 0
	}
	if tenantScoped {
		return 0
	}
	return 1
}
