package credit

import (
	"sort"
	"time"
)

// Grant applies a GrantMap to state and returns the resulting state.
// Trial and Permanent deltas are signed and clamped to zero on the
// lower bound; Expiring tranches are merged into the existing list,
// which remains sorted ascending by ExpiresAt. An empty grant returns
// state unchanged (by value — callers still get a fresh copy).
func Grant(state UserCredits, g GrantMap) UserCredits {
	out := state.Clone()
	if g.IsEmpty() {
		return out
	}
	if g.Trial != nil {
		out.Trial = clampNonNegative(out.Trial + *g.Trial)
	}
	if g.Permanent != nil {
		out.Permanent = clampNonNegative(out.Permanent + *g.Permanent)
	}
	if len(g.Expiring) > 0 {
		out.Expiring = MergeExpiring(out.Expiring, g.Expiring)
	}
	return out
}

// Deduct charges cost against state in bucket priority order
// trial -> expiring -> permanent. It returns the resulting state, the
// remainder that could not be covered, and ok indicating whether a
// mutation actually occurred. ok is false when cost <= 0: callers must
// treat that as a no-op and skip the write-through entirely.
func Deduct(state UserCredits, cost int64) (UserCredits, int64, bool) {
	if cost <= 0 {
		return state, 0, false
	}
	out := state.Clone()
	remaining := cost

	if out.Trial > 0 && remaining > 0 {
		take := min64(out.Trial, remaining)
		out.Trial -= take
		remaining -= take
	}

	if remaining > 0 && len(out.Expiring) > 0 {
		kept := out.Expiring[:0:0]
		for _, tranche := range out.Expiring {
			if tranche.Amount < 0 {
				// Defensively drop corrupt tranches rather than use them.
				continue
			}
			if remaining <= 0 {
				kept = append(kept, tranche)
				continue
			}
			take := min64(tranche.Amount, remaining)
			tranche.Amount -= take
			remaining -= take
			if tranche.Amount > 0 {
				kept = append(kept, tranche)
			}
			// tranche.Amount == 0: drained, dropped.
		}
		out.Expiring = kept
	}

	if out.Permanent > 0 && remaining > 0 {
		take := min64(out.Permanent, remaining)
		out.Permanent -= take
		remaining -= take
	}

	return out, remaining, true
}

// Expire drops tranches whose ExpiresAt is at or before now. When sortFirst
// is true the list is sorted ascending before the expired prefix is
// dropped (the caller should pass true unless it already maintains the
// sorted invariant on every path). Expiry uses strict <=: a tranche
// whose expiry equals now is considered expired.
func Expire(state UserCredits, now time.Time, sortFirst bool) UserCredits {
	out := state.Clone()
	if len(out.Expiring) == 0 {
		return out
	}
	if sortFirst {
		out.Expiring = SortExpiring(out.Expiring)
	}
	cut := 0
	for cut < len(out.Expiring) && !out.Expiring[cut].ExpiresAt.After(now) {
		cut++
	}
	if cut == 0 {
		return out
	}
	remaining := make([]ExpiringCredit, len(out.Expiring)-cut)
	copy(remaining, out.Expiring[cut:])
	out.Expiring = remaining
	return out
}

// SortExpiring returns a new slice sorted ascending by ExpiresAt,
// stable so tranches with equal expiry keep their relative order.
func SortExpiring(list []ExpiringCredit) []ExpiringCredit {
	out := make([]ExpiringCredit, len(list))
	copy(out, list)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	return out
}

// MergeExpiring stably merges two already-sorted lists by ExpiresAt.
// On ties, tranches from the existing list sort before newly granted
// ones. The result equals SortExpiring(append(existing, incoming...))
// and is a permutation of the concatenation.
func MergeExpiring(existing, incoming []ExpiringCredit) []ExpiringCredit {
	if len(incoming) == 0 {
		out := make([]ExpiringCredit, len(existing))
		copy(out, existing)
		return out
	}
	sortedIncoming := SortExpiring(incoming)
	out := make([]ExpiringCredit, 0, len(existing)+len(sortedIncoming))
	i, j := 0, 0
	for i < len(existing) && j < len(sortedIncoming) {
		if !existing[i].ExpiresAt.After(sortedIncoming[j].ExpiresAt) {
			out = append(out, existing[i])
			i++
		} else {
			out = append(out, sortedIncoming[j])
			j++
		}
	}
	out = append(out, existing[i:]...)
	out = append(out, sortedIncoming[j:]...)
	return out
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
