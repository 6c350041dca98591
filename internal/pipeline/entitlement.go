package pipeline

import (
	"encoding/json"
	"math"
	"time"

	"ledger/internal/credit"

	"github.com/google/uuid"
)

// Entitlement is one external declaration that a user is to receive a
// grant (spec.md §4.4), typically produced by a payment event.
type Entitlement struct {
	Kind    string             `json:"kind"`
	Bucket  string             `json:"bucket"`
	Amount  map[string]float64 `json:"amount"`
	Expires json.RawMessage    `json:"expires,omitempty"`
	Created *int64             `json:"created,omitempty"`
	Note    string             `json:"note,omitempty"`
}

var unitSeconds = map[string]float64{
	"seconds": 1,
	"minutes": 60,
	"hours":   3600,
	"days":    86400,
	"weeks":   604800,
}

func amountMs(amount map[string]float64) int64 {
	var seconds float64
	for unit, v := range amount {
		mult, ok := unitSeconds[unit]
		if !ok {
			continue
		}
		seconds += v * mult
	}
	return int64(math.Trunc(seconds * 1000))
}

// durationMsFromUnits sums a {unit: number} map the same way amount
// is summed, for use as a relative "expires" duration.
func durationMsFromUnits(units map[string]float64) int64 {
	return amountMs(units)
}

// ConvertEntitlements turns a list of entitlements into one combined
// GrantMap per spec.md §4.4: trial/permanent deltas add, expiring
// tranches concatenate. Non-"credits" kinds, unknown buckets, and
// malformed entries contribute nothing.
func ConvertEntitlements(userID uuid.UUID, entitlements []Entitlement, now time.Time) credit.GrantMap {
	var trialDelta, permanentDelta int64
	var expiring []credit.ExpiringCredit

	for _, e := range entitlements {
		if e.Kind != "credits" {
			continue
		}
		ms := amountMs(e.Amount)

		var createdAt time.Time
		if e.Created != nil {
			createdAt = time.UnixMilli(*e.Created)
		} else {
			createdAt = now
		}

		switch e.Bucket {
		case "trial":
			trialDelta += ms
		case "permanent":
			permanentDelta += ms
		case "expiring":
			expiresAt, ok := resolveExpiry(e.Expires, createdAt)
			if !ok {
				// malformed "expires": contributes nothing
				continue
			}
			expiring = append(expiring, credit.ExpiringCredit{
				UserID:    userID,
				Initial:   ms,
				Amount:    ms,
				CreatedAt: createdAt,
				ExpiresAt: expiresAt,
				Note:      e.Note,
			})
		default:
			// unknown bucket: contributes nothing
		}
	}

	g := credit.GrantMap{}
	if trialDelta != 0 {
		g.Trial = &trialDelta
	}
	if permanentDelta != 0 {
		g.Permanent = &permanentDelta
	}
	g.Expiring = expiring
	return g
}

// resolveExpiry interprets the "expires" field: absent defaults to
// created+30d; a bare number is an absolute ms timestamp; an object is
// a {unit: number} duration added to created. ok is false when the
// field is present but is neither a number nor a {unit: number} map.
func resolveExpiry(raw json.RawMessage, created time.Time) (time.Time, bool) {
	if len(raw) == 0 {
		return created.Add(30 * 24 * time.Hour), true
	}
	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return time.UnixMilli(int64(asNumber)), true
	}
	var asUnits map[string]float64
	if err := json.Unmarshal(raw, &asUnits); err == nil {
		return created.Add(time.Duration(durationMsFromUnits(asUnits)) * time.Millisecond), true
	}
	return time.Time{}, false
}
