package persistence

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// msThreshold is the magnitude above which a numeric timestamp is
// assumed to be milliseconds rather than seconds since epoch
// (spec.md §4.5: "a loader heuristic selects seconds vs milliseconds
// by magnitude (≥ 1e11 ⇒ milliseconds)"). 1e11 seconds is year 5138;
// no legacy document predates that, so the heuristic is unambiguous
// in practice.
const msThreshold = 1e11

// parseLegacyTimestamp decodes a legacy document timestamp field,
// which may be an ISO-8601 string, an integer number of seconds, or
// an integer number of milliseconds since epoch.
func parseLegacyTimestamp(raw json.RawMessage) (time.Time, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		t, err := time.Parse(time.RFC3339, asString)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse legacy timestamp %q: %w", asString, err)
		}
		return t.UTC(), nil
	}

	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err != nil {
		return time.Time{}, fmt.Errorf("legacy timestamp is neither string nor number: %s", string(raw))
	}
	n, err := strconv.ParseFloat(asNumber.String(), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse legacy numeric timestamp %s: %w", asNumber.String(), err)
	}
	if n >= msThreshold {
		return time.UnixMilli(int64(n)).UTC(), nil
	}
	return time.Unix(int64(n), 0).UTC(), nil
}
