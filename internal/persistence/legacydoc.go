package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"ledger/internal/credit"

	"github.com/google/uuid"
)

// legacyDocument is the shape of one user's object in the document
// store: top-level trial/permanent balances plus a list of tranches
// in one of three historical field layouts (spec.md §4.5).
type legacyDocument struct {
	Trial     int64             `json:"trial"`
	Permanent int64             `json:"permanent"`
	Expiring  []json.RawMessage `json:"expiring"`
}

// decodeLegacyTranche discriminates between the three historical
// field sets a tranche may use — {initial,left,created,expires},
// {initial,amount,created,expires}, {amount,left,expires} — purely on
// which keys are present, and maps all three onto the canonical
// ExpiringCredit.
func decodeLegacyTranche(userID uuid.UUID, raw json.RawMessage) (credit.ExpiringCredit, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return credit.ExpiringCredit{}, fmt.Errorf("decode legacy tranche: %w", err)
	}

	out := credit.ExpiringCredit{UserID: userID}

	switch {
	case has(fields, "initial") && has(fields, "left"):
		// Layout 1: {initial, left, created, expires}
		out.Initial = readInt64(fields["initial"])
		out.Amount = readInt64(fields["left"])
	case has(fields, "initial") && has(fields, "amount"):
		// Layout 2: {initial, amount, created, expires}
		out.Initial = readInt64(fields["initial"])
		out.Amount = readInt64(fields["amount"])
	case has(fields, "amount") && has(fields, "left"):
		// Layout 3: {amount, left, expires} — "amount" here is the
		// original grant, "left" the remainder; no "created" field.
		out.Initial = readInt64(fields["amount"])
		out.Amount = readInt64(fields["left"])
	default:
		return credit.ExpiringCredit{}, fmt.Errorf("legacy tranche matches no known field layout: %s", string(raw))
	}

	if raw, ok := fields["created"]; ok {
		t, err := parseLegacyTimestamp(raw)
		if err != nil {
			return credit.ExpiringCredit{}, err
		}
		out.CreatedAt = t
	}
	if raw, ok := fields["expires"]; ok {
		t, err := parseLegacyTimestamp(raw)
		if err != nil {
			return credit.ExpiringCredit{}, err
		}
		out.ExpiresAt = t
	}

	return out, nil
}

func has(fields map[string]json.RawMessage, key string) bool {
	_, ok := fields[key]
	return ok
}

func readInt64(raw json.RawMessage) int64 {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0
	}
	return int64(f)
}

// decodeLegacyDocument reconstructs a full UserCredits from a legacy
// document-store object.
func decodeLegacyDocument(userID uuid.UUID, raw []byte) (credit.UserCredits, error) {
	var doc legacyDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return credit.UserCredits{}, fmt.Errorf("decode legacy document: %w", err)
	}

	state := credit.UserCredits{
		UserID:    userID,
		Trial:     doc.Trial,
		Permanent: doc.Permanent,
	}
	for _, rawTranche := range doc.Expiring {
		tranche, err := decodeLegacyTranche(userID, rawTranche)
		if err != nil {
			return credit.UserCredits{}, err
		}
		state.Expiring = append(state.Expiring, tranche)
	}
	state.Expiring = credit.SortExpiring(state.Expiring)
	return state, nil
}

// encodeCanonicalDocument serializes state in the canonical
// {initial,amount,created,expires} layout for mirror writes, so the
// legacy store converges toward the modern layout over time rather
// than perpetuating the other two.
func encodeCanonicalDocument(state credit.UserCredits) ([]byte, error) {
	type tranche struct {
		Initial int64     `json:"initial"`
		Amount  int64     `json:"amount"`
		Created time.Time `json:"created"`
		Expires time.Time `json:"expires"`
	}
	doc := struct {
		Trial     int64     `json:"trial"`
		Permanent int64     `json:"permanent"`
		Expiring  []tranche `json:"expiring"`
	}{
		Trial:     state.Trial,
		Permanent: state.Permanent,
	}
	for _, e := range state.Expiring {
		doc.Expiring = append(doc.Expiring, tranche{
			Initial: e.Initial,
			Amount:  e.Amount,
			Created: e.CreatedAt,
			Expires: e.ExpiresAt,
		})
	}
	return json.Marshal(doc)
}
