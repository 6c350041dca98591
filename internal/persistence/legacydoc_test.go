package persistence

import (
	"testing"
	"time"

	"ledger/internal/credit"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkState(userID uuid.UUID) credit.UserCredits {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return credit.UserCredits{
		UserID:    userID,
		Trial:     100,
		Permanent: 200,
		Expiring: []credit.ExpiringCredit{{
			UserID:    userID,
			Initial:   300,
			Amount:    150,
			CreatedAt: now,
			ExpiresAt: now.AddDate(0, 1, 0),
		}},
	}
}

func TestDecodeLegacyDocument_AllThreeTrancheLayouts(t *testing.T) {
	userID := uuid.New()
	raw := []byte(`{
		"trial": 100,
		"permanent": 50,
		"expiring": [
			{"initial": 300, "left": 200, "created": "2026-01-01T00:00:00Z", "expires": "2026-02-01T00:00:00Z"},
			{"initial": 400, "amount": 400, "created": "2026-01-05T00:00:00Z", "expires": "2026-03-01T00:00:00Z"},
			{"amount": 500, "left": 500, "expires": "2026-04-01T00:00:00Z"}
		]
	}`)

	state, err := decodeLegacyDocument(userID, raw)
	require.NoError(t, err)

	assert.Equal(t, int64(100), state.Trial)
	assert.Equal(t, int64(50), state.Permanent)
	require.Len(t, state.Expiring, 3)

	byInitial := map[int64]bool{}
	for _, tr := range state.Expiring {
		byInitial[tr.Initial] = true
		assert.Equal(t, userID, tr.UserID)
	}
	assert.True(t, byInitial[300])
	assert.True(t, byInitial[400])
	assert.True(t, byInitial[500])
}

func TestDecodeLegacyTranche_UnknownLayoutErrors(t *testing.T) {
	_, err := decodeLegacyTranche(uuid.New(), []byte(`{"unrelated": 1}`))
	assert.Error(t, err)
}

func TestParseLegacyTimestamp_SecondsVsMilliseconds(t *testing.T) {
	seconds, err := parseLegacyTimestamp([]byte(`1700000000`))
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), seconds.Unix())

	ms, err := parseLegacyTimestamp([]byte(`1700000000000`))
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), ms.Unix())
}

func TestParseLegacyTimestamp_ISOString(t *testing.T) {
	got, err := parseLegacyTimestamp([]byte(`"2026-03-05T12:00:00Z"`))
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)))
}

func TestEncodeCanonicalDocument_RoundTripsThroughDecode(t *testing.T) {
	userID := uuid.New()
	original := mkState(userID)

	body, err := encodeCanonicalDocument(original)
	require.NoError(t, err)

	decoded, err := decodeLegacyDocument(userID, body)
	require.NoError(t, err)

	assert.Equal(t, original.Trial, decoded.Trial)
	assert.Equal(t, original.Permanent, decoded.Permanent)
	require.Len(t, decoded.Expiring, 1)
	assert.Equal(t, original.Expiring[0].Initial, decoded.Expiring[0].Initial)
	assert.Equal(t, original.Expiring[0].Amount, decoded.Expiring[0].Amount)
}
