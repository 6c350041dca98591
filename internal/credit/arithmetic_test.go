package credit

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

func mkUser() uuid.UUID { return uuid.New() }

func TestGrant_ClampsAndAddsSignedDeltas(t *testing.T) {
	s := UserCredits{Trial: 5, Permanent: 5}

	out := Grant(s, GrantMap{Trial: ptr(-100), Permanent: ptr(10)})
	assert.Equal(t, int64(0), out.Trial, "trial clamps at zero")
	assert.Equal(t, int64(15), out.Permanent)
}

func TestGrant_EmptyIsNoop(t *testing.T) {
	s := UserCredits{Trial: 5, Permanent: 7}
	out := Grant(s, GrantMap{})
	assert.Equal(t, s, out)
}

func TestGrant_MonotonicOnNonNegativeDeltas(t *testing.T) {
	s := UserCredits{Trial: 5, Permanent: 7}
	out := Grant(s, GrantMap{Trial: ptr(3), Permanent: ptr(4)})
	assert.GreaterOrEqual(t, out.Trial, s.Trial)
	assert.GreaterOrEqual(t, out.Permanent, s.Permanent)
}

func TestDeduct_NoopOnNonPositiveCost(t *testing.T) {
	s := UserCredits{Trial: 10}
	out, rem, ok := Deduct(s, 0)
	require.False(t, ok)
	assert.Equal(t, int64(0), rem)
	assert.Equal(t, s, out)

	_, _, ok = Deduct(s, -5)
	require.False(t, ok)
}

func TestDeduct_Conservation(t *testing.T) {
	now := time.Now()
	s := UserCredits{
		Trial:     500,
		Permanent: 1000,
		Expiring: []ExpiringCredit{
			{Initial: 300, Amount: 300, ExpiresAt: now.Add(10 * time.Minute)},
		},
	}
	before := s.Sum()
	out, rem, ok := Deduct(s, 900)
	require.True(t, ok)
	after := out.Sum()
	assert.Equal(t, before, after+(900-rem))
	assert.GreaterOrEqual(t, rem, int64(0))
	assert.LessOrEqual(t, rem, int64(900))
}

func TestDeduct_PriorityOrder(t *testing.T) {
	s := UserCredits{Trial: 100, Permanent: 50}
	out, _, ok := Deduct(s, 10)
	require.True(t, ok)
	assert.Equal(t, s.Permanent, out.Permanent, "permanent untouched while trial has funds")
}

// S1 - Priority drain.
func TestScenario_S1_PriorityDrain(t *testing.T) {
	now := time.Now()
	s := UserCredits{
		Trial:     500,
		Permanent: 1000,
		Expiring: []ExpiringCredit{
			{Initial: 300, Amount: 300, ExpiresAt: now.Add(10 * time.Minute)},
		},
	}
	out, rem, ok := Deduct(s, 900)
	require.True(t, ok)
	assert.Equal(t, int64(0), rem)
	assert.Equal(t, int64(0), out.Trial)
	assert.Equal(t, int64(900), out.Permanent)
	assert.Empty(t, out.Expiring)
}

// S2 - Expiring ordering on grant.
func TestScenario_S2_ExpiringOrderingOnGrant(t *testing.T) {
	day1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	day3 := day1.AddDate(0, 0, 2)

	s := UserCredits{}
	s = Grant(s, GrantMap{Expiring: []ExpiringCredit{
		{Initial: 1000, Amount: 1000, ExpiresAt: day3},
		{Initial: 1000, Amount: 1000, ExpiresAt: day1},
	}})
	s = Grant(s, GrantMap{Expiring: []ExpiringCredit{
		{Initial: 1000, Amount: 1000, ExpiresAt: day2},
	}})

	require.Len(t, s.Expiring, 3)
	assert.Equal(t, day1, s.Expiring[0].ExpiresAt)
	assert.Equal(t, day2, s.Expiring[1].ExpiresAt)
	assert.Equal(t, day3, s.Expiring[2].ExpiresAt)
}

// S3 - Expiry drops stale tranches.
func TestScenario_S3_ExpiryDropsStale(t *testing.T) {
	now := time.Now()
	s := UserCredits{
		Expiring: []ExpiringCredit{
			{Initial: 111, Amount: 111, ExpiresAt: now.Add(-5 * 24 * time.Hour)},
			{Initial: 222, Amount: 222, ExpiresAt: now.Add(30 * 24 * time.Hour)},
		},
	}
	out := Expire(s, now, true)
	require.Len(t, out.Expiring, 1)
	assert.True(t, out.Expiring[0].ExpiresAt.After(now))
}

func TestExpire_BoundaryIsInclusive(t *testing.T) {
	now := time.Now()
	s := UserCredits{Expiring: []ExpiringCredit{{Initial: 1, Amount: 1, ExpiresAt: now}}}
	out := Expire(s, now, true)
	assert.Empty(t, out.Expiring, "a tranche expiring exactly at now is dropped")
}

func TestExpire_Idempotent(t *testing.T) {
	now := time.Now()
	s := UserCredits{
		Expiring: []ExpiringCredit{
			{Initial: 1, Amount: 1, ExpiresAt: now.Add(-time.Hour)},
			{Initial: 2, Amount: 2, ExpiresAt: now.Add(time.Hour)},
		},
	}
	once := Expire(s, now, true)
	twice := Expire(once, now, true)
	assert.Equal(t, once, twice)
}

func TestMergeExpiring_EqualsSortOfConcatenation(t *testing.T) {
	base := time.Now()
	a := []ExpiringCredit{
		{Initial: 1, Amount: 1, ExpiresAt: base.Add(1 * time.Hour)},
		{Initial: 3, Amount: 3, ExpiresAt: base.Add(3 * time.Hour)},
	}
	b := []ExpiringCredit{
		{Initial: 2, Amount: 2, ExpiresAt: base.Add(2 * time.Hour)},
	}
	merged := MergeExpiring(a, b)
	concatSorted := SortExpiring(append(append([]ExpiringCredit{}, a...), b...))
	assert.Equal(t, concatSorted, merged)
	assert.Len(t, merged, len(a)+len(b))
}

func TestDeduct_NegativeTranchesDroppedDefensively(t *testing.T) {
	s := UserCredits{
		Expiring: []ExpiringCredit{
			{Initial: -5, Amount: -5, ExpiresAt: time.Now().Add(time.Hour)},
			{Initial: 10, Amount: 10, ExpiresAt: time.Now().Add(2 * time.Hour)},
		},
	}
	out, rem, ok := Deduct(s, 5)
	require.True(t, ok)
	assert.Equal(t, int64(0), rem)
	require.Len(t, out.Expiring, 1)
	assert.Equal(t, int64(5), out.Expiring[0].Amount)
}
