package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionPendingFamily(t *testing.T) {
	for _, from := range []TripStatus{StatusPendingApproval, StatusPendingUrgent} {
		assert.True(t, CanTransition(from, StatusApproved), "%s -> approved", from)
		assert.True(t, CanTransition(from, StatusRejected), "%s -> rejected", from)
		assert.True(t, CanTransition(from, StatusExpired), "%s -> expired", from)
		assert.True(t, CanTransition(from, StatusCancelled), "%s -> cancelled", from)
		assert.False(t, CanTransition(from, StatusOptimized), "%s -> optimized", from)
	}
}

func TestCanTransitionTerminalStatesFrozen(t *testing.T) {
	terminals := []TripStatus{StatusRejected, StatusCancelled, StatusExpired, StatusOptimized}
	all := []TripStatus{
		StatusPendingApproval, StatusPendingUrgent, StatusAutoApproved,
		StatusApproved, StatusApprovedSolo, StatusPendingOptimization,
		StatusProposed, StatusOptimized, StatusRejected, StatusCancelled,
		StatusExpired,
	}
	for _, from := range terminals {
		assert.True(t, from.Terminal())
		for _, to := range all {
			assert.False(t, CanTransition(from, to), "%s -> %s must be illegal", from, to)
		}
	}
}

func TestCanTransitionProposedOutcomes(t *testing.T) {
	assert.True(t, CanTransition(StatusProposed, StatusOptimized))
	assert.True(t, CanTransition(StatusProposed, StatusApproved))
	assert.True(t, CanTransition(StatusProposed, StatusAutoApproved))
	assert.False(t, CanTransition(StatusProposed, StatusRejected))
}

func TestCanTransitionUnknownStatusFailsClosed(t *testing.T) {
	assert.False(t, CanTransition("bogus", StatusApproved))
	assert.False(t, CanTransition(StatusApproved, "bogus"))
	assert.False(t, CanTransition("", ""))
}

func TestParseTripStatus(t *testing.T) {
	status, ok := ParseTripStatus("approved_solo")
	assert.True(t, ok)
	assert.Equal(t, StatusApprovedSolo, status)

	_, ok = ParseTripStatus("draft")
	assert.False(t, ok)
}

func TestMigrateLegacyStatus(t *testing.T) {
	cases := map[string]TripStatus{
		"draft":     StatusPendingApproval,
		"pending":   StatusPendingApproval,
		"confirmed": StatusApproved,
		"approved":  StatusApproved,
	}
	for raw, want := range cases {
		got, ok := MigrateLegacyStatus(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}

	_, ok := MigrateLegacyStatus("unknown_state")
	assert.False(t, ok)
}

func TestPendingFamily(t *testing.T) {
	assert.True(t, StatusPendingApproval.PendingFamily())
	assert.True(t, StatusPendingUrgent.PendingFamily())
	assert.False(t, StatusAutoApproved.PendingFamily())
	assert.False(t, StatusApproved.PendingFamily())
}

func TestBatchable(t *testing.T) {
	assert.True(t, StatusApproved.Batchable())
	assert.True(t, StatusAutoApproved.Batchable())
	assert.False(t, StatusApprovedSolo.Batchable())
	assert.False(t, StatusProposed.Batchable())
}
