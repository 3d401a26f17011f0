package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierForHeadcount(t *testing.T) {
	cases := []struct {
		count int
		tier  VehicleTier
		ok    bool
	}{
		{0, "", false},
		{1, TierSmallCar, true},
		{4, TierSmallCar, true},
		{5, TierMidCar, true},
		{7, TierMidCar, true},
		{8, TierVan, true},
		{16, TierVan, true},
		{17, "", false},
	}
	for _, tc := range cases {
		tier, ok := TierForHeadcount(tc.count)
		assert.Equal(t, tc.ok, ok, "count=%d", tc.count)
		assert.Equal(t, tc.tier, tier, "count=%d", tc.count)
	}
}

func TestPreProposalStatus(t *testing.T) {
	auto := Trip{AutoApproved: true}
	assert.Equal(t, StatusAutoApproved, auto.PreProposalStatus())

	managed := Trip{AutoApproved: false}
	assert.Equal(t, StatusApproved, managed.PreProposalStatus())
}
