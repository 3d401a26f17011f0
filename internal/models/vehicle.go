package models

import "time"

// VehicleTier is the capacity class the batching engine reasons about.
type VehicleTier string

const (
	TierSmallCar VehicleTier = "small_car"
	TierMidCar   VehicleTier = "mid_car"
	TierVan      VehicleTier = "van"
)

// TierForHeadcount selects the vehicle tier able to carry the group.
// More than 16 travellers do not fit a single vehicle.
func TierForHeadcount(count int) (VehicleTier, bool) {
	switch {
	case count <= 0:
		return "", false
	case count <= 4:
		return TierSmallCar, true
	case count <= 7:
		return TierMidCar, true
	case count <= 16:
		return TierVan, true
	default:
		return "", false
	}
}

// Vehicle is a concrete fleet vehicle, consulted only for manual
// assignment by an administrator.
type Vehicle struct {
	ID        string      `db:"id" json:"id"`
	Name      string      `db:"name" json:"name"`
	Type      string      `db:"type" json:"type"`
	Tier      VehicleTier `db:"tier" json:"tier"`
	Capacity  int         `db:"capacity" json:"capacity"`
	Active    bool        `db:"active" json:"active"`
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`
}
