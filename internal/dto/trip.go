package dto

import (
	"time"

	"github.com/fleetops/tripshare-api/internal/models"
)

// SubmitTripRequest creates a new travel request.
type SubmitTripRequest struct {
	DepartureLocation string    `json:"departureLocation" binding:"required"`
	Destination       string    `json:"destination" binding:"required"`
	DepartureTime     time.Time `json:"departureTime" binding:"required"`
	ReturnTime        time.Time `json:"returnTime" binding:"required"`
	Purpose           string    `json:"purpose" binding:"required"`
	CCEmails          []string  `json:"ccEmails" binding:"omitempty,dive,email"`
}

// TripQuery filters trip listings.
type TripQuery struct {
	Status   []models.TripStatus
	UserID   string
	DataType models.TripDataType
	Limit    int
	Offset   int
}

// OverrideRequest is an admin manual decision on a pending trip.
type OverrideRequest struct {
	Decision string `json:"decision" binding:"required,oneof=approve reject"`
	Note     string `json:"note" binding:"required"`
}

// AssignVehicleRequest attaches a concrete vehicle to a trip.
type AssignVehicleRequest struct {
	VehicleID string `json:"vehicleId" binding:"required"`
	Notes     string `json:"notes"`
}

// PendingCount is the badge payload.
type PendingCount struct {
	Count int `json:"count"`
}
