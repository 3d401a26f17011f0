package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fleetops/tripshare-api/internal/models"
	appErrors "github.com/fleetops/tripshare-api/pkg/errors"
	"github.com/fleetops/tripshare-api/pkg/response"
)

type vehicleLister interface {
	AvailableVehicles(ctx context.Context, date time.Time, vehicleType string) ([]models.Vehicle, error)
}

// VehicleHandler lists fleet vehicles free on a given date.
type VehicleHandler struct {
	service vehicleLister
}

// NewVehicleHandler constructs the handler.
func NewVehicleHandler(service vehicleLister) *VehicleHandler {
	return &VehicleHandler{service: service}
}

// Available godoc
// @Summary List vehicles with no assignment on a date
// @Tags Vehicles
// @Produce json
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param type query string false "Vehicle type filter"
// @Success 200 {object} response.Envelope
// @Router /vehicles/available [get]
func (h *VehicleHandler) Available(c *gin.Context) {
	raw := c.Query("date")
	if raw == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date query parameter is required"))
		return
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be formatted YYYY-MM-DD"))
		return
	}
	vehicles, err := h.service.AvailableVehicles(c.Request.Context(), date, c.Query("type"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, vehicles, nil)
}
