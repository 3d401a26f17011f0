package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fleetops/tripshare-api/internal/dto"
	"github.com/fleetops/tripshare-api/internal/models"
	"github.com/fleetops/tripshare-api/internal/service"
	appErrors "github.com/fleetops/tripshare-api/pkg/errors"
	"github.com/fleetops/tripshare-api/pkg/response"
)

type approvalService interface {
	Submit(ctx context.Context, req dto.SubmitTripRequest, submitter *models.JWTClaims, meta service.ClientMeta) (*models.Trip, error)
	Get(ctx context.Context, id string) (*models.Trip, error)
	List(ctx context.Context, query dto.TripQuery) ([]models.Trip, error)
	AdminOverride(ctx context.Context, tripID string, req dto.OverrideRequest, admin *models.JWTClaims, meta service.ClientMeta) (*models.Trip, error)
	ExceptionQueue(ctx context.Context, olderThan time.Duration) ([]models.Trip, error)
	PendingCount(ctx context.Context) (int, error)
	AuditTrail(ctx context.Context, tripID string) ([]models.AuditEntry, error)
	AssignVehicle(ctx context.Context, tripID string, req dto.AssignVehicleRequest, admin *models.JWTClaims, meta service.ClientMeta) (*models.Trip, error)
}

// TripHandler exposes REST endpoints for trip lifecycle operations.
type TripHandler struct {
	service approvalService
}

// NewTripHandler constructs the handler.
func NewTripHandler(service approvalService) *TripHandler {
	return &TripHandler{service: service}
}

// Submit godoc
// @Summary Submit a travel request
// @Tags Trips
// @Accept json
// @Produce json
// @Param payload body dto.SubmitTripRequest true "Trip payload"
// @Success 201 {object} response.Envelope
// @Router /trips [post]
func (h *TripHandler) Submit(c *gin.Context) {
	var req dto.SubmitTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid trip payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	trip, err := h.service.Submit(c.Request.Context(), req, claims, clientMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, trip, nil)
}

// Get godoc
// @Summary Get trip detail
// @Tags Trips
// @Produce json
// @Param id path string true "Trip ID"
// @Success 200 {object} response.Envelope
// @Router /trips/{id} [get]
func (h *TripHandler) Get(c *gin.Context) {
	trip, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trip, nil)
}

// List godoc
// @Summary List trips
// @Tags Trips
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param userId query string false "Submitter user id"
// @Success 200 {object} response.Envelope
// @Router /trips [get]
func (h *TripHandler) List(c *gin.Context) {
	query := dto.TripQuery{
		UserID: strings.TrimSpace(c.Query("userId")),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.TripStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			status, ok := models.ParseTripStatus(part)
			if !ok {
				response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown status: "+part))
				return
			}
			statuses = append(statuses, status)
		}
		query.Status = statuses
	}
	if rawLimit := c.Query("limit"); rawLimit != "" {
		if limit, err := strconv.Atoi(rawLimit); err == nil {
			query.Limit = limit
		}
	}
	if rawOffset := c.Query("offset"); rawOffset != "" {
		if offset, err := strconv.Atoi(rawOffset); err == nil {
			query.Offset = offset
		}
	}
	trips, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trips, nil)
}

// Override godoc
// @Summary Admin manual override of a pending trip
// @Tags Trips
// @Accept json
// @Produce json
// @Param id path string true "Trip ID"
// @Param payload body dto.OverrideRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /trips/{id}/override [post]
func (h *TripHandler) Override(c *gin.Context) {
	var req dto.OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid override payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	trip, err := h.service.AdminOverride(c.Request.Context(), c.Param("id"), req, claims, clientMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trip, nil)
}

// Exceptions godoc
// @Summary List pending trips older than a threshold
// @Tags Trips
// @Produce json
// @Param olderThanHours query int false "Age threshold in hours (default 24)"
// @Success 200 {object} response.Envelope
// @Router /trips/pending/exceptions [get]
func (h *TripHandler) Exceptions(c *gin.Context) {
	olderThan := 24 * time.Hour
	if raw := c.Query("olderThanHours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours < 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "olderThanHours must be a non-negative integer"))
			return
		}
		olderThan = time.Duration(hours) * time.Hour
	}
	trips, err := h.service.ExceptionQueue(c.Request.Context(), olderThan)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trips, nil)
}

// PendingCount godoc
// @Summary Count trips awaiting manager action
// @Tags Trips
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /trips/pending/count [get]
func (h *TripHandler) PendingCount(c *gin.Context) {
	count, err := h.service.PendingCount(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.PendingCount{Count: count}, nil)
}

// Audit godoc
// @Summary List a trip's audit entries, newest first
// @Tags Trips
// @Produce json
// @Param id path string true "Trip ID"
// @Success 200 {object} response.Envelope
// @Router /trips/{id}/audit [get]
func (h *TripHandler) Audit(c *gin.Context) {
	entries, err := h.service.AuditTrail(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// AssignVehicle godoc
// @Summary Assign a concrete vehicle to a trip
// @Tags Trips
// @Accept json
// @Produce json
// @Param id path string true "Trip ID"
// @Param payload body dto.AssignVehicleRequest true "Assignment"
// @Success 200 {object} response.Envelope
// @Router /trips/{id}/vehicle [post]
func (h *TripHandler) AssignVehicle(c *gin.Context) {
	var req dto.AssignVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid assignment payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	trip, err := h.service.AssignVehicle(c.Request.Context(), c.Param("id"), req, claims, clientMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trip, nil)
}
