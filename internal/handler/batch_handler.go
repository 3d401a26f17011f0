package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fleetops/tripshare-api/internal/dto"
	"github.com/fleetops/tripshare-api/internal/models"
	"github.com/fleetops/tripshare-api/internal/service"
	appErrors "github.com/fleetops/tripshare-api/pkg/errors"
	"github.com/fleetops/tripshare-api/pkg/response"
)

type batchingService interface {
	RunSweep(ctx context.Context, actor models.Actor) (*dto.SweepResult, error)
	Get(ctx context.Context, id string) (*models.ProposalGroup, error)
	List(ctx context.Context, filter models.GroupFilter) ([]models.ProposalGroup, error)
	Resolve(ctx context.Context, groupID string, req dto.ResolveGroupRequest, admin *models.JWTClaims, meta service.ClientMeta) (*models.ProposalGroup, error)
}

// BatchHandler exposes the trip-batching surface: manual sweeps plus
// proposal-group review and resolution.
type BatchHandler struct {
	service batchingService
}

// NewBatchHandler constructs the handler.
func NewBatchHandler(service batchingService) *BatchHandler {
	return &BatchHandler{service: service}
}

// Sweep godoc
// @Summary Run a batching sweep over unassessed approved trips
// @Tags Optimization
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /optimization/sweep [post]
func (h *BatchHandler) Sweep(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.RunSweep(c.Request.Context(), claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List godoc
// @Summary List proposal groups
// @Tags Optimization
// @Produce json
// @Param status query string false "Comma separated statuses (proposed, approved, rejected)"
// @Success 200 {object} response.Envelope
// @Router /optimization/groups [get]
func (h *BatchHandler) List(c *gin.Context) {
	var filter models.GroupFilter
	if rawStatus := c.Query("status"); rawStatus != "" {
		for _, part := range strings.Split(rawStatus, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			status := models.GroupStatus(part)
			switch status {
			case models.GroupStatusProposed, models.GroupStatusApproved, models.GroupStatusRejected:
				filter.Status = append(filter.Status, status)
			default:
				response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown group status: "+part))
				return
			}
		}
	}
	if rawLimit := c.Query("limit"); rawLimit != "" {
		if limit, err := strconv.Atoi(rawLimit); err == nil {
			filter.Limit = limit
		}
	}
	if rawOffset := c.Query("offset"); rawOffset != "" {
		if offset, err := strconv.Atoi(rawOffset); err == nil {
			filter.Offset = offset
		}
	}
	groups, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil)
}

// Get godoc
// @Summary Get a proposal group with its member trip ids
// @Tags Optimization
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /optimization/groups/{id} [get]
func (h *BatchHandler) Get(c *gin.Context) {
	group, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// Resolve godoc
// @Summary Approve or reject a proposed group
// @Tags Optimization
// @Accept json
// @Produce json
// @Param id path string true "Group ID"
// @Param payload body dto.ResolveGroupRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /optimization/groups/{id}/resolve [post]
func (h *BatchHandler) Resolve(c *gin.Context) {
	var req dto.ResolveGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid resolve payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	group, err := h.service.Resolve(c.Request.Context(), c.Param("id"), req, claims, clientMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}
