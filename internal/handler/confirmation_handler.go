package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleetops/tripshare-api/internal/dto"
	"github.com/fleetops/tripshare-api/internal/models"
	"github.com/fleetops/tripshare-api/internal/service"
	appErrors "github.com/fleetops/tripshare-api/pkg/errors"
	"github.com/fleetops/tripshare-api/pkg/response"
)

type confirmationService interface {
	RedeemDecision(ctx context.Context, tokenValue string, req dto.RedeemRequest, meta service.ClientMeta) (*models.Trip, error)
}

// ConfirmationHandler redeems single-use manager confirmation tokens.
// The route is deliberately unauthenticated: possession of the token
// is the credential, same as the email link that carries it.
type ConfirmationHandler struct {
	service confirmationService
}

// NewConfirmationHandler constructs the handler.
func NewConfirmationHandler(service confirmationService) *ConfirmationHandler {
	return &ConfirmationHandler{service: service}
}

// Redeem godoc
// @Summary Redeem a confirmation token and apply the manager decision
// @Tags Confirmations
// @Accept json
// @Produce json
// @Param token path string true "Confirmation token"
// @Param payload body dto.RedeemRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /confirmations/{token} [post]
func (h *ConfirmationHandler) Redeem(c *gin.Context) {
	var req dto.RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid confirmation payload"))
		return
	}
	trip, err := h.service.RedeemDecision(c.Request.Context(), c.Param("token"), req, clientMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trip, nil)
}
