package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/fleetops/tripshare-api/internal/middleware"
	"github.com/fleetops/tripshare-api/internal/models"
	"github.com/fleetops/tripshare-api/internal/service"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func clientMeta(c *gin.Context) service.ClientMeta {
	return service.ClientMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}
