package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/tripshare-api/internal/dto"
	"github.com/fleetops/tripshare-api/internal/models"
	"github.com/fleetops/tripshare-api/internal/service"
	appErrors "github.com/fleetops/tripshare-api/pkg/errors"
)

type batchingServiceMock struct {
	sweepResp   *dto.SweepResult
	groupResp   *models.ProposalGroup
	groupErr    error
	listResp    []models.ProposalGroup
	resolveResp *models.ProposalGroup
	resolveErr  error
}

func (m *batchingServiceMock) RunSweep(ctx context.Context, actor models.Actor) (*dto.SweepResult, error) {
	return m.sweepResp, nil
}

func (m *batchingServiceMock) Get(ctx context.Context, id string) (*models.ProposalGroup, error) {
	if m.groupErr != nil {
		return nil, m.groupErr
	}
	return m.groupResp, nil
}

func (m *batchingServiceMock) List(ctx context.Context, filter models.GroupFilter) ([]models.ProposalGroup, error) {
	return m.listResp, nil
}

func (m *batchingServiceMock) Resolve(ctx context.Context, groupID string, req dto.ResolveGroupRequest, admin *models.JWTClaims, meta service.ClientMeta) (*models.ProposalGroup, error) {
	if m.resolveErr != nil {
		return nil, m.resolveErr
	}
	return m.resolveResp, nil
}

func TestBatchHandlerSweep(t *testing.T) {
	h := NewBatchHandler(&batchingServiceMock{
		sweepResp: &dto.SweepResult{CandidatesSeen: 6, GroupsCreated: 1, MarkedSolo: 2},
	})
	c, w := authedContext(t, http.MethodPost, "/optimization/sweep", nil, models.RoleAdmin)

	h.Sweep(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"groupsCreated":1`)
}

func TestBatchHandlerSweepWithoutClaims(t *testing.T) {
	h := NewBatchHandler(&batchingServiceMock{})
	c, w := testContext(t, http.MethodPost, "/optimization/sweep", nil)

	h.Sweep(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBatchHandlerListRejectsUnknownStatus(t *testing.T) {
	h := NewBatchHandler(&batchingServiceMock{})
	c, w := testContext(t, http.MethodGet, "/optimization/groups?status=bogus", nil)

	h.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBatchHandlerResolveConflict(t *testing.T) {
	h := NewBatchHandler(&batchingServiceMock{resolveErr: appErrors.ErrAlreadyResolved})
	c, w := authedContext(t, http.MethodPost, "/optimization/groups/group-1/resolve",
		dto.ResolveGroupRequest{Decision: "approve"}, models.RoleAdmin)
	c.Params = gin.Params{{Key: "id", Value: "group-1"}}

	h.Resolve(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestBatchHandlerResolveInvalidDecision(t *testing.T) {
	h := NewBatchHandler(&batchingServiceMock{})
	c, w := authedContext(t, http.MethodPost, "/optimization/groups/group-1/resolve",
		map[string]string{"decision": "later"}, models.RoleAdmin)
	c.Params = gin.Params{{Key: "id", Value: "group-1"}}

	h.Resolve(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBatchHandlerGetNotFound(t *testing.T) {
	h := NewBatchHandler(&batchingServiceMock{groupErr: appErrors.ErrNotFound})
	c, w := testContext(t, http.MethodGet, "/optimization/groups/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
