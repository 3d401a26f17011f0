package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/tripshare-api/internal/dto"
	"github.com/fleetops/tripshare-api/internal/models"
	"github.com/fleetops/tripshare-api/internal/repository"
	"github.com/fleetops/tripshare-api/pkg/config"
	appErrors "github.com/fleetops/tripshare-api/pkg/errors"
)

type tripStoreStub struct {
	trips map[string]*models.Trip
	err   error
}

func newTripStoreStub() *tripStoreStub {
	return &tripStoreStub{trips: make(map[string]*models.Trip)}
}

func (s *tripStoreStub) Create(ctx context.Context, trip *models.Trip) error {
	if s.err != nil {
		return s.err
	}
	if trip.ID == "" {
		trip.ID = uuid.NewString()
	}
	copied := *trip
	s.trips[trip.ID] = &copied
	return nil
}

func (s *tripStoreStub) GetByID(ctx context.Context, id string) (*models.Trip, error) {
	if s.err != nil {
		return nil, s.err
	}
	trip, ok := s.trips[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *trip
	return &copied, nil
}

func (s *tripStoreStub) List(ctx context.Context, filter models.TripFilter) ([]models.Trip, error) {
	if s.err != nil {
		return nil, s.err
	}
	result := []models.Trip{}
	for _, trip := range s.trips {
		if filter.UserID != "" && trip.UserID != filter.UserID {
			continue
		}
		if len(filter.Status) > 0 {
			match := false
			for _, status := range filter.Status {
				if trip.Status == status {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		result = append(result, *trip)
	}
	return result, nil
}

func (s *tripStoreStub) Transition(ctx context.Context, params repository.TransitionParams) error {
	if s.err != nil {
		return s.err
	}
	trip, ok := s.trips[params.ID]
	if !ok {
		return sql.ErrNoRows
	}
	match := false
	for _, from := range params.From {
		if trip.Status == from {
			match = true
			break
		}
	}
	if !match {
		return sql.ErrNoRows
	}
	trip.Status = params.To
	if params.ManagerApproval != nil {
		trip.ManagerApprovalStatus = *params.ManagerApproval
	}
	return nil
}

func (s *tripStoreStub) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]models.Trip, error) {
	if s.err != nil {
		return nil, s.err
	}
	result := []models.Trip{}
	for _, trip := range s.trips {
		if trip.Status.PendingFamily() && trip.SubmittedAt.Before(cutoff) {
			result = append(result, *trip)
		}
	}
	return result, nil
}

func (s *tripStoreStub) CountPending(ctx context.Context, expiryCutoff time.Time) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	count := 0
	for _, trip := range s.trips {
		if trip.Status.PendingFamily() && trip.SubmittedAt.After(expiryCutoff) {
			count++
		}
	}
	return count, nil
}

func (s *tripStoreStub) ExpireOverdue(ctx context.Context, cutoff time.Time) ([]repository.ExpiredTrip, error) {
	if s.err != nil {
		return nil, s.err
	}
	expired := []repository.ExpiredTrip{}
	for _, trip := range s.trips {
		if trip.Status.PendingFamily() && trip.SubmittedAt.Before(cutoff) {
			expired = append(expired, repository.ExpiredTrip{ID: trip.ID, FromStatus: trip.Status})
			trip.Status = models.StatusExpired
		}
	}
	return expired, nil
}

func (s *tripStoreStub) AssignVehicle(ctx context.Context, params repository.AssignVehicleParams) error {
	if s.err != nil {
		return s.err
	}
	trip, ok := s.trips[params.TripID]
	if !ok {
		return sql.ErrNoRows
	}
	if trip.Status != models.StatusApproved && trip.Status != models.StatusAutoApproved &&
		trip.Status != models.StatusApprovedSolo && trip.Status != models.StatusOptimized {
		return sql.ErrNoRows
	}
	now := time.Now().UTC()
	trip.AssignedVehicleID = &params.VehicleID
	trip.VehicleType = &params.VehicleType
	trip.VehicleAssignedBy = &params.AssignedBy
	trip.VehicleAssignedAt = &now
	trip.VehicleNotes = params.Notes
	return nil
}

type auditStub struct {
	entries []models.AuditEntry
}

func (a *auditStub) Append(ctx context.Context, entry *models.AuditEntry) error {
	a.entries = append(a.entries, *entry)
	return nil
}

func (a *auditStub) ListByTrip(ctx context.Context, tripID string) ([]models.AuditEntry, error) {
	result := []models.AuditEntry{}
	for i := len(a.entries) - 1; i >= 0; i-- {
		if a.entries[i].TripID == tripID {
			result = append(result, a.entries[i])
		}
	}
	return result, nil
}

func (a *auditStub) actions(tripID string) []string {
	actions := []string{}
	for _, entry := range a.entries {
		if entry.TripID == tripID {
			actions = append(actions, entry.Action)
		}
	}
	return actions
}

type tokenIssuerStub struct {
	svc *TokenService
}

func newTokenIssuerStub() *tokenIssuerStub {
	return &tokenIssuerStub{svc: NewTokenService(newTokenRepoStub(), nil)}
}

func (s *tokenIssuerStub) Issue(ctx context.Context, subject string, purpose models.TokenPurpose, ttl time.Duration) (*models.ConfirmationToken, error) {
	return s.svc.Issue(ctx, subject, purpose, ttl)
}

func (s *tokenIssuerStub) Lookup(ctx context.Context, value string) (*models.ConfirmationToken, error) {
	return s.svc.Lookup(ctx, value)
}

func (s *tokenIssuerStub) Redeem(ctx context.Context, value, action string) (*models.ConfirmationToken, error) {
	return s.svc.Redeem(ctx, value, action)
}

type directoryStub struct {
	managers map[string]string
	err      error
}

func (d *directoryStub) ManagerEmail(ctx context.Context, userID string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return d.managers[userID], nil
}

type notifyStub struct {
	sent []Notification
}

func (n *notifyStub) Dispatch(notification Notification) {
	n.sent = append(n.sent, notification)
}

type vehicleStoreStub struct {
	vehicles map[string]*models.Vehicle
}

func (v *vehicleStoreStub) GetByID(ctx context.Context, id string) (*models.Vehicle, error) {
	vehicle, ok := v.vehicles[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *vehicle
	return &copied, nil
}

func (v *vehicleStoreStub) ListAvailable(ctx context.Context, date time.Time, vehicleType string) ([]models.Vehicle, error) {
	result := []models.Vehicle{}
	for _, vehicle := range v.vehicles {
		if vehicleType != "" && vehicle.Type != vehicleType {
			continue
		}
		result = append(result, *vehicle)
	}
	return result, nil
}

type cacheStub struct {
	values map[string]int
	sets   int
}

func (c *cacheStub) GetInt(ctx context.Context, key string) (int, bool) {
	value, ok := c.values[key]
	return value, ok
}

func (c *cacheStub) SetInt(ctx context.Context, key string, value int, ttl time.Duration) {
	if c.values == nil {
		c.values = make(map[string]int)
	}
	c.values[key] = value
	c.sets++
}

type approvalFixture struct {
	svc       *ApprovalService
	trips     *tripStoreStub
	audit     *auditStub
	tokens    *tokenIssuerStub
	directory *directoryStub
	notify    *notifyStub
	vehicles  *vehicleStoreStub
	now       time.Time
}

func newApprovalFixture(t *testing.T, opts ...ApprovalServiceOption) *approvalFixture {
	t.Helper()
	fixture := &approvalFixture{
		trips:     newTripStoreStub(),
		audit:     &auditStub{},
		tokens:    newTokenIssuerStub(),
		directory: &directoryStub{managers: map[string]string{}},
		notify:    &notifyStub{},
		vehicles:  &vehicleStoreStub{vehicles: map[string]*models.Vehicle{}},
		now:       time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	cfg := config.ApprovalConfig{
		TokenTTL:      48 * time.Hour,
		UrgentWindow:  24 * time.Hour,
		PendingExpiry: 48 * time.Hour,
		BadgeCacheTTL: 30 * time.Second,
	}
	allOpts := append([]ApprovalServiceOption{
		WithApprovalClock(func() time.Time { return fixture.now }),
	}, opts...)
	fixture.svc = NewApprovalService(
		fixture.trips, fixture.audit, fixture.tokens, fixture.directory,
		fixture.notify, fixture.vehicles, cfg, nil, allOpts...)
	return fixture
}

func (f *approvalFixture) submitRequest(departureIn time.Duration) dto.SubmitTripRequest {
	return dto.SubmitTripRequest{
		DepartureLocation: "HQ Campus",
		Destination:       "Airport",
		DepartureTime:     f.now.Add(departureIn),
		ReturnTime:        f.now.Add(departureIn + 8*time.Hour),
		Purpose:           "client visit",
	}
}

func employeeClaims(userID string) *models.JWTClaims {
	return &models.JWTClaims{
		UserID: userID,
		Email:  userID + "@corp.test",
		Name:   "Test Employee",
		Role:   models.RoleEmployee,
	}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Email: "admin@corp.test", Name: "Admin", Role: models.RoleAdmin}
}

func TestSubmitWithManagerPendsAndIssuesToken(t *testing.T) {
	f := newApprovalFixture(t)
	f.directory.managers["emp-1"] = "boss@corp.test"

	trip, err := f.svc.Submit(context.Background(), f.submitRequest(72*time.Hour), employeeClaims("emp-1"), ClientMeta{IP: "10.0.0.1"})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPendingApproval, trip.Status)
	assert.False(t, trip.IsUrgent)
	assert.False(t, trip.AutoApproved)
	require.NotNil(t, trip.ManagerEmail)
	assert.Equal(t, "boss@corp.test", *trip.ManagerEmail)

	require.Len(t, f.notify.sent, 1)
	assert.Equal(t, NotifyManagerConfirmation, f.notify.sent[0].Category)
	assert.Contains(t, f.notify.sent[0].Recipients, "boss@corp.test")
	assert.NotEmpty(t, f.notify.sent[0].Data["token"])

	assert.Equal(t, []string{models.AuditActionSubmit}, f.audit.actions(trip.ID))
}

func TestSubmitUrgentWindow(t *testing.T) {
	f := newApprovalFixture(t)
	f.directory.managers["emp-1"] = "boss@corp.test"

	trip, err := f.svc.Submit(context.Background(), f.submitRequest(2*time.Hour), employeeClaims("emp-1"), ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingUrgent, trip.Status)
	assert.True(t, trip.IsUrgent)
}

func TestSubmitWithoutManagerAutoApproves(t *testing.T) {
	f := newApprovalFixture(t)

	trip, err := f.svc.Submit(context.Background(), f.submitRequest(2*time.Hour), employeeClaims("emp-1"), ClientMeta{})
	require.NoError(t, err)

	// Never pending, not even for urgent departures.
	assert.Equal(t, models.StatusAutoApproved, trip.Status)
	assert.True(t, trip.AutoApproved)
	require.NotNil(t, trip.AutoApprovedReason)
	assert.Equal(t, autoApprovedNoManager, *trip.AutoApprovedReason)
	assert.Equal(t, models.ManagerApprovalApproved, trip.ManagerApprovalStatus)

	require.Len(t, f.notify.sent, 1)
	assert.Equal(t, NotifyApprovalResult, f.notify.sent[0].Category)
}

func TestSubmitRejectsPastDeparture(t *testing.T) {
	f := newApprovalFixture(t)
	_, err := f.svc.Submit(context.Background(), f.submitRequest(-time.Hour), employeeClaims("emp-1"), ClientMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSubmitRejectsReturnBeforeDeparture(t *testing.T) {
	f := newApprovalFixture(t)
	req := f.submitRequest(48 * time.Hour)
	req.ReturnTime = req.DepartureTime.Add(-time.Hour)
	_, err := f.svc.Submit(context.Background(), req, employeeClaims("emp-1"), ClientMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRedeemDecisionApproves(t *testing.T) {
	f := newApprovalFixture(t)
	f.directory.managers["emp-1"] = "boss@corp.test"
	trip, err := f.svc.Submit(context.Background(), f.submitRequest(72*time.Hour), employeeClaims("emp-1"), ClientMeta{})
	require.NoError(t, err)
	token := f.notify.sent[0].Data["token"].(string)

	updated, err := f.svc.RedeemDecision(context.Background(), token, dto.RedeemRequest{Action: "approve"}, ClientMeta{IP: "10.0.0.2"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, updated.Status)
	assert.Equal(t, models.ManagerApprovalApproved, updated.ManagerApprovalStatus)

	actions := f.audit.actions(trip.ID)
	assert.Equal(t, []string{models.AuditActionSubmit, models.AuditActionApprove}, actions)
}

func TestRedeemDecisionRejectRecordsReason(t *testing.T) {
	f := newApprovalFixture(t)
	f.directory.managers["emp-1"] = "boss@corp.test"
	trip, err := f.svc.Submit(context.Background(), f.submitRequest(72*time.Hour), employeeClaims("emp-1"), ClientMeta{})
	require.NoError(t, err)
	token := f.notify.sent[0].Data["token"].(string)

	updated, err := f.svc.RedeemDecision(context.Background(), token, dto.RedeemRequest{Action: "reject", Reason: "budget freeze"}, ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, updated.Status)

	entries, err := f.svc.AuditTrail(context.Background(), trip.ID)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, models.AuditActionReject, entries[0].Action)
	require.NotNil(t, entries[0].Note)
	assert.Equal(t, "budget freeze", *entries[0].Note)
}

func TestRedeemDecisionSecondUseAlreadyConsumed(t *testing.T) {
	f := newApprovalFixture(t)
	f.directory.managers["emp-1"] = "boss@corp.test"
	_, err := f.svc.Submit(context.Background(), f.submitRequest(72*time.Hour), employeeClaims("emp-1"), ClientMeta{})
	require.NoError(t, err)
	token := f.notify.sent[0].Data["token"].(string)

	_, err = f.svc.RedeemDecision(context.Background(), token, dto.RedeemRequest{Action: "approve"}, ClientMeta{})
	require.NoError(t, err)

	_, err = f.svc.RedeemDecision(context.Background(), token, dto.RedeemRequest{Action: "reject"}, ClientMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyResolved.Code, appErrors.FromError(err).Code)
}

func TestRedeemDecisionAfterOverrideKeepsTokenUnconsumed(t *testing.T) {
	f := newApprovalFixture(t)
	f.directory.managers["emp-1"] = "boss@corp.test"
	trip, err := f.svc.Submit(context.Background(), f.submitRequest(72*time.Hour), employeeClaims("emp-1"), ClientMeta{})
	require.NoError(t, err)
	token := f.notify.sent[0].Data["token"].(string)

	_, err = f.svc.AdminOverride(context.Background(), trip.ID, dto.OverrideRequest{Decision: "approve", Note: "travel desk"}, adminClaims(), ClientMeta{})
	require.NoError(t, err)

	_, err = f.svc.RedeemDecision(context.Background(), token, dto.RedeemRequest{Action: "reject"}, ClientMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyResolved.Code, appErrors.FromError(err).Code)

	// The trip was resolved first, so the token must not be burned.
	record, err := f.tokens.Lookup(context.Background(), token)
	require.NoError(t, err)
	assert.False(t, record.Consumed)
}

func TestAdminOverrideAuditsDistinctly(t *testing.T) {
	f := newApprovalFixture(t)
	f.directory.managers["emp-1"] = "boss@corp.test"
	trip, err := f.svc.Submit(context.Background(), f.submitRequest(72*time.Hour), employeeClaims("emp-1"), ClientMeta{})
	require.NoError(t, err)

	updated, err := f.svc.AdminOverride(context.Background(), trip.ID, dto.OverrideRequest{Decision: "reject", Note: "duplicate request"}, adminClaims(), ClientMeta{IP: "10.0.0.9"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, updated.Status)

	entries, err := f.svc.AuditTrail(context.Background(), trip.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuditActionAdminOverride, entries[0].Action)
	require.NotNil(t, entries[0].Note)
	assert.Equal(t, "manual override: duplicate request", *entries[0].Note)
	assert.Equal(t, string(models.RoleAdmin), entries[0].ActorRole)
}

func TestAdminOverrideOnResolvedTripConflicts(t *testing.T) {
	f := newApprovalFixture(t)
	f.directory.managers["emp-1"] = "boss@corp.test"
	trip, err := f.svc.Submit(context.Background(), f.submitRequest(72*time.Hour), employeeClaims("emp-1"), ClientMeta{})
	require.NoError(t, err)

	_, err = f.svc.AdminOverride(context.Background(), trip.ID, dto.OverrideRequest{Decision: "approve", Note: "ok"}, adminClaims(), ClientMeta{})
	require.NoError(t, err)

	_, err = f.svc.AdminOverride(context.Background(), trip.ID, dto.OverrideRequest{Decision: "reject", Note: "no"}, adminClaims(), ClientMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyResolved.Code, appErrors.FromError(err).Code)
}

func TestExpireOverdueAuditsEachTrip(t *testing.T) {
	f := newApprovalFixture(t)
	f.directory.managers["emp-1"] = "boss@corp.test"
	trip, err := f.svc.Submit(context.Background(), f.submitRequest(96*time.Hour), employeeClaims("emp-1"), ClientMeta{})
	require.NoError(t, err)

	// Advance past the pending expiry window.
	f.now = f.now.Add(49 * time.Hour)
	expired, err := f.svc.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	stored, err := f.svc.Get(context.Background(), trip.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, stored.Status)
	assert.Contains(t, f.audit.actions(trip.ID), models.AuditActionExpire)

	// The entry records the pending status the trip held before the flip.
	var expireEntry *models.AuditEntry
	for i := range f.audit.entries {
		if f.audit.entries[i].TripID == trip.ID && f.audit.entries[i].Action == models.AuditActionExpire {
			expireEntry = &f.audit.entries[i]
		}
	}
	require.NotNil(t, expireEntry)
	require.NotNil(t, expireEntry.OldStatus)
	assert.Equal(t, models.StatusPendingApproval, *expireEntry.OldStatus)
	require.NotNil(t, expireEntry.NewStatus)
	assert.Equal(t, models.StatusExpired, *expireEntry.NewStatus)

	// A second sweep finds nothing.
	expired, err = f.svc.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, expired)
}

func TestPendingCountUsesCache(t *testing.T) {
	cache := &cacheStub{}
	f := newApprovalFixture(t, WithBadgeCache(cache))
	f.directory.managers["emp-1"] = "boss@corp.test"
	_, err := f.svc.Submit(context.Background(), f.submitRequest(72*time.Hour), employeeClaims("emp-1"), ClientMeta{})
	require.NoError(t, err)

	count, err := f.svc.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, cache.sets)

	// Second read is served from cache without recounting.
	cache.values[badgeCountKey] = 7
	count, err = f.svc.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.Equal(t, 1, cache.sets)
}

func TestAssignVehicle(t *testing.T) {
	f := newApprovalFixture(t)
	f.vehicles.vehicles["veh-1"] = &models.Vehicle{ID: "veh-1", Name: "Van 3", Type: "van", Tier: models.TierVan, Capacity: 12}
	trip, err := f.svc.Submit(context.Background(), f.submitRequest(72*time.Hour), employeeClaims("emp-1"), ClientMeta{})
	require.NoError(t, err) // no manager, auto approved

	updated, err := f.svc.AssignVehicle(context.Background(), trip.ID, dto.AssignVehicleRequest{VehicleID: "veh-1", Notes: "early pickup"}, adminClaims(), ClientMeta{})
	require.NoError(t, err)
	require.NotNil(t, updated.AssignedVehicleID)
	assert.Equal(t, "veh-1", *updated.AssignedVehicleID)
	assert.Contains(t, f.audit.actions(trip.ID), models.AuditActionAssignVehicle)
}

func TestAssignVehicleUnknownVehicle(t *testing.T) {
	f := newApprovalFixture(t)
	trip, err := f.svc.Submit(context.Background(), f.submitRequest(72*time.Hour), employeeClaims("emp-1"), ClientMeta{})
	require.NoError(t, err)

	_, err = f.svc.AssignVehicle(context.Background(), trip.ID, dto.AssignVehicleRequest{VehicleID: "missing"}, adminClaims(), ClientMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExceptionQueueFiltersByAge(t *testing.T) {
	f := newApprovalFixture(t)
	f.directory.managers["emp-1"] = "boss@corp.test"
	old, err := f.svc.Submit(context.Background(), f.submitRequest(90*time.Hour), employeeClaims("emp-1"), ClientMeta{})
	require.NoError(t, err)

	f.now = f.now.Add(30 * time.Hour)
	fresh, err := f.svc.Submit(context.Background(), f.submitRequest(90*time.Hour), employeeClaims("emp-1"), ClientMeta{})
	require.NoError(t, err)

	trips, err := f.svc.ExceptionQueue(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, old.ID, trips[0].ID)
	assert.NotEqual(t, fresh.ID, trips[0].ID)
}
