package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/fleetops/tripshare-api/internal/dto"
	"github.com/fleetops/tripshare-api/internal/models"
	"github.com/fleetops/tripshare-api/internal/repository"
	"github.com/fleetops/tripshare-api/pkg/config"
	appErrors "github.com/fleetops/tripshare-api/pkg/errors"
)

const autoApprovedNoManager = "no confirmed manager on submitter profile"

type tripStore interface {
	Create(ctx context.Context, trip *models.Trip) error
	GetByID(ctx context.Context, id string) (*models.Trip, error)
	List(ctx context.Context, filter models.TripFilter) ([]models.Trip, error)
	Transition(ctx context.Context, params repository.TransitionParams) error
	ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]models.Trip, error)
	CountPending(ctx context.Context, expiryCutoff time.Time) (int, error)
	ExpireOverdue(ctx context.Context, cutoff time.Time) ([]repository.ExpiredTrip, error)
	AssignVehicle(ctx context.Context, params repository.AssignVehicleParams) error
}

type auditAppender interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	ListByTrip(ctx context.Context, tripID string) ([]models.AuditEntry, error)
}

type tokenIssuer interface {
	Issue(ctx context.Context, subject string, purpose models.TokenPurpose, ttl time.Duration) (*models.ConfirmationToken, error)
	Lookup(ctx context.Context, value string) (*models.ConfirmationToken, error)
	Redeem(ctx context.Context, value, action string) (*models.ConfirmationToken, error)
}

type notifySink interface {
	Dispatch(n Notification)
}

type countCache interface {
	GetInt(ctx context.Context, key string) (int, bool)
	SetInt(ctx context.Context, key string, value int, ttl time.Duration)
}

type vehicleStore interface {
	GetByID(ctx context.Context, id string) (*models.Vehicle, error)
	ListAvailable(ctx context.Context, date time.Time, vehicleType string) ([]models.Vehicle, error)
}

// ClientMeta carries request metadata into audit entries.
type ClientMeta struct {
	IP        string
	UserAgent string
}

const badgeCountKey = "trips:pending:count"

// ApprovalService owns the trip from submission through approval
// resolution.
type ApprovalService struct {
	trips     tripStore
	audit     auditAppender
	tokens    tokenIssuer
	directory ManagerDirectory
	notify    notifySink
	vehicles  vehicleStore
	cache     countCache
	metrics   *MetricsService
	cfg       config.ApprovalConfig
	logger    *zap.Logger
	now       func() time.Time
}

// ApprovalServiceOption configures the service.
type ApprovalServiceOption func(*ApprovalService)

// WithApprovalClock overrides the clock, for tests.
func WithApprovalClock(now func() time.Time) ApprovalServiceOption {
	return func(s *ApprovalService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBadgeCache wires the pending-count cache.
func WithBadgeCache(cache countCache) ApprovalServiceOption {
	return func(s *ApprovalService) { s.cache = cache }
}

// WithApprovalMetrics wires domain counters.
func WithApprovalMetrics(metrics *MetricsService) ApprovalServiceOption {
	return func(s *ApprovalService) { s.metrics = metrics }
}

// NewApprovalService constructs the service.
func NewApprovalService(
	trips tripStore,
	audit auditAppender,
	tokens tokenIssuer,
	directory ManagerDirectory,
	notify notifySink,
	vehicles vehicleStore,
	cfg config.ApprovalConfig,
	logger *zap.Logger,
	opts ...ApprovalServiceOption,
) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ApprovalService{
		trips:     trips,
		audit:     audit,
		tokens:    tokens,
		directory: directory,
		notify:    notify,
		vehicles:  vehicles,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Submit creates a trip, deciding urgency and auto-approval once at
// submission time, and kicks off manager confirmation when a manager
// is on file.
func (s *ApprovalService) Submit(ctx context.Context, req dto.SubmitTripRequest, submitter *models.JWTClaims, meta ClientMeta) (*models.Trip, error) {
	if submitter == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := validateSubmission(req, s.now()); err != nil {
		return nil, err
	}

	managerEmail, err := s.directory.ManagerEmail(ctx, submitter.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve manager")
	}

	now := s.now()
	isUrgent := req.DepartureTime.Sub(now) < s.cfg.UrgentWindow

	trip := &models.Trip{
		UserID:                submitter.UserID,
		UserEmail:             submitter.Email,
		UserName:              submitter.Name,
		DepartureLocation:     strings.TrimSpace(req.DepartureLocation),
		Destination:           strings.TrimSpace(req.Destination),
		DepartureTime:         req.DepartureTime.UTC(),
		ReturnTime:            req.ReturnTime.UTC(),
		Purpose:               strings.TrimSpace(req.Purpose),
		ManagerApprovalStatus: models.ManagerApprovalPending,
		IsUrgent:              isUrgent,
		DataType:              models.DataTypeRaw,
		SubmittedAt:           now,
	}

	if managerEmail == "" {
		// Absence of a manager is the normal auto-approval trigger,
		// not an error.
		trip.Status = models.StatusAutoApproved
		trip.AutoApproved = true
		reason := autoApprovedNoManager
		trip.AutoApprovedReason = &reason
		trip.ManagerApprovalStatus = models.ManagerApprovalApproved
	} else {
		trip.ManagerEmail = &managerEmail
		if isUrgent {
			trip.Status = models.StatusPendingUrgent
		} else {
			trip.Status = models.StatusPendingApproval
		}
	}

	if err := s.trips.Create(ctx, trip); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create trip")
	}

	s.emitAudit(ctx, trip.ID, models.AuditActionSubmit, submitter.Actor(), nil, &trip.Status, nil, meta)

	if managerEmail != "" {
		token, err := s.tokens.Issue(ctx, trip.ID, models.TokenPurposeTripApproval, s.cfg.TokenTTL)
		if err != nil {
			// The trip exists; the manager can still act via the
			// admin override path if the link never goes out.
			s.logger.Error("failed to issue confirmation token", zap.String("trip_id", trip.ID), zap.Error(err))
		} else {
			s.notify.Dispatch(Notification{
				Category:   NotifyManagerConfirmation,
				Recipients: append([]string{managerEmail}, req.CCEmails...),
				Data: map[string]interface{}{
					"tripId":        trip.ID,
					"employee":      trip.UserName,
					"destination":   trip.Destination,
					"departureTime": trip.DepartureTime,
					"urgent":        trip.IsUrgent,
					"token":         token.Token,
					"expiresAt":     token.ExpiresAt,
				},
			})
		}
	} else {
		s.notify.Dispatch(Notification{
			Category:   NotifyApprovalResult,
			Recipients: append([]string{trip.UserEmail}, req.CCEmails...),
			Data: map[string]interface{}{
				"tripId": trip.ID,
				"status": trip.Status,
				"reason": autoApprovedNoManager,
			},
		})
	}

	return trip, nil
}

// RedeemDecision applies a manager decision delivered through a
// confirmation link. Duplicate clicks and concurrent redemptions are
// tolerated: the trip is mutated at most once.
func (s *ApprovalService) RedeemDecision(ctx context.Context, tokenValue string, req dto.RedeemRequest, meta ClientMeta) (*models.Trip, error) {
	record, err := s.tokens.Lookup(ctx, tokenValue)
	if err != nil {
		return nil, err
	}
	trip, err := s.getTrip(ctx, record.Subject)
	if err != nil {
		return nil, err
	}
	if !trip.Status.PendingFamily() {
		return nil, appErrors.Clone(appErrors.ErrAlreadyResolved, "trip already resolved")
	}

	if _, err := s.tokens.Redeem(ctx, tokenValue, req.Action); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncTokensRedeemed()
	}

	actor := models.Actor{Role: string(models.RoleManager)}
	if trip.ManagerEmail != nil {
		actor.Email = *trip.ManagerEmail
	}
	var note *string
	if strings.TrimSpace(req.Reason) != "" {
		reason := strings.TrimSpace(req.Reason)
		note = &reason
	}

	switch req.Action {
	case "approve":
		return s.decide(ctx, trip, models.StatusApproved, models.ManagerApprovalApproved, models.AuditActionApprove, actor, note, meta)
	case "reject":
		return s.decide(ctx, trip, models.StatusRejected, models.ManagerApprovalRejected, models.AuditActionReject, actor, note, meta)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "action must be approve or reject")
	}
}

// AdminOverride resolves a pending trip directly, bypassing the
// manager token flow. Logged distinctly from manager actions.
func (s *ApprovalService) AdminOverride(ctx context.Context, tripID string, req dto.OverrideRequest, admin *models.JWTClaims, meta ClientMeta) (*models.Trip, error) {
	if admin == nil {
		return nil, appErrors.ErrUnauthorized
	}
	trip, err := s.getTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !trip.Status.PendingFamily() {
		return nil, appErrors.Clone(appErrors.ErrAlreadyResolved, "trip already resolved")
	}

	note := fmt.Sprintf("manual override: %s", strings.TrimSpace(req.Note))
	actor := admin.Actor()
	actor.Role = string(models.RoleAdmin)

	switch req.Decision {
	case "approve":
		return s.decide(ctx, trip, models.StatusApproved, models.ManagerApprovalApproved, models.AuditActionAdminOverride, actor, &note, meta)
	case "reject":
		return s.decide(ctx, trip, models.StatusRejected, models.ManagerApprovalRejected, models.AuditActionAdminOverride, actor, &note, meta)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "decision must be approve or reject")
	}
}

// decide applies the transition as a compare-and-set against the
// pending family so exactly one concurrent decision wins.
func (s *ApprovalService) decide(
	ctx context.Context,
	trip *models.Trip,
	to models.TripStatus,
	approval models.ManagerApprovalStatus,
	action string,
	actor models.Actor,
	note *string,
	meta ClientMeta,
) (*models.Trip, error) {
	oldStatus := trip.Status
	err := s.trips.Transition(ctx, repository.TransitionParams{
		ID:              trip.ID,
		From:            []models.TripStatus{models.StatusPendingApproval, models.StatusPendingUrgent},
		To:              to,
		ManagerApproval: &approval,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyResolved, "trip already resolved")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update trip")
	}
	trip.Status = to
	trip.ManagerApprovalStatus = approval

	s.emitAudit(ctx, trip.ID, action, actor, &oldStatus, &to, note, meta)
	s.notify.Dispatch(Notification{
		Category:   NotifyApprovalResult,
		Recipients: []string{trip.UserEmail},
		Data: map[string]interface{}{
			"tripId": trip.ID,
			"status": to,
		},
	})
	return trip, nil
}

// ExpireOverdue flips pending trips past the configured age to
// expired. Safe to run at any interval or on demand.
func (s *ApprovalService) ExpireOverdue(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.PendingExpiry)
	rows, err := s.trips.ExpireOverdue(ctx, cutoff)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire trips")
	}
	expired := models.StatusExpired
	for _, row := range rows {
		from := row.FromStatus
		s.emitAudit(ctx, row.ID, models.AuditActionExpire,
			models.Actor{Email: "system", Name: "expiry sweep", Role: "system"},
			&from, &expired, nil, ClientMeta{IP: "system", UserAgent: "expiry-sweep"})
	}
	if s.metrics != nil && len(rows) > 0 {
		s.metrics.AddTripsExpired(len(rows))
	}
	return len(rows), nil
}

// ExceptionQueue lists trips still awaiting a manager decision older
// than the given age.
func (s *ApprovalService) ExceptionQueue(ctx context.Context, olderThan time.Duration) ([]models.Trip, error) {
	trips, err := s.trips.ListPendingOlderThan(ctx, s.now().Add(-olderThan))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending trips")
	}
	return trips, nil
}

// PendingCount returns the badge count, served from cache when fresh.
// Rows already past expiry are excluded even before the sweep flips
// them, so the badge never counts dead requests.
func (s *ApprovalService) PendingCount(ctx context.Context) (int, error) {
	if s.cache != nil {
		if count, ok := s.cache.GetInt(ctx, badgeCountKey); ok {
			return count, nil
		}
	}
	count, err := s.trips.CountPending(ctx, s.now().Add(-s.cfg.PendingExpiry))
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count pending trips")
	}
	if s.cache != nil {
		s.cache.SetInt(ctx, badgeCountKey, count, s.cfg.BadgeCacheTTL)
	}
	return count, nil
}

// Get returns a trip.
func (s *ApprovalService) Get(ctx context.Context, id string) (*models.Trip, error) {
	return s.getTrip(ctx, id)
}

// List returns trips matching the query.
func (s *ApprovalService) List(ctx context.Context, query dto.TripQuery) ([]models.Trip, error) {
	trips, err := s.trips.List(ctx, models.TripFilter{
		Status:   query.Status,
		UserID:   query.UserID,
		DataType: query.DataType,
		Limit:    query.Limit,
		Offset:   query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list trips")
	}
	return trips, nil
}

// AuditTrail returns a trip's audit entries, newest first.
func (s *ApprovalService) AuditTrail(ctx context.Context, tripID string) ([]models.AuditEntry, error) {
	if _, err := s.getTrip(ctx, tripID); err != nil {
		return nil, err
	}
	entries, err := s.audit.ListByTrip(ctx, tripID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit entries")
	}
	return entries, nil
}

// AssignVehicle attaches a concrete vehicle to an approved or
// optimized trip after checking it against the fleet directory.
func (s *ApprovalService) AssignVehicle(ctx context.Context, tripID string, req dto.AssignVehicleRequest, admin *models.JWTClaims, meta ClientMeta) (*models.Trip, error) {
	if admin == nil {
		return nil, appErrors.ErrUnauthorized
	}
	vehicle, err := s.vehicles.GetByID(ctx, req.VehicleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "vehicle not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load vehicle")
	}

	var notes *string
	if strings.TrimSpace(req.Notes) != "" {
		n := strings.TrimSpace(req.Notes)
		notes = &n
	}
	err = s.trips.AssignVehicle(ctx, repository.AssignVehicleParams{
		TripID:      tripID,
		VehicleID:   vehicle.ID,
		VehicleType: vehicle.Type,
		AssignedBy:  admin.Email,
		Notes:       notes,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "trip not eligible for vehicle assignment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign vehicle")
	}

	trip, err := s.getTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	note := fmt.Sprintf("assigned vehicle %s (%s)", vehicle.Name, vehicle.Type)
	s.emitAudit(ctx, tripID, models.AuditActionAssignVehicle, admin.Actor(), nil, nil, &note, meta)
	return trip, nil
}

// AvailableVehicles lists vehicles free on the given date.
func (s *ApprovalService) AvailableVehicles(ctx context.Context, date time.Time, vehicleType string) ([]models.Vehicle, error) {
	vehicles, err := s.vehicles.ListAvailable(ctx, date, vehicleType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list vehicles")
	}
	return vehicles, nil
}

func (s *ApprovalService) getTrip(ctx context.Context, id string) (*models.Trip, error) {
	trip, err := s.trips.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trip")
	}
	return trip, nil
}

// emitAudit records a ledger entry. Best effort only: audit-write
// failure never rolls back or fails the guarded transition.
func (s *ApprovalService) emitAudit(ctx context.Context, tripID, action string, actor models.Actor, oldStatus, newStatus *models.TripStatus, note *string, meta ClientMeta) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditEntry{
		TripID:     tripID,
		Action:     action,
		ActorEmail: actor.Email,
		ActorName:  actor.Name,
		ActorRole:  actor.Role,
		OldStatus:  oldStatus,
		NewStatus:  newStatus,
		Note:       note,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit entry", zap.String("trip_id", tripID), zap.Error(err))
	}
}

// submissionValidator re-checks struct tags so non-HTTP callers (the
// import path, tests) get the same field validation as gin binding.
var submissionValidator = newSubmissionValidator()

func newSubmissionValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	return v
}

func validateSubmission(req dto.SubmitTripRequest, now time.Time) error {
	if err := submissionValidator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid trip submission")
	}
	if strings.TrimSpace(req.DepartureLocation) == "" || strings.TrimSpace(req.Destination) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "departure location and destination are required")
	}
	if strings.TrimSpace(req.Purpose) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "purpose is required")
	}
	if !req.ReturnTime.After(req.DepartureTime) {
		return appErrors.Clone(appErrors.ErrValidation, "return time must be after departure")
	}
	if req.DepartureTime.Before(now) {
		return appErrors.Clone(appErrors.ErrValidation, "departure time must be in the future")
	}
	return nil
}
