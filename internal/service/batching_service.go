package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fleetops/tripshare-api/internal/dto"
	"github.com/fleetops/tripshare-api/internal/models"
	"github.com/fleetops/tripshare-api/internal/repository"
	"github.com/fleetops/tripshare-api/pkg/config"
	appErrors "github.com/fleetops/tripshare-api/pkg/errors"
)

type candidateStore interface {
	ListCandidates(ctx context.Context) ([]models.Trip, error)
	Transition(ctx context.Context, params repository.TransitionParams) error
}

type groupStore interface {
	CreateWithMembers(ctx context.Context, group *models.ProposalGroup, tempTrips []models.Trip) error
	GetByID(ctx context.Context, id string) (*models.ProposalGroup, error)
	List(ctx context.Context, filter models.GroupFilter) ([]models.ProposalGroup, error)
	Resolve(ctx context.Context, id string, approve bool, resolvedBy string) (*models.ProposalGroup, []models.Trip, error)
}

// BatchingService groups compatible approved trips into shared-vehicle
// proposals and finalises admin decisions on them.
type BatchingService struct {
	trips   candidateStore
	groups  groupStore
	audit   auditAppender
	notify  notifySink
	metrics *MetricsService
	cfg     config.BatchingConfig
	rates   config.VehicleRatesConfig
	logger  *zap.Logger
}

// NewBatchingService constructs the service.
func NewBatchingService(
	trips candidateStore,
	groups groupStore,
	audit auditAppender,
	notify notifySink,
	cfg config.BatchingConfig,
	rates config.VehicleRatesConfig,
	logger *zap.Logger,
) *BatchingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchingService{
		trips:  trips,
		groups: groups,
		audit:  audit,
		notify: notify,
		cfg:    cfg,
		rates:  rates,
		logger: logger,
	}
}

// WithBatchingMetrics wires domain counters.
func (s *BatchingService) WithBatchingMetrics(metrics *MetricsService) *BatchingService {
	s.metrics = metrics
	return s
}

// partitionKey identifies trips shareable on the same route and day.
type partitionKey struct {
	Date        string
	Origin      string
	Destination string
}

// RunSweep scans eligible trips and turns each compatible partition
// into at most one proposal. Trips already linked to a group are
// excluded by the candidate query, so re-running the sweep with no
// intervening changes creates nothing new. Failures on one partition
// never stop the rest of the sweep.
func (s *BatchingService) RunSweep(ctx context.Context, actor models.Actor) (*dto.SweepResult, error) {
	candidates, err := s.trips.ListCandidates(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list candidates")
	}

	result := &dto.SweepResult{CandidatesSeen: len(candidates)}

	partitions := make(map[partitionKey][]models.Trip)
	keys := make([]partitionKey, 0)
	for _, trip := range candidates {
		key := partitionKey{
			Date:        trip.DepartureTime.UTC().Format("2006-01-02"),
			Origin:      normalizeLocation(trip.DepartureLocation),
			Destination: normalizeLocation(trip.Destination),
		}
		if _, seen := partitions[key]; !seen {
			keys = append(keys, key)
		}
		partitions[key] = append(partitions[key], trip)
	}
	// Deterministic sweep order so repeated runs propose identically.
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Origin != b.Origin {
			return a.Origin < b.Origin
		}
		return a.Destination < b.Destination
	})

	for _, key := range keys {
		members := partitions[key]
		if len(members) < 2 {
			result.MarkedSolo += s.markSolo(ctx, members, "no compatible partner on route")
			continue
		}

		mean, maxDeviation := departureSpread(members)
		if maxDeviation > float64(s.cfg.ToleranceMinutes) {
			result.MarkedSolo += s.markSolo(ctx, members,
				fmt.Sprintf("departure spread exceeds %d minute tolerance", s.cfg.ToleranceMinutes))
			continue
		}

		tier, ok := models.TierForHeadcount(len(members))
		if !ok {
			result.MarkedSolo += s.markSolo(ctx, members, "headcount exceeds largest vehicle")
			continue
		}

		savings, savingsPct := s.estimateSavings(len(members), tier)
		if savingsPct < s.cfg.MinSavingsPct {
			result.MarkedSolo += s.markSolo(ctx, members,
				fmt.Sprintf("estimated savings %.0f%% below threshold", savingsPct*100))
			continue
		}

		proposedTime := proposedDeparture(members[0].DepartureTime, mean)
		if err := s.propose(ctx, key, members, tier, proposedTime, savings, savingsPct, actor); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				// A concurrent sweep claimed one of the members; the
				// next run will pick up whatever remains unlinked.
				s.logger.Info("partition lost to concurrent sweep",
					zap.String("date", key.Date), zap.String("origin", key.Origin))
				continue
			}
			s.logger.Error("failed to create proposal group",
				zap.String("date", key.Date), zap.String("origin", key.Origin), zap.Error(err))
			continue
		}
		result.GroupsCreated++
	}

	if s.metrics != nil {
		s.metrics.IncSweeps()
		s.metrics.AddProposalsCreated(result.GroupsCreated)
		s.metrics.AddTripsMarkedSolo(result.MarkedSolo)
	}
	return result, nil
}

func (s *BatchingService) propose(
	ctx context.Context,
	key partitionKey,
	members []models.Trip,
	tier models.VehicleTier,
	proposedTime time.Time,
	savings, savingsPct float64,
	actor models.Actor,
) error {
	memberIDs := make([]string, len(members))
	for i, trip := range members {
		memberIDs[i] = trip.ID
	}

	group := &models.ProposalGroup{
		DepartureDate:     key.Date,
		DepartureLocation: members[0].DepartureLocation,
		Destination:       members[0].Destination,
		ProposedTime:      proposedTime,
		VehicleTier:       tier,
		EstimatedSavings:  savings,
		SavingsPct:        savingsPct,
		CreatedBy:         actor.Email,
		MemberTripIDs:     memberIDs,
	}

	tempTrips := make([]models.Trip, 0, len(members))
	tierName := string(tier)
	for i := range members {
		member := members[i]
		original := member.DepartureTime
		temp := member
		temp.ID = ""
		temp.DataType = models.DataTypeTemp
		temp.Status = models.StatusProposed
		temp.ParentTripID = &member.ID
		temp.DepartureTime = proposedTime
		temp.OriginalDepartureTime = &original
		temp.VehicleType = &tierName
		tempTrips = append(tempTrips, temp)
	}

	if err := s.groups.CreateWithMembers(ctx, group, tempTrips); err != nil {
		return err
	}

	proposed := models.StatusProposed
	note := fmt.Sprintf("proposed shared %s departing %s, estimated savings %.0f%%",
		tier, proposedTime.Format("15:04"), savingsPct*100)
	for _, trip := range members {
		oldStatus := trip.Status
		s.emitAudit(ctx, trip.ID, models.AuditActionPropose, actor, &oldStatus, &proposed, &note)
	}
	return nil
}

// markSolo flags every partition member as evaluated-but-ungroupable.
// Members claimed by a concurrent sweep are skipped silently.
func (s *BatchingService) markSolo(ctx context.Context, members []models.Trip, reason string) int {
	marked := 0
	solo := models.StatusApprovedSolo
	actor := models.Actor{Email: "system", Name: "batching sweep", Role: "system"}
	for _, trip := range members {
		oldStatus := trip.Status
		err := s.trips.Transition(ctx, repository.TransitionParams{
			ID:   trip.ID,
			From: []models.TripStatus{models.StatusApproved, models.StatusAutoApproved},
			To:   models.StatusApprovedSolo,
		})
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				s.logger.Error("failed to mark trip solo", zap.String("trip_id", trip.ID), zap.Error(err))
			}
			continue
		}
		s.emitAudit(ctx, trip.ID, models.AuditActionMarkSolo, actor, &oldStatus, &solo, &reason)
		marked++
	}
	return marked
}

// Resolve applies an admin decision on a proposed group. Exactly one
// of any concurrent resolutions succeeds; the rest observe
// AlreadyResolved.
func (s *BatchingService) Resolve(ctx context.Context, groupID string, req dto.ResolveGroupRequest, admin *models.JWTClaims, meta ClientMeta) (*models.ProposalGroup, error) {
	if admin == nil {
		return nil, appErrors.ErrUnauthorized
	}
	approve := req.Decision == "approve"

	group, members, err := s.groups.Resolve(ctx, groupID, approve, admin.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, lookupErr := s.groups.GetByID(ctx, groupID); lookupErr != nil {
				if errors.Is(lookupErr, sql.ErrNoRows) {
					return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal group not found")
				}
			}
			return nil, appErrors.Clone(appErrors.ErrAlreadyResolved, "proposal group already resolved")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve group")
	}

	action := models.AuditActionGroupReject
	if approve {
		action = models.AuditActionOptimize
	}
	actor := admin.Actor()
	var note string
	if strings.TrimSpace(req.Note) != "" {
		note = strings.TrimSpace(req.Note)
	} else if approve {
		note = fmt.Sprintf("shared %s confirmed for %s", group.VehicleTier, group.ProposedTime.Format("2006-01-02 15:04"))
	} else {
		note = "shared-vehicle proposal declined"
	}

	// Decisions are made at group granularity but recorded per trip so
	// each trip's trail stays complete. Members sit on proposed until
	// the resolve transaction rewrites them.
	proposed := models.StatusProposed
	recipients := make([]string, 0, len(members))
	for _, trip := range members {
		newStatus := trip.Status
		s.emitAudit(ctx, trip.ID, action, actor, &proposed, &newStatus, &note)
		recipients = append(recipients, trip.UserEmail)
	}
	s.notify.Dispatch(Notification{
		Category:   NotifyProposalResult,
		Recipients: recipients,
		Data: map[string]interface{}{
			"groupId":      group.ID,
			"approved":     approve,
			"vehicleTier":  group.VehicleTier,
			"proposedTime": group.ProposedTime,
		},
	})
	return group, nil
}

// Get returns a proposal group with its members.
func (s *BatchingService) Get(ctx context.Context, id string) (*models.ProposalGroup, error) {
	group, err := s.groups.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	return group, nil
}

// List returns proposal groups matching the filter.
func (s *BatchingService) List(ctx context.Context, filter models.GroupFilter) ([]models.ProposalGroup, error) {
	groups, err := s.groups.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list groups")
	}
	return groups, nil
}

func (s *BatchingService) emitAudit(ctx context.Context, tripID, action string, actor models.Actor, oldStatus, newStatus *models.TripStatus, note *string) {
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
		IPAddress:  "system",
		UserAgent:  "batching-service",
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit entry", zap.String("trip_id", tripID), zap.Error(err))
	}
}

// estimateSavings compares everyone driving the smallest car alone
// against one shared vehicle of the selected tier, over a flat
// per-route distance assumption.
func (s *BatchingService) estimateSavings(memberCount int, tier models.VehicleTier) (savings, pct float64) {
	individual := float64(memberCount) * s.cfg.AssumedDistanceKm * s.rateFor(models.TierSmallCar)
	combined := s.cfg.AssumedDistanceKm * s.rateFor(tier)
	savings = individual - combined
	if individual > 0 {
		pct = savings / individual
	}
	return savings, pct
}

func (s *BatchingService) rateFor(tier models.VehicleTier) float64 {
	switch tier {
	case models.TierMidCar:
		return s.rates.MidPerKm
	case models.TierVan:
		return s.rates.VanPerKm
	default:
		return s.rates.SmallPerKm
	}
}

// departureSpread returns the partition's mean departure in minutes
// since midnight and the maximum absolute deviation from it.
func departureSpread(members []models.Trip) (mean float64, maxDeviation float64) {
	minutes := make([]float64, len(members))
	var sum float64
	for i, trip := range members {
		t := trip.DepartureTime.UTC()
		minutes[i] = float64(t.Hour()*60 + t.Minute())
		sum += minutes[i]
	}
	mean = sum / float64(len(members))
	for _, m := range minutes {
		if deviation := math.Abs(m - mean); deviation > maxDeviation {
			maxDeviation = deviation
		}
	}
	return mean, maxDeviation
}

// proposedDeparture anchors the rounded mean on the partition's date.
func proposedDeparture(anchor time.Time, meanMinutes float64) time.Time {
	t := anchor.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.Add(time.Duration(math.Round(meanMinutes)) * time.Minute)
}

func normalizeLocation(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
