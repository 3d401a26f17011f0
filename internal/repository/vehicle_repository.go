package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fleetops/tripshare-api/internal/models"
)

// VehicleRepository reads the fleet directory. Vehicle CRUD lives in
// the surrounding admin application; this API only consults it for
// manual assignment.
type VehicleRepository struct {
	db *sqlx.DB
}

// NewVehicleRepository constructs the repository.
func NewVehicleRepository(db *sqlx.DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

// GetByID fetches a vehicle.
func (r *VehicleRepository) GetByID(ctx context.Context, id string) (*models.Vehicle, error) {
	const query = `SELECT id, name, type, tier, capacity, active, created_at
	FROM vehicles WHERE id = $1`
	var vehicle models.Vehicle
	if err := r.db.GetContext(ctx, &vehicle, query, id); err != nil {
		return nil, err
	}
	return &vehicle, nil
}

// ListAvailable returns active vehicles of the given type not already
// assigned to a trip departing on the given date.
func (r *VehicleRepository) ListAvailable(ctx context.Context, date time.Time, vehicleType string) ([]models.Vehicle, error) {
	const query = `SELECT v.id, v.name, v.type, v.tier, v.capacity, v.active, v.created_at
	FROM vehicles v
	WHERE v.active = TRUE AND ($1 = '' OR v.type = $1)
	AND NOT EXISTS (
		SELECT 1 FROM trips t
		WHERE t.assigned_vehicle_id = v.id
		AND t.departure_time::date = $2::date
		AND t.data_type = 'raw'
	)
	ORDER BY v.capacity ASC`
	var vehicles []models.Vehicle
	if err := r.db.SelectContext(ctx, &vehicles, query, vehicleType, date); err != nil {
		return nil, fmt.Errorf("list available vehicles: %w", err)
	}
	return vehicles, nil
}
