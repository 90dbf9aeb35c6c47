// README: Order and suggestion store backed by PostgreSQL.
package order

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fuelhaul/internal/infra"
	"fuelhaul/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const orderColumns = `
	id, number, customer_id, fuel_type, route, capacity, source, depot, district,
	stations, companies, price_amount, price_currency, distance_km, delivery_time,
	status, status_version, merged, shared_group_id, vehicle_id, driver_id, compartments,
	created_at, requested_at, accepted_at, assigned_at, trip_started_at, trip_ended_at,
	cancelled_at, cancel_reason`

func (s *Store) Create(ctx context.Context, o *Order) error {
	stations, err := json.Marshal(o.Stations)
	if err != nil {
		return err
	}
	companies, err := json.Marshal(o.Companies)
	if err != nil {
		return err
	}
	compartments, err := json.Marshal(o.Compartments)
	if err != nil {
		return err
	}
	_, err = infra.Conn(ctx, s.db).Exec(ctx, `
		INSERT INTO orders (
			id, number, customer_id, fuel_type, route, capacity, source, depot, district,
			stations, companies, price_amount, price_currency, distance_km, delivery_time,
			status, status_version, merged, shared_group_id, vehicle_id, driver_id, compartments,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22,
			$23
		)`,
		string(o.ID), o.Number, string(o.CustomerID), string(o.FuelType), string(o.Route), o.Capacity,
		o.Source, o.Depot, o.District,
		stations, companies, o.Price.Amount, o.Price.Currency, o.DistanceKm, o.DeliveryTime,
		string(o.Status), o.StatusVersion, o.Merged,
		toStringPtr(o.SharedGroupID), toStringPtr(o.VehicleID), toStringPtr(o.DriverID), compartments,
		o.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := infra.Conn(ctx, s.db).QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, string(id))
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (s *Store) CountCustomerOrdersSince(ctx context.Context, customerID types.ID, since time.Time) (int, error) {
	var n int
	err := infra.Conn(ctx, s.db).QueryRow(ctx, `
		SELECT COUNT(*) FROM orders WHERE customer_id = $1 AND created_at >= $2`,
		string(customerID), since,
	).Scan(&n)
	return n, err
}

func (s *Store) ListGroup(ctx context.Context, groupID types.ID) ([]*Order, error) {
	return s.query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE shared_group_id = $1
		ORDER BY created_at, id`, string(groupID))
}

// ListMergeCandidates returns unmerged Pending shared orders with the same
// criteria, most recent first.
func (s *Store) ListMergeCandidates(ctx context.Context, f MatchFilter) ([]*Order, error) {
	return s.query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = 'Pending'
		  AND route = 'shared'
		  AND merged = FALSE
		  AND customer_id <> $1
		  AND fuel_type = $2
		  AND lower(source) = lower($3)
		  AND lower(depot) = lower($4)
		  AND lower(district) = lower($5)
		  AND lower(companies->0->>'name') = lower($6)
		ORDER BY created_at DESC, id`,
		string(f.ExcludeCustomer), string(f.FuelType), f.Source, f.Depot, f.District, f.Company)
}

func (s *Store) ListRequestedForVehicles(ctx context.Context, vehicleIDs []types.ID) ([]*Order, error) {
	ids := make([]string, len(vehicleIDs))
	for i, id := range vehicleIDs {
		ids[i] = string(id)
	}
	return s.query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = 'Requested' AND vehicle_id = ANY($1)
		ORDER BY created_at, id`, ids)
}

func (s *Store) query(ctx context.Context, sql string, args ...any) ([]*Order, error) {
	rows, err := infra.Conn(ctx, s.db).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, p Patch) (bool, error) {
	var compartments []byte
	if p.Compartments != nil {
		b, err := json.Marshal(p.Compartments)
		if err != nil {
			return false, err
		}
		compartments = b
	}
	tag, err := infra.Conn(ctx, s.db).Exec(ctx, `
		UPDATE orders
		SET status = $1,
			status_version = status_version + 1,
			shared_group_id = COALESCE($2, shared_group_id),
			merged = merged OR $2::text IS NOT NULL,
			vehicle_id = COALESCE($3, vehicle_id),
			driver_id = COALESCE($4, driver_id),
			compartments = COALESCE($5::jsonb, compartments),
			cancel_reason = COALESCE($6, cancel_reason),
			requested_at = CASE WHEN $1 = 'Requested' THEN $7 ELSE requested_at END,
			accepted_at = CASE WHEN $1 = 'Accepted' THEN $7 ELSE accepted_at END,
			assigned_at = CASE WHEN $1 = 'Assigned' THEN $7 ELSE assigned_at END,
			trip_started_at = CASE WHEN $1 = 'onDelivery' THEN $7 ELSE trip_started_at END,
			trip_ended_at = CASE WHEN $1 = 'Completed' THEN $7 ELSE trip_ended_at END,
			cancelled_at = CASE WHEN $1 = 'Cancelled' THEN $7 ELSE cancelled_at END
		WHERE id = $8 AND status = $9 AND status_version = $10`,
		string(to),
		toStringPtr(p.SharedGroupID),
		toStringPtr(p.VehicleID),
		toStringPtr(p.DriverID),
		compartments,
		p.CancelReason,
		p.At,
		string(id),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	return infra.Conn(ctx, s.db).QueryRow(ctx, `
		INSERT INTO order_state_events (
			order_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		string(e.OrderID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		toStringPtr(e.ActorID),
		e.CreatedAt,
	).Scan(&e.ID)
}

func (s *Store) CreateSuggestion(ctx context.Context, sg *Suggestion) error {
	_, err := infra.Conn(ctx, s.db).Exec(ctx, `
		INSERT INTO suggestions (id, order_id, vehicle_id, group_id, utilization, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(sg.ID), string(sg.OrderID), string(sg.VehicleID), toStringPtr(sg.GroupID),
		sg.Utilization, string(sg.Status), sg.CreatedAt,
	)
	return err
}

const suggestionColumns = `id, order_id, vehicle_id, group_id, utilization, status, created_at`

func (s *Store) FindSuggestion(ctx context.Context, orderID, vehicleID types.ID, status SuggestionStatus) (*Suggestion, error) {
	row := infra.Conn(ctx, s.db).QueryRow(ctx, `
		SELECT `+suggestionColumns+` FROM suggestions
		WHERE order_id = $1 AND vehicle_id = $2 AND status = $3
		ORDER BY created_at DESC
		LIMIT 1`, string(orderID), string(vehicleID), string(status))
	sg, err := scanSuggestion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sg, err
}

func (s *Store) ListSuggestions(ctx context.Context, orderID types.ID) ([]*Suggestion, error) {
	rows, err := infra.Conn(ctx, s.db).Query(ctx, `
		SELECT `+suggestionColumns+` FROM suggestions
		WHERE order_id = $1
		ORDER BY created_at, id`, string(orderID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Suggestion
	for rows.Next() {
		sg, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

func (s *Store) UpdateSuggestionStatus(ctx context.Context, id types.ID, from, to SuggestionStatus) (bool, error) {
	tag, err := infra.Conn(ctx, s.db).Exec(ctx, `
		UPDATE suggestions SET status = $1 WHERE id = $2 AND status = $3`,
		string(to), string(id), string(from))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o                                 Order
		stations, companies, compartments []byte
		groupID, vehicleID, driverID      *string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.CustomerID, &o.FuelType, &o.Route, &o.Capacity, &o.Source, &o.Depot, &o.District,
		&stations, &companies, &o.Price.Amount, &o.Price.Currency, &o.DistanceKm, &o.DeliveryTime,
		&o.Status, &o.StatusVersion, &o.Merged, &groupID, &vehicleID, &driverID, &compartments,
		&o.CreatedAt, &o.RequestedAt, &o.AcceptedAt, &o.AssignedAt, &o.TripStartedAt, &o.TripEndedAt,
		&o.CancelledAt, &o.CancelReason,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(stations, &o.Stations); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(companies, &o.Companies); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(compartments, &o.Compartments); err != nil {
		return nil, err
	}
	o.SharedGroupID = toIDPtr(groupID)
	o.VehicleID = toIDPtr(vehicleID)
	o.DriverID = toIDPtr(driverID)
	if o.Price.Currency == "" {
		o.Price.Currency = types.DefaultCurrency
	}
	return &o, nil
}

func scanSuggestion(row pgx.Row) (*Suggestion, error) {
	var sg Suggestion
	var groupID *string
	if err := row.Scan(&sg.ID, &sg.OrderID, &sg.VehicleID, &groupID, &sg.Utilization, &sg.Status, &sg.CreatedAt); err != nil {
		return nil, err
	}
	sg.GroupID = toIDPtr(groupID)
	return &sg, nil
}

func unmarshalJSON(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toIDPtr(v *string) *types.ID {
	if v == nil {
		return nil
	}
	id := types.ID(*v)
	return &id
}
