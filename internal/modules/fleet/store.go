// README: Vehicle and driver store backed by PostgreSQL with conditional status updates.
package fleet

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

const vehicleColumns = `id, owner_id, identity, plate_number, device_id, tank_capacity,
	compartments, compartment_count, status, bound_order, created_at, updated_at`

func (s *Store) CreateVehicle(ctx context.Context, v *Vehicle) error {
	comps, err := json.Marshal(v.Compartments)
	if err != nil {
		return err
	}
	_, err = infra.Conn(ctx, s.db).Exec(ctx, `
		INSERT INTO vehicles (`+vehicleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		string(v.ID), string(v.OwnerID), v.Identity, v.PlateNumber, nullString(v.DeviceID), v.TankCapacity,
		comps, v.CompartmentCount, string(v.Status), toStringPtr(v.BoundOrder), v.CreatedAt, v.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (s *Store) GetVehicle(ctx context.Context, id types.ID) (*Vehicle, error) {
	row := infra.Conn(ctx, s.db).QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, string(id))
	v, err := scanVehicle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *Store) ListVehicles(ctx context.Context, f VehicleFilter) ([]*Vehicle, error) {
	statuses := make([]string, len(f.Statuses))
	for i, st := range f.Statuses {
		statuses[i] = string(st)
	}
	rows, err := infra.Conn(ctx, s.db).Query(ctx, `
		SELECT `+vehicleColumns+` FROM vehicles
		WHERE ($1 = '' OR owner_id = $1)
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY created_at, id`,
		string(f.OwnerID), statuses,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpdateVehicleStatus flips status only if it is still from. bound replaces bound_order.
func (s *Store) UpdateVehicleStatus(ctx context.Context, id types.ID, from, to VehicleStatus, bound *types.ID) (bool, error) {
	tag, err := infra.Conn(ctx, s.db).Exec(ctx, `
		UPDATE vehicles
		SET status = $1, bound_order = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		string(to), toStringPtr(bound), string(id), string(from),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const driverColumns = `id, owner_id, first_name, last_name, phone, license_number, device_token,
	status, assigned_order, created_at`

func (s *Store) CreateDriver(ctx context.Context, d *Driver) error {
	_, err := infra.Conn(ctx, s.db).Exec(ctx, `
		INSERT INTO drivers (`+driverColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(d.ID), string(d.OwnerID), d.FirstName, d.LastName, d.Phone, d.LicenseNumber,
		nullString(d.DeviceToken), string(d.Status), toStringPtr(d.AssignedOrder), d.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (s *Store) GetDriver(ctx context.Context, id types.ID) (*Driver, error) {
	row := infra.Conn(ctx, s.db).QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, string(id))
	var d Driver
	var token, assigned sql.NullString
	err := row.Scan(&d.ID, &d.OwnerID, &d.FirstName, &d.LastName, &d.Phone, &d.LicenseNumber,
		&token, &d.Status, &assigned, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.DeviceToken = token.String
	d.AssignedOrder = toIDPtr(assigned)
	return &d, nil
}

func (s *Store) BindDriver(ctx context.Context, id, orderID types.ID) (bool, error) {
	tag, err := infra.Conn(ctx, s.db).Exec(ctx, `
		UPDATE drivers SET status = 'busy', assigned_order = $1
		WHERE id = $2 AND status = 'available'`,
		string(orderID), string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ReleaseDriver(ctx context.Context, id, orderID types.ID) (bool, error) {
	tag, err := infra.Conn(ctx, s.db).Exec(ctx, `
		UPDATE drivers SET status = 'available', assigned_order = NULL
		WHERE id = $1 AND status = 'busy' AND assigned_order = $2`,
		string(id), string(orderID),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) UpdateDriverStatus(ctx context.Context, id types.ID, from, to DriverStatus) (bool, error) {
	tag, err := infra.Conn(ctx, s.db).Exec(ctx, `
		UPDATE drivers SET status = $1 WHERE id = $2 AND status = $3`,
		string(to), string(id), string(from),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanVehicle(row pgx.Row) (*Vehicle, error) {
	var v Vehicle
	var device, bound sql.NullString
	var comps []byte
	err := row.Scan(&v.ID, &v.OwnerID, &v.Identity, &v.PlateNumber, &device, &v.TankCapacity,
		&comps, &v.CompartmentCount, &v.Status, &bound, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(comps, &v.Compartments); err != nil {
		return nil, err
	}
	v.DeviceID = device.String
	v.BoundOrder = toIDPtr(bound)
	return &v, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullString(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toIDPtr(v sql.NullString) *types.ID {
	if !v.Valid {
		return nil
	}
	id := types.ID(v.String)
	return &id
}
