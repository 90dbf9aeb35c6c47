// README: Catalog store backed by PostgreSQL; depot sources are kept as JSONB documents.
package catalog

import (
	"context"
	"encoding/json"
	"errors"

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

func (s *Store) PutDepot(ctx context.Context, d Depot) error {
	sources, err := json.Marshal(d.Sources)
	if err != nil {
		return err
	}
	_, err = infra.Conn(ctx, s.db).Exec(ctx, `
		INSERT INTO depots (name, sources, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET sources = EXCLUDED.sources, updated_at = NOW()`,
		string(d.Name), sources,
	)
	return err
}

func (s *Store) GetDepot(ctx context.Context, name DepotName) (*Depot, error) {
	var raw []byte
	err := infra.Conn(ctx, s.db).QueryRow(ctx, `SELECT sources FROM depots WHERE name = $1`, string(name)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d := Depot{Name: name}
	if err := json.Unmarshal(raw, &d.Sources); err != nil {
		return nil, err
	}
	return &d, nil
}

const stationColumns = `id, customer_id, name, label, region, district, lat, lng, created_at`

func (s *Store) CreateStation(ctx context.Context, st *Station) error {
	_, err := infra.Conn(ctx, s.db).Exec(ctx, `
		INSERT INTO stations (`+stationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(st.ID), string(st.CustomerID), st.Name, st.Label, st.Region, st.District,
		st.Location.Lat, st.Location.Lng, st.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

func (s *Store) GetStation(ctx context.Context, id types.ID) (*Station, error) {
	return s.queryStation(ctx, `SELECT `+stationColumns+` FROM stations WHERE id = $1`, string(id))
}

func (s *Store) FindCustomerStation(ctx context.Context, customerID types.ID, name string) (*Station, error) {
	return s.queryStation(ctx, `
		SELECT `+stationColumns+` FROM stations
		WHERE customer_id = $1 AND lower(name) = lower(trim($2))`,
		string(customerID), name)
}

func (s *Store) FindStationInDistrict(ctx context.Context, name, district string) (*Station, error) {
	return s.queryStation(ctx, `
		SELECT `+stationColumns+` FROM stations
		WHERE lower(name) = lower(trim($1)) AND lower(district) = lower(trim($2))
		ORDER BY created_at LIMIT 1`,
		name, district)
}

func (s *Store) queryStation(ctx context.Context, sql string, args ...any) (*Station, error) {
	var st Station
	err := infra.Conn(ctx, s.db).QueryRow(ctx, sql, args...).Scan(
		&st.ID, &st.CustomerID, &st.Name, &st.Label, &st.Region, &st.District,
		&st.Location.Lat, &st.Location.Lng, &st.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}
