// README: User store backed by PostgreSQL.
package account

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fuelhaul/internal/infra"
	"fuelhaul/internal/policy"
	"fuelhaul/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Upsert(ctx context.Context, u *User) error {
	_, err := infra.Conn(ctx, s.db).Exec(ctx, `
		INSERT INTO users (id, role, first_name, last_name, phone, device_token, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			role = EXCLUDED.role,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			phone = EXCLUDED.phone,
			device_token = COALESCE(EXCLUDED.device_token, users.device_token),
			updated_at = EXCLUDED.updated_at`,
		string(u.ID), string(u.Role), u.FirstName, u.LastName, u.Phone, nullString(u.DeviceToken), u.UpdatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*User, error) {
	row := infra.Conn(ctx, s.db).QueryRow(ctx, `
		SELECT id, role, first_name, last_name, phone, device_token, updated_at
		FROM users WHERE id = $1`, string(id))
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

func (s *Store) ListByRole(ctx context.Context, role policy.Role) ([]*User, error) {
	rows, err := infra.Conn(ctx, s.db).Query(ctx, `
		SELECT id, role, first_name, last_name, phone, device_token, updated_at
		FROM users WHERE role = $1 ORDER BY id`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var token sql.NullString
	if err := row.Scan(&u.ID, &u.Role, &u.FirstName, &u.LastName, &u.Phone, &token, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.DeviceToken = token.String
	return &u, nil
}

func nullString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
