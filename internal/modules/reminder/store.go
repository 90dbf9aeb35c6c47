// README: Reminder store backed by PostgreSQL; due rows are claimed with SKIP LOCKED.
package reminder

import (
	"context"
	"time"

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

func (s *Store) Create(ctx context.Context, r *Reminder) (bool, error) {
	tag, err := infra.Conn(ctx, s.db).Exec(ctx, `
		INSERT INTO reminders (id, kind, order_id, due_at, attempts, created_at)
		VALUES ($1, $2, $3, $4, 0, $5)
		ON CONFLICT (kind, order_id) DO NOTHING`,
		string(r.ID), string(r.Kind), string(r.OrderID), r.DueAt, r.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimDue fires due rows in one statement so competing dispatchers never
// claim the same reminder.
func (s *Store) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Reminder, error) {
	rows, err := infra.Conn(ctx, s.db).Query(ctx, `
		UPDATE reminders
		SET fired_at = $1, attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM reminders
			WHERE fired_at IS NULL AND due_at <= $1
			ORDER BY due_at, id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, kind, order_id, due_at, fired_at, attempts, COALESCE(last_error, ''), created_at`,
		now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Reminder
	for rows.Next() {
		var r Reminder
		if err := rows.Scan(&r.ID, &r.Kind, &r.OrderID, &r.DueAt, &r.FiredAt, &r.Attempts, &r.LastError, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *Store) RecordFailure(ctx context.Context, id types.ID, reason string) error {
	_, err := infra.Conn(ctx, s.db).Exec(ctx, `
		UPDATE reminders SET last_error = $1 WHERE id = $2`, reason, string(id))
	return err
}
