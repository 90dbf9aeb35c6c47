// README: Unread message inbox backed by PostgreSQL.
package notify

import (
	"context"

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

func (s *Store) Save(ctx context.Context, m *Message) error {
	var orderID *string
	if m.OrderID != "" {
		v := string(m.OrderID)
		orderID = &v
	}
	_, err := infra.Conn(ctx, s.db).Exec(ctx, `
		INSERT INTO messages (id, recipient_id, kind, order_id, title, text, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(m.ID), string(m.RecipientID), string(m.Kind), orderID, m.Title, m.Text, m.Read, m.CreatedAt,
	)
	return err
}

func (s *Store) ListUnread(ctx context.Context, recipientID types.ID) ([]*Message, error) {
	rows, err := infra.Conn(ctx, s.db).Query(ctx, `
		SELECT id, recipient_id, kind, COALESCE(order_id, ''), title, text, read, created_at
		FROM messages
		WHERE recipient_id = $1 AND read = FALSE
		ORDER BY created_at`, string(recipientID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RecipientID, &m.Kind, &m.OrderID, &m.Title, &m.Text, &m.Read, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *Store) MarkRead(ctx context.Context, recipientID, id types.ID) (bool, error) {
	tag, err := infra.Conn(ctx, s.db).Exec(ctx, `
		UPDATE messages SET read = TRUE WHERE id = $1 AND recipient_id = $2`,
		string(id), string(recipientID))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
