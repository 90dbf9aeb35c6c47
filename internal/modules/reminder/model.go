// README: Persisted fire-once reminders keyed by order.
package reminder

import (
	"time"

	"fuelhaul/internal/types"
)

type Kind string

const (
	// KindSharedMatchWait fires when a shared order has waited for a partner.
	KindSharedMatchWait Kind = "shared_match_wait"
	// KindPrivateUnaccepted fires when a suggested private order is still unaccepted.
	KindPrivateUnaccepted Kind = "private_unaccepted"
)

type Reminder struct {
	ID        types.ID   `json:"id"`
	Kind      Kind       `json:"kind"`
	OrderID   types.ID   `json:"order_id"`
	DueAt     time.Time  `json:"due_at"`
	FiredAt   *time.Time `json:"fired_at,omitempty"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
