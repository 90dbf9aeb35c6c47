// README: Reminder service schedules fire-once checks and dispatches them from a ticker.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"fuelhaul/internal/config"
	"fuelhaul/internal/types"
)

var ErrValidation = errors.New("invalid reminder")

type Storage interface {
	// Create stores r unless a reminder of the same kind already exists for the
	// order; created reports which happened.
	Create(ctx context.Context, r *Reminder) (created bool, err error)
	// ClaimDue marks up to limit unfired reminders due at or before now as fired
	// and returns them. A reminder is claimed at most once.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Reminder, error)
	RecordFailure(ctx context.Context, id types.ID, reason string) error
}

// Handler performs the check a reminder stands for.
type Handler interface {
	HandleReminder(ctx context.Context, r Reminder) error
}

type Service struct {
	store Storage
	cfg   config.ReminderConfig
	now   func() time.Time
}

func NewService(store Storage, cfg config.ReminderConfig) *Service {
	if cfg.TickSeconds <= 0 {
		cfg.TickSeconds = 15
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Service{store: store, cfg: cfg, now: time.Now}
}

// Schedule registers a single check of kind for orderID at dueAt. A second
// schedule for the same order and kind is ignored.
func (s *Service) Schedule(ctx context.Context, kind Kind, orderID types.ID, dueAt time.Time) error {
	if kind != KindSharedMatchWait && kind != KindPrivateUnaccepted {
		return fmt.Errorf("%w: unknown kind %q", ErrValidation, kind)
	}
	if orderID == "" || dueAt.IsZero() {
		return fmt.Errorf("%w: order and due time are required", ErrValidation)
	}
	r := &Reminder{
		ID:        types.NewID(),
		Kind:      kind,
		OrderID:   orderID,
		DueAt:     dueAt,
		CreatedAt: s.now(),
	}
	created, err := s.store.Create(ctx, r)
	if err != nil {
		return err
	}
	if !created {
		log.Printf("reminder: %s for order %s already scheduled", kind, orderID)
	}
	return nil
}

// DispatchDue claims due reminders and hands each to h. Handler failures are
// recorded on the reminder; it is not retried.
func (s *Service) DispatchDue(ctx context.Context, h Handler) (int, error) {
	due, err := s.store.ClaimDue(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	for _, r := range due {
		if err := h.HandleReminder(ctx, *r); err != nil {
			log.Printf("reminder: %s for order %s: %v", r.Kind, r.OrderID, err)
			if rerr := s.store.RecordFailure(ctx, r.ID, err.Error()); rerr != nil {
				log.Printf("reminder: record failure %s: %v", r.ID, rerr)
			}
		}
	}
	return len(due), nil
}

func (s *Service) RunDispatcher(ctx context.Context, h Handler) {
	ticker := time.NewTicker(time.Duration(s.cfg.TickSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				n, err := s.DispatchDue(ctx, h)
				if err != nil {
					log.Printf("reminder: dispatch: %v", err)
					break
				}
				if n < s.cfg.BatchSize || ctx.Err() != nil {
					break
				}
			}
		}
	}
}
