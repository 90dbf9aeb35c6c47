// README: Account directory resolving user ids to notification contacts.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fuelhaul/internal/policy"
	"fuelhaul/internal/types"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrValidation = errors.New("invalid profile")
)

type Storage interface {
	Upsert(ctx context.Context, u *User) error
	Get(ctx context.Context, id types.ID) (*User, error)
	ListByRole(ctx context.Context, role policy.Role) ([]*User, error)
}

type Service struct {
	store Storage
	now   func() time.Time
}

func NewService(store Storage) *Service {
	return &Service{store: store, now: time.Now}
}

type ProfileCommand struct {
	Actor       policy.Actor
	FirstName   string
	LastName    string
	Phone       string
	DeviceToken string
}

// SaveProfile stores the caller's own profile; the role always comes from the token.
func (s *Service) SaveProfile(ctx context.Context, cmd ProfileCommand) (*User, error) {
	if cmd.Actor.ID == "" {
		return nil, policy.ErrForbidden
	}
	if strings.TrimSpace(cmd.FirstName) == "" || strings.TrimSpace(cmd.Phone) == "" {
		return nil, fmt.Errorf("%w: first name and phone are required", ErrValidation)
	}
	u := &User{
		ID:          cmd.Actor.ID,
		Role:        cmd.Actor.Role,
		FirstName:   strings.TrimSpace(cmd.FirstName),
		LastName:    strings.TrimSpace(cmd.LastName),
		Phone:       strings.TrimSpace(cmd.Phone),
		DeviceToken: strings.TrimSpace(cmd.DeviceToken),
		UpdatedAt:   s.now(),
	}
	if err := s.store.Upsert(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Contact(ctx context.Context, id types.ID) (Contact, error) {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return Contact{}, err
	}
	return u.Contact(), nil
}

// Staff lists everyone who receives operational reminders.
func (s *Service) Staff(ctx context.Context) ([]Contact, error) {
	users, err := s.store.ListByRole(ctx, policy.RoleStaff)
	if err != nil {
		return nil, err
	}
	out := make([]Contact, len(users))
	for i, u := range users {
		out[i] = u.Contact()
	}
	return out, nil
}
