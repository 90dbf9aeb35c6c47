// README: User profiles as notification recipients.
package account

import (
	"time"

	"fuelhaul/internal/policy"
	"fuelhaul/internal/types"
)

type User struct {
	ID          types.ID    `json:"id"`
	Role        policy.Role `json:"role"`
	FirstName   string      `json:"first_name"`
	LastName    string      `json:"last_name"`
	Phone       string      `json:"phone"`
	DeviceToken string      `json:"-"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Contact is what the notification layer needs to reach someone.
type Contact struct {
	UserID      types.ID `json:"user_id"`
	Name        string   `json:"name"`
	Phone       string   `json:"phone"`
	DeviceToken string   `json:"-"`
}

func (u User) Contact() Contact {
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return Contact{UserID: u.ID, Name: name, Phone: u.Phone, DeviceToken: u.DeviceToken}
}
