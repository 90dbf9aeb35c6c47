// README: Notification events, notices, and stored (unread) messages.
package notify

import (
	"time"

	"fuelhaul/internal/modules/account"
	"fuelhaul/internal/modules/allocation"
	"fuelhaul/internal/types"
)

type Channel string

const (
	ChannelSMS  Channel = "sms"
	ChannelLive Channel = "live"
)

type Kind string

const (
	KindNearbyOrder        Kind = "nearby_order"
	KindPrivateSuggested   Kind = "private_suggested"
	KindGroupMerged        Kind = "group_merged"
	KindWaitingForVehicle  Kind = "waiting_for_vehicle"
	KindOrderAccepted      Kind = "order_accepted"
	KindDriverAssigned     Kind = "driver_assigned"
	KindTripStarted        Kind = "trip_started"
	KindTripCompleted      Kind = "trip_completed"
	KindOrderCancelled     Kind = "order_cancelled"
	KindMatchReminder      Kind = "match_reminder"
	KindUnacceptedReminder Kind = "unaccepted_reminder"
)

// Party is one customer's slice of an event.
type Party struct {
	Contact      account.Contact         `json:"contact"`
	OrderID      types.ID                `json:"order_id"`
	OrderNumber  string                  `json:"order_number"`
	Liters       int64                   `json:"liters"`
	Station      string                  `json:"station,omitempty"`
	District     string                  `json:"district,omitempty"`
	Compartments []allocation.Assignment `json:"compartments,omitempty"`
}

// Event describes a lifecycle transition with everything the policy needs to word it.
type Event struct {
	Kind            Kind
	GroupID         *types.ID
	FuelType        string
	Depot           string
	Source          string
	Company         string
	TotalLiters     int64
	Utilization     float64
	VehicleIdentity string
	Customers       []Party
	Owners          []account.Contact
	Driver          *account.Contact
	Staff           []account.Contact
	Waited          time.Duration // how long a reminded order has waited
}

type Notice struct {
	Kind    Kind
	Channel Channel
	To      account.Contact
	Title   string
	Text    string
	OrderID types.ID
}

// Message is a live-channel notice persisted for a recipient who could not be reached.
type Message struct {
	ID          types.ID  `json:"id"`
	RecipientID types.ID  `json:"recipient_id"`
	Kind        Kind      `json:"kind"`
	OrderID     types.ID  `json:"order_id,omitempty"`
	Title       string    `json:"title"`
	Text        string    `json:"text"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}
