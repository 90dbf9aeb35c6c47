// README: Best-effort delivery of planned notices; live-channel misses are stored as unread messages.
package notify

import (
	"context"
	"errors"
	"log"
	"time"

	"fuelhaul/internal/modules/account"
	"fuelhaul/internal/policy"
	"fuelhaul/internal/types"
)

var (
	ErrUnreachable = errors.New("recipient unreachable")
	ErrNotFound    = errors.New("message not found")
)

type SMSSender interface {
	Send(ctx context.Context, phone, text string) error
}

type LiveChannel interface {
	Push(ctx context.Context, to account.Contact, title, text string) error
}

type Inbox interface {
	Save(ctx context.Context, m *Message) error
	ListUnread(ctx context.Context, recipientID types.ID) ([]*Message, error)
	MarkRead(ctx context.Context, recipientID, id types.ID) (bool, error)
}

type Dispatcher struct {
	sms   SMSSender
	live  LiveChannel
	inbox Inbox
	now   func() time.Time
}

// NewDispatcher wires the channels. live may be nil, in which case every
// live notice goes straight to the inbox.
func NewDispatcher(sms SMSSender, live LiveChannel, inbox Inbox) *Dispatcher {
	return &Dispatcher{sms: sms, live: live, inbox: inbox, now: time.Now}
}

// Notify plans and delivers e. It never fails; delivery errors are logged.
func (d *Dispatcher) Notify(ctx context.Context, e Event) {
	for _, n := range Plan(e) {
		d.deliver(ctx, n)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n Notice) {
	switch n.Channel {
	case ChannelSMS:
		if n.To.Phone == "" {
			log.Printf("notify: %s sms to %s skipped: no phone", n.Kind, n.To.UserID)
			return
		}
		if err := d.sms.Send(ctx, n.To.Phone, n.Text); err != nil {
			log.Printf("notify: %s sms to %s: %v", n.Kind, n.To.UserID, err)
		}
	case ChannelLive:
		err := ErrUnreachable
		if d.live != nil && n.To.DeviceToken != "" {
			err = d.live.Push(ctx, n.To, n.Title, n.Text)
		}
		if err == nil {
			return
		}
		if n.To.UserID == "" {
			log.Printf("notify: %s live notice dropped: no recipient id", n.Kind)
			return
		}
		m := &Message{
			ID:          types.NewID(),
			RecipientID: n.To.UserID,
			Kind:        n.Kind,
			OrderID:     n.OrderID,
			Title:       n.Title,
			Text:        n.Text,
			CreatedAt:   d.now(),
		}
		if serr := d.inbox.Save(ctx, m); serr != nil {
			log.Printf("notify: %s store-and-forward for %s: %v (push: %v)", n.Kind, n.To.UserID, serr, err)
		}
	}
}

// Unread lists the caller's stored messages.
func (d *Dispatcher) Unread(ctx context.Context, actor policy.Actor) ([]*Message, error) {
	if err := policy.Authorize(actor, policy.CapReadMessages); err != nil {
		return nil, err
	}
	return d.inbox.ListUnread(ctx, actor.ID)
}

func (d *Dispatcher) MarkRead(ctx context.Context, actor policy.Actor, id types.ID) error {
	if err := policy.Authorize(actor, policy.CapReadMessages); err != nil {
		return err
	}
	ok, err := d.inbox.MarkRead(ctx, actor.ID, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
