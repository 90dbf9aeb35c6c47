// README: FCM live channel for in-app notifications.
package notify

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"

	"fuelhaul/internal/modules/account"
)

type FCMClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type FCMChannel struct {
	client FCMClient
}

func NewFCMChannel(client FCMClient) *FCMChannel {
	return &FCMChannel{client: client}
}

func (c *FCMChannel) Push(ctx context.Context, to account.Contact, title, text string) error {
	if to.DeviceToken == "" {
		return fmt.Errorf("%w: %s has no device token", ErrUnreachable, to.UserID)
	}
	_, err := c.client.Send(ctx, &messaging.Message{
		Token: to.DeviceToken,
		Notification: &messaging.Notification{
			Title: title,
			Body:  text,
		},
		Data: map[string]string{
			"type":      "fuelhaul_notice",
			"recipient": string(to.UserID),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return nil
}
