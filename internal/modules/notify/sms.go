// README: SMS outbox publishing to a durable RabbitMQ queue consumed by the SMS gateway.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Six concatenated GSM segments.
const maxSMSLength = 918

type QueuePublisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

type outboundSMS struct {
	Reference string    `json:"reference"`
	To        string    `json:"to"`
	Message   string    `json:"message"`
	QueuedAt  time.Time `json:"queued_at"`
}

type QueueSMSSender struct {
	pub   QueuePublisher
	queue string
}

func NewQueueSMSSender(pub QueuePublisher, queue string) *QueueSMSSender {
	return &QueueSMSSender{pub: pub, queue: queue}
}

func (s *QueueSMSSender) Send(ctx context.Context, phone, text string) error {
	to := FormatPhone(phone)
	if to == "" {
		return errors.New("sms: empty destination")
	}
	body, err := json.Marshal(outboundSMS{
		Reference: uuid.NewString(),
		To:        to,
		Message:   SanitizeMessage(text),
		QueuedAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.pub.Publish(ctx, s.queue, body)
}

// LogSMSSender prints messages instead of sending them; used when no broker is configured.
type LogSMSSender struct{}

func (LogSMSSender) Send(_ context.Context, phone, text string) error {
	log.Printf("sms -> %s: %s", FormatPhone(phone), SanitizeMessage(text))
	return nil
}

// FormatPhone normalises a Tanzanian number to international form without '+'.
func FormatPhone(phone string) string {
	p := strings.Join(strings.Fields(phone), "")
	p = strings.TrimPrefix(p, "+")
	if strings.HasPrefix(p, "0") {
		p = "255" + p[1:]
	}
	return p
}

// SanitizeMessage collapses whitespace and truncates to the multipart SMS limit.
func SanitizeMessage(text string) string {
	t := strings.Join(strings.Fields(text), " ")
	if r := []rune(t); len(r) > maxSMSLength {
		t = string(r[:maxSMSLength])
	}
	return t
}
