package channels

import (
	"context"
	"fmt"

	"github.com/fleetwatch/fleetwatch/internal/models"
)

// Notification is the payload handed to a delivery channel
type Notification struct {
	AlertID     int64
	ContainerID int64
	AlertType   string
	Message     string
}

// Channel is a notification delivery channel. Send makes exactly one
// delivery attempt; retrying is not a channel concern.
type Channel interface {
	Send(ctx context.Context, n Notification) error
	Type() string
}

// New creates a channel instance from a stored channel config
func New(ch models.AlertChannel, smtp models.SMTPConfig) (Channel, error) {
	switch ch.Type {
	case models.ChannelTypeEmail:
		return NewEmailChannel(ch, smtp)
	case models.ChannelTypeWebhook:
		return NewWebhookChannel(ch)
	default:
		return nil, fmt.Errorf("unknown channel type: %s", ch.Type)
	}
}
