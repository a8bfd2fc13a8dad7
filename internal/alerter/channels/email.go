package channels

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/fleetwatch/fleetwatch/internal/models"
	"github.com/nicholas-fedor/shoutrrr"
)

const emailSubject = "[FleetWatch] Container status alert"

// EmailChannel delivers alerts by SMTP through shoutrrr
type EmailChannel struct {
	serviceURL string
}

// NewEmailChannel creates an email channel. The channel config carries
// the recipient ("email"); the SMTP account comes from server config.
func NewEmailChannel(ch models.AlertChannel, smtp models.SMTPConfig) (*EmailChannel, error) {
	to := ch.Config["email"]
	if to == "" {
		return nil, fmt.Errorf("recipient email is required")
	}
	if smtp.Host == "" {
		return nil, fmt.Errorf("smtp host is not configured")
	}

	from := smtp.From
	if from == "" {
		from = smtp.Username
	}

	serviceURL := url.URL{
		Scheme: "smtp",
		Host:   smtp.Host + ":" + strconv.Itoa(smtp.Port),
		Path:   "/",
	}
	if smtp.Username != "" {
		serviceURL.User = url.UserPassword(smtp.Username, smtp.Password)
	}
	query := url.Values{}
	query.Set("from", from)
	query.Set("to", to)
	query.Set("subject", emailSubject)
	serviceURL.RawQuery = query.Encode()

	return &EmailChannel{serviceURL: serviceURL.String()}, nil
}

// Send delivers the alert message. shoutrrr owns the SMTP conversation
// and cannot be interrupted mid-protocol, so the send runs in its own
// goroutine and the caller's deadline bounds only the wait; a timed-out
// conversation is abandoned to finish or fail on its own.
func (ec *EmailChannel) Send(ctx context.Context, n Notification) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- shoutrrr.Send(ec.serviceURL, n.Message)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("failed to send email: %w", ctx.Err())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
		return nil
	}
}

// Type returns the channel type
func (ec *EmailChannel) Type() string {
	return models.ChannelTypeEmail
}
