package notifier

import "context"

// ChannelType identifies the delivery channel for a notification.
type ChannelType string

const (
	ChannelEmail ChannelType = "EMAIL"
	ChannelSMS   ChannelType = "SMS"
)

// Notifier delivers a message to an identity. Delivery is best-effort from
// the engine's perspective: callers log failures and carry on.
type Notifier interface {
	Send(ctx context.Context, channel ChannelType, destination, subject, body string) error
}
