package notifier

import (
	"context"

	"github.com/rs/zerolog"
)

var _ Notifier = (*LogNotifier)(nil)

// LogNotifier writes notifications to the log instead of delivering them.
// Used in development and in tests.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, channel ChannelType, destination, subject, body string) error {
	n.logger.Info().
		Str("channel", string(channel)).
		Str("destination", destination).
		Str("subject", subject).
		Str("body", body).
		Msg("notification")
	return nil
}
