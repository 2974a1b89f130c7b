package betting

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Notifier hands winner notifications to the notification collaborator.
// Delivery is best-effort: errors are logged by the caller, never rolled back.
type Notifier interface {
	NotifyWinner(ctx context.Context, n WinnerNotification) error
}

// Publisher is the transport a PublishingNotifier writes to (Redis pub/sub in production).
type Publisher interface {
	Publish(ctx context.Context, v interface{}) error
}

// PublishingNotifier publishes each notification as a JSON event.
type PublishingNotifier struct {
	publisher Publisher
}

func NewPublishingNotifier(p Publisher) *PublishingNotifier {
	return &PublishingNotifier{publisher: p}
}

func (n *PublishingNotifier) NotifyWinner(ctx context.Context, w WinnerNotification) error {
	return n.publisher.Publish(ctx, w)
}

// LogNotifier only logs; used when no broker is configured.
type LogNotifier struct{}

func (LogNotifier) NotifyWinner(_ context.Context, w WinnerNotification) error {
	log.Info().
		Str("customer_id", w.CustomerID.String()).
		Str("match_id", w.MatchID.String()).
		Str("match", w.MatchDescription).
		Int64("stake", w.Stake).
		Int64("payout", w.Payout).
		Msg("winner notification")
	return nil
}
