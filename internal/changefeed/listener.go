package changefeed

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gitlab.com/yelinaung/sharedbudget/internal/logger"
)

const (
	listenerMinRetry = 500 * time.Millisecond
	listenerMaxRetry = 30 * time.Second
)

// Listener forwards Postgres notifications to a Publisher. The channel name
// becomes the topic and the payload becomes the key.
type Listener struct {
	pool     *pgxpool.Pool
	pub      Publisher
	channels []string
}

// NewListener creates a Listener for the given notification channels.
func NewListener(pool *pgxpool.Pool, pub Publisher, channels ...string) *Listener {
	return &Listener{pool: pool, pub: pub, channels: channels}
}

// Run listens until ctx is cancelled, reconnecting with exponential backoff.
func (l *Listener) Run(ctx context.Context) {
	delay := listenerMinRetry
	for {
		connected, err := l.listen(ctx)
		if ctx.Err() != nil {
			logger.Log.Info().Msg("Change listener stopped")
			return
		}
		if connected {
			delay = listenerMinRetry
		}
		logger.Log.Warn().Err(err).Dur("retry_in", delay).Msg("Change listener disconnected")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, listenerMaxRetry)
	}
}

func (l *Listener) listen(ctx context.Context) (bool, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	defer conn.Release()

	for _, channel := range l.channels {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
			return false, fmt.Errorf("failed to listen on %s: %w", channel, err)
		}
	}
	logger.Log.Info().Strs("channels", l.channels).Msg("Change listener connected")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return true, fmt.Errorf("failed to wait for notification: %w", err)
		}
		l.pub.Publish(n.Channel, n.Payload)
	}
}
