// Package eventbus holds the transport-neutral pieces of message consumption:
// the handler signature, the permanent failure marker and the bounded retry
// applied to each delivery before it is dead-lettered.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

var ErrPermanentFailure = errors.New("permanent failure processing message")

// MessageHandler processes one message. key may be nil for transports without keys.
type MessageHandler func(ctx context.Context, key, value []byte) error

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanentFailure, err)
}

func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanentFailure)
}

// RetryPolicy bounds how many times a single delivery is handled in-process.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
		b.MaxInterval = 30 * p.InitialInterval
	}
	return b
}

// Handle runs handler until it succeeds, fails permanently or runs out of attempts.
// It returns the number of attempts made and the last error.
func (p RetryPolicy) Handle(ctx context.Context, handler MessageHandler, key, value []byte) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := handler(ctx, key, value)
		if err != nil && IsPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Dur("retryIn", next).Msg("Message processing failed, retrying")
		}),
	)
	return attempts, err
}
