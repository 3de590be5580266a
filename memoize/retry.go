package memoize

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// retrying runs fn once, or under the back-off returned by policy when one is set.
// Errors wrapped with backoff.Permanent stop the retries immediately.
func retrying[R any](ctx context.Context, policy func() backoff.BackOff, log zerolog.Logger, fn func(ctx context.Context) (R, error)) (R, error) {
	if policy == nil {
		return fn(ctx)
	}

	var out R
	op := func() error {
		value, err := fn(ctx)
		if err != nil {
			return err
		}
		out = value
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Debug().Str("event", "retry").Err(err).Dur("wait", wait).Msg("computation failed, retrying")
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(policy(), ctx), notify); err != nil {
		var zero R
		return zero, err
	}
	return out, nil
}
