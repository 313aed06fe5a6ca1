package relayer

import (
	"context"
	"time"

	"github.com/40acres/htlc-bridge/chain"
	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

func (r *Relayer) newBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.config.InitialBackoff
	b.MaxInterval = r.config.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, r.config.MaxRetries), ctx)
}

// retry runs a ledger call under the call timeout. Only transient errors are
// retried; anything else is returned on the first attempt.
func (r *Relayer) retry(ctx context.Context, logger *log.Entry, operation string, call func(ctx context.Context) error) error {
	attempt := func() error {
		callCtx, cancel := context.WithTimeout(ctx, r.config.CallTimeout)
		defer cancel()

		err := call(callCtx)
		if err != nil && !chain.IsTransient(err) {
			return backoff.Permanent(err)
		}

		return err
	}

	return backoff.RetryNotify(attempt, r.newBackoff(ctx), func(err error, wait time.Duration) {
		logger.WithError(err).Warnf("%s failed, retrying in %s", operation, wait)
	})
}
