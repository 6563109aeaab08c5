package remote

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/dyluth/mosaic/internal/clock"
)

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls fn until it succeeds, returns a Permanent error, or ctx is done.
// Attempts are separated by delay on clk.
func Retry(ctx context.Context, clk clock.Clock, delay time.Duration, what string, fn func(ctx context.Context) error) error {
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		log.Printf("[ERROR] Failed to %s, trying again in %s: %v", what, delay, err)
		if err := clock.Sleep(ctx, clk, delay); err != nil {
			return err
		}
	}
}
