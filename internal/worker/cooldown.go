package worker

import (
	"time"

	"github.com/dyluth/mosaic/internal/ledger"
)

// Decision is the interpreted result of one placement attempt.
type Decision struct {
	Outcome      ledger.Outcome
	NextEligible time.Time
	Message      string
}

// Wait returns how long to sleep from now until the identity is eligible again,
// never negative.
func (d Decision) Wait(now time.Time) time.Duration {
	w := d.NextEligible.Sub(now)
	if w < 0 {
		return 0
	}
	return w
}

// Interpret classifies a placement result:
//
//   - success: eligible at the server's next-available time
//   - error with rate-limit details: eligible at the time in those details
//   - any other error, or a transport failure: eligible after backoff
func Interpret(resp *Response, err error, now time.Time, backoff time.Duration) Decision {
	if err != nil {
		return Decision{
			Outcome:      ledger.OutcomeTransportError,
			NextEligible: now.Add(backoff),
			Message:      err.Error(),
		}
	}

	switch {
	case resp == nil:
		return Decision{Outcome: ledger.OutcomeFailed, NextEligible: now.Add(backoff), Message: "empty response"}

	case resp.Success != nil:
		return Decision{Outcome: ledger.OutcomePlaced, NextEligible: resp.Success.NextAvailable}

	case resp.Error != nil && resp.Error.RateLimit != nil:
		return Decision{
			Outcome:      ledger.OutcomeRateLimited,
			NextEligible: resp.Error.RateLimit.NextAvailable,
			Message:      resp.Error.Message,
		}

	case resp.Error != nil:
		return Decision{Outcome: ledger.OutcomeFailed, NextEligible: now.Add(backoff), Message: resp.Error.Message}
	}

	return Decision{Outcome: ledger.OutcomeFailed, NextEligible: now.Add(backoff), Message: "response carried neither data nor errors"}
}
