package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Token is an access token and the instant it stops being valid.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Valid reports whether the token can still be used at now.
// A token whose expiry is at or before now is expired.
func (t Token) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// Redacted returns the first five characters of the token for logging.
func (t Token) Redacted() string {
	if len(t.Value) <= 5 {
		return "****"
	}
	return t.Value[:5] + "************"
}

// Outcome classifies one placement attempt.
type Outcome string

const (
	// OutcomePlaced means the server accepted the pixel.
	OutcomePlaced Outcome = "placed"

	// OutcomeRateLimited means the identity was still on cooldown.
	OutcomeRateLimited Outcome = "rate_limited"

	// OutcomeFailed is any server error without rate-limit details.
	OutcomeFailed Outcome = "failed"

	// OutcomeTransportError means no usable response was received.
	OutcomeTransportError Outcome = "transport_error"
)

// Validate checks that o is a known outcome.
func (o Outcome) Validate() error {
	switch o {
	case OutcomePlaced, OutcomeRateLimited, OutcomeFailed, OutcomeTransportError:
		return nil
	}
	return fmt.Errorf("invalid outcome: %q", o)
}

// Placement is one journal entry.
type Placement struct {
	ID               string  `json:"id"`
	Worker           string  `json:"worker"`
	X                int     `json:"x"`
	Y                int     `json:"y"`
	Region           int     `json:"region"`
	ColorID          int     `json:"color_id"`
	ColorName        string  `json:"color_name"`
	Outcome          Outcome `json:"outcome"`
	Message          string  `json:"message,omitempty"`
	AttemptedAtMs    int64   `json:"attempted_at_ms"`
	NextEligibleAtMs int64   `json:"next_eligible_at_ms"`
}

// NewPlacement returns a Placement with a fresh ID.
func NewPlacement(worker string, attemptedAt time.Time) *Placement {
	return &Placement{
		ID:            uuid.New().String(),
		Worker:        worker,
		AttemptedAtMs: attemptedAt.UnixMilli(),
	}
}

// Validate checks required fields.
func (p *Placement) Validate() error {
	if _, err := uuid.Parse(p.ID); err != nil {
		return fmt.Errorf("invalid placement id %q: %w", p.ID, err)
	}
	if p.Worker == "" {
		return fmt.Errorf("placement worker cannot be empty")
	}
	if err := p.Outcome.Validate(); err != nil {
		return err
	}
	if p.ColorID < 0 {
		return fmt.Errorf("placement color_id must be >= 0, got %d", p.ColorID)
	}
	return nil
}
