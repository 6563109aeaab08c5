// Package worker runs one placement loop per identity.
//
// Each Scheduler cycles through authentication, discrepancy acquisition,
// placement, cooldown interpretation and waiting until its context is cancelled,
// authentication fails, or the server imposes a cooldown long enough to be
// treated as a ban. Schedulers share nothing with each other except the canvas
// source and the token store, both of which are safe for concurrent use.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/dyluth/mosaic/internal/canvas"
	"github.com/dyluth/mosaic/internal/clock"
	"github.com/dyluth/mosaic/internal/ledger"
	"github.com/dyluth/mosaic/internal/palette"
)

// ErrBanned is returned by Run when a computed cooldown exceeds the ban threshold.
var ErrBanned = errors.New("identity rate-limit banned")

// State is the scheduler's position in its cycle.
type State int32

const (
	StateIdle State = iota
	StateAuthCheck
	StateAcquire
	StatePlace
	StateWait
	StateStopped
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthCheck:
		return "auth_check"
	case StateAcquire:
		return "acquire"
	case StatePlace:
		return "place"
	case StateWait:
		return "wait"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Settings tune the scheduler's pacing.
type Settings struct {
	// InitialWait is slept before the first cycle.
	InitialWait time.Duration

	// PollInterval separates canvas polls when nothing needs fixing.
	PollInterval time.Duration

	// ErrorBackoff is the cooldown after an error without rate-limit details.
	ErrorBackoff time.Duration

	// BanThreshold is the longest cooldown still considered legitimate.
	BanThreshold time.Duration
}

// DefaultSettings mirrors the server's observed behaviour.
var DefaultSettings = Settings{
	PollInterval: 10 * time.Second,
	ErrorBackoff: 60 * time.Second,
	BanThreshold: 10000 * time.Second,
}

// Deps are the collaborators a Scheduler needs. Journal may be nil.
type Deps struct {
	Source  Source
	Auth    Authenticator
	Placer  Placer
	Tokens  TokenStore
	Journal Journal
	Mapper  *palette.Mapper
	Grid    canvas.Grid
	Clock   clock.Clock
}

// Scheduler drives one identity.
type Scheduler struct {
	id       Identity
	deps     Deps
	settings Settings
	state    atomic.Int32
}

// New creates a scheduler for id. A nil Clock defaults to the wall clock.
func New(id Identity, deps Deps, settings Settings) *Scheduler {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Grid == (canvas.Grid{}) {
		deps.Grid = canvas.DefaultGrid
	}
	return &Scheduler{id: id, deps: deps, settings: settings}
}

// Name returns the identity's username.
func (s *Scheduler) Name() string { return s.id.Username }

// State returns the current cycle state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Run loops until ctx is cancelled (returns nil), authentication fails, or the
// identity is banned (returns ErrBanned).
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.state.Store(int32(StateStopped))
	defer log.Printf("[DEBUG] worker='%s' Scheduler exited", s.Name())

	wait := s.settings.InitialWait
	for {
		s.state.Store(int32(StateWait))
		if err := clock.Sleep(ctx, s.deps.Clock, wait); err != nil {
			log.Printf("[DEBUG] worker='%s' Received shutdown signal", s.Name())
			return nil
		}

		s.state.Store(int32(StateAuthCheck))
		token, err := s.ensureToken(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("[ERROR] worker='%s' Authentication failed, stopping: %v", s.Name(), err)
			return fmt.Errorf("worker %s: authentication failed: %w", s.Name(), err)
		}

		s.state.Store(int32(StateAcquire))
		target, err := s.acquire(ctx, token)
		if err != nil || ctx.Err() != nil {
			log.Printf("[DEBUG] worker='%s' Received shutdown signal", s.Name())
			return nil
		}

		s.state.Store(int32(StatePlace))
		decision, now := s.place(ctx, token, target)

		wait = decision.Wait(now)
		if wait > s.settings.BanThreshold {
			log.Printf("[WARN] worker='%s' CANCELLED: cooldown of %s exceeds %s, treating as rate-limit ban",
				s.Name(), wait.Round(time.Second), s.settings.BanThreshold)
			return fmt.Errorf("worker %s: %w (cooldown %s)", s.Name(), ErrBanned, wait.Round(time.Second))
		}

		log.Printf("[DEBUG] worker='%s' Until next placement: %s", s.Name(), wait.Round(time.Millisecond))
	}
}

// ensureToken returns a usable token, authenticating when none is held or the
// held one has expired.
func (s *Scheduler) ensureToken(ctx context.Context) (string, error) {
	now := s.deps.Clock.Now()

	tok, found, err := s.deps.Tokens.LoadToken(ctx, s.Name())
	if err != nil {
		log.Printf("[WARN] worker='%s' Failed to read stored token, re-authenticating: %v", s.Name(), err)
		found = false
	}
	if found && tok.Valid(now) {
		return tok.Value, nil
	}

	log.Printf("[DEBUG] worker='%s' Refreshing access token", s.Name())
	tok, err = s.deps.Auth.Authenticate(ctx, s.id, now)
	if err != nil {
		return "", err
	}

	if err := s.deps.Tokens.SaveToken(ctx, s.Name(), tok); err != nil {
		log.Printf("[WARN] worker='%s' Failed to store token: %v", s.Name(), err)
	}
	log.Printf("[DEBUG] worker='%s' Received new access token: %s (expires %s)",
		s.Name(), tok.Redacted(), tok.ExpiresAt.Format(time.RFC3339))

	return tok.Value, nil
}

// acquire polls the source until it yields a discrepancy. Only cancellation
// ends the loop early.
func (s *Scheduler) acquire(ctx context.Context, token string) (canvas.Target, error) {
	for {
		target, ok, err := s.deps.Source.Next(ctx, token, s.Name())
		switch {
		case err != nil:
			log.Printf("[ERROR] worker='%s' Failed to read canvas, retrying in %s: %v", s.Name(), s.settings.PollInterval, err)
		case ok:
			log.Printf("[INFO] worker='%s' Found unset pixel at %v", s.Name(), target.Visual)
			return target, nil
		default:
			log.Printf("[INFO] worker='%s' All pixels are correct, trying again in %s", s.Name(), s.settings.PollInterval)
		}

		if err := clock.Sleep(ctx, s.deps.Clock, s.settings.PollInterval); err != nil {
			return canvas.Target{}, err
		}
	}
}

// place submits target and interprets the response. The returned time is the
// instant the response was received.
func (s *Scheduler) place(ctx context.Context, token string, target canvas.Target) (Decision, time.Time) {
	within, region := s.deps.Grid.Locate(target.Absolute)
	colorName := s.colorName(target.ColorID)

	log.Printf("[WARN] worker='%s' Attempting to place %s pixel at %v", s.Name(), colorName, target.Visual)

	resp, err := s.deps.Placer.Place(ctx, PlaceRequest{
		Within:  within,
		Region:  region,
		ColorID: target.ColorID,
		Token:   token,
	})
	now := s.deps.Clock.Now()
	if resp != nil {
		log.Printf("[DEBUG] worker='%s' Received response: %s", s.Name(), resp.Raw)
	}

	decision := Interpret(resp, err, now, s.settings.ErrorBackoff)

	switch decision.Outcome {
	case ledger.OutcomePlaced:
		log.Printf("[INFO] worker='%s' Succeeded placing %s pixel at %v", s.Name(), colorName, target.Visual)
	case ledger.OutcomeRateLimited:
		log.Printf("[ERROR] worker='%s' Failed placing pixel at %v: rate limited for %.0fs",
			s.Name(), target.Visual, decision.NextEligible.Sub(now).Seconds())
	default:
		log.Printf("[ERROR] worker='%s' Failed placing pixel at %v (%s): %s",
			s.Name(), target.Visual, decision.Outcome, decision.Message)
	}

	s.record(ctx, target, region, colorName, decision, now)
	return decision, now
}

func (s *Scheduler) record(ctx context.Context, target canvas.Target, region int, colorName string, d Decision, now time.Time) {
	if s.deps.Journal == nil {
		return
	}

	p := ledger.NewPlacement(s.Name(), now)
	p.X, p.Y = target.Absolute.X, target.Absolute.Y
	p.Region = region
	p.ColorID = target.ColorID
	p.ColorName = colorName
	p.Outcome = d.Outcome
	p.Message = d.Message
	p.NextEligibleAtMs = d.NextEligible.UnixMilli()

	if err := s.deps.Journal.RecordPlacement(context.WithoutCancel(ctx), p); err != nil {
		log.Printf("[WARN] worker='%s' Failed to record placement %s: %v", s.Name(), p.ID, err)
	}
}

func (s *Scheduler) colorName(id int) string {
	if s.deps.Mapper == nil {
		return fmt.Sprintf("color %d", id)
	}
	return s.deps.Mapper.Name(id)
}
