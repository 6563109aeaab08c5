package worker

import (
	"context"
	"image"
	"time"

	"github.com/dyluth/mosaic/internal/canvas"
	"github.com/dyluth/mosaic/internal/ledger"
)

// Identity is one account the scheduler places pixels for.
type Identity struct {
	Username string
	Password string
}

// Authenticator exchanges credentials for an access token.
type Authenticator interface {
	Authenticate(ctx context.Context, id Identity, now time.Time) (ledger.Token, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, id Identity, now time.Time) (ledger.Token, error)

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, id Identity, now time.Time) (ledger.Token, error) {
	return f(ctx, id, now)
}

// PlaceRequest is one pixel placement in the remote addressing scheme.
type PlaceRequest struct {
	Within  image.Point
	Region  int
	ColorID int
	Token   string
}

// Response is the decoded result of a placement call.
// Exactly one of Success and Error is normally set.
type Response struct {
	Success *Success
	Error   *ResponseError
	Raw     string
}

// Success carries the server-reported cooldown end.
type Success struct {
	NextAvailable time.Time
}

// ResponseError is a server-side rejection.
type ResponseError struct {
	Message string

	// RateLimit is set when the server attached structured cooldown details.
	RateLimit *RateLimit
}

// RateLimit carries the instant the identity may place again.
type RateLimit struct {
	NextAvailable time.Time
}

// Placer submits a placement.
type Placer interface {
	Place(ctx context.Context, req PlaceRequest) (*Response, error)
}

// PlacerFunc adapts a function to Placer.
type PlacerFunc func(ctx context.Context, req PlaceRequest) (*Response, error)

// Place calls f.
func (f PlacerFunc) Place(ctx context.Context, req PlaceRequest) (*Response, error) {
	return f(ctx, req)
}

// Source hands out one discrepancy per call. *canvas.Cache implements it.
type Source interface {
	Next(ctx context.Context, token, worker string) (canvas.Target, bool, error)
}

// TokenStore holds tokens keyed by identity. *ledger.Client and *ledger.Memory
// implement it.
type TokenStore interface {
	LoadToken(ctx context.Context, worker string) (ledger.Token, bool, error)
	SaveToken(ctx context.Context, worker string, t ledger.Token) error
}

// Journal records placement attempts.
type Journal interface {
	RecordPlacement(ctx context.Context, p *ledger.Placement) error
}
