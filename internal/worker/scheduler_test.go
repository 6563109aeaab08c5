package worker

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/dyluth/mosaic/internal/canvas"
	"github.com/dyluth/mosaic/internal/clock"
	"github.com/dyluth/mosaic/internal/ledger"
	"github.com/dyluth/mosaic/internal/palette"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Unix(1_690_000_000, 0)

// stubSource returns misses empty polls, then target forever.
type stubSource struct {
	mu     sync.Mutex
	target canvas.Target
	misses int
	err    error
	calls  int
}

func (s *stubSource) Next(ctx context.Context, token, worker string) (canvas.Target, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		err := s.err
		s.err = nil
		return canvas.Target{}, false, err
	}
	if s.misses > 0 {
		s.misses--
		return canvas.Target{}, false, nil
	}
	return s.target, true, nil
}

type countingAuth struct {
	mu    sync.Mutex
	calls []time.Time
	ttl   time.Duration
	err   error
}

func (a *countingAuth) Authenticate(ctx context.Context, id Identity, now time.Time) (ledger.Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, now)
	if a.err != nil {
		return ledger.Token{}, a.err
	}
	return ledger.Token{Value: "token-" + id.Username, ExpiresAt: now.Add(a.ttl)}, nil
}

func (a *countingAuth) Calls() []time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]time.Time(nil), a.calls...)
}

type harness struct {
	clk     *clock.Fake
	source  *stubSource
	auth    *countingAuth
	journal *ledger.Memory
	ctx     context.Context
	cancel  context.CancelFunc
	reqs    []PlaceRequest
}

func newHarness(t *testing.T) *harness {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &harness{
		clk: clock.NewFake(t0),
		source: &stubSource{target: canvas.Target{
			Absolute: image.Pt(1234, 1567),
			Visual:   image.Pt(-266, 567),
			ColorID:  27,
		}},
		auth:    &countingAuth{ttl: 3600 * time.Second},
		journal: ledger.NewMemory(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// scheduler builds a scheduler whose placer runs respond for each attempt
// (1-based) and cancels the run after stopAfter attempts.
func (h *harness) scheduler(stopAfter int, respond func(n int, now time.Time) (*Response, error), settings Settings) *Scheduler {
	n := 0
	placer := PlacerFunc(func(ctx context.Context, req PlaceRequest) (*Response, error) {
		n++
		h.reqs = append(h.reqs, req)
		if n >= stopAfter {
			h.cancel()
		}
		return respond(n, h.clk.Now())
	})

	return New(Identity{Username: "alice", Password: "pw"}, Deps{
		Source:  h.source,
		Auth:    h.auth,
		Placer:  placer,
		Tokens:  ledger.NewMemory(),
		Journal: h.journal,
		Mapper:  palette.NewMapper(palette.Default()),
		Clock:   h.clk,
	}, settings)
}

func success(next time.Time) *Response {
	return &Response{Success: &Success{NextAvailable: next}, Raw: `{"data":{}}`}
}

func TestInterpret(t *testing.T) {
	now := t0
	backoff := 60 * time.Second

	tests := []struct {
		name        string
		resp        *Response
		err         error
		wantOutcome ledger.Outcome
		wantWait    time.Duration
	}{
		{
			name:        "success uses server timestamp",
			resp:        success(now.Add(5 * time.Minute)),
			wantOutcome: ledger.OutcomePlaced,
			wantWait:    5 * time.Minute,
		},
		{
			name:        "success in the past clamps to zero",
			resp:        success(now.Add(-time.Minute)),
			wantOutcome: ledger.OutcomePlaced,
			wantWait:    0,
		},
		{
			name:        "unstructured error backs off",
			resp:        &Response{Error: &ResponseError{Message: "oops"}},
			wantOutcome: ledger.OutcomeFailed,
			wantWait:    backoff,
		},
		{
			name: "rate limit uses extension timestamp",
			resp: &Response{Error: &ResponseError{
				Message:   "Ratelimited",
				RateLimit: &RateLimit{NextAvailable: now.Add(137 * time.Second)},
			}},
			wantOutcome: ledger.OutcomeRateLimited,
			wantWait:    137 * time.Second,
		},
		{
			name:        "transport failure backs off",
			err:         errors.New("connection refused"),
			wantOutcome: ledger.OutcomeTransportError,
			wantWait:    backoff,
		},
		{
			name:        "empty response backs off",
			resp:        &Response{},
			wantOutcome: ledger.OutcomeFailed,
			wantWait:    backoff,
		},
		{
			name:        "nil response backs off",
			wantOutcome: ledger.OutcomeFailed,
			wantWait:    backoff,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Interpret(tt.resp, tt.err, now, backoff)
			assert.Equal(t, tt.wantOutcome, d.Outcome)
			assert.Equal(t, tt.wantWait, d.Wait(now))
		})
	}
}

func TestScheduler_NormalCadence(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler(3, func(n int, now time.Time) (*Response, error) {
		return success(now.Add(5 * time.Minute)), nil
	}, DefaultSettings)

	require.NoError(t, s.Run(h.ctx))

	assert.Equal(t, []time.Duration{5 * time.Minute, 5 * time.Minute}, h.clk.Sleeps())
	assert.Len(t, h.auth.Calls(), 1, "token still valid after 10 minutes")
	assert.Equal(t, StateStopped, s.State())

	entries, err := h.journal.RecentPlacements(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, p := range entries {
		assert.Equal(t, ledger.OutcomePlaced, p.Outcome)
		assert.Equal(t, "alice", p.Worker)
		assert.Equal(t, "black", p.ColorName)
	}
}

func TestScheduler_TranslatesToRegion(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler(1, func(n int, now time.Time) (*Response, error) {
		return success(now), nil
	}, DefaultSettings)

	require.NoError(t, s.Run(h.ctx))
	require.Len(t, h.reqs, 1)
	assert.Equal(t, PlaceRequest{Within: image.Pt(234, 567), Region: 4, ColorID: 27, Token: "token-alice"}, h.reqs[0])
}

func TestScheduler_UnstructuredErrorBacksOff(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler(2, func(n int, now time.Time) (*Response, error) {
		return &Response{Error: &ResponseError{Message: "internal error"}}, nil
	}, DefaultSettings)

	require.NoError(t, s.Run(h.ctx))
	assert.Equal(t, []time.Duration{60 * time.Second}, h.clk.Sleeps())
}

func TestScheduler_RateLimited(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler(2, func(n int, now time.Time) (*Response, error) {
		return &Response{Error: &ResponseError{
			Message:   "Ratelimited",
			RateLimit: &RateLimit{NextAvailable: now.Add(2 * time.Minute)},
		}}, nil
	}, DefaultSettings)

	require.NoError(t, s.Run(h.ctx))
	assert.Equal(t, []time.Duration{2 * time.Minute}, h.clk.Sleeps())

	entries, err := h.journal.RecentPlacements(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.OutcomeRateLimited, entries[0].Outcome)
}

func TestScheduler_TransportErrorBacksOff(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler(2, func(n int, now time.Time) (*Response, error) {
		return nil, errors.New("connection reset by peer")
	}, DefaultSettings)

	require.NoError(t, s.Run(h.ctx))
	assert.Equal(t, []time.Duration{60 * time.Second}, h.clk.Sleeps())
}

func TestScheduler_BanStopsLoop(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler(100, func(n int, now time.Time) (*Response, error) {
		return &Response{Error: &ResponseError{
			Message:   "Ratelimited",
			RateLimit: &RateLimit{NextAvailable: now.Add(3 * time.Hour)},
		}}, nil
	}, DefaultSettings)

	err := s.Run(h.ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBanned)
	assert.Len(t, h.reqs, 1, "banned identity must not retry")
	assert.Empty(t, h.clk.Sleeps())
	assert.NoError(t, h.ctx.Err(), "ban is not a shutdown")
}

func TestScheduler_ReauthenticatesAfterExpiry(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler(2, func(n int, now time.Time) (*Response, error) {
		return success(now.Add(3601 * time.Second)), nil
	}, DefaultSettings)

	require.NoError(t, s.Run(h.ctx))

	calls := h.auth.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, t0, calls[0])
	assert.Equal(t, t0.Add(3601*time.Second), calls[1])
	assert.Equal(t, "token-alice", h.reqs[1].Token)
}

func TestScheduler_UsesStoredToken(t *testing.T) {
	h := newHarness(t)
	tokens := ledger.NewMemory()
	require.NoError(t, tokens.SaveToken(context.Background(), "alice", ledger.Token{
		Value:     "stored",
		ExpiresAt: t0.Add(time.Hour),
	}))

	s := New(Identity{Username: "alice"}, Deps{
		Source: h.source,
		Auth:   h.auth,
		Placer: PlacerFunc(func(ctx context.Context, req PlaceRequest) (*Response, error) {
			h.reqs = append(h.reqs, req)
			h.cancel()
			return success(h.clk.Now()), nil
		}),
		Tokens: tokens,
		Clock:  h.clk,
	}, DefaultSettings)

	require.NoError(t, s.Run(h.ctx))
	assert.Empty(t, h.auth.Calls())
	require.Len(t, h.reqs, 1)
	assert.Equal(t, "stored", h.reqs[0].Token)
}

func TestScheduler_AuthFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.auth.err = errors.New("invalid credentials")
	s := h.scheduler(1, func(n int, now time.Time) (*Response, error) {
		t.Fatal("must not place without a token")
		return nil, nil
	}, DefaultSettings)

	err := s.Run(h.ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid credentials")
	assert.NotErrorIs(t, err, ErrBanned)
	assert.Zero(t, h.source.calls)
}

func TestScheduler_PollsUntilDiscrepancy(t *testing.T) {
	h := newHarness(t)
	h.source.misses = 2
	s := h.scheduler(1, func(n int, now time.Time) (*Response, error) {
		return success(now.Add(time.Minute)), nil
	}, DefaultSettings)

	require.NoError(t, s.Run(h.ctx))
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, h.clk.Sleeps())
	assert.Equal(t, 3, h.source.calls)
}

func TestScheduler_SourceErrorRepolls(t *testing.T) {
	h := newHarness(t)
	h.source.err = errors.New("no board snapshot available")
	s := h.scheduler(1, func(n int, now time.Time) (*Response, error) {
		return success(now), nil
	}, DefaultSettings)

	require.NoError(t, s.Run(h.ctx))
	assert.Equal(t, []time.Duration{10 * time.Second}, h.clk.Sleeps())
}

func TestScheduler_InitialWait(t *testing.T) {
	h := newHarness(t)
	settings := DefaultSettings
	settings.InitialWait = 30 * time.Second
	s := h.scheduler(1, func(n int, now time.Time) (*Response, error) {
		return success(now), nil
	}, settings)

	require.NoError(t, s.Run(h.ctx))
	assert.Equal(t, []time.Duration{30 * time.Second}, h.clk.Sleeps())
	assert.Equal(t, t0.Add(30*time.Second), h.auth.Calls()[0])
}

func TestScheduler_ShutdownDuringCooldown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	placed := make(chan struct{}, 1)
	s := New(Identity{Username: "alice"}, Deps{
		Source: &stubSource{target: canvas.Target{Absolute: image.Pt(1, 1)}},
		Auth:   &countingAuth{ttl: time.Hour},
		Placer: PlacerFunc(func(ctx context.Context, req PlaceRequest) (*Response, error) {
			placed <- struct{}{}
			return success(time.Now().Add(time.Hour)), nil
		}),
		Tokens: ledger.NewMemory(),
	}, DefaultSettings)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-placed:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler never placed")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop promptly")
	}
}

// cancellingSource stands in for a cache whose lock was held through a
// shutdown: the signal arrives while Next is running.
type cancellingSource struct {
	cancel context.CancelFunc
	target canvas.Target
}

func (s cancellingSource) Next(ctx context.Context, token, worker string) (canvas.Target, bool, error) {
	s.cancel()
	return s.target, true, nil
}

func TestScheduler_ShutdownDuringAcquire(t *testing.T) {
	h := newHarness(t)
	placed := 0
	s := New(Identity{Username: "alice"}, Deps{
		Source: cancellingSource{cancel: h.cancel, target: h.source.target},
		Auth:   h.auth,
		Placer: PlacerFunc(func(ctx context.Context, req PlaceRequest) (*Response, error) {
			placed++
			return success(h.clk.Now().Add(5 * time.Minute)), nil
		}),
		Tokens:  ledger.NewMemory(),
		Journal: h.journal,
		Mapper:  palette.NewMapper(palette.Default()),
		Clock:   h.clk,
	}, DefaultSettings)

	require.NoError(t, s.Run(h.ctx))
	assert.Zero(t, placed, "no placement after shutdown")

	recent, err := h.journal.RecentPlacements(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
	assert.Equal(t, StateStopped, s.State())
}

type fixedLoader struct{ tmpl *canvas.Template }

func (l fixedLoader) Load(ctx context.Context) (*canvas.Template, canvas.Offsets, error) {
	return l.tmpl, canvas.Offsets{}, nil
}

type fixedFetcher struct{ board image.Image }

func (f fixedFetcher) FetchBoard(ctx context.Context, token string) (image.Image, error) {
	return f.board, nil
}

// A popped discrepancy that fails to place is not re-queued; it only comes
// back with the next full recomputation.
func TestScheduler_FailedPlacementIsNotRequeued(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 255, A: 255})

	board := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	for i := 3; i < len(board.Pix); i += 4 {
		board.Pix[i] = 0xff
	}

	mapper := palette.NewMapper(palette.Default())
	cache := canvas.NewCache(mapper, fixedLoader{canvas.NewTemplate(image.Point{}, img)}, fixedFetcher{board})
	require.NoError(t, cache.Load(context.Background()))

	h := newHarness(t)
	s := New(Identity{Username: "alice"}, Deps{
		Source: cache,
		Auth:   h.auth,
		Placer: PlacerFunc(func(ctx context.Context, req PlaceRequest) (*Response, error) {
			h.cancel()
			return nil, errors.New("timeout")
		}),
		Tokens: ledger.NewMemory(),
		Mapper: mapper,
		Clock:  h.clk,
	}, DefaultSettings)

	require.NoError(t, s.Run(h.ctx))
	assert.Equal(t, 1, cache.Pending(), "failed entry is gone from the queue")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "auth_check", StateAuthCheck.String())
	assert.Equal(t, "wait", StateWait.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "state(42)", State(42).String())
}
