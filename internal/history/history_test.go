package history

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/mosaic/internal/filter"
	"github.com/dyluth/mosaic/internal/ledger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func placement(worker string, outcome ledger.Outcome, at time.Time) *ledger.Placement {
	p := ledger.NewPlacement(worker, at)
	p.X, p.Y = 1234, 567
	p.ColorName = "black"
	p.ColorID = 27
	p.Outcome = outcome
	p.NextEligibleAtMs = at.Add(5 * time.Minute).UnixMilli()
	return p
}

func TestFormatTable(t *testing.T) {
	now := time.Now()
	var buf bytes.Buffer

	n := FormatTable(&buf, []*ledger.Placement{placement("alice", ledger.OutcomePlaced, now.Add(-2*time.Minute))}, "prod", now)
	assert.Equal(t, 1, n)

	out := buf.String()
	assert.Contains(t, out, "Placements for instance 'prod'")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "1234,567")
	assert.Contains(t, out, "2m ago")
	assert.Contains(t, out, "+5m0s")
	assert.Contains(t, out, "1 placement found")
}

func TestFormatTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	assert.Zero(t, FormatTable(&buf, nil, "prod", time.Now()))
	assert.Equal(t, "No placements found for instance 'prod'\n", buf.String())
}

func TestFormatHelpers(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	assert.Equal(t, "-", formatAge(0, now))
	assert.Equal(t, "30s ago", formatAge(now.Add(-30*time.Second).UnixMilli(), now))
	assert.Equal(t, "3h ago", formatAge(now.Add(-3*time.Hour).UnixMilli(), now))
	assert.Equal(t, "2d ago", formatAge(now.Add(-50*time.Hour).UnixMilli(), now))

	assert.Equal(t, "-", formatNext(0, 1000))
	assert.Equal(t, "+1m0s", formatNext(61000, 1000))

	assert.Equal(t, "abcdefgh", formatID("abcdefgh-1234"))
	assert.Equal(t, "-", truncate("", 5))
	assert.Equal(t, "ab...", truncate("abcdefgh", 5))
}

func TestFormatDetail(t *testing.T) {
	p := placement("alice", ledger.OutcomeRateLimited, time.UnixMilli(1_690_000_000_000))
	p.Message = "You are on cooldown"

	var buf bytes.Buffer
	require.NoError(t, FormatDetail(&buf, p))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "{\n  \"id\": \""+p.ID+"\","))
	assert.Contains(t, out, `  "outcome": "rate_limited",`)
	assert.Contains(t, out, `  "message": "You are on cooldown",`)
	assert.True(t, strings.HasSuffix(out, "}\n"))
}

func TestListPlacements(t *testing.T) {
	ctx := context.Background()
	mem := ledger.NewMemory()
	base := time.Now().Add(-time.Hour)

	require.NoError(t, mem.RecordPlacement(ctx, placement("alice", ledger.OutcomePlaced, base)))
	require.NoError(t, mem.RecordPlacement(ctx, placement("bob", ledger.OutcomeRateLimited, base.Add(time.Minute))))
	require.NoError(t, mem.RecordPlacement(ctx, placement("alice", ledger.OutcomeFailed, base.Add(2*time.Minute))))

	t.Run("jsonl oldest first", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, ListPlacements(ctx, mem, "prod", OutputFormatJSONL, nil, 10, &buf))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 3)
		first, err := ledger.DecodePlacement([]byte(lines[0]))
		require.NoError(t, err)
		assert.Equal(t, ledger.OutcomePlaced, first.Outcome)
	})

	t.Run("filtered", func(t *testing.T) {
		var buf bytes.Buffer
		criteria := &filter.Criteria{WorkerGlob: "alice"}
		require.NoError(t, ListPlacements(ctx, mem, "prod", OutputFormatDefault, criteria, 10, &buf))
		assert.Contains(t, buf.String(), "2 placements found")
		assert.NotContains(t, buf.String(), "bob")
	})

	t.Run("limit", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, ListPlacements(ctx, mem, "prod", OutputFormatJSONL, nil, 1, &buf))
		assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	})
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, OutputFormatDefault, f)

	f, err = ParseFormat("jsonl")
	require.NoError(t, err)
	assert.Equal(t, OutputFormatJSONL, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestFollow(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := ledger.NewClient(&redis.Options{Addr: mr.Addr()}, "prod")
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := client.SubscribePlacements(ctx)
	require.NoError(t, err)

	var buf safeBuffer
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, sub, OutputFormatDefault, &filter.Criteria{Outcome: ledger.OutcomePlaced}, &buf)
	}()

	now := time.Now()
	require.NoError(t, client.RecordPlacement(ctx, placement("bob", ledger.OutcomeFailed, now)))
	require.NoError(t, client.RecordPlacement(ctx, placement("alice", ledger.OutcomePlaced, now)))

	require.Eventually(t, func() bool { return strings.Contains(buf.String(), "alice") }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.NotContains(t, buf.String(), "bob")
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
