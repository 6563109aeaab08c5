package ledger

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient creates a test client connected to a miniredis instance
func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func testPlacement(worker string, outcome Outcome) *Placement {
	p := NewPlacement(worker, time.UnixMilli(1_690_000_000_000))
	p.X, p.Y = 1234, 567
	p.Region = 4
	p.ColorID = 27
	p.ColorName = "black"
	p.Outcome = outcome
	p.NextEligibleAtMs = 1_690_000_300_000
	return p
}

func TestNewClient(t *testing.T) {
	t.Run("creates client successfully", func(t *testing.T) {
		client, _ := setupTestClient(t)
		assert.Equal(t, "test-instance", client.instanceName)
		assert.NoError(t, client.Ping(context.Background()))
	})

	t.Run("rejects empty instance name", func(t *testing.T) {
		_, err := NewClient(&redis.Options{Addr: "localhost:6379"}, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "instance name cannot be empty")
	})
}

func TestSchema(t *testing.T) {
	assert.Equal(t, "mosaic:prod:token:alice", TokenKey("prod", "alice"))
	assert.Equal(t, "mosaic:prod:placements", PlacementsKey("prod"))
	assert.Equal(t, "mosaic:prod:placement_events", PlacementEventsChannel("prod"))
}

func TestValidateInstanceName(t *testing.T) {
	for _, ok := range []string{"mosaic", "prod-1", "a"} {
		assert.NoError(t, ValidateInstanceName(ok), ok)
	}
	for _, bad := range []string{"", "-prod", "prod-", "Prod", "a:b", strings.Repeat("a", 64)} {
		assert.Error(t, ValidateInstanceName(bad), bad)
	}
}

func TestToken(t *testing.T) {
	now := time.Unix(1000, 0)

	t.Run("valid strictly before expiry", func(t *testing.T) {
		tok := Token{Value: "abc", ExpiresAt: now.Add(time.Second)}
		assert.True(t, tok.Valid(now))
		assert.False(t, tok.Valid(now.Add(time.Second)), "expiry at now is expired")
	})

	t.Run("empty token is never valid", func(t *testing.T) {
		assert.False(t, Token{ExpiresAt: now.Add(time.Hour)}.Valid(now))
	})

	t.Run("redacts to five characters", func(t *testing.T) {
		assert.Equal(t, "abcde************", Token{Value: "abcdefghij"}.Redacted())
		assert.Equal(t, "****", Token{Value: "abc"}.Redacted())
	})
}

func TestTokenRoundTrip(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	_, found, err := client.LoadToken(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, found)

	want := Token{Value: "secret-token", ExpiresAt: time.UnixMilli(1_690_003_600_000)}
	require.NoError(t, client.SaveToken(ctx, "alice", want))

	got, found, err := client.LoadToken(ctx, "alice")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want.Value, got.Value)
	assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt))

	assert.True(t, mr.Exists(TokenKey("test-instance", "alice")))
}

func TestHashToToken_Invalid(t *testing.T) {
	_, err := HashToToken(map[string]string{"expires_at_ms": "1"})
	assert.Error(t, err)

	_, err = HashToToken(map[string]string{"value": "x", "expires_at_ms": "soon"})
	assert.Error(t, err)
}

func TestPlacementValidate(t *testing.T) {
	t.Run("accepts complete placement", func(t *testing.T) {
		assert.NoError(t, testPlacement("alice", OutcomePlaced).Validate())
	})

	t.Run("rejects bad id", func(t *testing.T) {
		p := testPlacement("alice", OutcomePlaced)
		p.ID = "not-a-uuid"
		assert.Error(t, p.Validate())
	})

	t.Run("rejects missing worker", func(t *testing.T) {
		assert.Error(t, testPlacement("", OutcomePlaced).Validate())
	})

	t.Run("rejects unknown outcome", func(t *testing.T) {
		assert.Error(t, testPlacement("alice", Outcome("maybe")).Validate())
	})
}

func TestRecordPlacement(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	first := testPlacement("alice", OutcomePlaced)
	second := testPlacement("bob", OutcomeRateLimited)
	require.NoError(t, client.RecordPlacement(ctx, first))
	require.NoError(t, client.RecordPlacement(ctx, second))

	got, err := client.RecentPlacements(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID, "newest first")
	assert.Equal(t, first.ID, got[1].ID)
	assert.Equal(t, first.X, got[1].X)
	assert.Equal(t, OutcomePlaced, got[1].Outcome)

	one, err := client.RecentPlacements(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)

	none, err := client.RecentPlacements(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecordPlacement_Trims(t *testing.T) {
	client, mr := setupTestClient(t)
	client.history = 3
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, client.RecordPlacement(ctx, testPlacement("alice", OutcomeFailed)))
	}

	entries, err := mr.List(PlacementsKey("test-instance"))
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestRecordPlacement_RejectsInvalid(t *testing.T) {
	client, _ := setupTestClient(t)
	p := testPlacement("alice", OutcomePlaced)
	p.ID = uuid.Nil.String()[:8]

	err := client.RecordPlacement(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid placement")
}

func TestSubscribePlacements(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	sub, err := client.SubscribePlacements(ctx)
	require.NoError(t, err)
	defer sub.Close()

	p := testPlacement("alice", OutcomePlaced)
	require.NoError(t, client.RecordPlacement(ctx, p))

	select {
	case got := <-sub.Events():
		require.NotNil(t, got)
		assert.Equal(t, p.ID, got.ID)
		assert.Equal(t, "alice", got.Worker)
	case <-time.After(2 * time.Second):
		t.Fatal("placement event not delivered")
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close(), "close is idempotent")
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	m.history = 2
	ctx := context.Background()

	_, found, err := m.LoadToken(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, m.SaveToken(ctx, "alice", Token{Value: "t"}))
	tok, found, err := m.LoadToken(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "t", tok.Value)

	a := testPlacement("alice", OutcomePlaced)
	b := testPlacement("alice", OutcomeFailed)
	c := testPlacement("alice", OutcomeRateLimited)
	for _, p := range []*Placement{a, b, c} {
		require.NoError(t, m.RecordPlacement(ctx, p))
	}

	got, err := m.RecentPlacements(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, c.ID, got[0].ID)
	assert.Equal(t, b.ID, got[1].ID)

	assert.Error(t, m.RecordPlacement(ctx, testPlacement("", OutcomePlaced)))
}
