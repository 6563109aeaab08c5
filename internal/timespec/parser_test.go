package timespec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	now := time.Date(2025, 10, 29, 14, 0, 0, 0, time.UTC)

	ms, err := Parse("1h30m", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-90*time.Minute).UnixMilli(), ms)

	ms, err = Parse("2025-10-29T13:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 10, 29, 13, 0, 0, 0, time.UTC).UnixMilli(), ms)

	ms, err = Parse("1690000300000", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1690000300000), ms)

	for _, bad := range []string{"", "yesterday", "-5m", "90"} {
		_, err := Parse(bad, now)
		assert.Error(t, err, bad)
	}
}

func TestParseRange(t *testing.T) {
	now := time.Date(2025, 10, 29, 14, 0, 0, 0, time.UTC)

	since, until, err := ParseRange("2h", "1h", now)
	require.NoError(t, err)
	assert.Less(t, since, until)

	since, until, err = ParseRange("", "", now)
	require.NoError(t, err)
	assert.Zero(t, since)
	assert.Zero(t, until)

	_, _, err = ParseRange("1h", "2h", now)
	assert.ErrorContains(t, err, "--since must be before --until")

	_, _, err = ParseRange("nope", "", now)
	assert.ErrorContains(t, err, "invalid --since")
}
