package printer

import (
	"bytes"
	"image/color"
	"testing"

	fcolor "github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	prevOut, prevErr, prevNoColor := Out, Err, fcolor.NoColor
	Out, Err = &out, &errOut
	fcolor.NoColor = true
	t.Cleanup(func() {
		Out, Err, fcolor.NoColor = prevOut, prevErr, prevNoColor
	})
	return &out, &errOut
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		_, stderr := capture(t)
		err := Error("Test Error", "This is a test error", []string{})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, stderr.String(), "This is a test error")
	})

	t.Run("single suggestion printed verbatim", func(t *testing.T) {
		_, stderr := capture(t)
		err := Error("Test Error", "Explanation", []string{"Try this fix"})
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, stderr.String(), "\nTry this fix\n")
		assert.NotContains(t, stderr.String(), "Either:")
	})

	t.Run("multiple suggestions numbered", func(t *testing.T) {
		_, stderr := capture(t)
		Error("Test Error", "Explanation", []string{"First option", "Second option"})
		assert.Contains(t, stderr.String(), "Either:\n  1. First option\n  2. Second option\n")
	})
}

func TestErrorWithContext(t *testing.T) {
	_, stderr := capture(t)
	err := ErrorWithContext("Test Error", "Explanation", map[string]string{
		"Worker":   "alice",
		"Instance": "prod",
	}, nil)
	require.Equal(t, "Test Error", err.Error())
	assert.Contains(t, stderr.String(), "  Instance: prod\n  Worker: alice\n")
}

func TestStatusLines(t *testing.T) {
	stdout, _ := capture(t)

	Success("Placed %d pixels\n", 3)
	Warning("Ban threshold reached\n")
	Step("Loading template\n")

	out := stdout.String()
	assert.Contains(t, out, "✓ Placed 3 pixels")
	assert.Contains(t, out, "⚠️  Ban threshold reached")
	assert.Contains(t, out, "→ Loading template")
}

func TestSwatches(t *testing.T) {
	stdout, _ := capture(t)

	assert.Equal(t, "  ", Swatch(color.RGBA{R: 255, A: 255}))

	Swatches([]SwatchRow{{ID: 2, Hex: "#FF4500", Name: "red", RGB: color.RGBA{R: 0xff, G: 0x45, A: 0xff}}})
	assert.Equal(t, "  2    #FF4500 red\n", stdout.String())
}
