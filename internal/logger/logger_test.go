package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVenueScopedLines(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	SetLevel("info")

	Infof("cycle %d done", 7)
	ForVenue("aster").Warnf("rate limited")

	out := buf.String()
	assert.Contains(t, out, "cycle 7 done")
	assert.Contains(t, out, "venue=aster")
	assert.Contains(t, out, "rate limited")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	SetLevel("warn")
	Infof("below threshold")
	Warnf("above threshold")
	assert.NotContains(t, buf.String(), "below threshold")
	assert.Contains(t, buf.String(), "above threshold")

	SetLevel("info")
	Debugf("still hidden")
	Infof("now visible")
	out := buf.String()
	assert.NotContains(t, out, "still hidden")
	assert.Contains(t, out, "now visible")
}
