package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "<1s"},
		{999 * time.Millisecond, "<1s"},
		{time.Second, "1s"},
		{42 * time.Second, "42s"},
		{185 * time.Second, "3m 5s"},
		{time.Hour, "1h 0m"},
		{time.Hour + 2*time.Minute + 59*time.Second, "1h 2m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in), tt.in.String())
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "ünï…", truncate("ünïcode", 4))
}

func TestFormatCount(t *testing.T) {
	total := 12
	assert.Equal(t, "3", formatCount(3, nil))
	assert.Equal(t, "3/12", formatCount(3, &total))
}

func TestFormatETA(t *testing.T) {
	assert.Equal(t, "—", formatETA(30, false))
	assert.Equal(t, "—", formatETA(0, true))
	assert.Equal(t, "45s", formatETA(45, true))
	assert.Equal(t, "2m", formatETA(120, true))
	assert.Equal(t, "2m 5s", formatETA(125, true))
}
