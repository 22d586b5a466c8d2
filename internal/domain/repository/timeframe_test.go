package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTimeframe(t *testing.T) {
	assert.Equal(t, TF1h, NormalizeTimeframe(""))
	assert.Equal(t, TF5m, NormalizeTimeframe("5m"))
	assert.Equal(t, TF1d, NormalizeTimeframe("1d"))
	// Unknown values fall back to the default rather than erroring.
	assert.Equal(t, TF1h, NormalizeTimeframe("2h"))
	assert.Equal(t, TF1h, NormalizeTimeframe("garbage"))
}

func TestTimeframeDuration(t *testing.T) {
	assert.Equal(t, time.Minute, TF1m.Duration())
	assert.Equal(t, 15*time.Minute, TF15m.Duration())
	assert.Equal(t, 4*time.Hour, TF4h.Duration())
	assert.Equal(t, 24*time.Hour, TF1d.Duration())
	assert.Equal(t, time.Hour, Timeframe("bogus").Duration())
}

func TestIsValidTimeframe(t *testing.T) {
	assert.True(t, IsValidTimeframe(TF1m))
	assert.True(t, IsValidTimeframe(TF1d))
	assert.False(t, IsValidTimeframe(Timeframe("30m")))
	assert.False(t, IsValidTimeframe(Timeframe("")))
}
