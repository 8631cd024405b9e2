package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHumanizeDuration(t *testing.T) {
	assert.Equal(t, "1 hour 5 minutes", HumanizeDuration(DurationPrecisionMinutes, time.Hour+time.Minute*5))
	assert.Equal(t, "2 days", HumanizeDuration(DurationPrecisionHours, time.Hour*48))
	assert.Equal(t, "1 minute 1 second", HumanizeDuration(DurationPrecisionSeconds, time.Minute+time.Second))
	assert.Equal(t, "less than a minute", HumanizeDuration(DurationPrecisionMinutes, time.Second*30))

	// negative durations are humanized by magnitude
	assert.Equal(t, "5 minutes", HumanizeDuration(DurationPrecisionMinutes, -time.Minute*5))
}

func TestMustParseInt(t *testing.T) {
	assert.Equal(t, int64(123), MustParseInt("123"))
	assert.Equal(t, int64(0), MustParseInt("not a number"))
}

func TestContainsInt64(t *testing.T) {
	assert.True(t, ContainsInt64([]int64{1, 2, 3}, 2))
	assert.False(t, ContainsInt64([]int64{1, 2, 3}, 4))
	assert.False(t, ContainsInt64(nil, 0))
}
