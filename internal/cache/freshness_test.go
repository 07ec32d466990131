package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Boundaries(t *testing.T) {
	staleness := 5 * time.Minute
	expiry := 45 * time.Minute

	tests := []struct {
		name string
		age  time.Duration
		want Freshness
	}{
		{"just written", 0, Fresh},
		{"one second under staleness", 4*time.Minute + 59*time.Second, Fresh},
		{"exactly at staleness", 5 * time.Minute, Aging},
		{"one second over staleness", 5*time.Minute + time.Second, Aging},
		{"one second under expiry", 44*time.Minute + 59*time.Second, Aging},
		{"exactly at expiry", 45 * time.Minute, Expired},
		{"one second over expiry", 45*time.Minute + time.Second, Expired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.age, staleness, expiry))
		})
	}
}

func TestFreshness_Servable(t *testing.T) {
	assert.True(t, Fresh.Servable())
	assert.True(t, Aging.Servable())
	assert.False(t, Expired.Servable())
}

func TestFreshness_String(t *testing.T) {
	assert.Equal(t, "fresh", Fresh.String())
	assert.Equal(t, "aging", Aging.String())
	assert.Equal(t, "expired", Expired.String())
}
