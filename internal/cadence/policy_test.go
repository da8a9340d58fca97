package cadence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault_Tiers(t *testing.T) {
	p := Default()
	require.Equal(t, 2*time.Second, p.Next(0))
	require.Equal(t, 2*time.Second, p.Next(4))
	require.Equal(t, 5*time.Second, p.Next(5))
	require.Equal(t, 10*time.Second, p.Next(15))
	require.Equal(t, 30*time.Second, p.Next(35))
	require.Equal(t, 30*time.Second, p.Next(10_000))
	require.Equal(t, p.Next(0), p.Min())
}

func TestDefault_NonDecreasing(t *testing.T) {
	p := Default()
	prev := p.Next(0)
	for i := 1; i < 200; i++ {
		next := p.Next(i)
		require.GreaterOrEqual(t, next, prev, "poll %d", i)
		prev = next
	}
	require.Equal(t, p.Max(), prev)
}

func TestNew_Validation(t *testing.T) {
	_, err := New([]Tier{{Until: 3, Interval: time.Second}}, 2*time.Second)
	require.NoError(t, err)

	cases := map[string]struct {
		tiers []Tier
		max   time.Duration
	}{
		"zero max":            {nil, 0},
		"zero interval":       {[]Tier{{Until: 2, Interval: 0}}, time.Second},
		"bounds not rising":   {[]Tier{{Until: 2, Interval: time.Second}, {Until: 2, Interval: time.Second}}, time.Second},
		"interval decreasing": {[]Tier{{Until: 2, Interval: 2 * time.Second}, {Until: 4, Interval: time.Second}}, 3 * time.Second},
		"max below last":      {[]Tier{{Until: 2, Interval: 5 * time.Second}}, time.Second},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(tc.tiers, tc.max)
			require.ErrorIs(t, err, ErrInvalidPolicy)
		})
	}
}

func TestNew_NoTiersIsFlat(t *testing.T) {
	p, err := New(nil, 7*time.Second)
	require.NoError(t, err)
	require.Equal(t, 7*time.Second, p.Next(0))
	require.Equal(t, 7*time.Second, p.Next(50))
}
