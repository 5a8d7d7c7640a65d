package relay_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omni/bridge-relayer/relay"
)

func TestBackoff_Delay(t *testing.T) {
	t.Parallel()

	b := relay.NewBackoff(time.Second, 10*time.Second)
	require.Equal(t, time.Duration(0), b.Delay(0))
	require.Equal(t, time.Second, b.Delay(1))
	require.Equal(t, 2*time.Second, b.Delay(2))
	require.Equal(t, 4*time.Second, b.Delay(3))
	require.Equal(t, 8*time.Second, b.Delay(4))
	require.Equal(t, 10*time.Second, b.Delay(5))
	require.Equal(t, 10*time.Second, b.Delay(50))
}

func TestBackoff_Monotonic(t *testing.T) {
	t.Parallel()

	b := relay.NewBackoff(5*time.Second, 10*time.Minute)
	prev := b.Delay(1)
	for n := uint(2); n <= 7; n++ {
		cur := b.Delay(n)
		require.Greater(t, cur, prev, "attempt %d", n)
		prev = cur
	}
	require.Equal(t, 10*time.Minute, b.Delay(8))
}
