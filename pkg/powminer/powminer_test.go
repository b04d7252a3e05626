package powminer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeadingZeroBitsCountsBitsNotJustBytes(t *testing.T) {
	cases := []struct {
		first byte
		want  int
	}{
		{0b10000000, 0},
		{0b01000000, 1},
		{0b00000001, 7},
	}
	for _, c := range cases {
		var digest [32]byte
		digest[0] = c.first
		assert.Equal(t, c.want, leadingZeroBits(digest))
	}
}

func TestLeadingZeroBitsSpansBytes(t *testing.T) {
	var digest [32]byte
	digest[0] = 0
	digest[1] = 0b00100000
	assert.Equal(t, 8+2, leadingZeroBits(digest))
}

func TestCalibrateReportsPositiveHashrate(t *testing.T) {
	m := New()
	rate := m.Calibrate(50 * time.Millisecond)
	assert.Greater(t, rate, 0.0)
	assert.Equal(t, rate, m.Hashrate())
}

func TestSolveFindsMatchingNonce(t *testing.T) {
	m := New()
	result, err := m.Solve(context.Background(), []byte("challenge-bytes"), 8, nil)
	require.NoError(t, err)
	digest := hashOnce([]byte("challenge-bytes"), result.Nonce)
	assert.GreaterOrEqual(t, leadingZeroBits(digest), 8)
}

func TestSolveRespectsCancellation(t *testing.T) {
	m := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Solve(ctx, []byte("challenge-bytes"), 32, nil)
	assert.Error(t, err)
}

func TestSolveWithProgressChannelSucceeds(t *testing.T) {
	m := New()
	progressCh := make(chan Progress, 10)
	_, err := m.Solve(context.Background(), []byte("c"), 4, progressCh)
	require.NoError(t, err)
}
