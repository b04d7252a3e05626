package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAssignsDistinctIdentity(t *testing.T) {
	c, err := New(t.TempDir(), "http://127.0.0.1:9", true)
	require.NoError(t, err)
	t.Cleanup(func() { c.Store.Close() })

	assert.NotEmpty(t, c.Identity.SessionID)
	assert.Len(t, c.Identity.NodeID, 32)
	assert.NotEmpty(t, c.Identity.ClientIdentifier)
	assert.NotEmpty(t, c.Identity.PublicKeyPEM)
}

func TestStatsTrackSentAndReceived(t *testing.T) {
	c, err := New(t.TempDir(), "http://127.0.0.1:9", true)
	require.NoError(t, err)
	t.Cleanup(func() { c.Store.Close() })

	c.AddSent(100)
	c.AddReceived(50)

	stats := c.Stats()
	assert.Equal(t, int64(100), stats.DataSentBytes)
	assert.Equal(t, int64(50), stats.DataReceivedBytes)
}

func TestHandleAuthenticationResultRecordsReputation(t *testing.T) {
	c, err := New(t.TempDir(), "http://127.0.0.1:9", true)
	require.NoError(t, err)
	t.Cleanup(func() { c.Store.Close() })

	assert.Equal(t, 100, c.Reputation())

	c.handleAuthenticationResult([]byte(`{"success":true,"username":"alice","reputation":42}`))
	assert.Equal(t, 42, c.Reputation())
}

func TestHandleAuthenticationResultIgnoresFailure(t *testing.T) {
	c, err := New(t.TempDir(), "http://127.0.0.1:9", true)
	require.NoError(t, err)
	t.Cleanup(func() { c.Store.Close() })

	c.handleAuthenticationResult([]byte(`{"success":false,"reputation":5}`))
	assert.Equal(t, 100, c.Reputation())
}

func TestFlushStatsPersists(t *testing.T) {
	c, err := New(t.TempDir(), "http://127.0.0.1:9", true)
	require.NoError(t, err)
	t.Cleanup(func() { c.Store.Close() })

	c.AddSent(7)
	require.NoError(t, c.FlushStats())

	loaded, err := c.Store.LoadSessionStats(c.Identity.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), loaded.DataSentBytes)
}
