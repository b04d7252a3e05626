package storage

import (
	"testing"
	"time"

	"github.com/Hsyst/hps-cli/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(t.TempDir(), 10*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestContentRoundTrip(t *testing.T) {
	s := openTestStore(t)

	rec := &types.ContentRecord{
		ContentHash: "deadbeef",
		Owner:       "alice",
		SizeBytes:   42,
		StoredAt:    time.Now(),
		LastAccess:  time.Now(),
		FilePath:    "/tmp/deadbeef",
	}
	require.NoError(t, s.PutContent(rec))

	got, err := s.GetContent("deadbeef")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.Owner, got.Owner)
	assert.Equal(t, rec.SizeBytes, got.SizeBytes)

	total, err := s.TotalContentBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(42), total)

	require.NoError(t, s.DeleteContent("deadbeef"))
	got, err = s.GetContent("deadbeef")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetContentMissingReturnsNilNotError(t *testing.T) {
	s := openTestStore(t)
	got, err := s.GetContent("nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestKnownServerUpsert(t *testing.T) {
	s := openTestStore(t)

	srv := &types.KnownServer{Address: "https://hps.example", Reputation: 5, LastSeen: time.Now()}
	require.NoError(t, s.UpsertKnownServer(srv))

	srv.Reputation = 10
	require.NoError(t, s.UpsertKnownServer(srv))

	got, err := s.GetKnownServer("https://hps.example")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 10, got.Reputation)
}

func TestReportDeduplicationCheck(t *testing.T) {
	s := openTestStore(t)

	ok, err := s.HasReported("alice", "hash1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.CreateReport(&types.Report{
		ID: "r1", ReporterUser: "alice", ReportedUser: "bob",
		ContentHash: "hash1", Reason: "spam", FiledAt: time.Now(),
	}))

	ok, err = s.HasReported("alice", "hash1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHistoryAppendAndClear(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.AppendHistory(&types.HistoryEntry{
		ID: "h1", Command: "login", Args: []string{"alice", "pw"}, Success: true, Timestamp: time.Now(),
	}))

	hist, err := s.ListHistory(10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, []string{"alice", "pw"}, hist[0].Args)

	require.NoError(t, s.ClearHistory())
	hist, err = s.ListHistory(10)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestSessionStatsRoundTrip(t *testing.T) {
	s := openTestStore(t)

	stats := &types.SessionStats{DataSentBytes: 100, PowSolved: 3}
	require.NoError(t, s.SaveSessionStats("sess-1", stats))

	got, err := s.LoadSessionStats("sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.DataSentBytes)
	assert.Equal(t, int64(3), got.PowSolved)
}

func TestSettingsRoundTrip(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.GetSetting("quota")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetSetting("quota", "1073741824"))
	val, ok, err := s.GetSetting("quota")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1073741824", val)
}
