package contentstore

import (
	"testing"
	"time"

	"github.com/Hsyst/hps-cli/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameAndVerifyHash(t *testing.T) {
	header, hash := Frame("alice", "pem-key-bytes", []byte("payload"))
	assert.True(t, VerifyHash(header, []byte("payload"), hash))
	assert.False(t, VerifyHash(header, []byte("tampered"), hash))
}

func TestFrameIsDeterministic(t *testing.T) {
	h1, hash1 := Frame("alice", "pem-key-bytes", []byte("payload"))
	h2, hash2 := Frame("alice", "pem-key-bytes", []byte("payload"))
	assert.Equal(t, h1, h2)
	assert.Equal(t, hash1, hash2)
}

func TestSplitFramedRecoversPayload(t *testing.T) {
	header, _ := Frame("alice", "pem-key-bytes", []byte("payload"))
	blob := append(append([]byte{}, header...), []byte("payload")...)

	payload, ok := SplitFramed(blob)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), payload)
}

func TestSplitFramedRejectsUnframedBlob(t *testing.T) {
	_, ok := SplitFramed([]byte("not a framed blob"))
	assert.False(t, ok)
}

func TestFrameDDNSIsDeterministic(t *testing.T) {
	d1 := FrameDDNS("alice", "pem-key-bytes", "alice-site", "deadbeef")
	d2 := FrameDDNS("alice", "pem-key-bytes", "alice-site", "deadbeef")
	assert.Equal(t, d1, d2)
	assert.Contains(t, string(d1), "alice-site = deadbeef")
}

func TestPutGetRoundTrip(t *testing.T) {
	db, err := storage.Open(t.TempDir(), 10*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cs, err := New(t.TempDir(), db)
	require.NoError(t, err)

	header, hash := Frame("alice", "key", []byte("hello world"))
	blob := append(append([]byte{}, header...), []byte("hello world")...)
	require.NoError(t, cs.Put(hash, "alice", blob, Meta{Title: "greeting", MimeType: "text/plain"}))

	data, rec, err := cs.Get(hash)
	require.NoError(t, err)
	payload, ok := SplitFramed(data)
	require.True(t, ok)
	assert.Equal(t, []byte("hello world"), payload)
	assert.Equal(t, "alice", rec.Owner)
	assert.Equal(t, "greeting", rec.Title)

	usage, err := cs.Usage()
	require.NoError(t, err)
	assert.Equal(t, int64(len(blob)), usage)
}

func TestPutRejectsOversizedPayload(t *testing.T) {
	db, err := storage.Open(t.TempDir(), 10*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cs, err := New(t.TempDir(), db)
	require.NoError(t, err)

	oversized := make([]byte, MaxUploadBytes+1)
	err = cs.Put("hash", "alice", oversized, Meta{})
	assert.Error(t, err)
}

func TestDeleteRemovesContent(t *testing.T) {
	db, err := storage.Open(t.TempDir(), 10*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cs, err := New(t.TempDir(), db)
	require.NoError(t, err)

	header, hash := Frame("alice", "key", []byte("data"))
	blob := append(append([]byte{}, header...), []byte("data")...)
	require.NoError(t, cs.Put(hash, "alice", blob, Meta{}))
	require.NoError(t, cs.Delete(hash))

	_, _, err = cs.Get(hash)
	assert.Error(t, err)
}
