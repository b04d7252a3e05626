package session

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/Hsyst/hps-cli/pkg/keystore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmitter struct {
	events []string
	data   []any
}

func (f *fakeEmitter) Emit(event string, payload any) error {
	f.events = append(f.events, event)
	f.data = append(f.data, payload)
	return nil
}

func serverChallengeMessage(t *testing.T, serverKeys *keystore.KeyStore, challenge string) []byte {
	t.Helper()
	sig, err := serverKeys.Sign([]byte(challenge))
	require.NoError(t, err)
	pubPEM, err := serverKeys.PublicKeyPEM()
	require.NoError(t, err)

	msg := serverAuthChallengeMsg{
		Challenge:    challenge,
		Signature:    base64.StdEncoding.EncodeToString(sig),
		ServerPubKey: pubPEM,
	}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	return raw
}

func TestHandshakeHappyPath(t *testing.T) {
	clientKeys, err := keystore.Load(t.TempDir())
	require.NoError(t, err)
	serverKeys, err := keystore.Load(t.TempDir())
	require.NoError(t, err)

	tx := &fakeEmitter{}
	s := New(clientKeys, tx, "https://server.example")

	authenticated := false
	s.OnAuthenticated(func() { authenticated = true })

	require.NoError(t, s.Begin())
	assert.Equal(t, StateAwaitChallenge, s.State())

	raw := serverChallengeMessage(t, serverKeys, "server-challenge-123")
	require.NoError(t, s.HandleServerAuthChallenge(raw))
	assert.Equal(t, StateAwaitResult, s.State())
	assert.NotEmpty(t, s.PinnedPublicKey())
	require.Len(t, tx.events, 2)
	assert.Equal(t, "verify_server_auth_response", tx.events[1])

	resultRaw, _ := json.Marshal(serverAuthResultMsg{Success: true})
	require.NoError(t, s.HandleServerAuthResult(resultRaw))
	assert.Equal(t, StateAuthenticated, s.State())
	assert.True(t, authenticated)
}

func TestHandshakeRejectsBadChallengeSignature(t *testing.T) {
	clientKeys, err := keystore.Load(t.TempDir())
	require.NoError(t, err)
	otherKeys, err := keystore.Load(t.TempDir())
	require.NoError(t, err)

	tx := &fakeEmitter{}
	s := New(clientKeys, tx, "https://server.example")

	var failReason string
	s.OnFailed(func(reason string) { failReason = reason })

	raw := serverChallengeMessage(t, otherKeys, "challenge")
	// tamper: claim a different pubkey than the one that actually signed it
	var msg serverAuthChallengeMsg
	require.NoError(t, json.Unmarshal(raw, &msg))
	forgedKeys, err := keystore.Load(t.TempDir())
	require.NoError(t, err)
	forgedPub, err := forgedKeys.PublicKeyPEM()
	require.NoError(t, err)
	msg.ServerPubKey = forgedPub
	raw, _ = json.Marshal(msg)

	err = s.HandleServerAuthChallenge(raw)
	assert.Error(t, err)
	assert.Equal(t, StateFailed, s.State())
	assert.NotEmpty(t, failReason)
}

func TestHandshakeRejectsRepinnedKey(t *testing.T) {
	clientKeys, err := keystore.Load(t.TempDir())
	require.NoError(t, err)
	serverKeys, err := keystore.Load(t.TempDir())
	require.NoError(t, err)
	otherServerKeys, err := keystore.Load(t.TempDir())
	require.NoError(t, err)

	tx := &fakeEmitter{}
	s := New(clientKeys, tx, "https://server.example")

	raw := serverChallengeMessage(t, serverKeys, "challenge-1")
	require.NoError(t, s.HandleServerAuthChallenge(raw))
	firstPin := s.PinnedPublicKey()
	require.NotEmpty(t, firstPin)

	raw2 := serverChallengeMessage(t, otherServerKeys, "challenge-2")
	err = s.HandleServerAuthChallenge(raw2)
	assert.Error(t, err)
	assert.Equal(t, StateFailed, s.State())
}

func TestHandshakeFailureResult(t *testing.T) {
	clientKeys, err := keystore.Load(t.TempDir())
	require.NoError(t, err)
	tx := &fakeEmitter{}
	s := New(clientKeys, tx, "https://server.example")

	var reason string
	s.OnFailed(func(r string) { reason = r })

	raw, _ := json.Marshal(serverAuthResultMsg{Success: false, Message: "bad password"})
	require.NoError(t, s.HandleServerAuthResult(raw))
	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, "bad password", reason)
}
