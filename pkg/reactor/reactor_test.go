package reactor

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/Hsyst/hps-cli/pkg/keystore"
	"github.com/Hsyst/hps-cli/pkg/powminer"
	"github.com/Hsyst/hps-cli/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingEmitter) Emit(event string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEmitter) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return ""
	}
	return r.events[len(r.events)-1]
}

func newTestReactor(t *testing.T) (*Reactor, *recordingEmitter) {
	t.Helper()
	keys, err := keystore.Load(t.TempDir())
	require.NoError(t, err)
	tx := &recordingEmitter{}
	return New(tx, powminer.New(), keys), tx
}

func TestStartRejectsDuplicatePendingAction(t *testing.T) {
	r, _ := newTestReactor(t)

	_, err := r.Start(types.ActionLogin, nil)
	require.NoError(t, err)

	_, err = r.Start(types.ActionLogin, nil)
	assert.Error(t, err)
}

func TestFullFlowResolvesOutcome(t *testing.T) {
	r, tx := newTestReactor(t)

	outcomeCh, err := r.Start(types.ActionLogin, map[string]any{"username": "alice"})
	require.NoError(t, err)
	assert.Equal(t, "request_pow_challenge", tx.last())

	challenge, _ := json.Marshal(powChallengeMsg{Action: "login", Challenge: base64.StdEncoding.EncodeToString([]byte("abc")), TargetBits: 4})
	require.NoError(t, r.HandlePowChallenge(challenge))

	require.Eventually(t, func() bool {
		return tx.last() == "authenticate"
	}, 5*time.Second, 10*time.Millisecond)

	r.HandleTerminal("authentication_result", []byte(`{"success":true}`))

	select {
	case outcome := <-outcomeCh:
		require.NoError(t, outcome.Err)
		assert.Contains(t, string(outcome.Payload), "success")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outcome")
	}

	assert.False(t, r.Pending(types.ActionLogin))
}

func TestBannedChallengeFailsFlow(t *testing.T) {
	r, _ := newTestReactor(t)

	outcomeCh, err := r.Start(types.ActionUpload, nil)
	require.NoError(t, err)

	banned, _ := json.Marshal(powChallengeMsg{Action: "upload", Error: "banned", BlockedUntil: time.Now().Add(time.Hour).Unix()})
	require.NoError(t, r.HandlePowChallenge(banned))

	select {
	case outcome := <-outcomeCh:
		require.Error(t, outcome.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outcome")
	}
}

func TestDifferentActionsCanRunConcurrently(t *testing.T) {
	r, _ := newTestReactor(t)

	_, err := r.Start(types.ActionLogin, nil)
	require.NoError(t, err)

	_, err = r.Start(types.ActionUpload, nil)
	assert.NoError(t, err)
}
