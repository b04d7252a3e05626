// Package session implements the four-message mutual-authentication
// handshake and the per-server public-key pinning that follows it:
//
//  1. client -> server: request_server_auth_challenge
//  2. server -> client: server_auth_challenge  (challenge, signature, server pubkey)
//  3. client -> server: verify_server_auth_response (client challenge, signature, client pubkey)
//  4. server -> client: server_auth_result
//
// The server's public key is verified against its own signature on the
// first message and then pinned in memory for the lifetime of the
// process — a second, different key presented later for the same server
// address is treated as a hard authentication failure, never silently
// re-pinned.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Hsyst/hps-cli/pkg/keystore"
)

// State is the mutual-auth handshake's progress for one server address.
type State string

const (
	StateIdle           State = "idle"
	StateAwaitChallenge State = "await_challenge"
	StateAwaitResult    State = "await_result"
	StateAuthenticated  State = "authenticated"
	StateFailed         State = "failed"
)

type serverAuthChallengeMsg struct {
	Challenge     string `json:"challenge"`
	Signature     string `json:"signature"`
	ServerPubKey  string `json:"server_pubkey"`
}

type verifyServerAuthResponseMsg struct {
	ClientChallenge string `json:"client_challenge"`
	Signature       string `json:"signature"`
	ClientPubKey    string `json:"client_pubkey"`
}

type serverAuthResultMsg struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Emitter is the minimal transport surface Session needs — satisfied by
// *transport.Transport.
type Emitter interface {
	Emit(event string, payload any) error
}

// Session drives the handshake for one server address and tracks the
// pinned public key plus authentication state for it.
type Session struct {
	keys *keystore.KeyStore
	tx   Emitter

	mu            sync.Mutex
	serverAddr    string
	pinnedPubKey  string
	state         State

	onAuthenticated func()
	onFailed        func(reason string)
}

// New returns a Session for one server address, bound to the client's
// identity and an event emitter.
func New(keys *keystore.KeyStore, tx Emitter, serverAddr string) *Session {
	return &Session{keys: keys, tx: tx, serverAddr: serverAddr, state: StateIdle}
}

// OnAuthenticated registers the callback fired once the handshake
// completes successfully.
func (s *Session) OnAuthenticated(fn func()) { s.onAuthenticated = fn }

// OnFailed registers the callback fired if the handshake fails at any
// step.
func (s *Session) OnFailed(fn func(reason string)) { s.onFailed = fn }

// State returns the current handshake state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PinnedPublicKey returns the server's pinned public key PEM, if the
// handshake has reached that point.
func (s *Session) PinnedPublicKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pinnedPubKey
}

// Begin starts the handshake by requesting a server challenge.
func (s *Session) Begin() error {
	s.mu.Lock()
	s.state = StateAwaitChallenge
	s.mu.Unlock()
	return s.tx.Emit("request_server_auth_challenge", map[string]string{})
}

// HandleServerAuthChallenge processes the server's signed challenge: it
// verifies the signature against the key the server presents, pins that
// key for this server address (refusing to silently re-pin a different
// key later), then signs and emits the client's own challenge response.
func (s *Session) HandleServerAuthChallenge(raw []byte) error {
	var msg serverAuthChallengeMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("decode server_auth_challenge: %w", err)
	}

	sig, err := base64.StdEncoding.DecodeString(msg.Signature)
	if err != nil {
		return fmt.Errorf("decode challenge signature: %w", err)
	}
	if err := keystore.Verify(msg.ServerPubKey, []byte(msg.Challenge), sig); err != nil {
		s.fail("server challenge signature invalid")
		return err
	}

	s.mu.Lock()
	if s.pinnedPubKey != "" && s.pinnedPubKey != msg.ServerPubKey {
		s.mu.Unlock()
		s.fail("server presented a different public key than previously pinned")
		return fmt.Errorf("server public key mismatch for %s", s.serverAddr)
	}
	s.pinnedPubKey = msg.ServerPubKey
	s.state = StateAwaitResult
	s.mu.Unlock()

	clientChallenge := make([]byte, 32)
	if _, err := rand.Read(clientChallenge); err != nil {
		return fmt.Errorf("generate client challenge: %w", err)
	}
	clientChallengeStr := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(clientChallenge)

	clientSig, err := s.keys.Sign([]byte(clientChallengeStr))
	if err != nil {
		return fmt.Errorf("sign client challenge: %w", err)
	}
	pubPEM, err := s.keys.PublicKeyPEM()
	if err != nil {
		return err
	}

	return s.tx.Emit("verify_server_auth_response", verifyServerAuthResponseMsg{
		ClientChallenge: clientChallengeStr,
		Signature:       base64.StdEncoding.EncodeToString(clientSig),
		ClientPubKey:    pubPEM,
	})
}

// HandleServerAuthResult processes the final message of the handshake.
func (s *Session) HandleServerAuthResult(raw []byte) error {
	var msg serverAuthResultMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("decode server_auth_result: %w", err)
	}

	if !msg.Success {
		s.fail(msg.Message)
		return nil
	}

	s.mu.Lock()
	s.state = StateAuthenticated
	s.mu.Unlock()
	if s.onAuthenticated != nil {
		s.onAuthenticated()
	}
	return nil
}

func (s *Session) fail(reason string) {
	s.mu.Lock()
	s.state = StateFailed
	s.mu.Unlock()
	if s.onFailed != nil {
		s.onFailed(reason)
	}
}
