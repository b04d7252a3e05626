// Package reactor implements the PoW-gated multi-step request flows:
// login, upload, dns-reg, and report each follow the same three-phase
// shape — request a challenge, mine it, submit the gated request — and
// the reactor allows at most one flow per action type in flight at a
// time, replacing the original's ad hoc pending_login/pending_upload/
// pending_dns/pending_report attributes with one explicit map.
//
// The single-fire request/reply correlation is a specialization of a
// publish/subscribe broker: instead of a long-lived subscriber channel
// fanned out to many listeners, each flow registers exactly one reply
// channel that fires once and is then retired.
package reactor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Hsyst/hps-cli/pkg/hpserr"
	"github.com/Hsyst/hps-cli/pkg/keystore"
	"github.com/Hsyst/hps-cli/pkg/powminer"
	"github.com/Hsyst/hps-cli/pkg/types"
)

// requestTimeout bounds how long the reactor waits for a server response
// at each non-mining step. The 600s PoW ceiling itself is enforced by
// pkg/powminer.Miner.Solve, not here.
const requestTimeout = 300 * time.Second

// flowState is the gated-verb state machine's current step.
type flowState string

const (
	stateIdle           flowState = "idle"
	stateAwaitChallenge flowState = "await_challenge"
	stateMining         flowState = "mining"
	stateAwaitTerminal  flowState = "await_terminal"
)

// Emitter is the minimal transport surface the reactor needs.
type Emitter interface {
	Emit(event string, payload any) error
}

// Outcome is delivered on a flow's result channel exactly once.
type Outcome struct {
	Payload json.RawMessage
	Err     error
}

type powChallengeMsg struct {
	Action       string `json:"action"`
	Challenge    string `json:"challenge"`
	TargetBits   int    `json:"target_bits"`
	TargetSecs   int    `json:"target_seconds"`
	Error        string `json:"error"`
	BlockedUntil int64  `json:"blocked_until"` // unix seconds, only set when Error == "banned"
}

type pendingFlow struct {
	action        types.ActionType
	state         flowState
	params        map[string]any
	terminalEvent string
	resultCh      chan Outcome
	timer         *time.Timer
	cancelMining  context.CancelFunc
	done          bool
}

// actionEvents maps an action type to the event name it emits once PoW
// is solved, and the terminal event name the server answers with.
var actionEvents = map[types.ActionType]struct {
	requestEvent  string
	terminalEvent string
}{
	types.ActionLogin:  {"authenticate", "authentication_result"},
	types.ActionUpload: {"publish_content", "publish_result"},
	types.ActionDNSReg: {"register_dns", "dns_result"},
	types.ActionReport: {"report_content", "report_result"},
}

// Reactor drives one in-flight PoW-gated flow per action type.
type Reactor struct {
	tx    Emitter
	miner *powminer.Miner
	keys  *keystore.KeyStore

	mu      sync.Mutex
	pending map[types.ActionType]*pendingFlow

	// OnPowSolved, if set, is called after every successful mine with
	// the work performed, so a caller can mirror it into session stats.
	OnPowSolved func(hashesTried uint64, elapsed time.Duration)
}

// New returns a Reactor bound to an emitter, a miner, and the client's
// key store. The hashrate sent alongside a solved challenge is taken
// from the miner's result.
func New(tx Emitter, miner *powminer.Miner, keys *keystore.KeyStore) *Reactor {
	return &Reactor{tx: tx, miner: miner, keys: keys, pending: make(map[types.ActionType]*pendingFlow)}
}

// Start begins a new gated flow for action, with params merged into the
// eventual gated request payload once PoW is solved. It fails fast if a
// flow for this action type is already pending.
func (r *Reactor) Start(action types.ActionType, params map[string]any) (<-chan Outcome, error) {
	cfg, ok := actionEvents[action]
	if !ok {
		return nil, hpserr.New(hpserr.InvalidArgument, "unknown action type %q", action)
	}

	r.mu.Lock()
	if _, exists := r.pending[action]; exists {
		r.mu.Unlock()
		return nil, hpserr.New(hpserr.InvalidArgument, "a %s request is already pending", action)
	}

	flow := &pendingFlow{
		action:        action,
		state:         stateAwaitChallenge,
		params:        params,
		terminalEvent: cfg.terminalEvent,
		resultCh:      make(chan Outcome, 1),
	}
	flow.timer = time.AfterFunc(requestTimeout, func() { r.timeoutFlow(action, hpserr.RequestTimeout) })
	r.pending[action] = flow
	r.mu.Unlock()

	if err := r.tx.Emit("request_pow_challenge", map[string]string{"action_type": string(action)}); err != nil {
		r.finish(action, Outcome{Err: err})
		return nil, err
	}
	return flow.resultCh, nil
}

// HandlePowChallenge processes a pow_challenge event: a ban error, or a
// challenge to mine followed by automatic submission of the gated
// request once solved.
func (r *Reactor) HandlePowChallenge(raw []byte) error {
	var msg powChallengeMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("decode pow_challenge: %w", err)
	}
	action := types.ActionType(msg.Action)

	r.mu.Lock()
	flow, ok := r.pending[action]
	if !ok {
		r.mu.Unlock()
		return nil // no matching pending flow; ignore
	}
	flow.timer.Stop()
	r.mu.Unlock()

	if msg.Error != "" {
		until := time.Unix(msg.BlockedUntil, 0)
		r.finish(action, Outcome{Err: hpserr.NewBanned(until, msg.Error)})
		return nil
	}

	r.mu.Lock()
	flow.state = stateMining
	ctx, cancel := context.WithCancel(context.Background())
	flow.cancelMining = cancel
	r.mu.Unlock()

	go r.mine(ctx, action, flow, msg)
	return nil
}

func (r *Reactor) mine(ctx context.Context, action types.ActionType, flow *pendingFlow, msg powChallengeMsg) {
	challenge, err := base64.StdEncoding.DecodeString(msg.Challenge)
	if err != nil {
		r.finish(action, Outcome{Err: fmt.Errorf("decode pow challenge: %w", err)})
		return
	}
	result, err := r.miner.Solve(ctx, challenge, msg.TargetBits, nil)
	if err != nil {
		r.finish(action, Outcome{Err: hpserr.New(hpserr.PowTimeout, "%v", err)})
		return
	}
	if r.OnPowSolved != nil {
		r.OnPowSolved(result.HashesTried, result.Elapsed)
	}

	cfg := actionEvents[action]
	payload := map[string]any{}
	for k, v := range flow.params {
		payload[k] = v
	}
	payload["nonce"] = result.Nonce
	payload["hashrate"] = result.Hashrate
	payload["hashes_tried"] = result.HashesTried

	r.mu.Lock()
	flow.state = stateAwaitTerminal
	flow.timer = time.AfterFunc(requestTimeout, func() { r.timeoutFlow(action, hpserr.RequestTimeout) })
	r.mu.Unlock()

	if err := r.tx.Emit(cfg.requestEvent, payload); err != nil {
		r.finish(action, Outcome{Err: err})
	}
}

// HandleTerminal delivers a gated request's final server response to its
// flow's result channel, for any action whose terminal event matches
// eventName.
func (r *Reactor) HandleTerminal(eventName string, raw []byte) {
	r.mu.Lock()
	var found types.ActionType
	for action, flow := range r.pending {
		if flow.terminalEvent == eventName {
			found = action
			break
		}
	}
	r.mu.Unlock()

	if found == "" {
		return
	}
	r.finish(found, Outcome{Payload: raw})
}

func (r *Reactor) timeoutFlow(action types.ActionType, kind hpserr.Kind) {
	r.mu.Lock()
	flow, ok := r.pending[action]
	if ok && flow.cancelMining != nil {
		flow.cancelMining()
	}
	r.mu.Unlock()
	if ok {
		r.finish(action, Outcome{Err: hpserr.New(kind, "%s flow timed out", action)})
	}
}

func (r *Reactor) finish(action types.ActionType, outcome Outcome) {
	r.mu.Lock()
	flow, ok := r.pending[action]
	if !ok || flow.done {
		r.mu.Unlock()
		return
	}
	flow.done = true
	flow.timer.Stop()
	delete(r.pending, action)
	r.mu.Unlock()

	flow.resultCh <- outcome
	close(flow.resultCh)
}

// Pending reports whether a flow for action is currently in progress.
func (r *Reactor) Pending(action types.ActionType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[action]
	return ok
}
