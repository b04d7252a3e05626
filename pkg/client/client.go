package client

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Hsyst/hps-cli/pkg/contentstore"
	"github.com/Hsyst/hps-cli/pkg/hpserr"
	"github.com/Hsyst/hps-cli/pkg/keystore"
	"github.com/Hsyst/hps-cli/pkg/log"
	"github.com/Hsyst/hps-cli/pkg/metrics"
	"github.com/Hsyst/hps-cli/pkg/powminer"
	"github.com/Hsyst/hps-cli/pkg/reactor"
	"github.com/Hsyst/hps-cli/pkg/session"
	"github.com/Hsyst/hps-cli/pkg/storage"
	"github.com/Hsyst/hps-cli/pkg/transport"
	"github.com/Hsyst/hps-cli/pkg/types"
)

const busyTimeout = 15 * time.Second

// Client is the wiring hub the dispatcher and controller bridge both
// drive: one identity, one local database, one server connection.
type Client struct {
	DataDir    string
	ServerAddr string

	Identity types.Identity
	Keys     *keystore.KeyStore
	Store    storage.Store
	Content  *contentstore.Store
	Miner    *powminer.Miner
	Tx       *transport.Transport
	Session  *session.Session
	Reactor  *reactor.Reactor

	statsMu sync.Mutex
	stats   types.SessionStats

	waitersMu sync.Mutex
	waiters   map[string]chan json.RawMessage

	loginMu      sync.Mutex
	pendingLogin *pendingLogin
}

// pendingLogin carries one in-flight login's gated-flow params from
// Login through to the moment the handshake's OnAuthenticated callback
// fires and actually starts the reactor flow.
type pendingLogin struct {
	params   map[string]any
	resultCh chan reactor.Outcome
}

// New constructs a Client rooted at dataDir, ready to Connect to
// serverAddr. It loads or generates the identity and opens local
// storage, but does not dial the network.
func New(dataDir, serverAddr string, tlsSkipVerify bool) (*Client, error) {
	keys, err := keystore.Load(dataDir)
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}

	db, err := storage.Open(dataDir, busyTimeout)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	content, err := contentstore.New(dataDir+"/content", db)
	if err != nil {
		return nil, fmt.Errorf("open content store: %w", err)
	}

	sessionID := uuid.NewString()
	nodeID := hashHex(sessionID)[:32]
	clientIdentifier := hashHex(hashHex(machineID()) + sessionID)

	pubPEM, err := keys.PublicKeyPEM()
	if err != nil {
		return nil, err
	}

	c := &Client{
		DataDir:    dataDir,
		ServerAddr: serverAddr,
		Identity: types.Identity{
			SessionID:        sessionID,
			NodeID:           nodeID,
			ClientIdentifier: clientIdentifier,
			PublicKeyPEM:     pubPEM,
		},
		Keys:    keys,
		Store:   db,
		Content: content,
		Miner:   powminer.New(),
		Tx:      transport.New(serverAddr, tlsSkipVerify),
		waiters: make(map[string]chan json.RawMessage),
		stats:   types.SessionStats{SessionStart: time.Now()},
	}
	c.stats.Reputation = 100 // the server's default until authentication_result reports otherwise
	c.Session = session.New(keys, c.Tx, serverAddr)
	c.Reactor = reactor.New(c.Tx, c.Miner, keys)
	c.Session.OnAuthenticated(c.startGatedLogin)
	c.Session.OnFailed(c.failPendingLogin)
	c.Reactor.OnPowSolved = func(hashesTried uint64, elapsed time.Duration) {
		c.statsMu.Lock()
		c.stats.PowSolved++
		c.stats.HashesCalculated += int64(hashesTried)
		c.stats.PowTimeSeconds += elapsed.Seconds()
		c.statsMu.Unlock()

		metrics.PowSolvedTotal.Inc()
		metrics.HashesCalculatedTotal.Add(float64(hashesTried))
		metrics.PowSolveDuration.Observe(elapsed.Seconds())
	}
	c.wireEvents()
	return c, nil
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func machineID() string {
	ifaces, err := net.Interfaces()
	if err == nil {
		for _, iface := range ifaces {
			if len(iface.HardwareAddr) > 0 {
				return iface.HardwareAddr.String()
			}
		}
	}
	return "unknown-machine"
}

// wireEvents registers every inbound event this client understands.
func (c *Client) wireEvents() {
	c.Tx.On("server_auth_challenge", func(data json.RawMessage) {
		if err := c.Session.HandleServerAuthChallenge(data); err != nil {
			log.WithComponent("client").Warn().Err(err).Msg("server auth challenge rejected")
		}
	})
	c.Tx.On("server_auth_result", func(data json.RawMessage) {
		if err := c.Session.HandleServerAuthResult(data); err != nil {
			log.WithComponent("client").Warn().Err(err).Msg("server auth result decode failed")
		}
	})
	c.Tx.On("pow_challenge", func(data json.RawMessage) {
		if err := c.Reactor.HandlePowChallenge(data); err != nil {
			log.WithComponent("client").Warn().Err(err).Msg("pow challenge decode failed")
		}
	})

	c.Tx.On("authentication_result", func(data json.RawMessage) {
		c.Reactor.HandleTerminal("authentication_result", data)
		c.handleAuthenticationResult(data)
	})

	for _, terminal := range []string{"publish_result", "dns_result", "report_result"} {
		terminal := terminal
		c.Tx.On(terminal, func(data json.RawMessage) {
			c.Reactor.HandleTerminal(terminal, data)
			var res struct {
				Success bool `json:"success"`
			}
			if err := json.Unmarshal(data, &res); err != nil || !res.Success {
				return
			}
			if terminal == "publish_result" {
				c.statsMu.Lock()
				c.stats.ContentUploaded++
				c.statsMu.Unlock()
				metrics.ContentUploadedTotal.Inc()
			}
			if terminal == "dns_result" {
				c.statsMu.Lock()
				c.stats.DNSRegistered++
				c.statsMu.Unlock()
				metrics.DNSRegisteredTotal.Inc()
			}
			if terminal == "report_result" {
				c.statsMu.Lock()
				c.stats.ContentReported++
				c.statsMu.Unlock()
				metrics.ContentReportedTotal.Inc()
			}
		})
	}

	for _, event := range []string{"content_response", "search_results", "network_state", "dns_resolution"} {
		event := event
		c.Tx.On(event, func(data json.RawMessage) {
			c.deliverWaiter(event, data)
		})
	}
}

// Login begins the mutual-auth handshake and, once it succeeds, the
// PoW-gated login request — returning a channel that resolves exactly
// once with the final outcome, whether the handshake itself fails or
// the gated login request does. request_pow_challenge{action_type:"login"}
// is never emitted before the handshake has authenticated: it is the
// Session.OnAuthenticated callback, not this method, that starts the
// reactor flow.
func (c *Client) Login(username, passwordHash string) (<-chan reactor.Outcome, error) {
	resultCh := make(chan reactor.Outcome, 1)

	c.loginMu.Lock()
	c.pendingLogin = &pendingLogin{
		params: map[string]any{
			"username":          username,
			"password_hash":     passwordHash,
			"client_identifier": c.Identity.ClientIdentifier,
			"public_key":        c.Identity.PublicKeyPEM,
		},
		resultCh: resultCh,
	}
	c.loginMu.Unlock()

	if err := c.Session.Begin(); err != nil {
		c.loginMu.Lock()
		c.pendingLogin = nil
		c.loginMu.Unlock()
		return nil, err
	}
	return resultCh, nil
}

// startGatedLogin is the Session.OnAuthenticated callback: it fires
// only after server_auth_result.success, and is the sole place
// request_pow_challenge{action_type:"login"} is emitted from.
func (c *Client) startGatedLogin() {
	c.loginMu.Lock()
	pending := c.pendingLogin
	c.pendingLogin = nil
	c.loginMu.Unlock()
	if pending == nil {
		return
	}

	outcomeCh, err := c.Reactor.Start(types.ActionLogin, pending.params)
	if err != nil {
		pending.resultCh <- reactor.Outcome{Err: err}
		close(pending.resultCh)
		return
	}
	go func() {
		pending.resultCh <- <-outcomeCh
		close(pending.resultCh)
	}()
}

// failPendingLogin is the Session.OnFailed callback: it resolves a
// Login call's result channel if the handshake itself never reached
// success, so a caller blocked on Login's channel is never stranded.
func (c *Client) failPendingLogin(reason string) {
	c.loginMu.Lock()
	pending := c.pendingLogin
	c.pendingLogin = nil
	c.loginMu.Unlock()
	if pending == nil {
		return
	}
	pending.resultCh <- reactor.Outcome{Err: hpserr.New(hpserr.ServerError, "%s", reason)}
	close(pending.resultCh)
}

// handleAuthenticationResult runs after every authentication_result,
// gated-flow-pending or not: on success it records the server-reported
// reputation and fires the two events the original always sends right
// after a successful login, join_network and sync_client_files.
func (c *Client) handleAuthenticationResult(data json.RawMessage) {
	var res struct {
		Success    bool   `json:"success"`
		Username   string `json:"username"`
		Reputation int    `json:"reputation"`
	}
	if err := json.Unmarshal(data, &res); err != nil || !res.Success {
		return
	}

	c.statsMu.Lock()
	c.stats.Reputation = res.Reputation
	c.statsMu.Unlock()

	pubKeyB64 := base64.StdEncoding.EncodeToString([]byte(c.Identity.PublicKeyPEM))
	_ = c.Tx.Emit("join_network", map[string]any{
		"node_id":           c.Identity.NodeID,
		"address":           "client_" + c.Identity.ClientIdentifier,
		"public_key":        pubKeyB64,
		"username":          res.Username,
		"node_type":         "client",
		"client_identifier": c.Identity.ClientIdentifier,
	})
	_ = c.SyncFiles()
}

// SyncFiles reports every locally cached content blob to the server, so
// it can account for what this client already holds. It is sent once
// automatically right after a successful login, and again on demand by
// the sync verb.
func (c *Client) SyncFiles() error {
	records, err := c.Store.ListContent()
	if err != nil {
		return fmt.Errorf("list cached content: %w", err)
	}
	files := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		files = append(files, map[string]any{
			"content_hash": rec.ContentHash,
			"file_name":    rec.FileName,
			"file_size":    rec.SizeBytes,
		})
	}
	return c.Tx.Emit("sync_client_files", map[string]any{"files": files})
}

// Reputation returns the server-reported reputation score from the
// most recent successful login, defaulting to 100 before any login.
func (c *Client) Reputation() int {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats.Reputation
}

// AwaitEvent registers a one-shot waiter for an ungated reply event and
// blocks until it fires or timeout elapses.
func (c *Client) AwaitEvent(event string, timeout time.Duration) (json.RawMessage, error) {
	ch := make(chan json.RawMessage, 1)
	c.waitersMu.Lock()
	c.waiters[event] = ch
	c.waitersMu.Unlock()

	select {
	case data := <-ch:
		return data, nil
	case <-time.After(timeout):
		c.waitersMu.Lock()
		delete(c.waiters, event)
		c.waitersMu.Unlock()
		return nil, hpserr.New(hpserr.RequestTimeout, "timed out waiting for %s", event)
	}
}

func (c *Client) deliverWaiter(event string, data json.RawMessage) {
	c.waitersMu.Lock()
	ch, ok := c.waiters[event]
	if ok {
		delete(c.waiters, event)
	}
	c.waitersMu.Unlock()
	if ok {
		ch <- data
	}
}

// Stats returns a copy of the current in-memory session counters.
func (c *Client) Stats() types.SessionStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// AddSent records outbound bytes for the stats table.
func (c *Client) AddSent(n int64) {
	c.statsMu.Lock()
	c.stats.DataSentBytes += n
	c.statsMu.Unlock()
	metrics.DataSentBytesTotal.Add(float64(n))
}

// AddReceived records inbound bytes for the stats table.
func (c *Client) AddReceived(n int64) {
	c.statsMu.Lock()
	c.stats.DataReceivedBytes += n
	c.statsMu.Unlock()
	metrics.DataReceivedBytesTotal.Add(float64(n))
}

// AddDownloaded increments the count of distinct content blobs pulled
// from the network this session.
func (c *Client) AddDownloaded() {
	c.statsMu.Lock()
	c.stats.ContentDownloaded++
	c.statsMu.Unlock()
	metrics.ContentDownloadedTotal.Inc()
}

// FlushStats persists the current counters to the session table.
func (c *Client) FlushStats() error {
	stats := c.Stats()
	return c.Store.SaveSessionStats(c.Identity.SessionID, &stats)
}

// Close flushes stats and releases the transport and storage.
func (c *Client) Close() error {
	_ = c.FlushStats()
	_ = c.Tx.Close()
	return c.Store.Close()
}
