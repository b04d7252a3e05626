package dispatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Hsyst/hps-cli/pkg/contentstore"
	"github.com/Hsyst/hps-cli/pkg/hpserr"
	"github.com/Hsyst/hps-cli/pkg/keystore"
	"github.com/Hsyst/hps-cli/pkg/types"
)

const (
	ungatedReplyTimeout = 30 * time.Second
	requestWaitCeiling  = 300 * time.Second
	connectTimeout      = 10 * time.Second
)

func connectCtx() context.Context {
	ctx, _ := context.WithTimeout(context.Background(), connectTimeout) //nolint:lostcancel
	return ctx
}

// hashPassword never sends a plaintext password over the wire; the
// server authenticates the hash, not the secret itself.
func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// RegisterDefaultVerbs wires every REPL verb this client understands
// into d: login, logout, upload, download, dns-reg, dns-res, search,
// network, stats, report, security, servers, keys, sync, history,
// clear, help, exit.
func RegisterDefaultVerbs(d *Dispatcher) {
	d.Register("login", handleLogin)
	d.Register("logout", handleLogout, RequireLogin)
	d.Register("upload", handleUpload, RequireLogin)
	d.Register("download", handleDownload, RequireLogin)
	d.Register("dns-reg", handleDNSReg, RequireLogin)
	d.Register("dns-res", handleDNSRes)
	d.Register("search", handleSearch)
	d.Register("network", handleNetwork)
	d.Register("stats", handleStats)
	d.Register("report", handleReport, RequireLogin)
	d.Register("security", handleSecurity)
	d.Register("servers", handleServers)
	d.Register("keys", handleKeys)
	d.Register("sync", handleSync, RequireLogin)
	d.Register("history", handleHistory)
	d.Register("clear", handleClear)
	d.Register("help", handleHelp)
	d.Register("exit", handleExit)
}

func handleLogin(d *Dispatcher, args []string) Result {
	if err := RequireArgs(args, 2, "login <username> <password>"); err != nil {
		return Result{Message: err.Error()}
	}
	username, password := args[0], args[1]

	if !d.Client.Tx.Connected() {
		if err := d.Client.Tx.Connect(connectCtx()); err != nil {
			return Result{Message: fmt.Sprintf("connect failed: %v", err)}
		}
	}

	// Login begins the mutual-auth handshake and only starts the
	// PoW-gated login request once it succeeds — request_pow_challenge
	// is never raced against the still-in-flight handshake.
	outcomeCh, err := d.Client.Login(username, hashPassword(password))
	if err != nil {
		return Result{Message: fmt.Sprintf("handshake failed: %v", err)}
	}

	select {
	case outcome := <-outcomeCh:
		if outcome.Err != nil {
			return Result{Message: outcome.Err.Error()}
		}
		d.LoggedIn = true
		d.CurrentUser = username
		return Result{Success: true, Message: fmt.Sprintf("logged in as %s", username)}
	case <-time.After(requestWaitCeiling):
		return Result{Message: "login timed out"}
	}
}

func handleLogout(d *Dispatcher, _ []string) Result {
	d.LoggedIn = false
	d.CurrentUser = ""
	return Result{Success: true, Message: "logged out"}
}

func parseUploadFlags(args []string) (file, title, description, mimeType string) {
	file = args[0]
	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "--title":
			if i+1 < len(args) {
				title = args[i+1]
				i++
			}
		case "--desc":
			if i+1 < len(args) {
				description = args[i+1]
				i++
			}
		case "--mime":
			if i+1 < len(args) {
				mimeType = args[i+1]
				i++
			}
		}
	}
	return file, title, description, mimeType
}

func handleUpload(d *Dispatcher, args []string) Result {
	if err := RequireArgs(args, 1, "upload <file> [--title T] [--desc D] [--mime M]"); err != nil {
		return Result{Message: err.Error()}
	}
	file, title, description, mimeType := parseUploadFlags(args)
	if title == "" {
		title = filepath.Base(file)
	}
	if mimeType == "" {
		if guessed := mime.TypeByExtension(filepath.Ext(file)); guessed != "" {
			mimeType = guessed
		} else {
			mimeType = "application/octet-stream"
		}
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return Result{Message: fmt.Sprintf("read file: %v", err)}
	}

	header, contentHash := contentstore.Frame(d.CurrentUser, d.Client.Identity.PublicKeyPEM, data)
	blob := append(append([]byte{}, header...), data...)
	sig, err := d.Client.Keys.Sign(data)
	if err != nil {
		return Result{Message: fmt.Sprintf("sign content: %v", err)}
	}

	outcomeCh, err := d.Client.Reactor.Start(types.ActionUpload, map[string]any{
		"content_hash": contentHash,
		"title":        title,
		"description":  description,
		"mime_type":    mimeType,
		"size":         len(blob),
		"signature":    sig,
		"public_key":   []byte(d.Client.Identity.PublicKeyPEM),
		"content_b64":  blob,
	})
	if err != nil {
		return Result{Message: err.Error()}
	}

	select {
	case outcome := <-outcomeCh:
		if outcome.Err != nil {
			return Result{Message: outcome.Err.Error()}
		}
		meta := contentstore.Meta{
			Title:        title,
			Description:  description,
			MimeType:     mimeType,
			Signature:    sig,
			PublicKeyPEM: d.Client.Identity.PublicKeyPEM,
			Verified:     true,
		}
		if err := d.Client.Content.Put(contentHash, d.CurrentUser, blob, meta); err != nil {
			return Result{Message: fmt.Sprintf("cache uploaded content: %v", err)}
		}
		d.Client.AddSent(int64(len(blob)))
		return Result{Success: true, Message: contentHash, Data: map[string]any{"content_hash": contentHash}}
	case <-time.After(requestWaitCeiling):
		return Result{Message: "upload timed out"}
	}
}

func handleDownload(d *Dispatcher, args []string) Result {
	if err := RequireArgs(args, 1, "download <content-hash>"); err != nil {
		return Result{Message: err.Error()}
	}
	contentHash := args[0]

	if cached, _, err := d.Client.Content.Get(contentHash); err == nil {
		return Result{Success: true, Message: "served from local cache", Data: map[string]any{"bytes": len(cached)}}
	}

	if err := d.Client.Tx.Emit("request_content", map[string]string{"content_hash": contentHash}); err != nil {
		return Result{Message: err.Error()}
	}
	raw, err := d.Client.AwaitEvent("content_response", ungatedReplyTimeout)
	if err != nil {
		return Result{Message: err.Error()}
	}

	// content is the full framed blob (header+payload); its hash is the
	// content_hash directly, while the author signature covers only the
	// payload beneath the header.
	var resp struct {
		Content     []byte `json:"content"`
		Title       string `json:"title"`
		Description string `json:"description"`
		MimeType    string `json:"mime_type"`
		Username    string `json:"username"`
		Signature   []byte `json:"signature"`
		PublicKey   []byte `json:"public_key"`
		ContentHash string `json:"content_hash"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Result{Message: fmt.Sprintf("decode content_response: %v", err)}
	}
	if !contentstore.VerifyHash(nil, resp.Content, contentHash) {
		return Result{Message: hpserr.New(hpserr.IntegrityFailure, "downloaded content does not match its hash").Error()}
	}

	payload, ok := contentstore.SplitFramed(resp.Content)
	if !ok {
		return Result{Message: hpserr.New(hpserr.IntegrityFailure, "downloaded content is not validly framed").Error()}
	}
	verified := keystore.Verify(string(resp.PublicKey), payload, resp.Signature) == nil
	if !verified {
		return Result{Message: hpserr.New(hpserr.InvalidSignature, "author signature does not verify").Error()}
	}

	meta := contentstore.Meta{
		Title:        resp.Title,
		Description:  resp.Description,
		MimeType:     resp.MimeType,
		Signature:    resp.Signature,
		PublicKeyPEM: string(resp.PublicKey),
		Verified:     verified,
	}
	if err := d.Client.Content.Put(contentHash, resp.Username, resp.Content, meta); err != nil {
		return Result{Message: fmt.Sprintf("cache downloaded content: %v", err)}
	}
	d.Client.AddReceived(int64(len(resp.Content)))
	d.Client.AddDownloaded()
	return Result{Success: true, Message: fmt.Sprintf("downloaded %d bytes", len(resp.Content))}
}

func handleDNSReg(d *Dispatcher, args []string) Result {
	if err := RequireArgs(args, 2, "dns-reg <domain> <content-hash>"); err != nil {
		return Result{Message: err.Error()}
	}
	domain, contentHash := args[0], args[1]
	if !IsValidDomain(domain) {
		return Result{Message: fmt.Sprintf("%q is not a valid domain", domain)}
	}

	ddnsContent := contentstore.FrameDDNS(d.CurrentUser, d.Client.Identity.PublicKeyPEM, domain, contentHash)
	sig, err := d.Client.Keys.Sign(ddnsContent)
	if err != nil {
		return Result{Message: fmt.Sprintf("sign ddns document: %v", err)}
	}

	outcomeCh, err := d.Client.Reactor.Start(types.ActionDNSReg, map[string]any{
		"domain":       domain,
		"ddns_content": ddnsContent,
		"signature":    sig,
		"public_key":   []byte(d.Client.Identity.PublicKeyPEM),
	})
	if err != nil {
		return Result{Message: err.Error()}
	}

	select {
	case outcome := <-outcomeCh:
		if outcome.Err != nil {
			return Result{Message: outcome.Err.Error()}
		}
		return Result{Success: true, Message: fmt.Sprintf("registered %s -> %s", domain, contentHash)}
	case <-time.After(requestWaitCeiling):
		return Result{Message: "dns-reg timed out"}
	}
}

func handleDNSRes(d *Dispatcher, args []string) Result {
	if err := RequireArgs(args, 1, "dns-res <domain>"); err != nil {
		return Result{Message: err.Error()}
	}
	domain := args[0]
	if !IsValidDomain(domain) {
		return Result{Message: fmt.Sprintf("%q is not a valid domain", domain)}
	}

	if err := d.Client.Tx.Emit("resolve_dns", map[string]string{"domain": domain}); err != nil {
		return Result{Message: err.Error()}
	}
	raw, err := d.Client.AwaitEvent("dns_resolution", ungatedReplyTimeout)
	if err != nil {
		return Result{Message: err.Error()}
	}
	return Result{Success: true, Message: string(raw)}
}

func handleSearch(d *Dispatcher, args []string) Result {
	if err := RequireArgs(args, 1, "search <query>"); err != nil {
		return Result{Message: err.Error()}
	}
	query := strings.Join(args, " ")

	if err := d.Client.Tx.Emit("search_content", map[string]string{"query": query}); err != nil {
		return Result{Message: err.Error()}
	}
	raw, err := d.Client.AwaitEvent("search_results", ungatedReplyTimeout)
	if err != nil {
		return Result{Message: err.Error()}
	}
	return Result{Success: true, Message: string(raw)}
}

func handleNetwork(d *Dispatcher, _ []string) Result {
	if err := d.Client.Tx.Emit("get_network_state", map[string]string{}); err != nil {
		return Result{Message: err.Error()}
	}
	raw, err := d.Client.AwaitEvent("network_state", ungatedReplyTimeout)
	if err != nil {
		return Result{Message: err.Error()}
	}

	var nodes []types.NetworkNode
	if err := json.Unmarshal(raw, &nodes); err == nil {
		for _, n := range nodes {
			n := n
			_ = d.Client.Store.UpsertNetworkNode(&n)
		}
	}
	return Result{Success: true, Message: string(raw)}
}

func handleStats(d *Dispatcher, _ []string) Result {
	stats := d.Client.Stats()
	b, _ := json.MarshalIndent(stats, "", "  ")
	return Result{Success: true, Message: string(b)}
}

func handleReport(d *Dispatcher, args []string) Result {
	if err := RequireArgs(args, 3, "report <content-hash> <reported-user> <reason>"); err != nil {
		return Result{Message: err.Error()}
	}
	contentHash, reportedUser, reason := args[0], args[1], strings.Join(args[2:], " ")

	if reportedUser == d.CurrentUser {
		return Result{Message: "you cannot report yourself"}
	}
	if d.Client.Reputation() < 20 {
		return Result{Message: "your reputation is too low to report content"}
	}
	already, err := d.Client.Store.HasReported(d.CurrentUser, contentHash)
	if err != nil {
		return Result{Message: err.Error()}
	}
	if already {
		return Result{Message: "you have already reported this content"}
	}

	outcomeCh, err := d.Client.Reactor.Start(types.ActionReport, map[string]any{
		"content_hash":  contentHash,
		"reported_user": reportedUser,
		"reason":        reason,
	})
	if err != nil {
		return Result{Message: err.Error()}
	}

	select {
	case outcome := <-outcomeCh:
		if outcome.Err != nil {
			return Result{Message: outcome.Err.Error()}
		}
		return Result{Success: true, Message: "report filed"}
	case <-time.After(requestWaitCeiling):
		return Result{Message: "report timed out"}
	}
}

func handleSecurity(d *Dispatcher, _ []string) Result {
	pinned := ""
	if d.Client.Session != nil {
		pinned = d.Client.Session.PinnedPublicKey()
	}
	msg := "no pinned server key yet"
	if pinned != "" {
		msg = "server key pinned for this session"
	}
	return Result{Success: true, Message: msg}
}

func handleServers(d *Dispatcher, args []string) Result {
	if len(args) == 0 {
		servers, err := d.Client.Store.ListKnownServers()
		if err != nil {
			return Result{Message: err.Error()}
		}
		b, _ := json.MarshalIndent(servers, "", "  ")
		return Result{Success: true, Message: string(b)}
	}

	switch args[0] {
	case "add":
		if err := RequireArgs(args, 2, "servers add <address>"); err != nil {
			return Result{Message: err.Error()}
		}
		if err := d.Client.Store.UpsertKnownServer(&types.KnownServer{Address: args[1], LastSeen: time.Now()}); err != nil {
			return Result{Message: err.Error()}
		}
		return Result{Success: true, Message: "added " + args[1]}
	case "remove":
		if err := RequireArgs(args, 2, "servers remove <address>"); err != nil {
			return Result{Message: err.Error()}
		}
		if err := d.Client.Store.DeleteKnownServer(args[1]); err != nil {
			return Result{Message: err.Error()}
		}
		return Result{Success: true, Message: "removed " + args[1]}
	default:
		return Result{Message: "usage: servers [add|remove] <address>"}
	}
}

func handleKeys(d *Dispatcher, args []string) Result {
	action := "show"
	if len(args) > 0 {
		action = args[0]
	}
	switch action {
	case "show":
		return Result{Success: true, Message: d.Client.Identity.PublicKeyPEM}
	case "generate":
		if err := d.Client.Keys.Regenerate(); err != nil {
			return Result{Message: fmt.Sprintf("regenerate keys: %v", err)}
		}
		pub, err := d.Client.Keys.PublicKeyPEM()
		if err != nil {
			return Result{Message: fmt.Sprintf("read new public key: %v", err)}
		}
		d.Client.Identity.PublicKeyPEM = pub
		return Result{Success: true, Message: "generated new identity keys"}
	case "export":
		if err := RequireArgs(args[1:], 1, "keys export <path>"); err != nil {
			return Result{Message: err.Error()}
		}
		if err := d.Client.Keys.Export(args[1]); err != nil {
			return Result{Message: fmt.Sprintf("export keys: %v", err)}
		}
		return Result{Success: true, Message: "exported private key to " + args[1]}
	case "import":
		if err := RequireArgs(args[1:], 1, "keys import <path>"); err != nil {
			return Result{Message: err.Error()}
		}
		if err := d.Client.Keys.Import(args[1]); err != nil {
			return Result{Message: fmt.Sprintf("import keys: %v", err)}
		}
		pub, err := d.Client.Keys.PublicKeyPEM()
		if err != nil {
			return Result{Message: fmt.Sprintf("read imported public key: %v", err)}
		}
		d.Client.Identity.PublicKeyPEM = pub
		return Result{Success: true, Message: "imported identity key from " + args[1]}
	default:
		return Result{Message: "usage: keys [show|generate|export <path>|import <path>]"}
	}
}

func handleSync(d *Dispatcher, _ []string) Result {
	if err := d.Client.FlushStats(); err != nil {
		return Result{Message: err.Error()}
	}
	if err := d.Client.SyncFiles(); err != nil {
		return Result{Message: err.Error()}
	}
	return Result{Success: true, Message: "synced"}
}

func handleHistory(d *Dispatcher, args []string) Result {
	limit := 20
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			limit = n
		}
	}
	hist, err := d.Client.Store.ListHistory(limit)
	if err != nil {
		return Result{Message: err.Error()}
	}
	b, _ := json.MarshalIndent(hist, "", "  ")
	return Result{Success: true, Message: string(b)}
}

func handleClear(d *Dispatcher, _ []string) Result {
	if err := d.Client.Store.ClearHistory(); err != nil {
		return Result{Message: err.Error()}
	}
	return Result{Success: true, Message: "history cleared"}
}

func handleHelp(d *Dispatcher, _ []string) Result {
	return Result{Success: true, Message: strings.Join(d.Verbs(), ", ")}
}

func handleExit(_ *Dispatcher, _ []string) Result {
	return Result{Success: true, Message: "goodbye"}
}
