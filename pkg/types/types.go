package types

import "time"

// ActionType identifies a PoW-gated request flow. The reactor allows at
// most one pending request per ActionType at a time.
type ActionType string

const (
	ActionLogin  ActionType = "login"
	ActionUpload ActionType = "upload"
	ActionDNSReg ActionType = "dns-reg"
	ActionReport ActionType = "report"
)

// ContentRecord is one row of cli_content_cache: a locally cached
// content-addressed blob and the metadata needed to re-verify it.
type ContentRecord struct {
	ContentHash string
	Owner       string
	SizeBytes   int64
	StoredAt    time.Time
	LastAccess  time.Time
	FilePath    string

	FileName     string
	MimeType     string
	Title        string
	Description  string
	Signature    []byte
	PublicKeyPEM string
	Verified     bool
}

// DNSRecord is one row of cli_dns_records: a human-readable name this
// client has registered or resolved to a content hash.
type DNSRecord struct {
	Domain      string
	ContentHash string
	Owner       string
	RegisteredAt time.Time
	TTL          time.Duration
}

// KnownServer is one row of cli_known_servers.
type KnownServer struct {
	Address     string
	PublicKey   string // PEM; the client does not fill this in (pkg/session pins server keys in memory)
	LastSeen    time.Time
	Reputation  int
	Description string
}

// NetworkNode is one row of cli_network_nodes, populated from
// network_state replies.
type NetworkNode struct {
	NodeID     string
	Address    string
	LastSeen   time.Time
	Reputation int
}

// Report is one row of cli_reports: an abuse report this client filed
// against a content hash.
type Report struct {
	ID           string
	ReporterUser string
	ReportedUser string
	ContentHash  string
	Reason       string
	FiledAt      time.Time
}

// HistoryEntry is one row of cli_history: a record of a dispatched
// command and its outcome.
type HistoryEntry struct {
	ID        string
	Command   string
	Args      []string
	Success   bool
	Message   string
	Timestamp time.Time
}

// SessionStats holds in-process counters updated as the client performs
// work; they are stored as JSON in cli_session, keyed by session ID, when
// the sync verb runs and at exit.
type SessionStats struct {
	SessionStart       time.Time
	DataSentBytes      int64
	DataReceivedBytes  int64
	ContentDownloaded  int64
	ContentUploaded    int64
	DNSRegistered      int64
	PowSolved          int64
	PowTimeSeconds     float64
	ContentReported    int64
	HashesCalculated   int64
	Reputation         int
}

// Identity is the client's long-lived RSA-4096 key pair plus the
// derived identifiers the original protocol requires alongside it.
type Identity struct {
	SessionID        string
	NodeID           string
	ClientIdentifier string
	PublicKeyPEM     string
}
