package storage

import (
	"github.com/Hsyst/hps-cli/pkg/types"
)

// Store defines the interface for the client's local relational state.
// It is implemented by a modernc.org/sqlite-backed store (sqlite.go).
type Store interface {
	// Content cache
	PutContent(rec *types.ContentRecord) error
	GetContent(contentHash string) (*types.ContentRecord, error)
	ListContent() ([]*types.ContentRecord, error)
	DeleteContent(contentHash string) error
	TotalContentBytes() (int64, error)
	TouchContent(contentHash string) error

	// Known servers
	UpsertKnownServer(s *types.KnownServer) error
	GetKnownServer(address string) (*types.KnownServer, error)
	ListKnownServers() ([]*types.KnownServer, error)
	DeleteKnownServer(address string) error

	// Network nodes (peers observed via network_state)
	UpsertNetworkNode(n *types.NetworkNode) error
	ListNetworkNodes() ([]*types.NetworkNode, error)

	// DNS records
	PutDNSRecord(r *types.DNSRecord) error
	GetDNSRecord(domain string) (*types.DNSRecord, error)
	ListDNSRecords() ([]*types.DNSRecord, error)

	// Reports
	CreateReport(r *types.Report) error
	HasReported(reporterUser, contentHash string) (bool, error)
	ListReports() ([]*types.Report, error)

	// History
	AppendHistory(h *types.HistoryEntry) error
	ListHistory(limit int) ([]*types.HistoryEntry, error)
	ClearHistory() error

	// Session / stats
	SaveSessionStats(sessionID string, stats *types.SessionStats) error
	LoadSessionStats(sessionID string) (*types.SessionStats, error)

	// Settings — small key/value bag for local config not covered above
	GetSetting(key string) (string, bool, error)
	SetSetting(key, value string) error

	Close() error
}
