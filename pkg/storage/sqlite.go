package storage

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Hsyst/hps-cli/pkg/types"
	_ "modernc.org/sqlite"
)

func marshalStats(stats *types.SessionStats) (string, error) {
	b, err := json.Marshal(stats)
	if err != nil {
		return "", fmt.Errorf("marshal stats: %w", err)
	}
	return string(b), nil
}

func unmarshalStats(data string) (*types.SessionStats, error) {
	var stats types.SessionStats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		return nil, fmt.Errorf("unmarshal stats: %w", err)
	}
	return &stats, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS cli_content_cache (
	content_hash TEXT PRIMARY KEY,
	owner        TEXT NOT NULL,
	size_bytes   INTEGER NOT NULL,
	stored_at    TEXT NOT NULL,
	last_access  TEXT NOT NULL,
	file_path    TEXT NOT NULL,
	file_name    TEXT NOT NULL DEFAULT '',
	mime_type    TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	signature    TEXT NOT NULL DEFAULT '',
	public_key   TEXT NOT NULL DEFAULT '',
	verified     INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS cli_known_servers (
	address     TEXT PRIMARY KEY,
	public_key  TEXT NOT NULL DEFAULT '',
	last_seen   TEXT NOT NULL,
	reputation  INTEGER NOT NULL DEFAULT 0,
	description TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS cli_network_nodes (
	node_id    TEXT PRIMARY KEY,
	address    TEXT NOT NULL,
	last_seen  TEXT NOT NULL,
	reputation INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS cli_dns_records (
	domain        TEXT PRIMARY KEY,
	content_hash  TEXT NOT NULL,
	owner         TEXT NOT NULL,
	registered_at TEXT NOT NULL,
	ttl_seconds   INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS cli_reports (
	id            TEXT PRIMARY KEY,
	reporter_user TEXT NOT NULL,
	reported_user TEXT NOT NULL,
	content_hash  TEXT NOT NULL,
	reason        TEXT NOT NULL,
	filed_at      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS cli_history (
	id        TEXT PRIMARY KEY,
	command   TEXT NOT NULL,
	args      TEXT NOT NULL DEFAULT '',
	success   INTEGER NOT NULL,
	message   TEXT NOT NULL DEFAULT '',
	timestamp TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS cli_session (
	session_id TEXT PRIMARY KEY,
	stats_json TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS cli_settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// SQLiteStore implements Store on top of a single SQLite database file,
// opened with the WAL/synchronous/busy-timeout settings §5 requires.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens the client database under dataDir, applies the
// durability pragmas, and ensures the schema exists.
func Open(dataDir string, busyTimeout time.Duration) (*SQLiteStore, error) {
	dbPath := filepath.Join(dataDir, "hps_cli.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes per-connection; one writer avoids SQLITE_BUSY churn

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout.Milliseconds()),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- content cache ---

func (s *SQLiteStore) PutContent(rec *types.ContentRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO cli_content_cache
			(content_hash, owner, size_bytes, stored_at, last_access, file_path,
			 file_name, mime_type, title, description, signature, public_key, verified)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(content_hash) DO UPDATE SET
			owner=excluded.owner, size_bytes=excluded.size_bytes,
			last_access=excluded.last_access, file_path=excluded.file_path,
			file_name=excluded.file_name, mime_type=excluded.mime_type,
			title=excluded.title, description=excluded.description,
			signature=excluded.signature, public_key=excluded.public_key,
			verified=excluded.verified`,
		rec.ContentHash, rec.Owner, rec.SizeBytes,
		rec.StoredAt.UTC().Format(time.RFC3339Nano),
		rec.LastAccess.UTC().Format(time.RFC3339Nano),
		rec.FilePath, rec.FileName, rec.MimeType, rec.Title, rec.Description,
		base64.StdEncoding.EncodeToString(rec.Signature), rec.PublicKeyPEM, boolToInt(rec.Verified),
	)
	return err
}

func (s *SQLiteStore) GetContent(contentHash string) (*types.ContentRecord, error) {
	row := s.db.QueryRow(
		`SELECT content_hash, owner, size_bytes, stored_at, last_access, file_path,
			file_name, mime_type, title, description, signature, public_key, verified
		 FROM cli_content_cache WHERE content_hash = ?`, contentHash)
	rec, err := scanContent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStore) ListContent() ([]*types.ContentRecord, error) {
	rows, err := s.db.Query(
		`SELECT content_hash, owner, size_bytes, stored_at, last_access, file_path,
			file_name, mime_type, title, description, signature, public_key, verified
		 FROM cli_content_cache`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.ContentRecord
	for rows.Next() {
		rec, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteContent(contentHash string) error {
	_, err := s.db.Exec(`DELETE FROM cli_content_cache WHERE content_hash = ?`, contentHash)
	return err
}

func (s *SQLiteStore) TotalContentBytes() (int64, error) {
	var total sql.NullInt64
	err := s.db.QueryRow(`SELECT SUM(size_bytes) FROM cli_content_cache`).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total.Int64, nil
}

func (s *SQLiteStore) TouchContent(contentHash string) error {
	_, err := s.db.Exec(
		`UPDATE cli_content_cache SET last_access = ? WHERE content_hash = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), contentHash)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContent(r scanner) (*types.ContentRecord, error) {
	var rec types.ContentRecord
	var storedAt, lastAccess, signatureB64 string
	var verified int
	if err := r.Scan(&rec.ContentHash, &rec.Owner, &rec.SizeBytes, &storedAt, &lastAccess, &rec.FilePath,
		&rec.FileName, &rec.MimeType, &rec.Title, &rec.Description, &signatureB64, &rec.PublicKeyPEM, &verified); err != nil {
		return nil, err
	}
	rec.StoredAt, _ = time.Parse(time.RFC3339Nano, storedAt)
	rec.LastAccess, _ = time.Parse(time.RFC3339Nano, lastAccess)
	rec.Signature, _ = base64.StdEncoding.DecodeString(signatureB64)
	rec.Verified = verified != 0
	return &rec, nil
}

// --- known servers ---

func (s *SQLiteStore) UpsertKnownServer(ks *types.KnownServer) error {
	_, err := s.db.Exec(
		`INSERT INTO cli_known_servers (address, public_key, last_seen, reputation, description)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(address) DO UPDATE SET
			public_key=excluded.public_key, last_seen=excluded.last_seen,
			reputation=excluded.reputation, description=excluded.description`,
		ks.Address, ks.PublicKey, ks.LastSeen.UTC().Format(time.RFC3339Nano), ks.Reputation, ks.Description,
	)
	return err
}

func (s *SQLiteStore) GetKnownServer(address string) (*types.KnownServer, error) {
	row := s.db.QueryRow(
		`SELECT address, public_key, last_seen, reputation, description FROM cli_known_servers WHERE address = ?`, address)
	ks, err := scanKnownServer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ks, err
}

func (s *SQLiteStore) ListKnownServers() ([]*types.KnownServer, error) {
	rows, err := s.db.Query(`SELECT address, public_key, last_seen, reputation, description FROM cli_known_servers`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.KnownServer
	for rows.Next() {
		ks, err := scanKnownServer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ks)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteKnownServer(address string) error {
	_, err := s.db.Exec(`DELETE FROM cli_known_servers WHERE address = ?`, address)
	return err
}

func scanKnownServer(r scanner) (*types.KnownServer, error) {
	var ks types.KnownServer
	var lastSeen string
	if err := r.Scan(&ks.Address, &ks.PublicKey, &lastSeen, &ks.Reputation, &ks.Description); err != nil {
		return nil, err
	}
	ks.LastSeen, _ = time.Parse(time.RFC3339Nano, lastSeen)
	return &ks, nil
}

// --- network nodes ---

func (s *SQLiteStore) UpsertNetworkNode(n *types.NetworkNode) error {
	_, err := s.db.Exec(
		`INSERT INTO cli_network_nodes (node_id, address, last_seen, reputation)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(node_id) DO UPDATE SET
			address=excluded.address, last_seen=excluded.last_seen, reputation=excluded.reputation`,
		n.NodeID, n.Address, n.LastSeen.UTC().Format(time.RFC3339Nano), n.Reputation,
	)
	return err
}

func (s *SQLiteStore) ListNetworkNodes() ([]*types.NetworkNode, error) {
	rows, err := s.db.Query(`SELECT node_id, address, last_seen, reputation FROM cli_network_nodes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.NetworkNode
	for rows.Next() {
		var n types.NetworkNode
		var lastSeen string
		if err := rows.Scan(&n.NodeID, &n.Address, &lastSeen, &n.Reputation); err != nil {
			return nil, err
		}
		n.LastSeen, _ = time.Parse(time.RFC3339Nano, lastSeen)
		out = append(out, &n)
	}
	return out, rows.Err()
}

// --- DNS records ---

func (s *SQLiteStore) PutDNSRecord(r *types.DNSRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO cli_dns_records (domain, content_hash, owner, registered_at, ttl_seconds)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(domain) DO UPDATE SET
			content_hash=excluded.content_hash, owner=excluded.owner,
			registered_at=excluded.registered_at, ttl_seconds=excluded.ttl_seconds`,
		r.Domain, r.ContentHash, r.Owner, r.RegisteredAt.UTC().Format(time.RFC3339Nano), int64(r.TTL.Seconds()),
	)
	return err
}

func (s *SQLiteStore) GetDNSRecord(domain string) (*types.DNSRecord, error) {
	row := s.db.QueryRow(
		`SELECT domain, content_hash, owner, registered_at, ttl_seconds FROM cli_dns_records WHERE domain = ?`, domain)
	rec, err := scanDNSRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStore) ListDNSRecords() ([]*types.DNSRecord, error) {
	rows, err := s.db.Query(`SELECT domain, content_hash, owner, registered_at, ttl_seconds FROM cli_dns_records`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.DNSRecord
	for rows.Next() {
		r, err := scanDNSRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanDNSRecord(r scanner) (*types.DNSRecord, error) {
	var rec types.DNSRecord
	var registeredAt string
	var ttlSeconds int64
	if err := r.Scan(&rec.Domain, &rec.ContentHash, &rec.Owner, &registeredAt, &ttlSeconds); err != nil {
		return nil, err
	}
	rec.RegisteredAt, _ = time.Parse(time.RFC3339Nano, registeredAt)
	rec.TTL = time.Duration(ttlSeconds) * time.Second
	return &rec, nil
}

// --- reports ---

func (s *SQLiteStore) CreateReport(r *types.Report) error {
	_, err := s.db.Exec(
		`INSERT INTO cli_reports (id, reporter_user, reported_user, content_hash, reason, filed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.ReporterUser, r.ReportedUser, r.ContentHash, r.Reason, r.FiledAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) HasReported(reporterUser, contentHash string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM cli_reports WHERE reporter_user = ? AND content_hash = ?`,
		reporterUser, contentHash,
	).Scan(&count)
	return count > 0, err
}

func (s *SQLiteStore) ListReports() ([]*types.Report, error) {
	rows, err := s.db.Query(`SELECT id, reporter_user, reported_user, content_hash, reason, filed_at FROM cli_reports`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Report
	for rows.Next() {
		var r types.Report
		var filedAt string
		if err := rows.Scan(&r.ID, &r.ReporterUser, &r.ReportedUser, &r.ContentHash, &r.Reason, &filedAt); err != nil {
			return nil, err
		}
		r.FiledAt, _ = time.Parse(time.RFC3339Nano, filedAt)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// --- history ---

func (s *SQLiteStore) AppendHistory(h *types.HistoryEntry) error {
	argsJoined := ""
	for i, a := range h.Args {
		if i > 0 {
			argsJoined += "\x1f"
		}
		argsJoined += a
	}
	_, err := s.db.Exec(
		`INSERT INTO cli_history (id, command, args, success, message, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID, h.Command, argsJoined, boolToInt(h.Success), h.Message, h.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) ListHistory(limit int) ([]*types.HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, command, args, success, message, timestamp FROM cli_history ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.HistoryEntry
	for rows.Next() {
		var h types.HistoryEntry
		var argsJoined, ts string
		var success int
		if err := rows.Scan(&h.ID, &h.Command, &argsJoined, &success, &h.Message, &ts); err != nil {
			return nil, err
		}
		h.Success = success != 0
		h.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		if argsJoined != "" {
			h.Args = splitUnitSep(argsJoined)
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ClearHistory() error {
	_, err := s.db.Exec(`DELETE FROM cli_history`)
	return err
}

func splitUnitSep(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\x1f' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- session / stats ---

func (s *SQLiteStore) SaveSessionStats(sessionID string, stats *types.SessionStats) error {
	data, err := marshalStats(stats)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO cli_session (session_id, stats_json) VALUES (?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET stats_json=excluded.stats_json`,
		sessionID, data,
	)
	return err
}

func (s *SQLiteStore) LoadSessionStats(sessionID string) (*types.SessionStats, error) {
	var data string
	err := s.db.QueryRow(`SELECT stats_json FROM cli_session WHERE session_id = ?`, sessionID).Scan(&data)
	if err == sql.ErrNoRows {
		return &types.SessionStats{}, nil
	}
	if err != nil {
		return nil, err
	}
	return unmarshalStats(data)
}

// --- settings ---

func (s *SQLiteStore) GetSetting(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM cli_settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLiteStore) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO cli_settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}
