// Package contentstore implements the content-addressed blob store: it
// frames a user's content with a header identifying the uploader, hashes
// the framed form to produce the content hash, and persists the framed
// blob to disk with a metadata row in pkg/storage.
//
// The content hash covers header+payload; the detached signature covers
// the payload alone. That asymmetry is carried over unchanged from the
// protocol this client speaks — see DESIGN.md for why it is preserved
// rather than "fixed".
package contentstore

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Hsyst/hps-cli/pkg/storage"
	"github.com/Hsyst/hps-cli/pkg/types"
)

const (
	// MaxUploadBytes is the hard ceiling on a single blob's payload.
	MaxUploadBytes = 100 * 1024 * 1024

	headerPrefix = "# HSYST P2P SERVICE"
	headerStart  = "### START:"
	headerUser   = "# USER: "
	headerKey    = "# KEY: "
	headerEnd    = "### :END START"
)

// Store persists content blobs under dir, indexed by content hash, with
// metadata kept in the shared relational store.
type Store struct {
	dir string
	db  storage.Store
}

// New returns a Store rooted at dir; dir is created if missing.
func New(dir string, db storage.Store) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create content directory: %w", err)
	}
	return &Store{dir: dir, db: db}, nil
}

// Frame builds the header this protocol prepends to every upload before
// hashing, and returns the content hash of header+payload.
func Frame(username, publicKeyPEM string, payload []byte) (header []byte, contentHash string) {
	b := frameHeader(username, publicKeyPEM)
	sum := sha256.Sum256(append(append([]byte{}, b...), payload...))
	return b, hex.EncodeToString(sum[:])
}

func frameHeader(username, publicKeyPEM string) []byte {
	var b []byte
	b = append(b, []byte(headerPrefix)...)
	b = append(b, []byte(headerStart)...)
	b = append(b, []byte(headerUser)...)
	b = append(b, []byte(username)...)
	b = append(b, []byte(headerKey)...)
	b = append(b, []byte(base64.StdEncoding.EncodeToString([]byte(publicKeyPEM)))...)
	b = append(b, []byte(headerEnd)...)
	return b
}

// VerifyHash recomputes the content hash for a retrieved header+payload
// pair and reports whether it matches the claimed hash.
func VerifyHash(header, payload []byte, claimedHash string) bool {
	sum := sha256.Sum256(append(append([]byte{}, header...), payload...))
	return hex.EncodeToString(sum[:]) == claimedHash
}

// SplitFramed strips the fixed header from a downloaded content-cache
// blob, returning the raw payload the author's signature was computed
// over. It reports false if blob does not contain the header-end
// marker, meaning it was never validly framed.
func SplitFramed(blob []byte) (payload []byte, ok bool) {
	idx := bytes.Index(blob, []byte(headerEnd))
	if idx < 0 {
		return nil, false
	}
	return blob[idx+len(headerEnd):], true
}

// Meta carries the descriptive and provenance fields that accompany a
// blob beyond its hash/owner/size — the cli_content_cache columns the
// original populates from upload metadata or a content_response.
type Meta struct {
	FileName     string
	MimeType     string
	Title        string
	Description  string
	Signature    []byte
	PublicKeyPEM string
	Verified     bool
}

// Put writes the full framed blob (header+payload) to disk under
// contentHash and records its metadata. It rejects payloads over
// MaxUploadBytes; a blob without the header is measured whole.
func (s *Store) Put(contentHash, owner string, blob []byte, meta Meta) error {
	size := len(blob)
	if payload, ok := SplitFramed(blob); ok {
		size = len(payload)
	}
	if size > MaxUploadBytes {
		return fmt.Errorf("payload of %d bytes exceeds the %d byte upload ceiling", size, MaxUploadBytes)
	}

	path := s.pathFor(contentHash)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return fmt.Errorf("write content: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize content: %w", err)
	}

	now := time.Now()
	return s.db.PutContent(&types.ContentRecord{
		ContentHash:  contentHash,
		Owner:        owner,
		SizeBytes:    int64(len(blob)),
		StoredAt:     now,
		LastAccess:   now,
		FilePath:     path,
		FileName:     meta.FileName,
		MimeType:     meta.MimeType,
		Title:        meta.Title,
		Description:  meta.Description,
		Signature:    meta.Signature,
		PublicKeyPEM: meta.PublicKeyPEM,
		Verified:     meta.Verified,
	})
}

// Get reads the stored framed blob (header+payload) for contentHash back
// from disk and touches its last-access timestamp.
func (s *Store) Get(contentHash string) ([]byte, *types.ContentRecord, error) {
	rec, err := s.db.GetContent(contentHash)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup content metadata: %w", err)
	}
	if rec == nil {
		return nil, nil, fmt.Errorf("content %s not found", contentHash)
	}

	data, err := os.ReadFile(rec.FilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("read content: %w", err)
	}
	_ = s.db.TouchContent(contentHash)
	return data, rec, nil
}

// Usage reports the total bytes currently on disk across all cached
// content, for quota enforcement.
func (s *Store) Usage() (int64, error) {
	return s.db.TotalContentBytes()
}

// Delete removes the cached blob and its metadata row.
func (s *Store) Delete(contentHash string) error {
	rec, err := s.db.GetContent(contentHash)
	if err != nil {
		return err
	}
	if rec != nil {
		_ = os.Remove(rec.FilePath)
	}
	return s.db.DeleteContent(contentHash)
}

func (s *Store) pathFor(contentHash string) string {
	return filepath.Join(s.dir, contentHash)
}

const (
	ddnsStart = "### DNS:"
	ddnsName  = "# DNAME: "
	ddnsEnd   = "### :END DNS"
)

// FrameDDNS builds the name-record document a dns-reg registration
// signs and sends as ddns_content: the same user/key header as a
// content upload, followed by a DNS block naming the domain and the
// content hash it resolves to.
func FrameDDNS(username, publicKeyPEM, domain, contentHash string) []byte {
	b := frameHeader(username, publicKeyPEM)
	b = append(b, []byte(ddnsStart)...)
	b = append(b, []byte(ddnsName)...)
	b = append(b, []byte(domain)...)
	b = append(b, []byte(" = ")...)
	b = append(b, []byte(contentHash)...)
	b = append(b, []byte(ddnsEnd)...)
	return b
}
