// Package ledger implements a supplemental append-only audit log: an
// append-only trail, per entity or global, where each entry carries
// {timestamp, actor, role, entity, from_state, to_state, reason}.
// Entries are hash-chained and HMAC-signed with a per-tenant key
// derived via HKDF, so a tampered entry is detectable even by a reader
// who only has the chain, not the root secret.
package ledger

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Entry is one immutable, hash-chained audit record: {timestamp,
// actor, role, entity, from_state, to_state, reason}. Result
// distinguishes a successful transition from a denied attempt — a
// denied attempt is recorded as from_state = to_state with
// result=denied, since failures get audited too.
type Entry struct {
	Sequence    uint64 `json:"sequence"`
	Entity      string `json:"entity"`
	Actor       string `json:"actor"`
	Role        string `json:"role"`
	FromState   string `json:"from_state"`
	ToState     string `json:"to_state"`
	Reason      string `json:"reason"`
	Result      string `json:"result"` // "ok" | "denied"
	Timestamp   time.Time `json:"timestamp"`
	PrevHash    string `json:"prev_hash"`
	ContentHash string `json:"content_hash"`
	Signature   string `json:"signature"`
}

// Ledger is an append-only, hash-chained, HMAC-signed audit log for one
// tenant. Entries across different entities may interleave on the same
// ledger; EntriesForEntity filters a view.
type Ledger struct {
	mu         sync.RWMutex
	entries    []Entry
	headHash   string
	clock      func() time.Time
	signingKey []byte
}

// NewLedger creates a ledger whose entries are signed with signingKey
// (see DeriveSigningKey).
func NewLedger(signingKey []byte) *Ledger {
	return &Ledger{
		entries:    make([]Entry, 0),
		headHash:   "genesis",
		clock:      time.Now,
		signingKey: signingKey,
	}
}

// WithClock overrides the clock for deterministic tests.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

type hashInput struct {
	Seq       uint64 `json:"seq"`
	Entity    string `json:"entity"`
	Actor     string `json:"actor"`
	Role      string `json:"role"`
	FromState string `json:"from"`
	ToState   string `json:"to"`
	Reason    string `json:"reason"`
	Result    string `json:"result"`
	Prev      string `json:"prev"`
}

// Append records one audit event and returns its sequence number.
func (l *Ledger) Append(entity, actor, role, fromState, toState, reason, result string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := uint64(len(l.entries)) + 1
	hi := hashInput{seq, entity, actor, role, fromState, toState, reason, result, l.headHash}

	raw, err := json.Marshal(hi)
	if err != nil {
		return 0, fmt.Errorf("ledger: marshal entry: %w", err)
	}
	sum := sha256.Sum256(raw)
	contentHash := "sha256:" + hex.EncodeToString(sum[:])

	entry := Entry{
		Sequence:    seq,
		Entity:      entity,
		Actor:       actor,
		Role:        role,
		FromState:   fromState,
		ToState:     toState,
		Reason:      reason,
		Result:      result,
		Timestamp:   l.clock(),
		PrevHash:    l.headHash,
		ContentHash: contentHash,
		Signature:   l.sign(contentHash),
	}

	l.entries = append(l.entries, entry)
	l.headHash = contentHash
	return seq, nil
}

func (l *Ledger) sign(contentHash string) string {
	if len(l.signingKey) == 0 {
		return ""
	}
	mac := hmac.New(sha256.New, l.signingKey)
	mac.Write([]byte(contentHash))
	return hex.EncodeToString(mac.Sum(nil))
}

// Get retrieves an entry by sequence number (1-based).
func (l *Ledger) Get(seq uint64) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if seq == 0 || seq > uint64(len(l.entries)) {
		return nil, fmt.Errorf("ledger: entry %d not found", seq)
	}
	e := l.entries[seq-1]
	return &e, nil
}

// EntriesForEntity returns, in write order, every entry recorded
// against entity.
func (l *Ledger) EntriesForEntity(entity string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.Entity == entity {
			out = append(out, e)
		}
	}
	return out
}

// Head returns the current chain head hash.
func (l *Ledger) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.headHash
}

// Length returns the number of recorded entries.
func (l *Ledger) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Verify recomputes the hash chain and every entry's HMAC signature,
// reporting the first break found.
func (l *Ledger) Verify() (bool, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prevHash := "genesis"
	for i, e := range l.entries {
		if e.PrevHash != prevHash {
			return false, fmt.Sprintf("chain broken at entry %d: expected prev %s, got %s", i+1, prevHash, e.PrevHash)
		}

		hi := hashInput{e.Sequence, e.Entity, e.Actor, e.Role, e.FromState, e.ToState, e.Reason, e.Result, e.PrevHash}
		raw, err := json.Marshal(hi)
		if err != nil {
			return false, fmt.Sprintf("failed to marshal entry %d", i+1)
		}
		sum := sha256.Sum256(raw)
		computed := "sha256:" + hex.EncodeToString(sum[:])
		if computed != e.ContentHash {
			return false, fmt.Sprintf("content hash mismatch at entry %d", i+1)
		}
		if len(l.signingKey) > 0 && e.Signature != l.sign(e.ContentHash) {
			return false, fmt.Sprintf("signature mismatch at entry %d", i+1)
		}
		prevHash = e.ContentHash
	}
	return true, "ledger verified"
}

// DeriveSigningKey derives a per-tenant HMAC key from a root secret via
// HKDF-SHA256, so no two tenants' ledgers share a signing key even
// though they share one root secret at rest.
func DeriveSigningKey(root []byte, tenant string) ([]byte, error) {
	reader := hkdf.New(sha256.New, root, []byte(tenant), []byte("datumplan-ledger-signing-key"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("ledger: derive signing key: %w", err)
	}
	return key, nil
}
