// Package execution owns the post-approval path: duplicate detection,
// circuit-breaker admission, the downstream executor abstraction, and the
// worker pipeline that retries transient failures.
package execution

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradecore/pkg/types"
)

// Fingerprint derives the idempotency key for a submission: SHA-256 over the
// colon-joined user, symbol, side, quantity, price, and client order ID.
// Without a client order ID a random nonce takes its place, so the
// fingerprint is unique and the submission is never treated as a duplicate.
func Fingerprint(userID, symbol string, side types.Side, quantity, price decimal.Decimal, clientOrderID string) string {
	cid := clientOrderID
	if cid == "" {
		cid = uuid.NewString()
	}
	parts := []string{userID, symbol, string(side), quantity.String(), price.String(), cid}
	sum := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}

// Index records claimed fingerprints for the lifetime of the process.
// Entries are never evicted; at one fingerprint per accepted submission the
// footprint is bounded by the event log's own capacity.
type Index struct {
	mu     sync.Mutex
	claims map[string]string // fingerprint -> first order ID
}

// NewIndex creates an empty idempotency index.
func NewIndex() *Index {
	return &Index{claims: make(map[string]string)}
}

// Claim records the fingerprint for orderID unless it is already held.
// Check and insert are one atomic step: of any number of concurrent claims
// for the same fingerprint exactly one wins. On a duplicate the original
// order ID is returned.
func (i *Index) Claim(fingerprint, orderID string) (prior string, duplicate bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if prior, ok := i.claims[fingerprint]; ok {
		return prior, true
	}
	i.claims[fingerprint] = orderID
	return "", false
}

// Release frees a fingerprint held by orderID so the submission can be
// retried. Used when an order fails before its creation event is recorded;
// the claim must not outlive the order it was made for. A fingerprint held
// by a different order is left alone.
func (i *Index) Release(fingerprint, orderID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.claims[fingerprint] == orderID {
		delete(i.claims, fingerprint)
	}
}

// Len returns the number of claimed fingerprints.
func (i *Index) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.claims)
}
