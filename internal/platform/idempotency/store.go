// Package idempotency deduplicates retried mutating requests. Checkout and
// payment endpoints are the primary consumers: a client that resends a POST
// with the same Idempotency-Key gets the stored response back instead of a
// second order.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"
)

// DefaultTTL bounds how long a completed response stays replayable.
const DefaultTTL = 24 * time.Hour

// ErrKeyReused reports an idempotency key presented with a payload that does
// not match the request the key was first claimed for.
var ErrKeyReused = errors.New("idempotency: key already used for a different request")

// Outcome tells the middleware what to do after claiming a key.
type Outcome int

const (
	// OutcomeProceed means the key is freshly claimed and the handler should run.
	OutcomeProceed Outcome = iota
	// OutcomeReplay means a completed response exists and should be written back.
	OutcomeReplay
	// OutcomeInFlight means an earlier request holds the claim and has not finished.
	OutcomeInFlight
)

// Record is the persisted state for one claimed key.
type Record struct {
	Key        string
	Digest     string
	Completed  bool
	StatusCode int
	Header     map[string][]string
	Body       []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ExpiresAt  time.Time
}

func (r Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// StoredResponse is the response captured after the handler ran.
type StoredResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Store persists key claims and their responses.
type Store interface {
	// Claim reserves the key for the request identified by digest. When the
	// key is already held, the outcome reports whether a replay is available
	// or the original request is still in flight. A digest mismatch returns
	// ErrKeyReused.
	Claim(ctx context.Context, key, digest string, now time.Time, ttl time.Duration) (Outcome, Record, error)
	// Complete stores the response so later retries replay it.
	Complete(ctx context.Context, key, digest string, resp StoredResponse, now time.Time, ttl time.Duration) error
	// Forget drops the claim so the client may retry after a failure.
	Forget(ctx context.Context, key, digest string) error
	// PurgeExpired deletes up to limit expired records and reports how many went.
	PurgeExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

func recordID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func digestBytes(parts ...[]byte) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write(part)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Hop-by-hop and per-response headers that must not be replayed verbatim.
var skippedHeaders = map[string]struct{}{
	"Content-Length":    {},
	"Date":              {},
	"Connection":        {},
	"Keep-Alive":        {},
	"Transfer-Encoding": {},
	"Upgrade":           {},
	"Trailer":           {},
	"Te":                {},
}

func storableHeader(src http.Header) map[string][]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string][]string, len(src))
	for name, values := range src {
		canonical := http.CanonicalHeaderKey(name)
		if _, skip := skippedHeaders[canonical]; skip {
			continue
		}
		dst[canonical] = append([]string(nil), values...)
	}
	if len(dst) == 0 {
		return nil
	}
	return dst
}
