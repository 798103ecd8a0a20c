package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long a completed response stays replayable.
const DefaultTTL = 24 * time.Hour

// State is the outcome of reserving a key.
type State int

const (
	// StateNew means the caller owns the key and should run the request.
	StateNew State = iota
	// StateCompleted means a stored response should be replayed.
	StateCompleted
	// StateInFlight means another request holds the key.
	StateInFlight
)

// Record is a stored reservation. Status is zero while the request is in flight.
type Record struct {
	Fingerprint string
	Status      int
	Header      http.Header
	Body        []byte
	ExpiresAt   time.Time
}

// Store persists reservations and completed responses keyed by a scoped idempotency key.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error)
	Complete(ctx context.Context, key string, rec Record) error
	Release(ctx context.Context, key string) error
}

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key reused with a different request")

func documentID(key string) string {
	return digest([]byte(strings.TrimSpace(key)))
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

var hopHeaders = map[string]struct{}{
	"Connection":        {},
	"Content-Length":    {},
	"Date":              {},
	"Keep-Alive":        {},
	"Transfer-Encoding": {},
	"Upgrade":           {},
	"Set-Cookie":        {},
}

// replayableHeader drops headers that must not be replayed.
func replayableHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for name, values := range h {
		name = http.CanonicalHeaderKey(name)
		if _, skip := hopHeaders[name]; skip {
			continue
		}
		out[name] = append([]string(nil), values...)
	}
	return out
}

// reserve decides the state for an existing record. ok is false when the record is absent or
// expired and a fresh reservation should be written.
func reserve(existing *Record, fingerprint string, now time.Time) (State, bool, error) {
	if existing == nil || !now.Before(existing.ExpiresAt) {
		return StateNew, false, nil
	}
	if existing.Fingerprint != fingerprint {
		return 0, true, ErrFingerprintMismatch
	}
	if existing.Status != 0 {
		return StateCompleted, true, nil
	}
	return StateInFlight, true, nil
}
