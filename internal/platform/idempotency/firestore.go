package idempotency

import (
	"context"
	"net/http"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/PauloRGNDev/lovableshop-starter/internal/platform/firestore"
)

const defaultCollection = "idempotency_keys"

// FirestoreStore keeps reservations in the idempotency_keys collection. The expiresAt field
// is meant to back a Firestore TTL policy so expired documents are purged server side.
type FirestoreStore struct {
	provider *pfirestore.Provider
	records  *pfirestore.Collection[keyDocument]
}

type keyDocument struct {
	Fingerprint string              `firestore:"fingerprint"`
	Status      int                 `firestore:"status"`
	Header      map[string][]string `firestore:"header,omitempty"`
	Body        []byte              `firestore:"body,omitempty"`
	ExpiresAt   time.Time           `firestore:"expiresAt"`
	UpdatedAt   time.Time           `firestore:"updatedAt,serverTimestamp"`
}

func (d keyDocument) record() Record {
	return Record{
		Fingerprint: d.Fingerprint,
		Status:      d.Status,
		Header:      http.Header(d.Header),
		Body:        d.Body,
		ExpiresAt:   d.ExpiresAt,
	}
}

// NewFirestoreStore binds the store to provider. An empty collection uses idempotency_keys.
func NewFirestoreStore(provider *pfirestore.Provider, collection string) *FirestoreStore {
	if collection == "" {
		collection = defaultCollection
	}
	return &FirestoreStore{provider: provider, records: pfirestore.NewCollection[keyDocument](provider, collection)}
}

func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref, err := s.records.Ref(ctx, documentID(key))
	if err != nil {
		return 0, Record{}, err
	}

	var (
		state  State
		result Record
	)
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var existing *Record
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			doc, err := pfirestore.Decode[keyDocument](snap)
			if err != nil {
				return err
			}
			rec := doc.Data.record()
			existing = &rec
		case !pfirestore.IsNotFound(err):
			return err
		}

		st, found, err := reserve(existing, fingerprint, now)
		if err != nil {
			return err
		}
		if found {
			state, result = st, *existing
			return nil
		}
		fresh := keyDocument{Fingerprint: fingerprint, ExpiresAt: now.Add(ttl)}
		state, result = StateNew, fresh.record()
		return tx.Set(ref, fresh)
	}, pfirestore.WithTxAttempts(3))
	if err != nil {
		return 0, Record{}, err
	}
	return state, result, nil
}

func (s *FirestoreStore) Complete(ctx context.Context, key string, rec Record) error {
	ref, err := s.records.Ref(ctx, documentID(key))
	if err != nil {
		return err
	}
	return s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err == nil {
			doc, err := pfirestore.Decode[keyDocument](snap)
			if err != nil {
				return err
			}
			if doc.Data.Fingerprint != rec.Fingerprint {
				return ErrFingerprintMismatch
			}
		} else if !pfirestore.IsNotFound(err) {
			return err
		}
		return tx.Set(ref, keyDocument{
			Fingerprint: rec.Fingerprint,
			Status:      rec.Status,
			Header:      replayableHeader(rec.Header),
			Body:        rec.Body,
			ExpiresAt:   rec.ExpiresAt,
		})
	}, pfirestore.WithTxAttempts(3))
}

func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	return s.records.Delete(ctx, documentID(key))
}
