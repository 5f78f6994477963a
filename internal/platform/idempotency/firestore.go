package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultCollection   = "idempotencyKeys"
	defaultTxAttempts   = 5
	defaultPurgeBatchSz = 100
)

// FirestoreStore persists claims in a Firestore collection so retries hit the
// same record regardless of which instance serves them.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	attempts   int
}

// FirestoreOption customises the FirestoreStore.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection that holds claim documents.
func WithCollection(name string) FirestoreOption {
	return func(s *FirestoreStore) {
		if name != "" {
			s.collection = name
		}
	}
}

// NewFirestoreStore builds a store on top of the provided client.
func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	store := &FirestoreStore{
		client:     client,
		collection: defaultCollection,
		attempts:   defaultTxAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

func (s *FirestoreStore) doc(key string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(recordID(key))
}

func (s *FirestoreStore) Claim(ctx context.Context, key, digest string, now time.Time, ttl time.Duration) (Outcome, Record, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	var (
		outcome Outcome
		record  Record
	)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := s.doc(key)
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		var doc claimDoc
		if err == nil {
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
		}

		existing := doc.record()
		if err != nil || existing.expired(now) {
			doc = claimDoc{
				Key:       key,
				Digest:    digest,
				CreatedAt: now,
				UpdatedAt: now,
				ExpiresAt: now.Add(ttl),
			}
			if err := tx.Set(ref, doc); err != nil {
				return err
			}
			outcome, record = OutcomeProceed, doc.record()
			return nil
		}

		if existing.Digest != digest {
			return ErrKeyReused
		}
		if existing.Completed {
			outcome, record = OutcomeReplay, existing
			return nil
		}
		outcome, record = OutcomeInFlight, existing
		return nil
	}, firestore.MaxAttempts(s.attempts))
	if err != nil {
		return OutcomeProceed, Record{}, err
	}
	return outcome, record, nil
}

func (s *FirestoreStore) Complete(ctx context.Context, key, digest string, resp StoredResponse, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	header := storableHeader(resp.Header)
	body := append([]byte(nil), resp.Body...)

	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := s.doc(key)
		snap, err := tx.Get(ref)
		var doc claimDoc
		switch {
		case err == nil:
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			if doc.Digest != digest {
				return ErrKeyReused
			}
		case status.Code(err) == codes.NotFound:
			doc = claimDoc{Key: key, Digest: digest, CreatedAt: now}
		default:
			return err
		}

		doc.Completed = true
		doc.StatusCode = resp.StatusCode
		doc.Header = header
		doc.Body = body
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
		doc.UpdatedAt = now
		doc.ExpiresAt = now.Add(ttl)
		return tx.Set(ref, doc)
	}, firestore.MaxAttempts(s.attempts))
}

func (s *FirestoreStore) Forget(ctx context.Context, key, _ string) error {
	_, err := s.doc(key).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

func (s *FirestoreStore) PurgeExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	if limit <= 0 {
		limit = defaultPurgeBatchSz
	}

	docs, err := s.client.Collection(s.collection).
		Where("expiresAt", "<=", now).
		Limit(limit).
		Documents(ctx).
		GetAll()
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	batch := s.client.Batch()
	for _, doc := range docs {
		batch.Delete(doc.Ref)
	}
	if _, err := batch.Commit(ctx); err != nil {
		return 0, err
	}
	return len(docs), nil
}

type claimDoc struct {
	Key        string              `firestore:"key"`
	Digest     string              `firestore:"digest"`
	Completed  bool                `firestore:"completed"`
	StatusCode int                 `firestore:"statusCode"`
	Header     map[string][]string `firestore:"header"`
	Body       []byte              `firestore:"body"`
	CreatedAt  time.Time           `firestore:"createdAt"`
	UpdatedAt  time.Time           `firestore:"updatedAt"`
	ExpiresAt  time.Time           `firestore:"expiresAt"`
}

func (d claimDoc) record() Record {
	return Record{
		Key:        d.Key,
		Digest:     d.Digest,
		Completed:  d.Completed,
		StatusCode: d.StatusCode,
		Header:     d.Header,
		Body:       d.Body,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
		ExpiresAt:  d.ExpiresAt,
	}
}
