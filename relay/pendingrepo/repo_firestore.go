package pendingrepo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	relayerrors "github.com/jrsteele09/go-code-relay/internal/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreRepo keeps pending authorizations in a Firestore collection, one
// document per state. Use it when the relay runs as more than one instance
// or on a platform that recycles processes between the redirect and the poll.
type FirestoreRepo struct {
	client     *firestore.Client
	collection string
	ownsClient bool
}

var _ Repo = (*FirestoreRepo)(nil)

// pendingDoc is the stored document shape.
type pendingDoc struct {
	State            string    `firestore:"state"`
	Code             string    `firestore:"code,omitempty"`
	Error            string    `firestore:"error,omitempty"`
	ErrorDescription string    `firestore:"error_description,omitempty"`
	CreatedAt        time.Time `firestore:"created_at"`
	ExpiresAt        time.Time `firestore:"expires_at"`
}

// neverExpires stands in for a zero ExpiresAt so range queries on
// expires_at treat the record as live.
var neverExpires = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

func toDoc(p *PendingAuthorization) pendingDoc {
	expiresAt := p.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = neverExpires
	}
	return pendingDoc{
		State:            p.State,
		Code:             p.Code,
		Error:            p.Error,
		ErrorDescription: p.ErrorDescription,
		CreatedAt:        p.CreatedAt,
		ExpiresAt:        expiresAt,
	}
}

func (d pendingDoc) toPending() *PendingAuthorization {
	expiresAt := d.ExpiresAt
	if expiresAt.Equal(neverExpires) {
		expiresAt = time.Time{}
	}
	return &PendingAuthorization{
		State:            d.State,
		Code:             d.Code,
		Error:            d.Error,
		ErrorDescription: d.ErrorDescription,
		CreatedAt:        d.CreatedAt,
		ExpiresAt:        expiresAt,
	}
}

// NewFirestoreRepo connects to Firestore and returns a repo over collection.
func NewFirestoreRepo(ctx context.Context, projectID, database, collection string) (*FirestoreRepo, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error
	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	repo, err := NewFirestoreRepoWithClient(client, collection)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	repo.ownsClient = true

	log.Info().
		Str("project", projectID).
		Str("database", database).
		Str("collection", collection).
		Msg("Using Firestore pending authorization store")
	return repo, nil
}

// NewFirestoreRepoWithClient wraps an existing client. The caller keeps
// ownership of the client.
func NewFirestoreRepoWithClient(client *firestore.Client, collection string) (*FirestoreRepo, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}
	return &FirestoreRepo{client: client, collection: collection}, nil
}

// Close releases the client if the repo created it.
func (r *FirestoreRepo) Close() error {
	if !r.ownsClient {
		return nil
	}
	return r.client.Close()
}

// docRef maps a state onto a document. States are caller-chosen and may hold
// characters Firestore does not accept in document IDs, so they are hashed.
func (r *FirestoreRepo) docRef(state string) *firestore.DocumentRef {
	sum := sha256.Sum256([]byte(state))
	return r.client.Collection(r.collection).Doc(hex.EncodeToString(sum[:]))
}

func (r *FirestoreRepo) Upsert(ctx context.Context, pending *PendingAuthorization) error {
	if pending == nil {
		return relayerrors.ErrNilRecord
	}
	if pending.State == "" {
		return relayerrors.ErrEmptyState
	}
	if _, err := r.docRef(pending.State).Set(ctx, toDoc(pending)); err != nil {
		return relayerrors.Wrapf(err, "[FirestoreRepo Upsert] set")
	}
	return nil
}

func (r *FirestoreRepo) Get(ctx context.Context, state string) (*PendingAuthorization, error) {
	if state == "" {
		return nil, relayerrors.ErrEmptyState
	}
	snap, err := r.docRef(state).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, relayerrors.ErrNotFound
		}
		return nil, relayerrors.Wrapf(err, "[FirestoreRepo Get] get")
	}
	return liveFromSnapshot(snap)
}

func (r *FirestoreRepo) Take(ctx context.Context, state string) (*PendingAuthorization, error) {
	if state == "" {
		return nil, relayerrors.ErrEmptyState
	}

	ref := r.docRef(state)
	var taken *PendingAuthorization
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		taken = nil
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return relayerrors.ErrNotFound
			}
			return err
		}
		p, err := liveFromSnapshot(snap)
		if err != nil {
			return err
		}
		taken = p
		return tx.Delete(ref)
	})
	if err != nil {
		if relayerrors.Is(err, relayerrors.ErrNotFound) {
			return nil, relayerrors.ErrNotFound
		}
		return nil, relayerrors.Wrapf(err, "[FirestoreRepo Take] transaction")
	}
	return taken, nil
}

func (r *FirestoreRepo) Delete(ctx context.Context, state string) error {
	if state == "" {
		return relayerrors.ErrEmptyState
	}
	_, err := r.docRef(state).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return relayerrors.Wrapf(err, "[FirestoreRepo Delete] delete")
	}
	return nil
}

func (r *FirestoreRepo) HasPending(ctx context.Context) (bool, error) {
	iter := r.client.Collection(r.collection).
		Where("expires_at", ">", NowTimeFunc()).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	_, err := iter.Next()
	if err == iterator.Done {
		return false, nil
	}
	if err != nil {
		return false, relayerrors.Wrapf(err, "[FirestoreRepo HasPending] query")
	}
	return true, nil
}

func (r *FirestoreRepo) DeleteExpired(ctx context.Context) (int, error) {
	iter := r.client.Collection(r.collection).
		Where("expires_at", "<=", NowTimeFunc()).
		Documents(ctx)
	defer iter.Stop()

	removed := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return removed, relayerrors.Wrapf(err, "[FirestoreRepo DeleteExpired] query")
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			log.Error().Err(err).Str("doc", doc.Ref.ID).Msg("Failed to delete expired pending authorization")
			continue
		}
		removed++
	}
	return removed, nil
}

// liveFromSnapshot decodes a document, treating expired ones as missing.
func liveFromSnapshot(snap *firestore.DocumentSnapshot) (*PendingAuthorization, error) {
	var doc pendingDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode pending authorization %s: %w", snap.Ref.ID, err)
	}
	p := doc.toPending()
	if p.Expired(NowTimeFunc()) {
		return nil, relayerrors.ErrNotFound
	}
	return p, nil
}
