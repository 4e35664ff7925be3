// Package session implements the Session Store Gateway (component B): durable
// lookup/create/update of operator session tokens, layered over the Store interface.
package session

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fleetward/fleetward/internal/models"
)

// sessionStore is the slice of store.Store that the gateway needs; defined locally so
// tests can supply a minimal fake instead of a full store.Store implementation.
type sessionStore interface {
	CreateSession(ctx context.Context, s *models.SessionToken) error
	GetSession(ctx context.Context, id string) (*models.SessionToken, error)
	UpdateSessionMasterToken(ctx context.Context, id string, masterTokenBlob string) error
	DeleteSession(ctx context.Context, id string) error
}

// minSessionIDLength is the spec's floor on session id length; ids shorter than this are
// rejected on lookup without consulting storage.
const minSessionIDLength = 20

// idPrefix tags every issued session id so ids are visually distinguishable from other
// opaque identifiers in logs and traces.
const idPrefix = "fw_"

// Gateway is the Session Store Gateway.
type Gateway struct {
	store sessionStore
}

func New(s sessionStore) *Gateway {
	return &Gateway{store: s}
}

// CreateSession allocates a new ≥128-bit-entropy session id for userID and persists it.
func (g *Gateway) CreateSession(ctx context.Context, userID string) (*models.SessionToken, error) {
	id := newSessionID()
	sess := &models.SessionToken{
		ID:       id,
		UserID:   userID,
		IssuedAt: time.Now().UTC(),
	}
	if err := g.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// FindSession looks up a session by id, rejecting short ids without storage I/O.
func (g *Gateway) FindSession(ctx context.Context, id string) (*models.SessionToken, error) {
	if len(id) < minSessionIDLength {
		return nil, nil
	}
	return g.store.GetSession(ctx, id)
}

// AttachMasterToken persists tok (or clears the field when tok is nil) on the session.
func (g *Gateway) AttachMasterToken(ctx context.Context, id string, tok *models.MasterToken) error {
	blob := ""
	if tok != nil {
		b, err := json.Marshal(tok)
		if err != nil {
			return models.WrapAPIError(models.KindInternalError, "failed to serialize master token", err)
		}
		blob = string(b)
	}
	return g.store.UpdateSessionMasterToken(ctx, id, blob)
}

// DeleteSession removes the session row outright (this implementation's resolution of
// the logout open question: delete rather than rely on client-side cookie clearing).
func (g *Gateway) DeleteSession(ctx context.Context, id string) error {
	return g.store.DeleteSession(ctx, id)
}

func newSessionID() string {
	var entropy [16]byte
	if _, err := rand.Read(entropy[:]); err != nil {
		// crypto/rand failing is fatal to the whole process's security assumptions;
		// fall back to ulid's own monotonic entropy source rather than producing a
		// weak id.
		return idPrefix + ulid.Make().String()
	}
	id := ulid.MustNew(ulid.Timestamp(time.Now()), bytesReader(entropy[:]))
	return idPrefix + id.String()
}

type bytesReader []byte

func (b bytesReader) Read(p []byte) (int, error) {
	return copy(p, b), nil
}
