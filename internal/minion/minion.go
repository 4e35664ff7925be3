// Package minion implements the Minion Materializer (component G): idempotent upsert of
// per-minion fields with paired last-updated timestamps, and pruning of unknown minions.
package minion

import (
	"context"
	"time"

	"github.com/fleetward/fleetward/internal/models"
)

// minionStore is the slice of store.Store the materializer needs.
type minionStore interface {
	GetMinion(ctx context.Context, id string) (*models.Minion, error)
	UpsertMinion(ctx context.Context, id string, seenAt time.Time, fields models.MinionUpsertFields) error
	DeleteMinion(ctx context.Context, id string) error
	PruneMinions(ctx context.Context, knownIDs []string) error
}

// Materializer is the Minion Materializer.
type Materializer struct {
	store minionStore
}

func New(s minionStore) *Materializer {
	return &Materializer{store: s}
}

// Upsert writes fields onto minion id, setting lastSeen and every paired lastUpdated*
// field. The storage layer (internal/store/mongostore) owns the idempotent $set upsert and
// the duplicate-key retry; this layer's job is the stable, domain-facing entry point.
func (m *Materializer) Upsert(ctx context.Context, id string, seenAt time.Time, fields models.MinionUpsertFields) error {
	return m.store.UpsertMinion(ctx, id, seenAt, fields)
}

// Touch records that id was seen at seenAt without changing any other field — the
// salt/auth dispatch path (§4.6) uses this.
func (m *Materializer) Touch(ctx context.Context, id string, seenAt time.Time) error {
	return m.store.UpsertMinion(ctx, id, seenAt, models.MinionUpsertFields{})
}

// Prune removes every minion row whose id is not in knownIDs.
func (m *Materializer) Prune(ctx context.Context, knownIDs []string) error {
	return m.store.PruneMinions(ctx, knownIDs)
}

// Conformity tallies result values ({success, incorrect, error}) from a state.apply/
// state.highstate return object (§4.6): true → success, false → error, null → incorrect;
// non-object entries are skipped.
func Conformity(ret map[string]interface{}) (success, incorrect, errCount int) {
	for _, v := range ret {
		obj, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		result, present := obj["result"]
		if !present {
			continue
		}
		switch r := result.(type) {
		case bool:
			if r {
				success++
			} else {
				errCount++
			}
		case nil:
			incorrect++
		}
	}
	return success, incorrect, errCount
}
