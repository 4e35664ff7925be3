package eventloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetward/fleetward/internal/master"
	"github.com/fleetward/fleetward/internal/minion"
	"github.com/fleetward/fleetward/internal/models"
)

type fakeMinionStore struct {
	minions map[string]*models.Minion
}

func newFakeMinionStore() *fakeMinionStore {
	return &fakeMinionStore{minions: map[string]*models.Minion{}}
}

func (f *fakeMinionStore) GetMinion(_ context.Context, id string) (*models.Minion, error) {
	return f.minions[id], nil
}
func (f *fakeMinionStore) UpsertMinion(_ context.Context, id string, seenAt time.Time, fields models.MinionUpsertFields) error {
	m, ok := f.minions[id]
	if !ok {
		m = &models.Minion{ID: id}
		f.minions[id] = m
	}
	m.LastSeen = seenAt
	if fields.Grains != nil {
		m.Grains = *fields.Grains
	}
	if fields.Pillars != nil {
		m.Pillars = *fields.Pillars
	}
	if fields.Pkgs != nil {
		m.Pkgs = *fields.Pkgs
	}
	if fields.Conformity != nil {
		m.Conformity = *fields.Conformity
	}
	if fields.ConformitySuccess != nil {
		m.ConformitySuccess = *fields.ConformitySuccess
	}
	return nil
}
func (f *fakeMinionStore) DeleteMinion(_ context.Context, id string) error {
	delete(f.minions, id)
	return nil
}
func (f *fakeMinionStore) PruneMinions(_ context.Context, knownIDs []string) error { return nil }

func newLoop(store *fakeMinionStore) *Loop {
	return New(nil, "", minion.New(store), nil, nil)
}

func TestDispatchSaltAuthTouchesMinion(t *testing.T) {
	store := newFakeMinionStore()
	l := newLoop(store)

	ev := master.StreamEvent{
		Tag:  "salt/auth",
		Data: `{"data":{"id":"minion1","result":true}}`,
	}
	require.NoError(t, l.dispatch(context.Background(), ev))
	assert.Contains(t, store.minions, "minion1")
}

func TestDispatchGrainsItemsUpsertsGrains(t *testing.T) {
	store := newFakeMinionStore()
	l := newLoop(store)

	ev := master.StreamEvent{
		Tag:  "salt/job/2024/ret/minion1",
		Data: `{"data":{"fun":"grains.items","return":{"os":"Debian"}}}`,
	}
	require.NoError(t, l.dispatch(context.Background(), ev))
	assert.JSONEq(t, `{"os":"Debian"}`, store.minions["minion1"].Grains)
}

func TestDispatchStateApplyComputesConformity(t *testing.T) {
	store := newFakeMinionStore()
	l := newLoop(store)

	ev := master.StreamEvent{
		Tag: "salt/job/2024/ret/minion1",
		Data: `{"data":{"fun":"state.apply","retcode":0,"arg":[],"return":{
			"s1":{"result":true},
			"s2":{"result":false}
		}}}`,
	}
	require.NoError(t, l.dispatch(context.Background(), ev))
	assert.Equal(t, 1, store.minions["minion1"].ConformitySuccess)
}

func TestDispatchStateApplySkipsHighRetcode(t *testing.T) {
	store := newFakeMinionStore()
	l := newLoop(store)

	ev := master.StreamEvent{
		Tag:  "salt/job/2024/ret/minion1",
		Data: `{"data":{"fun":"state.apply","retcode":1,"arg":[],"return":{"s1":{"result":true}}}}`,
	}
	require.NoError(t, l.dispatch(context.Background(), ev))
	_, exists := store.minions["minion1"]
	assert.False(t, exists)
}

func TestDispatchUnknownTagIsIgnored(t *testing.T) {
	store := newFakeMinionStore()
	l := newLoop(store)

	require.NoError(t, l.dispatch(context.Background(), master.StreamEvent{Tag: "salt/unrelated", Data: `{"data":{}}`}))
	assert.Empty(t, store.minions)
}

func TestNextBackoffCapsAtMax(t *testing.T) {
	b := initialBackoff
	for i := 0; i < 10; i++ {
		b = nextBackoff(b)
	}
	assert.Equal(t, maxBackoff, b)
}
