package directorysync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetward/fleetward/internal/directory"
	"github.com/fleetward/fleetward/internal/group"
	"github.com/fleetward/fleetward/internal/models"
	"github.com/fleetward/fleetward/internal/store"
)

type fakeStore struct {
	users       map[string]*models.User
	groups      map[string]*models.PermissionGroup
	memberships map[string]map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       map[string]*models.User{},
		groups:      map[string]*models.PermissionGroup{},
		memberships: map[string]map[string]bool{},
	}
}

func (f *fakeStore) ListUsers(_ context.Context, _ store.Page) ([]*models.User, error) {
	var out []*models.User
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}
func (f *fakeStore) UpdateUser(_ context.Context, u *models.User) error {
	f.users[u.ID] = u
	return nil
}
func (f *fakeStore) ListGroups(_ context.Context) ([]*models.PermissionGroup, error) {
	var out []*models.PermissionGroup
	for _, g := range f.groups {
		out = append(out, g)
	}
	return out, nil
}
func (f *fakeStore) IsMember(_ context.Context, userID, groupID string) (bool, error) {
	return f.memberships[userID][groupID], nil
}
func (f *fakeStore) AddMembership(_ context.Context, userID, groupID string) error {
	if f.memberships[userID] == nil {
		f.memberships[userID] = map[string]bool{}
	}
	f.memberships[userID][groupID] = true
	return nil
}
func (f *fakeStore) RemoveMembership(_ context.Context, userID, groupID string) error {
	delete(f.memberships[userID], groupID)
	return nil
}
func (f *fakeStore) ListGroupsForUser(_ context.Context, userID string) ([]*models.PermissionGroup, error) {
	var out []*models.PermissionGroup
	for groupID := range f.memberships[userID] {
		out = append(out, f.groups[groupID])
	}
	return out, nil
}
func (f *fakeStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	return f.users[id], nil
}
func (f *fakeStore) CreateGroup(context.Context, *models.PermissionGroup) error      { return nil }
func (f *fakeStore) GetGroup(context.Context, string) (*models.PermissionGroup, error) {
	return nil, nil
}
func (f *fakeStore) GetGroupByDirectoryRef(context.Context, string) (*models.PermissionGroup, error) {
	return nil, nil
}
func (f *fakeStore) UpdateGroup(context.Context, *models.PermissionGroup) error { return nil }
func (f *fakeStore) DeleteGroup(context.Context, string) error                 { return nil }
func (f *fakeStore) ListUsersForGroup(context.Context, string) ([]*models.User, error) {
	return nil, nil
}

type fakeDirectory struct {
	byRef map[string]directory.User
}

func (d *fakeDirectory) Authenticate(string, string) (*directory.User, error) { return nil, nil }
func (d *fakeDirectory) LookupByUsername(string) (*directory.User, error)     { return nil, nil }
func (d *fakeDirectory) LookupByRefs(refs []string) ([]directory.User, error) {
	var out []directory.User
	for _, ref := range refs {
		if u, ok := d.byRef[ref]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func TestReconcileAddsAndRemovesMembershipByDiff(t *testing.T) {
	fs := newFakeStore()
	fs.users["u1"] = &models.User{ID: "u1", DirectoryRef: "dn=alice", Perms: "[]"}
	fs.groups["g-eng"] = &models.PermissionGroup{ID: "g-eng", DirectoryRef: "cn=eng", Perms: "[]"}
	fs.groups["g-ops"] = &models.PermissionGroup{ID: "g-ops", DirectoryRef: "cn=ops", Perms: "[]"}
	fs.memberships["u1"] = map[string]bool{"g-ops": true} // currently in ops, directory says eng

	dir := &fakeDirectory{byRef: map[string]directory.User{
		"dn=alice": {Ref: "dn=alice", Email: "alice@example.com", GroupRefs: []string{"cn=eng"}},
	}}

	groups := group.New(fs, nil)
	rec := New(fs, dir, groups, nil)

	require.NoError(t, rec.Run(context.Background()))

	assert.True(t, fs.memberships["u1"]["g-eng"])
	assert.False(t, fs.memberships["u1"]["g-ops"])
	assert.Equal(t, "alice@example.com", fs.users["u1"].Email)
}

func TestReconcileUserSyncsOneUserOnDemand(t *testing.T) {
	fs := newFakeStore()
	fs.users["u1"] = &models.User{ID: "u1", DirectoryRef: "dn=alice", Perms: "[]"}
	fs.users["u2"] = &models.User{ID: "u2", DirectoryRef: "dn=bob", Perms: "[]"}
	fs.groups["g-eng"] = &models.PermissionGroup{ID: "g-eng", DirectoryRef: "cn=eng", Perms: "[]"}

	dir := &fakeDirectory{byRef: map[string]directory.User{
		"dn=alice": {Ref: "dn=alice", Email: "alice@example.com", GroupRefs: []string{"cn=eng"}},
		"dn=bob":   {Ref: "dn=bob", Email: "bob@example.com", GroupRefs: []string{"cn=eng"}},
	}}

	groups := group.New(fs, nil)
	rec := New(fs, dir, groups, nil)

	require.NoError(t, rec.ReconcileUser(context.Background(), "u1"))

	assert.True(t, fs.memberships["u1"]["g-eng"])
	assert.Equal(t, "alice@example.com", fs.users["u1"].Email)
	// u2 was never reconciled: ReconcileUser touches only the named user.
	assert.False(t, fs.memberships["u2"]["g-eng"])
	assert.Empty(t, fs.users["u2"].Email)
}

func TestReconcileUserNoOpForUserWithoutDirectoryRef(t *testing.T) {
	fs := newFakeStore()
	fs.users["u1"] = &models.User{ID: "u1", Perms: "[]"}

	groups := group.New(fs, nil)
	rec := New(fs, &fakeDirectory{}, groups, nil)

	require.NoError(t, rec.ReconcileUser(context.Background(), "u1"))
	assert.Empty(t, fs.memberships["u1"])
}

func TestReconcileNoOpWhenDirectoryUnchanged(t *testing.T) {
	fs := newFakeStore()
	fs.users["u1"] = &models.User{ID: "u1", DirectoryRef: "dn=alice", Email: "alice@example.com", Perms: "[]"}
	fs.groups["g-eng"] = &models.PermissionGroup{ID: "g-eng", DirectoryRef: "cn=eng", Perms: "[]"}
	fs.memberships["u1"] = map[string]bool{"g-eng": true}

	dir := &fakeDirectory{byRef: map[string]directory.User{
		"dn=alice": {Ref: "dn=alice", Email: "alice@example.com", GroupRefs: []string{"cn=eng"}},
	}}

	groups := group.New(fs, nil)
	rec := New(fs, dir, groups, nil)

	require.NoError(t, rec.Run(context.Background()))

	assert.True(t, fs.memberships["u1"]["g-eng"])
	assert.Len(t, fs.memberships["u1"], 1)
}
