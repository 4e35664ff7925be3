package group

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetward/fleetward/internal/models"
)

type fakeStore struct {
	groups      map[string]*models.PermissionGroup
	users       map[string]*models.User
	memberships map[string]map[string]bool // userID -> groupID -> true
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		groups:      map[string]*models.PermissionGroup{},
		users:       map[string]*models.User{},
		memberships: map[string]map[string]bool{},
	}
}

func (f *fakeStore) CreateGroup(_ context.Context, g *models.PermissionGroup) error {
	f.groups[g.ID] = g
	return nil
}
func (f *fakeStore) ListGroups(_ context.Context) ([]*models.PermissionGroup, error) {
	var out []*models.PermissionGroup
	for _, g := range f.groups {
		out = append(out, g)
	}
	return out, nil
}
func (f *fakeStore) GetGroup(_ context.Context, id string) (*models.PermissionGroup, error) {
	return f.groups[id], nil
}
func (f *fakeStore) GetGroupByDirectoryRef(_ context.Context, ref string) (*models.PermissionGroup, error) {
	for _, g := range f.groups {
		if g.DirectoryRef == ref {
			return g, nil
		}
	}
	return nil, nil
}
func (f *fakeStore) UpdateGroup(_ context.Context, g *models.PermissionGroup) error {
	f.groups[g.ID] = g
	return nil
}
func (f *fakeStore) DeleteGroup(_ context.Context, id string) error {
	delete(f.groups, id)
	return nil
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
func (f *fakeStore) IsMember(_ context.Context, userID, groupID string) (bool, error) {
	return f.memberships[userID][groupID], nil
}
func (f *fakeStore) ListGroupsForUser(_ context.Context, userID string) ([]*models.PermissionGroup, error) {
	var out []*models.PermissionGroup
	for groupID := range f.memberships[userID] {
		out = append(out, f.groups[groupID])
	}
	return out, nil
}
func (f *fakeStore) ListUsersForGroup(_ context.Context, groupID string) ([]*models.User, error) {
	var out []*models.User
	for userID, groups := range f.memberships {
		if groups[groupID] {
			out = append(out, f.users[userID])
		}
	}
	return out, nil
}
func (f *fakeStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	return f.users[id], nil
}
func (f *fakeStore) UpdateUser(_ context.Context, u *models.User) error {
	f.users[u.ID] = u
	return nil
}

func TestAddMembershipRefreshesPermissions(t *testing.T) {
	fs := newFakeStore()
	fs.users["u1"] = &models.User{ID: "u1", Perms: "[]"}
	fs.groups["g1"] = &models.PermissionGroup{ID: "g1", Perms: `["minion.list"]`}

	svc := New(fs, nil)
	require.NoError(t, svc.AddMembership(context.Background(), "u1", "g1"))

	assert.JSONEq(t, `["minion.list"]`, fs.users["u1"].Perms)
}

func TestRefreshSkipsMalformedGroupPermsWithoutFailing(t *testing.T) {
	fs := newFakeStore()
	fs.users["u1"] = &models.User{ID: "u1", Perms: "[]"}
	fs.groups["good"] = &models.PermissionGroup{ID: "good", Perms: `["minion.list"]`}
	fs.groups["bad"] = &models.PermissionGroup{ID: "bad", Perms: `not-json`}
	fs.memberships["u1"] = map[string]bool{"good": true, "bad": true}

	svc := New(fs, nil)
	require.NoError(t, svc.RefreshUserPermissions(context.Background(), "u1"))

	assert.JSONEq(t, `["minion.list"]`, fs.users["u1"].Perms)
}

func TestRemoveMembershipRefreshesToEmpty(t *testing.T) {
	fs := newFakeStore()
	fs.users["u1"] = &models.User{ID: "u1", Perms: `["minion.list"]`}
	fs.groups["g1"] = &models.PermissionGroup{ID: "g1", Perms: `["minion.list"]`}
	fs.memberships["u1"] = map[string]bool{"g1": true}

	svc := New(fs, nil)
	require.NoError(t, svc.RemoveMembership(context.Background(), "u1", "g1"))

	assert.JSONEq(t, `[]`, fs.users["u1"].Perms)
}
