package token

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetward/fleetward/internal/directory"
	"github.com/fleetward/fleetward/internal/group"
	"github.com/fleetward/fleetward/internal/master"
	"github.com/fleetward/fleetward/internal/models"
	"github.com/fleetward/fleetward/internal/session"
	"github.com/fleetward/fleetward/pkg/auth"
)

type fakeStore struct {
	users    map[string]*models.User
	byName   map[string]*models.User
	sessions map[string]*models.SessionToken
	groups   map[string]*models.PermissionGroup
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[string]*models.User{},
		byName:   map[string]*models.User{},
		sessions: map[string]*models.SessionToken{},
		groups:   map[string]*models.PermissionGroup{},
	}
}

func (f *fakeStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	return f.byName[username], nil
}
func (f *fakeStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	return f.users[id], nil
}
func (f *fakeStore) CreateUser(_ context.Context, u *models.User) error {
	f.users[u.ID] = u
	f.byName[u.Username] = u
	return nil
}
func (f *fakeStore) UpdateUser(_ context.Context, u *models.User) error {
	f.users[u.ID] = u
	f.byName[u.Username] = u
	return nil
}

// session.Gateway needs these.
func (f *fakeStore) CreateSession(_ context.Context, s *models.SessionToken) error {
	f.sessions[s.ID] = s
	return nil
}
func (f *fakeStore) GetSession(_ context.Context, id string) (*models.SessionToken, error) {
	return f.sessions[id], nil
}
func (f *fakeStore) UpdateSessionMasterToken(_ context.Context, id, blob string) error {
	if s, ok := f.sessions[id]; ok {
		s.MasterTokenBlob = blob
	}
	return nil
}
func (f *fakeStore) DeleteSession(_ context.Context, id string) error {
	delete(f.sessions, id)
	return nil
}

// group.Service needs these, unused by our tests beyond empty results.
func (f *fakeStore) CreateGroup(_ context.Context, g *models.PermissionGroup) error { return nil }
func (f *fakeStore) ListGroups(_ context.Context) ([]*models.PermissionGroup, error) { return nil, nil }
func (f *fakeStore) GetGroup(_ context.Context, id string) (*models.PermissionGroup, error) {
	return f.groups[id], nil
}
func (f *fakeStore) GetGroupByDirectoryRef(_ context.Context, ref string) (*models.PermissionGroup, error) {
	return nil, nil
}
func (f *fakeStore) UpdateGroup(_ context.Context, g *models.PermissionGroup) error { return nil }
func (f *fakeStore) DeleteGroup(_ context.Context, id string) error                 { return nil }
func (f *fakeStore) AddMembership(_ context.Context, userID, groupID string) error  { return nil }
func (f *fakeStore) RemoveMembership(_ context.Context, userID, groupID string) error {
	return nil
}
func (f *fakeStore) IsMember(_ context.Context, userID, groupID string) (bool, error) {
	return false, nil
}
func (f *fakeStore) ListGroupsForUser(_ context.Context, userID string) ([]*models.PermissionGroup, error) {
	return nil, nil
}
func (f *fakeStore) ListUsersForGroup(_ context.Context, groupID string) ([]*models.User, error) {
	return nil, nil
}

type fakeMaster struct {
	logins int
}

func (f *fakeMaster) Login(_ context.Context, username, credential string) (*models.MasterToken, error) {
	f.logins++
	now := time.Now()
	return &models.MasterToken{Token: "tok", Start: now.Unix(), Expire: now.Add(time.Hour).Unix(), UserID: username}, nil
}
func (f *fakeMaster) RunJob(context.Context, *models.MasterToken, master.RunJob) (interface{}, error) {
	return nil, nil
}
func (f *fakeMaster) ListKeys(context.Context, *models.MasterToken) ([]models.MinionKey, error) {
	return nil, nil
}
func (f *fakeMaster) AcceptKey(context.Context, *models.MasterToken, master.KeyState, string) error {
	return nil
}
func (f *fakeMaster) RejectKey(context.Context, *models.MasterToken, master.KeyState, string) error {
	return nil
}
func (f *fakeMaster) DeleteKey(context.Context, *models.MasterToken, master.KeyState, string) error {
	return nil
}
func (f *fakeMaster) RefreshMinion(context.Context, *models.MasterToken, string) error { return nil }
func (f *fakeMaster) ListenEvents(context.Context, *models.MasterToken) (master.EventStream, error) {
	return nil, nil
}

func newCoordinator(fs *fakeStore, fm *fakeMaster, cfg Config) *Coordinator {
	sessions := session.New(fs)
	groups := group.New(fs, nil)
	hasher := auth.NewPasswordHasher(4)
	return New(cfg, fs, sessions, fm, nil, nil, groups, hasher, nil)
}

type fakeDirectoryClient struct {
	authenticated *directory.User
}

func (d *fakeDirectoryClient) Authenticate(string, string) (*directory.User, error) {
	return d.authenticated, nil
}
func (d *fakeDirectoryClient) LookupByUsername(string) (*directory.User, error) { return nil, nil }
func (d *fakeDirectoryClient) LookupByRefs([]string) ([]directory.User, error)  { return nil, nil }

type fakeDirSync struct {
	reconciledUserIDs []string
}

func (d *fakeDirSync) ReconcileUser(_ context.Context, userID string) error {
	d.reconciledUserIDs = append(d.reconciledUserIDs, userID)
	return nil
}

func TestLoginDirectoryBackedUserReconcilesOnDemand(t *testing.T) {
	fs := newFakeStore()
	fs.byName["alice"] = &models.User{ID: "u1", Username: "alice", DirectoryRef: "dn=alice", Perms: "[]"}
	fs.users["u1"] = fs.byName["alice"]

	dirCli := &fakeDirectoryClient{authenticated: &directory.User{Ref: "dn=alice"}}
	dirSync := &fakeDirSync{}

	sessions := session.New(fs)
	groups := group.New(fs, nil)
	hasher := auth.NewPasswordHasher(4)
	coord := New(Config{SessionLifespan: time.Hour}, fs, sessions, &fakeMaster{}, dirCli, dirSync, groups, hasher, nil)

	_, err := coord.Login(context.Background(), "alice", "whatever-the-directory-checks", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, dirSync.reconciledUserIDs)
}

func TestLoginClassicSucceedsAndPersistsMasterToken(t *testing.T) {
	fs := newFakeStore()
	hasher := auth.NewPasswordHasher(4)
	hash, err := hasher.HashPassword("correct-horse-battery")
	require.NoError(t, err)
	fs.byName["alice"] = &models.User{ID: "u1", Username: "alice", PasswordHash: hash, Perms: "[]"}
	fs.users["u1"] = fs.byName["alice"]

	fm := &fakeMaster{}
	coord := newCoordinator(fs, fm, Config{SessionLifespan: time.Hour})

	sess, err := coord.Login(context.Background(), "alice", "correct-horse-battery", "")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.MasterTokenBlob)
	assert.Equal(t, 1, fm.logins)
}

func TestLoginClassicRejectsWrongPassword(t *testing.T) {
	fs := newFakeStore()
	hasher := auth.NewPasswordHasher(4)
	hash, _ := hasher.HashPassword("correct-horse-battery")
	fs.byName["alice"] = &models.User{ID: "u1", Username: "alice", PasswordHash: hash, Perms: "[]"}
	fs.users["u1"] = fs.byName["alice"]

	coord := newCoordinator(fs, &fakeMaster{}, Config{SessionLifespan: time.Hour})
	_, err := coord.Login(context.Background(), "alice", "wrong", "")
	require.Error(t, err)
}

func TestForwardAuthAutoProvisionsUser(t *testing.T) {
	fs := newFakeStore()
	coord := newCoordinator(fs, &fakeMaster{}, Config{SessionLifespan: time.Hour, ForwardAuthEnabled: true})

	sess, err := coord.Login(context.Background(), "", "", "bob")
	require.NoError(t, err)
	assert.NotNil(t, sess)
	assert.Contains(t, fs.byName, "bob")
}

func TestValidateRejectsShortTokenWithoutStorage(t *testing.T) {
	fs := newFakeStore()
	coord := newCoordinator(fs, &fakeMaster{}, Config{SessionLifespan: time.Hour})
	status, err := coord.Validate(context.Background(), "short")
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestValidateForMasterAcceptsServiceAccount(t *testing.T) {
	fs := newFakeStore()
	coord := newCoordinator(fs, &fakeMaster{}, Config{SessionLifespan: time.Hour, ServiceToken: "s3cr3t"})

	perms, err := coord.ValidateForMaster(context.Background(), serviceAccountUsername, "s3cr3t")
	require.NoError(t, err)
	assert.JSONEq(t, `[".*","@runner","@wheel"]`, perms)
}

func TestValidateForMasterRejectsWrongServiceToken(t *testing.T) {
	fs := newFakeStore()
	coord := newCoordinator(fs, &fakeMaster{}, Config{SessionLifespan: time.Hour, ServiceToken: "s3cr3t"})

	_, err := coord.ValidateForMaster(context.Background(), serviceAccountUsername, "wrong")
	require.Error(t, err)
}

func TestCallMasterRenewsOnceWhenMatured(t *testing.T) {
	fs := newFakeStore()
	fs.byName["alice"] = &models.User{ID: "u1", Username: "alice", Perms: "[]"}
	fs.users["u1"] = fs.byName["alice"]
	fs.sessions["fw_0123456789abcdefghij"] = &models.SessionToken{ID: "fw_0123456789abcdefghij", UserID: "u1", IssuedAt: time.Now()}

	fm := &fakeMaster{}
	coord := newCoordinator(fs, fm, Config{SessionLifespan: time.Hour})

	stale := &models.MasterToken{Token: "stale", Start: time.Now().Add(-time.Hour).Unix(), Expire: time.Now().Add(time.Hour).Unix()}
	status := &models.AuthStatus{UserID: "u1", TokenID: "fw_0123456789abcdefghij", MasterToken: stale}

	calls := 0
	err := coord.CallMaster(context.Background(), status, func(tok *models.MasterToken) error {
		calls++
		if tok.Token == "stale" {
			return models.NewAPIError(models.KindUnauthorized, "rejected")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, fm.logins)
}
