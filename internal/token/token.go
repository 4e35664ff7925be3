// Package token implements the Token Coordinator (component C): operator login, master
// session handling, session validation, and the validateForMaster callback the master uses
// to authorize back against this service.
package token

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleetward/fleetward/internal/directory"
	"github.com/fleetward/fleetward/internal/group"
	"github.com/fleetward/fleetward/internal/master"
	"github.com/fleetward/fleetward/internal/models"
	"github.com/fleetward/fleetward/internal/session"
	"github.com/fleetward/fleetward/pkg/auth"
)

// serviceAccountUsername is the reserved identity the master presents on behalf of its own
// runner/wheel subsystems; it bypasses session lookup entirely when paired with the
// configured service token.
const serviceAccountUsername = "$superadmin/svc/fleetward$"

// serviceAccountPerms is the wildcard permission set granted to the service account.
var serviceAccountPerms = []string{".*", "@runner", "@wheel"}

// tokenStore is the slice of store.Store the coordinator needs beyond what session.Gateway
// already covers.
type tokenStore interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	UpdateUser(ctx context.Context, u *models.User) error
}

// directorySyncer is the slice of internal/directorysync.Reconciler the coordinator needs to
// sync a directory-backed user's group membership on demand at login (§4.5).
type directorySyncer interface {
	ReconcileUser(ctx context.Context, userID string) error
}

// Config controls login-mode and service-account behavior.
type Config struct {
	ForwardAuthEnabled bool
	SessionLifespan    time.Duration
	ServiceToken       string
}

// Coordinator is the Token Coordinator.
type Coordinator struct {
	cfg       Config
	store     tokenStore
	sessions  *session.Gateway
	masterCli master.Client
	directory directory.Client // nil when directory login is disabled
	dirSync   directorySyncer  // nil when directory login is disabled
	groups    *group.Service
	hasher    *auth.PasswordHasher
	log       *zap.Logger
}

func New(cfg Config, store tokenStore, sessions *session.Gateway, masterCli master.Client, dir directory.Client, dirSync directorySyncer, groups *group.Service, hasher *auth.PasswordHasher, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		cfg:       cfg,
		store:     store,
		sessions:  sessions,
		masterCli: masterCli,
		directory: dir,
		dirSync:   dirSync,
		groups:    groups,
		hasher:    hasher,
		log:       log,
	}
}

// Login authenticates an operator and returns the resulting SessionToken.
//
// forwardAuthUsername is only consulted when ForwardAuthEnabled; username/password are
// only consulted otherwise.
func (c *Coordinator) Login(ctx context.Context, username, password, forwardAuthUsername string) (*models.SessionToken, error) {
	var user *models.User
	var err error

	switch {
	case c.cfg.ForwardAuthEnabled:
		user, err = c.loginForwardAuth(ctx, forwardAuthUsername)
	default:
		user, err = c.loginClassic(ctx, username, password)
	}
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewAPIError(models.KindUnauthorized, "invalid credentials")
	}

	if err := c.groups.RefreshUserPermissions(ctx, user.ID); err != nil {
		return nil, err
	}

	sess, err := c.sessions.CreateSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	masterTok, err := c.masterCli.Login(ctx, user.Username, sess.ID)
	if err != nil {
		return nil, err
	}
	if err := c.sessions.AttachMasterToken(ctx, sess.ID, masterTok); err != nil {
		return nil, err
	}

	now := time.Now()
	user.LastLogin = &now
	if err := c.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	return sess, nil
}

func (c *Coordinator) loginForwardAuth(ctx context.Context, username string) (*models.User, error) {
	if username == "" {
		return nil, models.NewAPIError(models.KindUnauthorized, "forward-auth header missing")
	}
	user, err := c.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}
	user = &models.User{ID: uuid.NewString(), Username: username, Perms: "[]"}
	if err := c.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (c *Coordinator) loginClassic(ctx context.Context, username, password string) (*models.User, error) {
	user, err := c.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	if user.DirectoryRef != "" {
		if c.directory == nil {
			return nil, models.NewAPIError(models.KindUnauthorized, "directory login unavailable")
		}
		dirUser, err := c.directory.Authenticate(username, password)
		if err != nil {
			return nil, err
		}
		if dirUser == nil {
			return nil, nil
		}
		if c.dirSync != nil {
			if err := c.dirSync.ReconcileUser(ctx, user.ID); err != nil {
				return nil, err
			}
		}
		return user, nil
	}

	ok, err := c.hasher.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, models.WrapAPIError(models.KindInternalError, "password verification failed", err)
	}
	if !ok {
		return nil, nil
	}
	return user, nil
}

// Validate resolves tokenId to an AuthStatus, or nil if the session is absent/expired.
func (c *Coordinator) Validate(ctx context.Context, tokenID string) (*models.AuthStatus, error) {
	sess, err := c.sessions.FindSession(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	if sess.Expired(time.Now(), c.cfg.SessionLifespan) {
		return nil, nil
	}

	user, err := c.store.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	var masterTok *models.MasterToken
	if sess.MasterTokenBlob != "" {
		masterTok = &models.MasterToken{}
		if err := json.Unmarshal([]byte(sess.MasterTokenBlob), masterTok); err != nil {
			return nil, models.WrapAPIError(models.KindInternalError, "failed to deserialize stored master token", err)
		}
	}

	return &models.AuthStatus{
		UserID:      user.ID,
		Perms:       user.Perms,
		TokenID:     sess.ID,
		MasterToken: masterTok,
	}, nil
}

// RenewMasterToken re-authenticates against the master using the session id as the shared
// credential and persists the refreshed token, returning the updated AuthStatus.
func (c *Coordinator) RenewMasterToken(ctx context.Context, userID, sessionID string) (*models.AuthStatus, error) {
	user, err := c.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewAPIError(models.KindNotFound, "user not found")
	}

	masterTok, err := c.masterCli.Login(ctx, user.Username, sessionID)
	if err != nil {
		return nil, err
	}
	if err := c.sessions.AttachMasterToken(ctx, sessionID, masterTok); err != nil {
		return nil, err
	}

	return &models.AuthStatus{
		UserID:      user.ID,
		Perms:       user.Perms,
		TokenID:     sessionID,
		MasterToken: masterTok,
	}, nil
}

// CallMaster runs fn with status.MasterToken, renewing once and retrying if fn reports an
// unauthorized failure against a matured token (§4.3 master-call failure handling).
func (c *Coordinator) CallMaster(ctx context.Context, status *models.AuthStatus, fn func(tok *models.MasterToken) error) error {
	err := fn(status.MasterToken)
	if err == nil {
		return nil
	}
	apiErr := models.AsAPIError(err)
	if apiErr.Kind != models.KindUnauthorized {
		return err
	}
	if status.MasterToken == nil || !status.MasterToken.Matured(time.Now()) {
		return models.NewAPIError(models.KindInternalError, "master rejected a freshly issued token")
	}

	refreshed, err := c.RenewMasterToken(ctx, status.UserID, status.TokenID)
	if err != nil {
		return err
	}
	status.MasterToken = refreshed.MasterToken
	return fn(status.MasterToken)
}

// ValidateForMaster is the callback the master calls to authorize an operator it is
// proxying a request for. The reserved service account bypasses session lookup outright.
func (c *Coordinator) ValidateForMaster(ctx context.Context, username, token string) (string, error) {
	if username == serviceAccountUsername {
		if c.cfg.ServiceToken == "" || token != c.cfg.ServiceToken {
			return "", models.NewAPIError(models.KindUnauthorized, "invalid service token")
		}
		encoded, err := json.Marshal(serviceAccountPerms)
		if err != nil {
			return "", models.WrapAPIError(models.KindInternalError, "failed to encode service account perms", err)
		}
		return string(encoded), nil
	}

	status, err := c.Validate(ctx, token)
	if err != nil {
		return "", err
	}
	if status == nil || status.UserID == "" {
		return "", models.NewAPIError(models.KindUnauthorized, "invalid session")
	}
	return status.Perms, nil
}
