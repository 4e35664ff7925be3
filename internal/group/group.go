// Package group implements the Group Membership Service (component D): permission group
// CRUD, user↔group membership, and the per-user permission cache refresh algorithm (§4.4).
package group

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleetward/fleetward/internal/models"
)

// groupStore is the slice of store.Store the service needs.
type groupStore interface {
	CreateGroup(ctx context.Context, g *models.PermissionGroup) error
	ListGroups(ctx context.Context) ([]*models.PermissionGroup, error)
	GetGroup(ctx context.Context, id string) (*models.PermissionGroup, error)
	GetGroupByDirectoryRef(ctx context.Context, ref string) (*models.PermissionGroup, error)
	UpdateGroup(ctx context.Context, g *models.PermissionGroup) error
	DeleteGroup(ctx context.Context, id string) error
	AddMembership(ctx context.Context, userID, groupID string) error
	RemoveMembership(ctx context.Context, userID, groupID string) error
	IsMember(ctx context.Context, userID, groupID string) (bool, error)
	ListGroupsForUser(ctx context.Context, userID string) ([]*models.PermissionGroup, error)
	ListUsersForGroup(ctx context.Context, groupID string) ([]*models.User, error)

	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
}

// Service is the Group Membership Service.
type Service struct {
	store groupStore
	log   *zap.Logger
}

func New(s groupStore, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: s, log: log}
}

func (s *Service) CreateGroup(ctx context.Context, name, perms string) (*models.PermissionGroup, error) {
	g := &models.PermissionGroup{ID: uuid.NewString(), Name: name, Perms: perms}
	if err := s.store.CreateGroup(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Service) ListGroups(ctx context.Context) ([]*models.PermissionGroup, error) {
	return s.store.ListGroups(ctx)
}

func (s *Service) GetGroup(ctx context.Context, id string) (*models.PermissionGroup, error) {
	return s.store.GetGroup(ctx, id)
}

// UpdateGroup persists g, then refreshes the permission cache of every member, since the
// group's perms may have changed.
func (s *Service) UpdateGroup(ctx context.Context, g *models.PermissionGroup) error {
	if err := s.store.UpdateGroup(ctx, g); err != nil {
		return err
	}
	return s.refreshMembers(ctx, g.ID)
}

// DeleteGroup removes g and refreshes every former member's permission cache afterward.
func (s *Service) DeleteGroup(ctx context.Context, id string) error {
	members, err := s.store.ListUsersForGroup(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteGroup(ctx, id); err != nil {
		return err
	}
	for _, u := range members {
		if err := s.RefreshUserPermissions(ctx, u.ID); err != nil {
			return err
		}
	}
	return nil
}

// AddMembership links userID to groupID and refreshes the user's permission cache.
func (s *Service) AddMembership(ctx context.Context, userID, groupID string) error {
	if err := s.store.AddMembership(ctx, userID, groupID); err != nil {
		return err
	}
	return s.RefreshUserPermissions(ctx, userID)
}

// RemoveMembership unlinks userID from groupID and refreshes the user's permission cache.
func (s *Service) RemoveMembership(ctx context.Context, userID, groupID string) error {
	if err := s.store.RemoveMembership(ctx, userID, groupID); err != nil {
		return err
	}
	return s.RefreshUserPermissions(ctx, userID)
}

func (s *Service) ListGroupsForUser(ctx context.Context, userID string) ([]*models.PermissionGroup, error) {
	return s.store.ListGroupsForUser(ctx, userID)
}

func (s *Service) ListUsersForGroup(ctx context.Context, groupID string) ([]*models.User, error) {
	return s.store.ListUsersForGroup(ctx, groupID)
}

func (s *Service) refreshMembers(ctx context.Context, groupID string) error {
	members, err := s.store.ListUsersForGroup(ctx, groupID)
	if err != nil {
		return err
	}
	for _, u := range members {
		if err := s.RefreshUserPermissions(ctx, u.ID); err != nil {
			return err
		}
	}
	return nil
}

// RefreshUserPermissions recomputes userID's cached perms blob from the union of its
// groups' perms arrays. A group whose perms fail to parse is skipped with a warning, not
// treated as fatal.
func (s *Service) RefreshUserPermissions(ctx context.Context, userID string) error {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}

	groups, err := s.store.ListGroupsForUser(ctx, userID)
	if err != nil {
		return err
	}

	combined := make([]json.RawMessage, 0)
	for _, g := range groups {
		var entries []json.RawMessage
		if err := json.Unmarshal([]byte(g.Perms), &entries); err != nil {
			s.log.Warn("skipping group with malformed perms during permission refresh",
				zap.String("groupId", g.ID), zap.Error(err))
			continue
		}
		combined = append(combined, entries...)
	}

	encoded, err := json.Marshal(combined)
	if err != nil {
		return models.WrapAPIError(models.KindInternalError, "failed to encode refreshed permission set", err)
	}
	user.Perms = string(encoded)
	return s.store.UpdateUser(ctx, user)
}
