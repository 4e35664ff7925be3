// Package directorysync implements the Directory Sync Reconciler (component E): reconciles
// directory-tracked users and groups against the directory server on a fixed interval.
package directorysync

import (
	"context"

	"go.uber.org/zap"

	"github.com/fleetward/fleetward/internal/directory"
	"github.com/fleetward/fleetward/internal/group"
	"github.com/fleetward/fleetward/internal/models"
	"github.com/fleetward/fleetward/internal/store"
)

// syncStore is the slice of store.Store the reconciler needs.
type syncStore interface {
	ListUsers(ctx context.Context, page store.Page) ([]*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	ListGroups(ctx context.Context) ([]*models.PermissionGroup, error)
	IsMember(ctx context.Context, userID, groupID string) (bool, error)
	AddMembership(ctx context.Context, userID, groupID string) error
	RemoveMembership(ctx context.Context, userID, groupID string) error
	ListGroupsForUser(ctx context.Context, userID string) ([]*models.PermissionGroup, error)
}

// Reconciler is the Directory Sync Reconciler.
type Reconciler struct {
	store     syncStore
	directory directory.Client
	groups    *group.Service
	log       *zap.Logger
}

func New(s syncStore, dir directory.Client, groups *group.Service, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{store: s, directory: dir, groups: groups, log: log}
}

// Run performs one reconciliation pass over every directory-tracked user.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.directory == nil {
		return nil
	}

	users, err := r.store.ListUsers(ctx, store.Page{Limit: 0, Offset: 0})
	if err != nil {
		return err
	}
	groupByRef, err := r.trackedGroupsByRef(ctx)
	if err != nil {
		return err
	}
	if len(groupByRef) == 0 {
		return nil
	}

	var refs []string
	tracked := make([]*models.User, 0)
	for _, u := range users {
		if u.DirectoryRef != "" {
			refs = append(refs, u.DirectoryRef)
			tracked = append(tracked, u)
		}
	}
	if len(tracked) == 0 {
		return nil
	}

	dirUsers, err := r.directory.LookupByRefs(refs)
	if err != nil {
		return err
	}
	dirByRef := make(map[string]directory.User, len(dirUsers))
	for _, du := range dirUsers {
		dirByRef[du.Ref] = du
	}

	for _, u := range tracked {
		if err := r.reconcileUser(ctx, u, dirByRef[u.DirectoryRef], groupByRef); err != nil {
			return err
		}
	}
	return nil
}

// ReconcileUser reconciles a single directory-tracked user on demand (§4.5's login-time
// sync), outside the hourly Run pass. A no-op for users with no DirectoryRef.
func (r *Reconciler) ReconcileUser(ctx context.Context, userID string) error {
	if r.directory == nil {
		return nil
	}

	u, err := r.store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil || u.DirectoryRef == "" {
		return nil
	}

	groupByRef, err := r.trackedGroupsByRef(ctx)
	if err != nil {
		return err
	}
	if len(groupByRef) == 0 {
		return nil
	}

	dirUsers, err := r.directory.LookupByRefs([]string{u.DirectoryRef})
	if err != nil {
		return err
	}
	var dirUser directory.User
	for _, du := range dirUsers {
		if du.Ref == u.DirectoryRef {
			dirUser = du
			break
		}
	}

	return r.reconcileUser(ctx, u, dirUser, groupByRef)
}

func (r *Reconciler) trackedGroupsByRef(ctx context.Context) (map[string]*models.PermissionGroup, error) {
	groups, err := r.store.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	groupByRef := make(map[string]*models.PermissionGroup, len(groups))
	for _, g := range groups {
		if g.DirectoryRef != "" {
			groupByRef[g.DirectoryRef] = g
		}
	}
	return groupByRef, nil
}

// reconcileUser applies the symmetric-difference membership update for one user. A missing
// dirUser (zero Ref) means the user was not found in the directory: remove them from every
// directory-tracked group.
func (r *Reconciler) reconcileUser(ctx context.Context, u *models.User, dirUser directory.User, groupByRef map[string]*models.PermissionGroup) error {
	if dirUser.Email != "" && dirUser.Email != u.Email {
		u.Email = dirUser.Email
		if err := r.store.UpdateUser(ctx, u); err != nil {
			return err
		}
	}

	currentGroups, err := r.store.ListGroupsForUser(ctx, u.ID)
	if err != nil {
		return err
	}
	current := make(map[string]bool)
	for _, g := range currentGroups {
		if g.DirectoryRef != "" {
			current[g.DirectoryRef] = true
		}
	}

	desired := make(map[string]bool)
	for _, ref := range dirUser.GroupRefs {
		if _, tracked := groupByRef[ref]; tracked {
			desired[ref] = true
		}
	}

	changed := false
	for ref := range desired {
		if !current[ref] {
			if err := r.store.AddMembership(ctx, u.ID, groupByRef[ref].ID); err != nil {
				return err
			}
			changed = true
		}
	}
	for ref := range current {
		if !desired[ref] {
			if err := r.store.RemoveMembership(ctx, u.ID, groupByRef[ref].ID); err != nil {
				return err
			}
			changed = true
		}
	}

	if changed {
		if err := r.groups.RefreshUserPermissions(ctx, u.ID); err != nil {
			return err
		}
	}
	return nil
}
