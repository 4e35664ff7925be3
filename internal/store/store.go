// Package store defines the persistence boundary (component interface "Store", §6): the
// core depends only on this interface, never on a concrete database driver.
package store

import (
	"context"
	"time"

	"github.com/fleetward/fleetward/internal/models"
)

// MinionSort selects the ordering of a paginated minion listing.
type MinionSort string

const (
	MinionSortIDAsc       MinionSort = "id_asc"
	MinionSortLastSeenDesc MinionSort = "last_seen_desc"
)

// MinionFilter narrows a minion listing; zero value means "no filter".
type MinionFilter struct {
	Query string // substring match against minion id
}

// Page describes pagination parameters common to every paginated listing.
type Page struct {
	Limit  int64
	Offset int64
}

// Store is the persistence interface the core depends on. A concrete implementation
// (see internal/store/mongostore) is injected at startup.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u *models.User) error
	ListUsers(ctx context.Context, page Page) ([]*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, id string) error

	// Sessions
	CreateSession(ctx context.Context, s *models.SessionToken) error
	GetSession(ctx context.Context, id string) (*models.SessionToken, error)
	UpdateSessionMasterToken(ctx context.Context, id string, masterTokenBlob string) error
	DeleteSession(ctx context.Context, id string) error

	// Minions
	ListMinions(ctx context.Context, filter MinionFilter, sort MinionSort, page Page) ([]*models.Minion, error)
	GetMinion(ctx context.Context, id string) (*models.Minion, error)
	UpsertMinion(ctx context.Context, id string, seenAt time.Time, fields models.MinionUpsertFields) error
	DeleteMinion(ctx context.Context, id string) error
	PruneMinions(ctx context.Context, knownIDs []string) error

	// Events
	InsertEvent(ctx context.Context, e *models.Event) error
	ListEvents(ctx context.Context, page Page) ([]*models.Event, error)
	GetEvent(ctx context.Context, id string) (*models.Event, error)

	// Jobs and returns
	InsertJob(ctx context.Context, j *models.Job) error
	ListJobs(ctx context.Context, page Page) ([]*models.Job, error)
	GetJobByJid(ctx context.Context, jid string) (*models.Job, error)
	InsertJobReturn(ctx context.Context, r *models.JobReturn) error
	ListJobReturnsByJob(ctx context.Context, jobID string) ([]*models.JobReturn, error)

	// Permission groups and membership
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

	// Presets
	CreatePreset(ctx context.Context, p *models.MinionPreset) error
	ListPresets(ctx context.Context) ([]*models.MinionPreset, error)
	GetPreset(ctx context.Context, id string) (*models.MinionPreset, error)
	UpdatePreset(ctx context.Context, p *models.MinionPreset) error
	DeletePreset(ctx context.Context, id string) error

	// Status
	CountMinions(ctx context.Context) (int64, error)
	CountUsers(ctx context.Context) (int64, error)
}
