// Package models contains the fleet control plane's data model: operators, permission
// groups, session and master tokens, minions, events, jobs and saved presets.
package models

import "time"

// User is an operator identity. Username is canonicalized to lowercase at create time.
// PasswordHash is absent when DirectoryRef is set (directory-managed accounts never carry
// a local password).
type User struct {
	ID           string     `json:"id" bson:"_id"`
	Username     string     `json:"username" bson:"username"`
	PasswordHash string     `json:"-" bson:"passwordHash,omitempty"`
	Perms        string     `json:"perms" bson:"perms"`
	Email        string     `json:"email,omitempty" bson:"email,omitempty"`
	LastLogin    *time.Time `json:"lastLogin,omitempty" bson:"lastLogin,omitempty"`
	DirectoryRef string     `json:"directoryRef,omitempty" bson:"directoryRef,omitempty"`
}

// PermissionGroup is a named, reusable bundle of permission-pattern strings.
type PermissionGroup struct {
	ID           string `json:"id" bson:"_id"`
	Name         string `json:"name" bson:"name"`
	Perms        string `json:"perms" bson:"perms"`
	DirectoryRef string `json:"directoryRef,omitempty" bson:"directoryRef,omitempty"`
}

// Membership links one user to one permission group.
type Membership struct {
	UserID  string `json:"userId" bson:"userId"`
	GroupID string `json:"groupId" bson:"groupId"`
}

// MasterToken is the opaque bearer this service holds on behalf of an operator when
// talking to the master. It is never returned to the browser; it travels inside a
// SessionToken's MasterTokenBlob.
type MasterToken struct {
	Token string `json:"token" bson:"token"`
	Start int64  `json:"start" bson:"start"`   // epoch seconds, issue time
	Expire int64 `json:"expire" bson:"expire"` // epoch seconds, master-declared expiry
	UserID string `json:"userId" bson:"userId"`
	Eauth  string `json:"eauth" bson:"eauth"`
}

const (
	masterTokenExpirySkew = 5 * time.Second
	masterTokenMaturity   = 600 * time.Second
)

// Expired reports whether the token is past its master-declared expiry, adjusted by a
// 5-second skew window so that a token about to expire is treated as already expired.
func (m *MasterToken) Expired(now time.Time) bool {
	return now.After(time.Unix(m.Expire, 0).Add(-masterTokenExpirySkew))
}

// Matured reports whether the token has existed long enough (10 minutes) that a 401
// response from the master is trusted as "this token is stale" rather than "this token
// was bad from the start" — renewal is only attempted on matured tokens.
func (m *MasterToken) Matured(now time.Time) bool {
	return now.After(time.Unix(m.Start, 0).Add(masterTokenMaturity))
}

// SessionToken is the opaque bearer issued by this service to an operator's browser.
type SessionToken struct {
	ID              string     `json:"id" bson:"_id"`
	UserID          string     `json:"userId" bson:"userId"`
	IssuedAt        time.Time  `json:"issuedAt" bson:"issuedAt"`
	MasterTokenBlob string     `json:"-" bson:"masterTokenBlob,omitempty"`
}

// Expired reports whether the session has outlived the configured session lifespan.
func (s *SessionToken) Expired(now time.Time, lifespan time.Duration) bool {
	return !s.IssuedAt.Add(lifespan).After(now)
}

// AuthStatus is the result of a successful session validation, attached to the request
// context by the auth middleware.
type AuthStatus struct {
	UserID      string
	Perms       string
	TokenID     string
	MasterToken *MasterToken
}

// Minion is the materialized view of one fleet host.
type Minion struct {
	ID         string    `json:"id" bson:"_id"`
	LastSeen   time.Time `json:"lastSeen" bson:"lastSeen"`
	Grains     string    `json:"grains,omitempty" bson:"grains,omitempty"`
	Pillars    string    `json:"pillars,omitempty" bson:"pillars,omitempty"`
	Pkgs       string    `json:"pkgs,omitempty" bson:"pkgs,omitempty"`
	Conformity string    `json:"conformity,omitempty" bson:"conformity,omitempty"`
	ConformitySuccess   int `json:"conformitySuccess" bson:"conformitySuccess"`
	ConformityIncorrect int `json:"conformityIncorrect" bson:"conformityIncorrect"`
	ConformityError     int `json:"conformityError" bson:"conformityError"`
	OsType     string     `json:"osType,omitempty" bson:"osType,omitempty"`

	LastUpdatedGrains     *time.Time `json:"lastUpdatedGrains,omitempty" bson:"lastUpdatedGrains,omitempty"`
	LastUpdatedPillars    *time.Time `json:"lastUpdatedPillars,omitempty" bson:"lastUpdatedPillars,omitempty"`
	LastUpdatedPkgs       *time.Time `json:"lastUpdatedPkgs,omitempty" bson:"lastUpdatedPkgs,omitempty"`
	LastUpdatedConformity *time.Time `json:"lastUpdatedConformity,omitempty" bson:"lastUpdatedConformity,omitempty"`
}

// MinionUpsertFields is the sparse field set accepted by the Minion Materializer. A nil
// pointer/empty string means "field not present in this call, leave unchanged".
type MinionUpsertFields struct {
	Grains     *string
	Pillars    *string
	Pkgs       *string
	Conformity *string
	ConformitySuccess   *int
	ConformityIncorrect *int
	ConformityError     *int
}

// Event is an immutable record of one ingested master event.
type Event struct {
	ID        string    `json:"id" bson:"_id"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Tag       string    `json:"tag" bson:"tag"`
	Data      string    `json:"data" bson:"data"`
}

// Job records one master-issued job id this service is aware of.
type Job struct {
	ID        string    `json:"id" bson:"_id"`
	Jid       string    `json:"jid" bson:"jid"`
	User      string    `json:"user,omitempty" bson:"user,omitempty"`
	EventID   string    `json:"eventId,omitempty" bson:"eventId,omitempty"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// JobReturn links one minion's per-job result back to its originating Job and Event.
type JobReturn struct {
	ID      string `json:"id" bson:"_id"`
	JobID   string `json:"jobId" bson:"jobId"`
	EventID string `json:"eventId" bson:"eventId"`
	MinionID string `json:"minionId" bson:"minionId"`
}

// MinionPreset is a named, saved Filter expression (see internal/filter).
type MinionPreset struct {
	ID     string `json:"id" bson:"_id"`
	Name   string `json:"name" bson:"name"`
	Filter string `json:"filter" bson:"filter"` // JSON-encoded []filter.Filter
}

// MinionKey mirrors the master's view of a pending/accepted/rejected/denied key.
type MinionKey struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Finger string `json:"finger,omitempty"`
}
