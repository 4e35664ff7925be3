// Package directory implements the DirectoryClient (§4.5): authentication and lookup
// against an external LDAP/Active Directory server, used both for directory-login and
// for the Directory Sync Reconciler's membership reconciliation.
package directory

import (
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/go-ldap/go-ldap/v3"

	"github.com/fleetward/fleetward/internal/models"
)

// User is one directory entry resolved by the client: ref is the entry's DN, the stable
// identifier stored on models.User.DirectoryRef / models.PermissionGroup.DirectoryRef.
type User struct {
	Ref        string
	Username   string
	Email      string
	GroupRefs  []string
}

// Config controls the LDAP connection and the attribute/filter templates used to resolve
// directory users. UserFilter must contain exactly one "%s" placeholder for the username.
type Config struct {
	URL             string
	StartTLS        bool
	InsecureSkipVerify bool
	BindDN          string
	BindPassword    string
	BaseDN          string
	UserAttribute   string
	UserFilter      string
}

const (
	emailAttribute = "mail"
	groupAttribute = "memberOf"
)

// Client is the DirectoryClient consumed by internal/token and internal/directorysync.
type Client interface {
	Authenticate(username, password string) (*User, error)
	LookupByUsername(username string) (*User, error)
	LookupByRefs(refs []string) ([]User, error)
}

// LDAPClient is the concrete, go-ldap-backed Client.
type LDAPClient struct {
	cfg Config
}

// NewLDAPClient validates cfg and returns a ready Client.
func NewLDAPClient(cfg Config) (*LDAPClient, error) {
	if !strings.Contains(cfg.UserFilter, "%s") {
		return nil, models.NewAPIError(models.KindInternalError, "directory user filter must contain a %s placeholder")
	}
	return &LDAPClient{cfg: cfg}, nil
}

var _ Client = (*LDAPClient)(nil)

func (c *LDAPClient) dial() (*ldap.Conn, error) {
	var conn *ldap.Conn
	var err error
	if c.cfg.InsecureSkipVerify {
		conn, err = ldap.DialURL(c.cfg.URL, ldap.DialWithTLSConfig(&tls.Config{InsecureSkipVerify: true}))
	} else {
		conn, err = ldap.DialURL(c.cfg.URL)
	}
	if err != nil {
		return nil, models.WrapAPIError(models.KindUpstreamUnavailable, "failed to connect to directory server", err)
	}
	if c.cfg.StartTLS {
		tlsCfg := &tls.Config{InsecureSkipVerify: c.cfg.InsecureSkipVerify}
		if err := conn.StartTLS(tlsCfg); err != nil {
			conn.Close()
			return nil, models.WrapAPIError(models.KindUpstreamUnavailable, "directory StartTLS failed", err)
		}
	}
	return conn, nil
}

func (c *LDAPClient) systemConn() (*ldap.Conn, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	if err := conn.Bind(c.cfg.BindDN, c.cfg.BindPassword); err != nil {
		conn.Close()
		return nil, models.WrapAPIError(models.KindUpstreamUnavailable, "directory service-account bind failed", err)
	}
	return conn, nil
}

// lookup runs each filter against the base DN with a system connection, returning at most
// one User per filter (the entry's first match, matching the reference client's behavior).
func (c *LDAPClient) lookup(filters []string) ([]User, error) {
	conn, err := c.systemConn()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var users []User
	for _, filter := range filters {
		req := ldap.NewSearchRequest(
			c.cfg.BaseDN,
			ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
			filter,
			[]string{c.cfg.UserAttribute, emailAttribute, groupAttribute},
			nil,
		)
		result, err := conn.Search(req)
		if err != nil {
			return nil, models.WrapAPIError(models.KindUpstreamUnavailable, "directory search failed", err)
		}
		if len(result.Entries) == 0 {
			continue
		}
		entry := result.Entries[0]
		users = append(users, User{
			Ref:       entry.DN,
			Username:  entry.GetAttributeValue(c.cfg.UserAttribute),
			Email:     entry.GetAttributeValue(emailAttribute),
			GroupRefs: entry.GetAttributeValues(groupAttribute),
		})
	}
	return users, nil
}

func (c *LDAPClient) LookupByUsername(username string) (*User, error) {
	filter := strings.ReplaceAll(c.cfg.UserFilter, "%s", ldap.EscapeFilter(username))
	users, err := c.lookup([]string{filter})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

func (c *LDAPClient) LookupByRefs(refs []string) ([]User, error) {
	filters := make([]string, len(refs))
	for i, ref := range refs {
		filters[i] = fmt.Sprintf("(distinguishedName=%s)", ldap.EscapeFilter(ref))
	}
	return c.lookup(filters)
}

// Authenticate resolves username to its DN via the service account, then re-binds as that
// DN with password; a bind failure is reported as "not found", not surfaced as an error,
// matching the reference client's fail-closed behavior.
func (c *LDAPClient) Authenticate(username, password string) (*User, error) {
	user, err := c.LookupByUsername(username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.Bind(user.Ref, password); err != nil {
		return nil, nil
	}
	return user, nil
}
