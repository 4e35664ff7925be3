package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetward/fleetward/internal/config"
	"github.com/fleetward/fleetward/internal/models"
	"github.com/fleetward/fleetward/internal/store"
)

// fakeStore is a minimal in-memory store.Store used only by this package's tests; every
// method not exercised here simply returns a zero value.
type fakeStore struct {
	minions map[string]*models.Minion
	presets map[string]*models.MinionPreset
}

func newFakeStore() *fakeStore {
	return &fakeStore{minions: map[string]*models.Minion{}, presets: map[string]*models.MinionPreset{}}
}

func (f *fakeStore) CreateUser(context.Context, *models.User) error            { return nil }
func (f *fakeStore) ListUsers(context.Context, store.Page) ([]*models.User, error) { return nil, nil }
func (f *fakeStore) GetUserByID(context.Context, string) (*models.User, error) { return nil, nil }
func (f *fakeStore) GetUserByUsername(context.Context, string) (*models.User, error) {
	return nil, nil
}
func (f *fakeStore) UpdateUser(context.Context, *models.User) error { return nil }
func (f *fakeStore) DeleteUser(context.Context, string) error      { return nil }

func (f *fakeStore) CreateSession(context.Context, *models.SessionToken) error { return nil }
func (f *fakeStore) GetSession(context.Context, string) (*models.SessionToken, error) {
	return nil, nil
}
func (f *fakeStore) UpdateSessionMasterToken(context.Context, string, string) error { return nil }
func (f *fakeStore) DeleteSession(context.Context, string) error                   { return nil }

func (f *fakeStore) ListMinions(_ context.Context, _ store.MinionFilter, _ store.MinionSort, _ store.Page) ([]*models.Minion, error) {
	out := make([]*models.Minion, 0, len(f.minions))
	for _, m := range f.minions {
		out = append(out, m)
	}
	return out, nil
}
func (f *fakeStore) GetMinion(_ context.Context, id string) (*models.Minion, error) {
	return f.minions[id], nil
}
func (f *fakeStore) UpsertMinion(context.Context, string, time.Time, models.MinionUpsertFields) error {
	return nil
}
func (f *fakeStore) DeleteMinion(context.Context, string) error          { return nil }
func (f *fakeStore) PruneMinions(context.Context, []string) error        { return nil }
func (f *fakeStore) InsertEvent(context.Context, *models.Event) error     { return nil }
func (f *fakeStore) ListEvents(context.Context, store.Page) ([]*models.Event, error) {
	return nil, nil
}
func (f *fakeStore) GetEvent(context.Context, string) (*models.Event, error) { return nil, nil }
func (f *fakeStore) InsertJob(context.Context, *models.Job) error            { return nil }
func (f *fakeStore) ListJobs(context.Context, store.Page) ([]*models.Job, error) {
	return nil, nil
}
func (f *fakeStore) GetJobByJid(context.Context, string) (*models.Job, error) { return nil, nil }
func (f *fakeStore) InsertJobReturn(context.Context, *models.JobReturn) error { return nil }
func (f *fakeStore) ListJobReturnsByJob(context.Context, string) ([]*models.JobReturn, error) {
	return nil, nil
}
func (f *fakeStore) CreateGroup(context.Context, *models.PermissionGroup) error { return nil }
func (f *fakeStore) ListGroups(context.Context) ([]*models.PermissionGroup, error) {
	return nil, nil
}
func (f *fakeStore) GetGroup(context.Context, string) (*models.PermissionGroup, error) {
	return nil, nil
}
func (f *fakeStore) GetGroupByDirectoryRef(context.Context, string) (*models.PermissionGroup, error) {
	return nil, nil
}
func (f *fakeStore) UpdateGroup(context.Context, *models.PermissionGroup) error   { return nil }
func (f *fakeStore) DeleteGroup(context.Context, string) error                   { return nil }
func (f *fakeStore) AddMembership(context.Context, string, string) error         { return nil }
func (f *fakeStore) RemoveMembership(context.Context, string, string) error      { return nil }
func (f *fakeStore) IsMember(context.Context, string, string) (bool, error)      { return false, nil }
func (f *fakeStore) ListGroupsForUser(context.Context, string) ([]*models.PermissionGroup, error) {
	return nil, nil
}
func (f *fakeStore) ListUsersForGroup(context.Context, string) ([]*models.User, error) {
	return nil, nil
}
func (f *fakeStore) CreatePreset(_ context.Context, p *models.MinionPreset) error {
	f.presets[p.ID] = p
	return nil
}
func (f *fakeStore) ListPresets(context.Context) ([]*models.MinionPreset, error) { return nil, nil }
func (f *fakeStore) GetPreset(_ context.Context, id string) (*models.MinionPreset, error) {
	return f.presets[id], nil
}
func (f *fakeStore) UpdatePreset(context.Context, *models.MinionPreset) error { return nil }
func (f *fakeStore) DeletePreset(context.Context, string) error              { return nil }
func (f *fakeStore) CountMinions(_ context.Context) (int64, error) {
	return int64(len(f.minions)), nil
}
func (f *fakeStore) CountUsers(context.Context) (int64, error) { return 0, nil }

func newTestHandlers(t *testing.T, st *fakeStore) *Handlers {
	t.Helper()
	return &Handlers{
		Config:    &config.Config{App: config.AppConfig{Name: "fleetward", Version: "test"}},
		Store:     st,
		StartedAt: time.Now(),
	}
}

func TestGetStatusReportsOKWithoutAnEventLoop(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newTestHandlers(t, newFakeStore())

	router := gin.New()
	router.GET("/api/status", h.getStatus)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestGetConfigExposesOnlyPublicFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newTestHandlers(t, newFakeStore())
	h.Config.Auth.ForwardAuthEnabled = true

	router := gin.New()
	router.GET("/api/config", h.getConfig)

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"forwardAuthEnabled":true`)
	assert.NotContains(t, w.Body.String(), "serviceToken")
}

func TestResolveFiltersFromSavedPreset(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := newFakeStore()
	st.presets["p1"] = &models.MinionPreset{ID: "p1", Name: "linux-only", Filter: `[{"fieldType":"object","field":"osType","operand":"e","value":"linux"}]`}
	h := newTestHandlers(t, st)

	router := gin.New()
	router.GET("/test", func(c *gin.Context) {
		filters, err := h.resolveFilters(c)
		require.NoError(t, err)
		c.JSON(http.StatusOK, filters)
	})

	req := httptest.NewRequest(http.MethodGet, "/test?preset=p1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "osType")
}

func TestResolveFiltersRejectsUnknownPreset(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newTestHandlers(t, newFakeStore())

	router := gin.New()
	router.GET("/test", func(c *gin.Context) {
		_, err := h.resolveFilters(c)
		if err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test?preset=missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPageFromQueryDefaults(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	var captured store.Page
	router.GET("/test", func(c *gin.Context) {
		captured = pageFromQuery(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, int64(100), captured.Limit)
	assert.Equal(t, int64(0), captured.Offset)
}
