package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/hrm-scheduler/internal/adapters/authroles"
	"github.com/target/hrm-scheduler/internal/adapters/devauth"
	"github.com/target/hrm-scheduler/internal/domain/catalog"
	"github.com/target/hrm-scheduler/internal/service"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func newTestRouter(t *testing.T, auth Auth, db Pinger) (http.Handler, *fakeTrigger, *fakePurger) {
	t.Helper()
	trigger := &fakeTrigger{resp: &service.TriggerResponse{Success: true, JobName: catalog.ConfigActivation}}
	purger := &fakePurger{deleted: 2}
	auth.Logger = discardLogger()
	router := NewRouter(RouterServices{
		Catalog:  catalog.Default(),
		Trigger:  trigger,
		Runs:     &fakeRuns{},
		Purger:   purger,
		Auth:     auth,
		DB:       db,
		Location: ist,
		Logger:   discardLogger(),
	})
	return router, trigger, purger
}

func TestRouter_RoleEnforcement(t *testing.T) {
	router, _, _ := newTestRouter(t, testAuth(), nil)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		token      string
		wantStatus int
	}{
		{name: "user lists jobs", method: http.MethodGet, path: "/api/jobs", token: "user-token", wantStatus: http.StatusOK},
		{name: "user lists runs", method: http.MethodGet, path: "/api/jobs/runs", token: "user-token", wantStatus: http.StatusOK},
		{name: "user reads stats", method: http.MethodGet, path: "/api/jobs/stats", token: "user-token", wantStatus: http.StatusOK},
		{name: "user cannot trigger", method: http.MethodPost, path: "/api/jobs/trigger", body: `{"jobName":"CONFIG_ACTIVATION"}`, token: "user-token", wantStatus: http.StatusForbidden},
		{name: "user cannot purge", method: http.MethodDelete, path: "/api/jobs/runs", token: "user-token", wantStatus: http.StatusForbidden},
		{name: "admin triggers", method: http.MethodPost, path: "/api/jobs/trigger", body: `{"jobName":"CONFIG_ACTIVATION"}`, token: "admin-token", wantStatus: http.StatusOK},
		{name: "admin purges", method: http.MethodDelete, path: "/api/jobs/runs?olderThanDays=30", token: "admin-token", wantStatus: http.StatusOK},
		{name: "anonymous rejected", method: http.MethodGet, path: "/api/jobs", wantStatus: http.StatusUnauthorized},
		{name: "health is public", method: http.MethodGet, path: "/healthz", wantStatus: http.StatusOK},
		{name: "wrong method", method: http.MethodPut, path: "/api/jobs/trigger", token: "admin-token", wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.token != "" {
				r.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}
}

func TestRouter_TriggerRecordsActor(t *testing.T) {
	router, trigger, _ := newTestRouter(t, testAuth(), nil)

	r := httptest.NewRequest(http.MethodPost, "/api/jobs/trigger", strings.NewReader(`{"jobName":"config_activation","dryRun":true}`))
	r.Header.Set("Authorization", "Bearer admin-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	req := trigger.last()
	assert.Equal(t, "admin-1", req.CreatedBy)
	assert.True(t, req.DryRun)
}

func TestRouter_DevAuth(t *testing.T) {
	dev, err := devauth.NewVerifier(devauth.Config{UserID: "dev-user", Email: "dev@example.com", Groups: []string{"hr-admins"}})
	require.NoError(t, err)
	router, trigger, purger := newTestRouter(t, Auth{
		Verifier: dev,
		Roles:    authroles.StaticRoleMapper{AdminGroup: "hr-admins"},
	}, nil)

	r := httptest.NewRequest(http.MethodPost, "/api/jobs/trigger", strings.NewReader(`{"jobName":"CONFIG_ACTIVATION"}`))
	r.Header.Set("Authorization", "Bearer dev")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dev-user", trigger.last().CreatedBy)

	r = httptest.NewRequest(http.MethodDelete, "/api/jobs/runs", nil)
	r.Header.Set("Authorization", "Bearer dev")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 30, purger.days)
}

func TestRouter_Readiness(t *testing.T) {
	healthy, _, _ := newTestRouter(t, Auth{}, pingerFunc(func(context.Context) error { return nil }))
	w := httptest.NewRecorder()
	healthy.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	down, _, _ := newTestRouter(t, Auth{}, pingerFunc(func(context.Context) error { return errors.New("dial tcp: refused") }))
	w = httptest.NewRecorder()
	down.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "unavailable")
}

func TestHealthHandlerHEAD(t *testing.T) {
	req := httptest.NewRequest(http.MethodHead, "/healthz", nil)
	rec := httptest.NewRecorder()

	healthHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body for HEAD, got %q", rec.Body.String())
	}
}
