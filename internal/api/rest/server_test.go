package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/KevinKickass/aquanest/internal/apiclient"
	"github.com/KevinKickass/aquanest/internal/auth"
	"github.com/KevinKickass/aquanest/internal/config"
	"github.com/KevinKickass/aquanest/internal/device"
	"github.com/KevinKickass/aquanest/internal/interfaces"
	"github.com/KevinKickass/aquanest/internal/telemetry"
	"github.com/KevinKickass/aquanest/internal/types"
	"github.com/KevinKickass/aquanest/internal/views"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBackend struct {
	err     error
	ponds   []types.Pond
	deleted []int
	created []types.NewPond
}

func (b *fakeBackend) Login(_ context.Context, creds types.Credentials) (*apiclient.LoginResult, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &apiclient.LoginResult{Token: "tok-" + creds.Email}, nil
}

func (b *fakeBackend) Register(context.Context, types.Registration) error { return b.err }

func (b *fakeBackend) ListPonds(context.Context, *auth.Session) ([]types.Pond, error) {
	return b.ponds, b.err
}

func (b *fakeBackend) GetPond(_ context.Context, _ *auth.Session, id int) (*types.Pond, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &types.Pond{ID: id, Nombre: "Estanque"}, nil
}

func (b *fakeBackend) CreatePond(_ context.Context, _ *auth.Session, p types.NewPond) (*types.Pond, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.created = append(b.created, p)
	return &types.Pond{ID: 11, Nombre: p.Nombre}, nil
}

func (b *fakeBackend) DeletePond(_ context.Context, _ *auth.Session, id int) error {
	if b.err != nil {
		return b.err
	}
	b.deleted = append(b.deleted, id)
	return nil
}

func (b *fakeBackend) ListSpecies(context.Context, *auth.Session) ([]types.Species, error) {
	return []types.Species{{ID: 1, Nombre: "Tilapia"}}, b.err
}

func (b *fakeBackend) CreateSpecies(_ context.Context, _ *auth.Session, sp types.NewSpecies) (*types.Species, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &types.Species{ID: 2, Nombre: sp.Nombre}, nil
}

func (b *fakeBackend) GetProfile(_ context.Context, s *auth.Session) (*types.Profile, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &types.Profile{Nombre: "Ana", Email: s.Owner()}, nil
}

func (b *fakeBackend) UpdateProfile(_ context.Context, _ *auth.Session, u types.ProfileUpdate) (*types.Profile, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &types.Profile{Nombre: u.Nombre, Email: "ana"}, nil
}

func (b *fakeBackend) DailyHistory(context.Context, *auth.Session, int, *device.Catalog) ([]apiclient.DayHistory, error) {
	return []apiclient.DayHistory{{Day: "2026-10-01"}}, b.err
}

type fakeNotifier struct{ deleted []int }

func (n *fakeNotifier) PondDeleted(id int) { n.deleted = append(n.deleted, id) }

type fakeLifecycle struct{}

func (fakeLifecycle) GetCurrentStatus() interfaces.SystemStatus {
	return interfaces.SystemStatus{State: "RUNNING", MountedViews: 2}
}

func (fakeLifecycle) Shutdown(context.Context) error { return nil }

type fakeSync struct {
	pondID    int
	toggleErr error
	closed    bool
}

func (f *fakeSync) Start() {}

func (f *fakeSync) Snapshot(context.Context) (telemetry.Snapshot, error) {
	return telemetry.Snapshot{PondID: f.pondID, Loaded: true}, nil
}

func (f *fakeSync) SnapshotTo(ctx context.Context, deliver func(telemetry.Snapshot)) error {
	snap, err := f.Snapshot(ctx)
	if err != nil {
		return err
	}
	deliver(snap)
	return nil
}

func (f *fakeSync) Toggle(_ context.Context, kind device.Kind) (telemetry.ActuatorSnapshot, error) {
	if f.toggleErr != nil {
		return telemetry.ActuatorSnapshot{}, f.toggleErr
	}
	return telemetry.ActuatorSnapshot{Kind: kind.String(), State: telemetry.StatePending}, nil
}

func (f *fakeSync) Reload(context.Context) error { return nil }

func (f *fakeSync) Close(context.Context) error {
	f.closed = true
	return nil
}

type testEnv struct {
	handler  http.Handler
	backend  *fakeBackend
	notifier *fakeNotifier
	views    *views.Manager
	syncs    []*fakeSync
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		backend:  &fakeBackend{ponds: []types.Pond{{ID: 7, Nombre: "Norte"}}},
		notifier: &fakeNotifier{},
	}
	env.views = views.NewManager(func(pondID int, _ *auth.Session, _ func(telemetry.Event)) views.Synchronizer {
		f := &fakeSync{pondID: pondID}
		env.syncs = append(env.syncs, f)
		return f
	}, nil, 0, zap.NewNop())

	s := NewServer(config.ServerConfig{HTTPPort: 8080}, Deps{
		Lifecycle: fakeLifecycle{},
		Backend:   env.backend,
		Views:     env.views,
		Notifier:  env.notifier,
	}, zap.NewNop())
	env.handler = s.Handler()
	return env
}

func (e *testEnv) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.ErrorBody {
	t.Helper()
	var resp types.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodOptions, "/api/v1/ponds", "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/api/v1/ponds", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, types.CodeUnauthenticated, decodeError(t, w).Code)
}

func TestSystemStatus(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/api/v1/system/status", "ana", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"mounted_views":2`)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/auth/login", "", `{"email":"a@b.c","password":"secret"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"token":"tok-a@b.c"`)

	w = env.do(http.MethodPost, "/api/v1/auth/login", "", `{"email":"a@b.c"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterConflict(t *testing.T) {
	env := newTestEnv(t)
	env.backend.err = &apiclient.StatusError{Method: http.MethodPost, Path: "/auth/register", Status: http.StatusConflict, Body: "exists"}

	w := env.do(http.MethodPost, "/api/v1/auth/register", "", `{"nombre":"Ana","email":"a@b.c","password":"longenough"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListPonds(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/api/v1/ponds", "ana", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
	assert.Contains(t, w.Body.String(), `"nombre":"Norte"`)
}

func TestBackendErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unauthenticated", apiclient.ErrUnauthenticated, http.StatusUnauthorized, types.CodeUnauthenticated},
		{"server error", &apiclient.StatusError{Method: "GET", Path: "/estanque", Status: 500, Body: "boom"}, http.StatusBadGateway, types.CodeBackend},
		{"unreachable", fmt.Errorf("%w: dial tcp", apiclient.ErrUnreachable), http.StatusServiceUnavailable, types.CodeUnavailable},
		{"invalid payload", fmt.Errorf("%w: id missing", apiclient.ErrInvalidPayload), http.StatusBadGateway, types.CodeBackend},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, types.CodeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.backend.err = tt.err

			w := env.do(http.MethodGet, "/api/v1/ponds", "ana", "")
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}
}

func TestServerErrorCarriesDetails(t *testing.T) {
	env := newTestEnv(t)
	env.backend.err = &apiclient.StatusError{Method: "GET", Path: "/especie", Status: 500, Body: "boom"}

	w := env.do(http.MethodGet, "/api/v1/species", "ana", "")
	require.Equal(t, http.StatusBadGateway, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "server error: 500", body.Message)
	assert.Equal(t, map[string]any{"status": float64(500), "body": "boom"}, body.Details)
}

func TestInvalidPondID(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/api/v1/ponds/abc", "/api/v1/ponds/-1/history", "/api/v1/ponds/x/views"} {
		method := http.MethodGet
		if strings.HasSuffix(path, "/views") {
			method = http.MethodPost
		}
		w := env.do(method, path, "ana", "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestPondZeroIsAccepted(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/api/v1/ponds/0", "ana", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":0`)

	w = env.do(http.MethodPost, "/api/v1/ponds/0/views", "ana", "")
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, env.syncs, 1)
	assert.Zero(t, env.syncs[0].pondID)
}

func TestCreateSpecies(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodPost, "/api/v1/species", "ana", `{"nombre":"Trucha","temperaturaOptimaMin":12}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"nombre":"Trucha"`)

	w = env.do(http.MethodPost, "/api/v1/species", "ana", `{"temperaturaOptimaMin":12}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProfileRoutes(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/api/v1/me", "ana", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"nombre":"Ana"`)

	w = env.do(http.MethodPatch, "/api/v1/me", "ana", `{"nombre":"Ana María"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"nombre":"Ana María"`)

	w = env.do(http.MethodPatch, "/api/v1/me", "ana", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.backend.err = apiclient.ErrUnauthenticated
	w = env.do(http.MethodGet, "/api/v1/me", "ana", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreatePond(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodPost, "/api/v1/ponds", "ana", `{"nombre":"Sur","especieId":3}`)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, env.backend.created, 1)
	assert.Equal(t, 3, env.backend.created[0].EspecieID)

	w = env.do(http.MethodPost, "/api/v1/ponds", "ana", `{"ubicacion":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeletePondNotifiesAndClosesViews(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodPost, "/api/v1/ponds/7/views", "ana", "")
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(http.MethodDelete, "/api/v1/ponds/7", "ana", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{7}, env.backend.deleted)
	assert.Equal(t, []int{7}, env.notifier.deleted)
	assert.True(t, env.syncs[0].closed)
	assert.Zero(t, env.views.Count())
}

func TestDeletePondFailureSkipsNotice(t *testing.T) {
	env := newTestEnv(t)
	env.backend.err = &apiclient.StatusError{Method: "DELETE", Path: "/estanque/7", Status: 500}

	w := env.do(http.MethodDelete, "/api/v1/ponds/7", "ana", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Empty(t, env.notifier.deleted)
}

func TestPondHistory(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/api/v1/ponds/7/history", "ana", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"pond_id":7`)
}

func mountView(t *testing.T, env *testEnv, token string) string {
	t.Helper()
	w := env.do(http.MethodPost, "/api/v1/ponds/7/views", token, "")
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		ID     string `json:"id"`
		PondID int    `json:"pond_id"`
		Links  struct {
			Live string `json:"live"`
		} `json:"links"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.PondID)
	assert.Equal(t, "/api/v1/views/"+resp.ID+"/live", resp.Links.Live)
	return resp.ID
}

func TestViewLifecycle(t *testing.T) {
	env := newTestEnv(t)
	id := mountView(t, env, "ana")

	w := env.do(http.MethodGet, "/api/v1/views/"+id, "ana", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"loaded":true`)

	w = env.do(http.MethodGet, "/api/v1/views", "ana", "")
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = env.do(http.MethodPost, "/api/v1/views/"+id+"/reload", "ana", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodDelete, "/api/v1/views/"+id, "ana", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, env.syncs[0].closed)

	w = env.do(http.MethodGet, "/api/v1/views/"+id, "ana", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestViewsAreScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	id := mountView(t, env, "ana")

	w := env.do(http.MethodGet, "/api/v1/views/"+id, "bert", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(http.MethodDelete, "/api/v1/views/"+id, "bert", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/api/v1/views/not-a-uuid", "ana", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestToggleActuator(t *testing.T) {
	env := newTestEnv(t)
	id := mountView(t, env, "ana")
	path := "/api/v1/views/" + id + "/actuators/heater/toggle"

	w := env.do(http.MethodPost, path, "ana", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"PENDING"`)

	w = env.do(http.MethodPost, "/api/v1/views/"+id+"/actuators/temperature-sensor/toggle", "ana", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	tests := []struct {
		err    error
		status int
		code   string
	}{
		{telemetry.ErrCommandPending, http.StatusConflict, types.CodeConflict},
		{telemetry.ErrNotConnected, http.StatusServiceUnavailable, types.CodeBrokerOffline},
		{telemetry.ErrUnknownActuator, http.StatusNotFound, types.CodeNotFound},
	}
	for _, tt := range tests {
		env.syncs[0].toggleErr = tt.err
		w = env.do(http.MethodPost, path, "ana", "")
		assert.Equal(t, tt.status, w.Code, tt.err.Error())
		assert.Equal(t, tt.code, decodeError(t, w).Code)
	}
}
