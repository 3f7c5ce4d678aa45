package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/health"
	service "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/auth"
	"gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/devicestate"
	jwt "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/jwt"
	rbac "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/rbac"
	"gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/schedule"
	"gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/middleware"
	logger "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Logger"
	metrics "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Metrics"
	api_models "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models/api"
	auth_models "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models/auth"
	notify "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Notify"
	implementation "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Repository/Implementation"
	interfaces "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Repository/Interfaces"
)

const deviceKey = "device-secret"

type testAPI struct {
	router     *gin.Engine
	backend    *implementation.Backend
	adminToken string
	userToken  string
	userID     string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	log := logger.Nop()

	backend := implementation.NewMemoryBackend()
	recorder := metrics.NewRecorder(nil)

	hubCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	hub := notify.NewHub(log, nil)
	go hub.Run(hubCtx)

	jwtService := jwt.NewService(api_models.Config{
		SecretKey: "secret", Issuer: "pinmask-api",
		AccessTokenDuration: time.Minute, RefreshTokenDuration: time.Hour,
	})
	rbacService := rbac.NewService()
	mwConfig := middleware.DefaultConfig()
	mwConfig.DeviceAPIKey = deviceKey
	mw := middleware.NewAuthMiddleware(jwtService, rbacService, mwConfig)

	authService := service.NewAuthService(backend.Users, jwtService, rbacService, 8)
	userService := service.NewUserService(backend.Users, rbacService)
	states := devicestate.NewService(backend.States, notify.NewFanout(log, hub), recorder, 8, log)
	schedules := schedule.NewService(backend.Schedules, clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), log)

	router := gin.New()
	NewAuthController(authService, false).RegisterRoutes(router, mw)
	NewUserController(authService, userService).RegisterRoutes(router, mw)
	NewDeviceStateController(states, hub, log, mw).RegisterRoutes(router)
	NewScheduleController(schedules, mw).RegisterRoutes(router)
	NewHealthController(health.NewHealthChecker(backend.Driver, backend), recorder.Handler()).RegisterRoutes(router)

	_, err := authService.CreateUser(ctx, service.CreateUserRequest{Username: "root", Password: "rootpassword", Role: auth_models.RoleAdmin})
	require.NoError(t, err)
	user, err := authService.CreateUser(ctx, service.CreateUserRequest{Username: "op", Password: "oppassword"})
	require.NoError(t, err)

	api := &testAPI{router: router, backend: backend, userID: user.UserID}
	api.adminToken = api.login(t, "root", "rootpassword")
	api.userToken = api.login(t, "op", "oppassword")
	return api
}

func (a *testAPI) login(t *testing.T, username, password string) string {
	t.Helper()
	rec := a.do(http.MethodPost, "/api/auth/login", "", jsonBody(map[string]string{"username": username, "password": password}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp service.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.AccessToken
}

func (a *testAPI) do(method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func jsonBody(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}

func TestDeviceState_GetLazilyCreatesZeroMask(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/api/devices/esp32-01/state", api.userToken, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0x00, 0x00}, rec.Body.Bytes())
}

func TestDeviceState_PutRoundTrip(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPut, "/api/devices/esp32-01/state", deviceKey, []byte{0x01, 0x02})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte{0x01, 0x02}, rec.Body.Bytes())

	rec = api.do(http.MethodGet, "/api/devices/esp32-01/state", deviceKey, nil)
	assert.Equal(t, []byte{0x01, 0x02}, rec.Body.Bytes())

	state, err := api.backend.States.GetOrCreate(context.Background(), "esp32-01")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0102), state.Bitmask)
}

func TestDeviceState_PostIsAcceptedLikePut(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/api/devices/esp32-01/state", api.userToken, []byte{0xFF, 0xFF})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte{0xFF, 0xFF}, rec.Body.Bytes())
}

func TestDeviceState_WrongLengthLeavesStoreUntouched(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()
	_, err := api.backend.States.Set(ctx, "esp32-01", 0x00F0)
	require.NoError(t, err)

	for _, body := range [][]byte{nil, {0x01}, {0x01, 0x02, 0x03}} {
		rec := api.do(http.MethodPut, "/api/devices/esp32-01/state", api.userToken, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), `"error"`)
	}

	state, err := api.backend.States.GetOrCreate(ctx, "esp32-01")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x00F0), state.Bitmask)
	assert.EqualValues(t, 1, state.Version)
}

func TestDeviceState_InvalidDeviceID(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/api/devices/bad.id/state", api.userToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPut, "/api/devices/bad.id/state", api.userToken, []byte{0, 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeviceState_ApplyPin(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()
	_, err := api.backend.States.Set(ctx, "esp32-01", 0x0001)
	require.NoError(t, err)

	rec := api.do(http.MethodPost, "/api/devices/esp32-01/pins/3", api.userToken, jsonBody(map[string]string{"action": "on"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"device_id":"esp32-01","bitmask":9,"changed":true}`, rec.Body.String())

	rec = api.do(http.MethodPost, "/api/devices/esp32-01/pins/3", api.userToken, jsonBody(map[string]string{"action": "ON"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"device_id":"esp32-01","bitmask":9,"changed":false}`, rec.Body.String())

	rec = api.do(http.MethodPost, "/api/devices/esp32-01/pins/99", api.userToken, jsonBody(map[string]string{"action": "ON"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"device_id":"esp32-01","bitmask":9,"changed":false}`, rec.Body.String())

	rec = api.do(http.MethodPost, "/api/devices/esp32-01/pins/x", api.userToken, jsonBody(map[string]string{"action": "ON"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPost, "/api/devices/esp32-01/pins/1", api.userToken, jsonBody(map[string]string{"action": "TOGGLE"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeviceState_List(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()
	_, err := api.backend.States.Set(ctx, "b-dev", 2)
	require.NoError(t, err)
	_, err = api.backend.States.Set(ctx, "a-dev", 1)
	require.NoError(t, err)

	rec := api.do(http.MethodGet, "/api/devices", api.userToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Devices []struct {
			DeviceID string `json:"device_id"`
			Bitmask  uint16 `json:"bitmask"`
		} `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Devices, 2)
	assert.Equal(t, "a-dev", resp.Devices[0].DeviceID)
	assert.Equal(t, uint16(2), resp.Devices[1].Bitmask)
}

func TestDeviceState_StreamReceivesInitialAndChangedMask(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.router)
	defer srv.Close()

	header := http.Header{"Authorization": []string{"Bearer " + deviceKey}}
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/devices/esp32-01/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	kind, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	assert.Equal(t, []byte{0x00, 0x00}, frame)

	// The initial frame is only written once the stream is registered
	rec := api.do(http.MethodPut, "/api/devices/esp32-01/state", deviceKey, []byte{0x80, 0x01})
	require.Equal(t, http.StatusOK, rec.Code)

	_, frame, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0x01}, frame)
}

func TestDeviceState_StreamRejectsBadIDBeforeUpgrade(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/api/devices/bad.id/stream", deviceKey, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchedules_CreateListDelete(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/api/schedules", api.adminToken, jsonBody(map[string]interface{}{
		"device_id": "esp32-01", "pin_index": 2, "action": "on", "time": "7:00", "note": "porch",
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var entry struct {
		ID        string `json:"id"`
		Time      string `json:"time"`
		Action    string `json:"action"`
		CreatedBy string `json:"created_by"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, "07:00", entry.Time)
	assert.Equal(t, "ON", entry.Action)
	assert.NotEmpty(t, entry.CreatedBy)

	rec = api.do(http.MethodGet, "/api/schedules?device_id=esp32-01", api.userToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), entry.ID)

	rec = api.do(http.MethodGet, "/api/schedules?device_id=other", api.userToken, nil)
	assert.JSONEq(t, `{"schedules":[]}`, rec.Body.String())

	rec = api.do(http.MethodDelete, "/api/schedules/"+entry.ID, api.adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":true}`, rec.Body.String())

	rec = api.do(http.MethodDelete, "/api/schedules/"+entry.ID, api.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSchedules_Validation(t *testing.T) {
	api := newTestAPI(t)

	bad := []map[string]interface{}{
		{"device_id": "esp32-01", "pin_index": 1, "action": "ON", "time": "25:00"},
		{"device_id": "esp32-01", "pin_index": 1, "action": "DIM", "time": "07:00"},
		{"device_id": "esp32-01", "action": "ON", "time": "07:00"},
		{"device_id": "bad id", "pin_index": 1, "action": "ON", "time": "07:00"},
	}
	for _, body := range bad {
		rec := api.do(http.MethodPost, "/api/schedules", api.adminToken, jsonBody(body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	entries, err := api.backend.Schedules.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAuthMatrix(t *testing.T) {
	api := newTestAPI(t)
	create := jsonBody(map[string]interface{}{"device_id": "d1", "pin_index": 0, "action": "ON", "time": "08:00"})

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   []byte
		want   int
	}{
		{"state without credential", http.MethodGet, "/api/devices/d1/state", "", nil, http.StatusUnauthorized},
		{"state with bad token", http.MethodGet, "/api/devices/d1/state", "nope", nil, http.StatusUnauthorized},
		{"state as user", http.MethodGet, "/api/devices/d1/state", api.userToken, nil, http.StatusOK},
		{"state as device", http.MethodGet, "/api/devices/d1/state", deviceKey, nil, http.StatusOK},
		{"list schedules without credential", http.MethodGet, "/api/schedules", "", nil, http.StatusUnauthorized},
		{"list schedules as user", http.MethodGet, "/api/schedules", api.userToken, nil, http.StatusOK},
		{"create schedule as user", http.MethodPost, "/api/schedules", api.userToken, create, http.StatusForbidden},
		{"create schedule as device", http.MethodPost, "/api/schedules", deviceKey, create, http.StatusForbidden},
		{"create schedule as admin", http.MethodPost, "/api/schedules", api.adminToken, create, http.StatusCreated},
		{"delete schedule as user", http.MethodDelete, "/api/schedules/x", api.userToken, nil, http.StatusForbidden},
		{"list users as user", http.MethodGet, "/api/users", api.userToken, nil, http.StatusForbidden},
		{"list users as admin", http.MethodGet, "/api/users", api.adminToken, nil, http.StatusOK},
		{"read self as user", http.MethodGet, "/api/users/" + api.userID, api.userToken, nil, http.StatusOK},
		{"read unknown as admin", http.MethodGet, "/api/users/missing", api.adminToken, nil, http.StatusNotFound},
		{"profile as user", http.MethodGet, "/api/auth/profile", api.userToken, nil, http.StatusOK},
		{"profile without credential", http.MethodGet, "/api/auth/profile", "", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestAuth_LoginFailures(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/api/auth/login", "", jsonBody(map[string]string{"username": "op", "password": "wrongpassword"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(http.MethodPost, "/api/auth/login", "", []byte("{"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuth_RefreshFromBody(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/api/auth/login", "", jsonBody(map[string]string{"username": "op", "password": "oppassword"}))
	require.Equal(t, http.StatusOK, rec.Code)
	var login service.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))

	rec = api.do(http.MethodPost, "/api/auth/refresh", "", jsonBody(map[string]string{"refresh_token": login.RefreshToken}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "access_token")

	rec = api.do(http.MethodPost, "/api/auth/refresh", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(http.MethodPost, "/api/auth/refresh", "", jsonBody(map[string]string{"refresh_token": login.AccessToken}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUsers_CreateAndDelete(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/api/users", api.adminToken, jsonBody(map[string]string{"username": "op2", "password": "op2password"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "op2password")

	var user auth_models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))

	rec = api.do(http.MethodPost, "/api/users", api.adminToken, jsonBody(map[string]string{"username": "op2", "password": "op2password"}))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(http.MethodPost, "/api/users", api.adminToken, jsonBody(map[string]string{"username": "op3", "password": "short"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodDelete, "/api/users/"+user.UserID, api.adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(http.MethodDelete, "/api/users/"+user.UserID, api.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUsers_DeactivatedUserCannotLogIn(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPut, "/api/users/"+api.userID+"/active", api.adminToken, jsonBody(map[string]bool{"active": false}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(http.MethodPost, "/api/auth/login", "", jsonBody(map[string]string{"username": "op", "password": "oppassword"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/health/live", "", nil).Code)

	rec := api.do(http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ready"`)

	api.do(http.MethodPut, "/api/devices/d1/state", deviceKey, []byte{0, 1})
	rec = api.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pinmask_state_writes_total{kind="set",source="api"} 1`)
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth_ReadyDegraded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHealthController(health.NewHealthChecker("postgres", downStore{}), nil).RegisterRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(interfaces.ErrNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(interfaces.ErrConflict))
	assert.Equal(t, http.StatusBadRequest, statusFor(devicestate.ErrInvalidDeviceID))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
