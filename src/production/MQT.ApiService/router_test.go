package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	config "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Config"
	container "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Container"
	logger "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Logger"
)

func newTestContainer(t *testing.T, driver string) *container.ApiContainer {
	t.Helper()
	cfg := &config.Config{
		Store: config.StoreConfig{
			Driver:         driver,
			SQLitePath:     filepath.Join(t.TempDir(), "pinmask.db"),
			ConnectTimeout: 5 * time.Second,
			CASMaxRetries:  4,
		},
		Scheduler: config.SchedulerConfig{Enabled: true, Workers: 2},
		Auth: config.AuthConfig{
			JWTSecretKey:         "secret",
			JWTIssuer:            "pinmask-api",
			AccessTokenDuration:  time.Minute,
			RefreshTokenDuration: time.Hour,
			PasswordMinLength:    8,
			Admin:                config.AdminConfig{Username: "admin", Email: "admin@example.com", Password: "adminpassword123"},
		},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:         600,
		},
	}
	ctr := container.NewApiContainerWithConfig(cfg, logger.Nop(), clockwork.NewFakeClock())
	t.Cleanup(func() { _ = ctr.Shutdown(context.Background()) })
	return ctr
}

func TestNewRouter_RegistersRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctr := newTestContainer(t, config.DriverMemory)
	require.NoError(t, initialize(context.Background(), ctr))

	router, err := newRouter(ctr)
	require.NoError(t, err)

	tests := []struct {
		path string
		want int
	}{
		{"/health/live", http.StatusOK},
		{"/health/ready", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/api/devices", http.StatusUnauthorized},
		{"/api/schedules", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		assert.Equal(t, tt.want, rec.Code, tt.path)
	}
}

func TestNewRouter_CORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctr := newTestContainer(t, config.DriverMemory)
	require.NoError(t, initialize(context.Background(), ctr))

	router, err := newRouter(ctr)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewRouter_NoOriginsSkipsCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctr := newTestContainer(t, config.DriverMemory)
	ctr.GetConfig().CORS = config.CORSConfig{}
	require.NoError(t, initialize(context.Background(), ctr))

	var router *gin.Engine
	require.NotPanics(t, func() {
		var err error
		router, err = newRouter(ctr)
		require.NoError(t, err)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMigrateCmd_SQLite(t *testing.T) {
	ctr := newTestContainer(t, config.DriverSQLite)

	require.NoError(t, (&MigrateCmd{}).Run(ctr))
	// Seeding is repeatable
	require.NoError(t, (&MigrateCmd{}).Run(ctr))
}

func TestImportSchedulesCmd(t *testing.T) {
	ctr := newTestContainer(t, config.DriverSQLite)

	file := filepath.Join(t.TempDir(), "schedules.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`schedules:
  - device_id: esp32-01
    pin_index: 0
    action: on
    time: "7:00"
  - device_id: esp32-01
    pin_index: 0
    action: off
    time: "19:30"
`), 0o644))

	require.NoError(t, (&ImportSchedulesCmd{File: file}).Run(ctr))

	schedules, err := ctr.GetScheduleService()
	require.NoError(t, err)
	entries, err := schedules.List(context.Background(), "esp32-01")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "07:00", entries[0].Time)
	assert.Equal(t, importCreatedBy, entries[0].CreatedBy)
}
