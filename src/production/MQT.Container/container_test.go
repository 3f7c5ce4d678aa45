package container

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	config "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Config"
	logger "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Logger"
	mqtmodels "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models"
	auth_models "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models/auth"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Store:     config.StoreConfig{Driver: config.DriverMemory, CASMaxRetries: 4},
		Scheduler: config.SchedulerConfig{Enabled: true, Workers: 2},
		Auth: config.AuthConfig{
			JWTSecretKey:         "secret",
			JWTIssuer:            "pinmask-api",
			AccessTokenDuration:  time.Minute,
			RefreshTokenDuration: time.Hour,
			PasswordMinLength:    8,
			Admin:                config.AdminConfig{Username: "admin", Password: "adminpassword123"},
		},
	}
}

func TestApiContainer_WiresMemoryBackend(t *testing.T) {
	ctx := context.Background()
	ctr := NewApiContainerWithConfig(memoryConfig(), logger.Nop(), clockwork.NewFakeClock())
	defer ctr.Shutdown(ctx)

	backend, err := ctr.GetBackend()
	require.NoError(t, err)
	again, err := ctr.GetBackend()
	require.NoError(t, err)
	assert.Same(t, backend, again)
	require.NoError(t, ctr.InitializeDatabase(ctx))

	states, err := ctr.GetDeviceStateService()
	require.NoError(t, err)
	result, err := states.ApplyAction(ctx, "esp32-01", 4, mqtmodels.ActionOn, mqtmodels.SourceAPI)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0010), result.State.Bitmask)

	notifier, err := ctr.GetNotifier()
	require.NoError(t, err)
	assert.Equal(t, "fanout", notifier.Name())

	_, err = ctr.GetScheduler()
	require.NoError(t, err)

	checker, err := ctr.GetHealthChecker()
	require.NoError(t, err)
	_, ready := checker.GetHealthStatus(ctx)
	assert.True(t, ready)
}

func TestApiContainer_SeedsRolesAndAdmin(t *testing.T) {
	ctx := context.Background()
	ctr := NewApiContainerWithConfig(memoryConfig(), logger.Nop(), clockwork.NewFakeClock())
	defer ctr.Shutdown(ctx)

	seeder, err := ctr.GetRoleInitializer()
	require.NoError(t, err)
	require.NoError(t, seeder.InitializeRoles(ctx))
	require.NoError(t, seeder.InitializeAdminUser(ctx))

	backend, err := ctr.GetBackend()
	require.NoError(t, err)
	admins, err := backend.Users.GetByRole(ctx, auth_models.RoleAdmin)
	require.NoError(t, err)
	assert.Len(t, admins, 1)
}

func TestApiContainer_ShutdownRunsCleanupInReverse(t *testing.T) {
	ctr := NewApiContainerWithConfig(memoryConfig(), logger.Nop(), clockwork.NewFakeClock())

	var order []int
	ctr.AddCleanupFunc(func() error { order = append(order, 1); return nil })
	ctr.AddCleanupFunc(func() error { order = append(order, 2); return nil })

	require.NoError(t, ctr.Shutdown(context.Background()))
	assert.Equal(t, []int{2, 1}, order)

	// A second shutdown has nothing left to run
	require.NoError(t, ctr.Shutdown(context.Background()))
	assert.Equal(t, []int{2, 1}, order)
}

func TestApiContainer_UnknownDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store.Driver = "redis"
	ctr := NewApiContainerWithConfig(cfg, logger.Nop(), clockwork.NewFakeClock())

	_, err := ctr.GetBackend()
	assert.Error(t, err)
}
