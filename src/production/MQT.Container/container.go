package container

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/health"
	service "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/auth"
	"gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/devicestate"
	jwt "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/jwt"
	rbac "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/rbac"
	"gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/schedule"
	"gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/middleware"
	config "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Config"
	logger "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Logger"
	metrics "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Metrics"
	api_models "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models/api"
	notify "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Notify"
	implementation "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Repository/Implementation"
	scheduler "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Scheduler"
)

// ApiContainer manages dependencies for the API service and their lifecycle.
// Components are built on first use.
type ApiContainer struct {
	config *config.Config
	logger *logger.Logger
	clock  clockwork.Clock

	backend   *implementation.Backend
	recorder  *metrics.Recorder
	hub       *notify.Hub
	notifier  *notify.Fanout
	jwt       *jwt.Service
	rbac      *rbac.Service
	auth      *middleware.AuthMiddleware
	states    *devicestate.Service
	schedules *schedule.Service
	scheduler *scheduler.Scheduler

	// Mutex for thread-safe access
	mu sync.Mutex

	// Cleanup functions, run in reverse order
	cleanupFuncs []func() error
}

// NewApiContainer loads configuration from the environment
func NewApiContainer() (*ApiContainer, error) {
	cfg, err := config.LoadApiConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load API configuration: %w", err)
	}

	return NewApiContainerWithConfig(cfg, logger.NewLogger(&cfg.Logging), clockwork.NewRealClock()), nil
}

// NewApiContainerWithConfig builds a container around an existing configuration
func NewApiContainerWithConfig(cfg *config.Config, log *logger.Logger, clock clockwork.Clock) *ApiContainer {
	return &ApiContainer{
		config: cfg,
		logger: log,
		clock:  clock,
	}
}

// GetConfig returns the configuration
func (c *ApiContainer) GetConfig() *config.Config {
	return c.config
}

// GetLogger returns the logger
func (c *ApiContainer) GetLogger() *logger.Logger {
	return c.logger
}

// GetBackend connects to the storage engine selected by STORE_DRIVER
func (c *ApiContainer) GetBackend() (*implementation.Backend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getBackend()
}

func (c *ApiContainer) getBackend() (*implementation.Backend, error) {
	if c.backend != nil {
		return c.backend, nil
	}

	store := c.config.Store
	var backend *implementation.Backend
	switch store.Driver {
	case config.DriverPostgres:
		db, err := health.ConnectPostgresWithTimeout(c.config, store.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		backend = implementation.NewSQLBackend(db, implementation.DialectPostgres)
	case config.DriverSQLite:
		db, err := health.ConnectSQLite(store.SQLitePath, store.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		backend = implementation.NewSQLBackend(db, implementation.DialectSQLite)
	case config.DriverMongo:
		client, err := health.ConnectMongoWithTimeout(store.MongoURI, store.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		backend = implementation.NewMongoBackend(client, store.MongoDB)
	case config.DriverMemory:
		backend = implementation.NewMemoryBackend()
	default:
		return nil, fmt.Errorf("unknown store driver %q", store.Driver)
	}

	c.logger.Logger.Info().Str("driver", backend.Driver).Msg("Storage backend ready")
	c.backend = backend
	c.cleanupFuncs = append(c.cleanupFuncs, backend.Close)
	return backend, nil
}

// InitializeDatabase creates tables or indexes
func (c *ApiContainer) InitializeDatabase(ctx context.Context) error {
	backend, err := c.GetBackend()
	if err != nil {
		return err
	}

	if err := backend.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	c.logger.Info("Database initialized successfully")
	return nil
}

// GetMetrics returns the Prometheus recorder
func (c *ApiContainer) GetMetrics() *metrics.Recorder {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getMetrics()
}

func (c *ApiContainer) getMetrics() *metrics.Recorder {
	if c.recorder == nil {
		c.recorder = metrics.NewRecorder(nil)
	}
	return c.recorder
}

// GetHub returns the websocket hub, running until Shutdown
func (c *ApiContainer) GetHub() *notify.Hub {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getHub()
}

func (c *ApiContainer) getHub() *notify.Hub {
	if c.hub == nil {
		ctx, cancel := context.WithCancel(context.Background())
		c.hub = notify.NewHub(c.logger, c.config.CORS.AllowedOrigins)
		go c.hub.Run(ctx)
		c.cleanupFuncs = append(c.cleanupFuncs, func() error {
			cancel()
			return nil
		})
	}
	return c.hub
}

// GetNotifier returns the fan-out of every enabled change publisher
func (c *ApiContainer) GetNotifier() (*notify.Fanout, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getNotifier()
}

func (c *ApiContainer) getNotifier() (*notify.Fanout, error) {
	if c.notifier != nil {
		return c.notifier, nil
	}

	fanout := notify.NewFanout(c.logger, c.getHub())

	if c.config.MQTT.Enabled {
		publisher, err := notify.NewMQTTPublisher(&c.config.MQTT, c.config.GetMQTTBrokerURL(), c.logger)
		if err != nil {
			return nil, err
		}
		fanout.Add(publisher)
		c.cleanupFuncs = append(c.cleanupFuncs, publisher.Close)
	}

	if c.config.NATS.URL != "" {
		publisher, err := notify.NewNATSPublisher(c.config.NATS.URL, c.config.NATS.SubjectPrefix, c.logger)
		if err != nil {
			return nil, err
		}
		fanout.Add(publisher)
		c.cleanupFuncs = append(c.cleanupFuncs, publisher.Close)
	}

	c.notifier = fanout
	return fanout, nil
}

// GetJWTService returns the token service
func (c *ApiContainer) GetJWTService() *jwt.Service {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getJWTService()
}

func (c *ApiContainer) getJWTService() *jwt.Service {
	if c.jwt == nil {
		c.jwt = jwt.NewService(api_models.Config{
			SecretKey:            c.config.Auth.JWTSecretKey,
			AccessTokenDuration:  c.config.Auth.AccessTokenDuration,
			RefreshTokenDuration: c.config.Auth.RefreshTokenDuration,
			Issuer:               c.config.Auth.JWTIssuer,
		})
	}
	return c.jwt
}

// GetRBACService returns the role registry
func (c *ApiContainer) GetRBACService() *rbac.Service {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getRBACService()
}

func (c *ApiContainer) getRBACService() *rbac.Service {
	if c.rbac == nil {
		c.rbac = rbac.NewService()
	}
	return c.rbac
}

// GetAuthMiddleware returns the gin authentication middleware
func (c *ApiContainer) GetAuthMiddleware() *middleware.AuthMiddleware {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.auth == nil {
		mwConfig := middleware.DefaultConfig()
		mwConfig.DeviceAPIKey = c.config.Auth.DeviceAPIKey
		c.auth = middleware.NewAuthMiddleware(c.getJWTService(), c.getRBACService(), mwConfig)
	}
	return c.auth
}

// GetAuthService returns the login and user creation service
func (c *ApiContainer) GetAuthService() (*service.AuthService, error) {
	backend, err := c.GetBackend()
	if err != nil {
		return nil, err
	}
	return service.NewAuthService(backend.Users, c.GetJWTService(), c.GetRBACService(), c.config.Auth.PasswordMinLength), nil
}

// GetUserService returns the admin user management service
func (c *ApiContainer) GetUserService() (*service.UserService, error) {
	backend, err := c.GetBackend()
	if err != nil {
		return nil, err
	}
	return service.NewUserService(backend.Users, c.GetRBACService()), nil
}

// GetRoleInitializer returns the role and admin seeding service
func (c *ApiContainer) GetRoleInitializer() (*service.RoleInitializerService, error) {
	backend, err := c.GetBackend()
	if err != nil {
		return nil, err
	}
	admin := c.config.Auth.Admin
	return service.NewRoleInitializerService(backend.Roles, backend.Users, c.GetRBACService(), c.logger, service.AdminConfig{
		Username: admin.Username,
		Email:    admin.Email,
		Password: admin.Password,
	}), nil
}

// GetDeviceStateService returns the single writer of device masks
func (c *ApiContainer) GetDeviceStateService() (*devicestate.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getDeviceStateService()
}

func (c *ApiContainer) getDeviceStateService() (*devicestate.Service, error) {
	if c.states != nil {
		return c.states, nil
	}

	backend, err := c.getBackend()
	if err != nil {
		return nil, err
	}
	notifier, err := c.getNotifier()
	if err != nil {
		return nil, err
	}

	c.states = devicestate.NewService(backend.States, notifier, c.getMetrics(), c.config.Store.CASMaxRetries, c.logger)
	return c.states, nil
}

// GetScheduleService returns the schedule store service
func (c *ApiContainer) GetScheduleService() (*schedule.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.schedules != nil {
		return c.schedules, nil
	}
	backend, err := c.getBackend()
	if err != nil {
		return nil, err
	}
	c.schedules = schedule.NewService(backend.Schedules, c.clock, c.logger)
	return c.schedules, nil
}

// GetScheduler returns the minute scheduler; it is stopped on Shutdown
func (c *ApiContainer) GetScheduler() (*scheduler.Scheduler, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.scheduler != nil {
		return c.scheduler, nil
	}
	backend, err := c.getBackend()
	if err != nil {
		return nil, err
	}
	states, err := c.getDeviceStateService()
	if err != nil {
		return nil, err
	}

	s, err := scheduler.New(backend.Schedules, states, c.getMetrics(), c.config.Scheduler.Workers, c.clock, c.logger)
	if err != nil {
		return nil, err
	}
	c.scheduler = s
	c.cleanupFuncs = append(c.cleanupFuncs, s.Stop)
	return s, nil
}

// GetHealthChecker returns a checker that pings the storage backend
func (c *ApiContainer) GetHealthChecker() (*health.HealthChecker, error) {
	backend, err := c.GetBackend()
	if err != nil {
		return nil, err
	}
	return health.NewHealthChecker(backend.Driver, backend), nil
}

// AddCleanupFunc adds a cleanup function
func (c *ApiContainer) AddCleanupFunc(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

// Shutdown gracefully shuts down the container and all its dependencies
func (c *ApiContainer) Shutdown(ctx context.Context) error {
	c.logger.Info("Shutting down container...")

	c.mu.Lock()
	funcs := c.cleanupFuncs
	c.cleanupFuncs = nil
	c.mu.Unlock()

	// Execute cleanup functions in reverse order
	for i := len(funcs) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := funcs[i](); err != nil {
			c.logger.ErrorWithError(err, "Error during cleanup")
		}
	}

	c.logger.Info("Container shutdown complete")
	return nil
}
