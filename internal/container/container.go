package container

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/application/service"
	"github.com/garyjia/approval-engine/internal/application/workflow"
	"github.com/garyjia/approval-engine/internal/domain/event"
	"github.com/garyjia/approval-engine/internal/infrastructure/metrics"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
	httpapi "github.com/garyjia/approval-engine/internal/interfaces/http"
	"github.com/garyjia/approval-engine/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	db           *database.DB
	txManager    *sqlite.TxManager
	repositories *RepositoryBundle

	// Infrastructure - External
	messenger port.MessageSender
	metrics   *metrics.Recorder

	// Application
	dispatcher dispatcher.Dispatcher
	engine     workflow.WorkflowEngine
	services   *ServiceBundle

	// Interfaces
	httpServer *httpapi.Server

	// Lifecycle
	mu     sync.RWMutex
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components in dependency order:
// 1. Database, migrations and repositories
// 2. External clients (Lark) and metrics
// 3. Workflow engine and effect dispatcher
// 4. Application services
// 5. HTTP server
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	c.initExternal()
	c.logger.Info("External clients initialized",
		zap.Bool("lark_enabled", c.messenger != nil),
		zap.Bool("metrics_enabled", c.metrics != nil))

	if err := c.initDispatcherAndEngine(); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize dispatcher and engine: %w", err)
	}
	c.logger.Info("Dispatcher and workflow engine initialized")

	if err := c.initServices(); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	c.initHTTP()

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	errs := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors: %w", len(errs), errs[0])
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// teardown releases whatever has been initialized, newest first
func (c *Container) teardown() []error {
	var errs []error

	if c.httpServer != nil {
		if err := c.httpServer.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop http server: %w", err))
		}
		c.httpServer = nil
	}

	// Pending async effects drain before the database closes.
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
		c.dispatcher = nil
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
		c.db = nil
	}

	return errs
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	check := func(name string, initialized bool, probe func() error) {
		if !initialized {
			status.Components[name] = ComponentHealth{Healthy: false, Message: "not initialized"}
			status.Overall = false
			return
		}
		if probe != nil {
			if err := probe(); err != nil {
				status.Components[name] = ComponentHealth{Healthy: false, Message: fmt.Sprintf("check failed: %v", err)}
				status.Overall = false
				return
			}
		}
		status.Components[name] = ComponentHealth{Healthy: true}
	}

	var ping func() error
	if c.db != nil {
		ping = c.db.Ping
	}
	check("database", c.db != nil, ping)
	check("repositories", c.repositories != nil, nil)
	var routes func() error
	if c.dispatcher != nil {
		routes = c.checkEffectRoutes
	}
	check("dispatcher", c.dispatcher != nil, routes)
	check("services", c.services != nil, nil)

	return status
}

// checkEffectRoutes reports effect types that no handler would execute
func (c *Container) checkEffectRoutes() error {
	var missing []string
	for _, t := range event.Types() {
		if len(c.dispatcher.ListHandlers(t)) == 0 {
			missing = append(missing, t.String())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("no handler for %s", strings.Join(missing, ", "))
	}
	return nil
}

// Services returns the application services. Nil before Start.
func (c *Container) Services() *ServiceBundle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.services
}

// Repositories returns the repositories. Nil before Start.
func (c *Container) Repositories() *RepositoryBundle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.repositories
}

// HTTPServer returns the HTTP server adapter. Nil before Start.
func (c *Container) HTTPServer() *httpapi.Server {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.httpServer
}

func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.db = bundle.DB
	c.txManager = bundle.TxManager

	repos, err := ProvideRepositories(c.db, c.logger)
	if err != nil {
		c.teardown()
		return err
	}
	c.repositories = repos
	return nil
}

func (c *Container) initExternal() {
	c.messenger = ProvideMessenger(&c.config.Lark, c.logger)
	c.metrics = ProvideMetrics(&c.config.Metrics)
}

func (c *Container) initDispatcherAndEngine() error {
	disp, err := ProvideDispatcher(&c.config.Dispatcher, c.metrics, c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp
	c.engine = workflow.NewEngine()
	return nil
}

func (c *Container) initServices() error {
	deps := &ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.txManager,
		Engine:     c.engine,
		Dispatcher: c.dispatcher,
		Messenger:  c.messenger,
		Logger:     c.logger,
	}
	if c.metrics != nil {
		deps.Metrics = c.metrics
	}

	services, err := ProvideServices(deps)
	if err != nil {
		return err
	}
	c.services = services
	return nil
}

func (c *Container) initHTTP() {
	var opts []httpapi.Option
	if c.metrics != nil {
		opts = append(opts, httpapi.WithMetrics(c.config.Metrics.Path, c.metrics.GinMiddleware(), c.metrics.Handler()))
	}

	c.httpServer = httpapi.NewServer(
		httpapi.ServerConfig{
			Host:         c.config.Server.Host,
			Port:         c.config.Server.Port,
			ReadTimeout:  c.config.Server.ReadTimeout,
			WriteTimeout: c.config.Server.WriteTimeout,
		},
		httpapi.Services{
			Templates:     c.services.Template,
			Processes:     c.services.Process,
			Audit:         c.services.Audit,
			Notifications: c.services.Notification,
		},
		c.repositories.User,
		newSugarLogger(c.logger),
		opts...,
	)
}

var _ service.EffectExecutor = dispatcher.Dispatcher(nil)
