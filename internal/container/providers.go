package container

import (
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/application/service"
	"github.com/garyjia/approval-engine/internal/application/workflow"
	"github.com/garyjia/approval-engine/internal/domain/event"
	infraLark "github.com/garyjia/approval-engine/internal/infrastructure/external/lark"
	"github.com/garyjia/approval-engine/internal/infrastructure/metrics"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/repository"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/approval-engine/migrations"
	"github.com/garyjia/approval-engine/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB        *database.DB
	TxManager *sqlite.TxManager
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Template     port.TemplateRepository
	Process      port.ProcessRepository
	Audit        port.AuditRepository
	Notification port.NotificationRepository
	User         port.UserRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Template     service.TemplateService
	Process      service.ProcessService
	Audit        service.AuditService
	Notification service.NotificationService
}

// ServiceDeps holds what ProvideServices needs.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Engine     workflow.WorkflowEngine
	Dispatcher dispatcher.Dispatcher
	Messenger  port.MessageSender
	Metrics    service.Metrics
	Logger     *zap.Logger
}

// MigrationSource returns the migrations to apply: the directory when one is
// configured, the embedded set otherwise.
func MigrationSource(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

// ProvideDatabase opens the database and applies pending migrations.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(db, logger)
	if _, err := migrator.RunMigrations(MigrationSource(cfg.MigrationsDir)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:        db,
		TxManager: sqlite.NewTxManager(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Template:     repository.NewTemplateRepository(db.DB, logger),
		Process:      repository.NewProcessRepository(db.DB, logger),
		Audit:        repository.NewAuditRepository(db.DB, logger),
		Notification: repository.NewNotificationRepository(db.DB, logger),
		User:         repository.NewUserRepository(db.DB, logger),
	}, nil
}

// ProvideMessenger creates the Lark messenger, or returns nil when Lark is disabled.
func ProvideMessenger(cfg *LarkConfig, logger *zap.Logger) port.MessageSender {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	client := infraLark.NewSDKClient(infraLark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		BaseURL:   cfg.BaseURL,
	}, logger)
	return infraLark.NewMessenger(client, logger)
}

// ProvideMetrics creates the metrics recorder, or returns nil when disabled.
func ProvideMetrics(cfg *MetricsConfig) *metrics.Recorder {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return metrics.New(true)
}

// ProvideDispatcher creates the effect dispatcher. recorder may be nil.
func ProvideDispatcher(cfg *DispatcherConfig, recorder *metrics.Recorder, logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts := []dispatcher.Option{
		dispatcher.WithLogger(newSugarLogger(logger)),
		dispatcher.WithAsync(cfg != nil && cfg.Async),
	}
	if recorder != nil {
		opts = append(opts, dispatcher.WithResultHook(recorder.EffectResult))
	}
	return dispatcher.NewDispatcher(opts...), nil
}

// ProvideServices creates the application services and subscribes the
// effect handlers they own.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil || deps.Engine == nil || deps.Dispatcher == nil {
		return nil, fmt.Errorf("transaction manager, engine and dispatcher are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	log := newSugarLogger(deps.Logger)
	repos := deps.Repos

	bundle := &ServiceBundle{
		Template: service.NewTemplateService(
			repos.Template, repos.Process, deps.TxManager, deps.Engine, deps.Dispatcher, log),
		Process: service.NewProcessService(
			repos.Template, repos.Process, deps.TxManager, deps.Engine, deps.Dispatcher, deps.Metrics, log),
		Audit: service.NewAuditService(repos.Audit, repos.Process, log),
		Notification: service.NewNotificationService(
			repos.Notification, repos.User, deps.Messenger, log),
	}

	deps.Dispatcher.SubscribeNamed(event.TypeAuditRecord, "audit-log", bundle.Audit.Record)
	deps.Dispatcher.SubscribeNamed(event.TypeNotifyUser, "user-notification", bundle.Notification.HandleNotifyUser)
	deps.Dispatcher.SubscribeNamed(event.TypeNotifyApproverPool, "approver-pool-notification", bundle.Notification.HandleNotifyApproverPool)

	return bundle, nil
}

// sugarLogger adapts zap's SugaredLogger to the (msg, keysAndValues...)
// Logger interfaces declared by the application and HTTP layers.
type sugarLogger struct {
	s *zap.SugaredLogger
}

func newSugarLogger(l *zap.Logger) sugarLogger { return sugarLogger{s: l.Sugar()} }

func (l sugarLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Infow(msg, keysAndValues...)
}

func (l sugarLogger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}
