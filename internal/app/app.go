// Package app builds the pan storage object graph from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/prn-tf/pan-storage/internal/cache/memory"
	"github.com/prn-tf/pan-storage/internal/config"
	"github.com/prn-tf/pan-storage/internal/handler"
	"github.com/prn-tf/pan-storage/internal/lock"
	"github.com/prn-tf/pan-storage/internal/metrics"
	"github.com/prn-tf/pan-storage/internal/pkg/crypto"
	"github.com/prn-tf/pan-storage/internal/pkg/idgen"
	"github.com/prn-tf/pan-storage/internal/repository"
	"github.com/prn-tf/pan-storage/internal/repository/postgres"
	redisrepo "github.com/prn-tf/pan-storage/internal/repository/redis"
	"github.com/prn-tf/pan-storage/internal/repository/sqlite"
	"github.com/prn-tf/pan-storage/internal/service"
	"github.com/prn-tf/pan-storage/internal/storage"
	"github.com/prn-tf/pan-storage/internal/storage/fastdfs"
	"github.com/prn-tf/pan-storage/internal/storage/local"
	"github.com/prn-tf/pan-storage/internal/storage/objectstore"
)

// KeyPrefix namespaces every Redis key written by pan storage.
const KeyPrefix = "pan:"

// ErrMissingSecret is returned when ids.secret is not configured.
var ErrMissingSecret = errors.New("ids.secret is required")

// App holds the wired components of a pan storage process.
type App struct {
	Config *config.Config

	DB     repository.Database
	Repos  repository.Repositories
	Engine storage.Engine
	Cache  repository.Cache
	Locker lock.Locker

	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	IDs    *idgen.Generator
	Cipher *crypto.IDCipher

	Reporter *service.ErrorReporter
	Files    *service.FileService
	Chunks   *service.ChunkService
	Janitor  *service.ChunkJanitor

	logger  zerolog.Logger
	closers []func() error
}

// New opens every backend named by cfg and wires the services.
// The database schema is migrated before New returns. On failure every
// backend opened so far is closed again.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	logger.Info().
		Str("database", cfg.Database.Driver).
		Str("storage", cfg.Storage.Backend).
		Bool("redis", cfg.Redis.Enabled).
		Int64("worker_id", a.IDs.WorkerID()).
		Int64("datacenter_id", a.IDs.DatacenterID()).
		Msg("application initialized")

	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg, logger := a.Config, a.logger

	var err error
	a.Cipher, err = NewCipher(cfg.IDs)
	if err != nil {
		return err
	}
	a.IDs = NewIDGenerator(cfg.IDs)

	a.DB, a.Repos, err = OpenDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.DB.Close)

	if err := a.DB.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	a.Engine, err = NewEngine(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}

	if err := a.openCoordination(ctx); err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		a.Registry, err = metrics.NewRegistry(a.Metrics)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	a.Reporter = service.NewErrorReporter(a.Repos.ErrorLog, a.IDs, logger)
	a.Files = service.NewFileService(service.FileServiceDeps{
		Files:    a.Repos.PhysicalFile,
		Cache:    a.Cache,
		Engine:   a.Engine,
		IDs:      a.IDs,
		Cipher:   a.Cipher,
		Reporter: a.Reporter,
		Metrics:  a.Metrics,
	}, logger)
	a.Chunks = service.NewChunkService(service.ChunkServiceDeps{
		Chunks:   a.Repos.FileChunk,
		Files:    a.Files,
		Engine:   a.Engine,
		IDs:      a.IDs,
		Locker:   a.Locker,
		Reporter: a.Reporter,
		Metrics:  a.Metrics,
		ChunkTTL: cfg.Storage.ChunkExpiration(),
	}, logger)
	a.Janitor = service.NewChunkJanitor(a.Repos.FileChunk, a.Engine, a.Locker, a.Metrics, logger, service.JanitorConfig{
		Interval:  cfg.GC.Interval,
		BatchSize: cfg.GC.BatchSize,
		DryRun:    cfg.GC.DryRun,
	})
	return nil
}

// openCoordination selects the cache and locker: Redis when enabled,
// process-local otherwise.
func (a *App) openCoordination(ctx context.Context) error {
	if !a.Config.Redis.Enabled {
		c := memory.NewCache()
		l := lock.NewMemoryLocker()
		a.Cache, a.Locker = c, l
		a.closers = append(a.closers,
			func() error { c.Stop(); return nil },
			func() error { l.Close(); return nil },
		)
		return nil
	}

	client, err := redisrepo.NewClient(ctx, a.Config.Redis, a.logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, client.Close)
	a.Cache = redisrepo.NewCache(client, KeyPrefix)
	a.Locker = lock.NewRedisLocker(client, KeyPrefix)
	return nil
}

// Router returns the HTTP handler of the server.
func (a *App) Router() http.Handler {
	cfg := handler.RouterConfig{
		FileHandler: handler.NewFileHandler(a.Files, a.logger),
		Health:      a.DB,
		Logger:      a.logger,
	}
	if a.Registry != nil {
		cfg.Metrics = metrics.Handler(a.Registry)
		cfg.MetricsPath = a.Config.Metrics.Path
	}
	return handler.NewRouter(cfg).Handler()
}

// Close releases every opened backend in reverse order.
// It is safe to call on a nil App and more than once.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// =============================================================================
// Component constructors
// =============================================================================

// OpenDatabase opens the configured metadata store without migrating it.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (repository.Database, repository.Repositories, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := postgres.NewDB(ctx, cfg, logger)
		if err != nil {
			return nil, repository.Repositories{}, err
		}
		return db, repository.Repositories{
			PhysicalFile: postgres.NewPhysicalFileRepository(db),
			FileChunk:    postgres.NewFileChunkRepository(db),
			ErrorLog:     postgres.NewErrorLogRepository(db),
		}, nil

	case "sqlite":
		db, err := sqlite.NewDB(ctx, sqlite.Config{
			Path:            cfg.Path,
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			JournalMode:     cfg.JournalMode,
			BusyTimeout:     cfg.BusyTimeout,
			CacheSize:       cfg.CacheSize,
			SynchronousMode: cfg.SynchronousMode,
		}, logger)
		if err != nil {
			return nil, repository.Repositories{}, err
		}
		return db, repository.Repositories{
			PhysicalFile: sqlite.NewPhysicalFileRepository(db),
			FileChunk:    sqlite.NewFileChunkRepository(db),
			ErrorLog:     sqlite.NewErrorLogRepository(db),
		}, nil

	default:
		return nil, repository.Repositories{}, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewEngine opens the configured storage backend.
func NewEngine(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (storage.Engine, error) {
	switch cfg.Backend {
	case config.BackendLocal:
		return local.New(local.Config{
			RootFilePath:  cfg.Local.RootFilePath,
			RootChunkPath: cfg.Local.RootChunkPath,
		}, logger)

	case config.BackendS3:
		s3cfg := objectstore.Config{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			FilePrefix:      cfg.S3.FilePrefix,
			ChunkPrefix:     cfg.S3.ChunkPrefix,
		}
		client, err := objectstore.NewClient(ctx, s3cfg)
		if err != nil {
			return nil, err
		}
		return objectstore.New(client, s3cfg, logger), nil

	case config.BackendFastDFS:
		return fastdfs.New(fastdfs.Config{
			Trackers: cfg.FastDFS.Trackers,
			Group:    cfg.FastDFS.Group,
		}, logger), nil

	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

// NewCipher builds the id obfuscation cipher from ids.secret.
func NewCipher(cfg config.IDConfig) (*crypto.IDCipher, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	return crypto.NewIDCipherFromSecret(cfg.Secret)
}

// NewIDGenerator builds the snowflake generator. Negative ids keep the
// values derived from the network interfaces.
func NewIDGenerator(cfg config.IDConfig) *idgen.Generator {
	var opts []idgen.Option
	if cfg.WorkerID >= 0 {
		opts = append(opts, idgen.WithWorkerID(cfg.WorkerID))
	}
	if cfg.DatacenterID >= 0 {
		opts = append(opts, idgen.WithDatacenterID(cfg.DatacenterID))
	}
	return idgen.New(opts...)
}
