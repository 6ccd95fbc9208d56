package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/docflow"
	"github.com/aretw0/docflow/internal/config"
	"github.com/aretw0/docflow/internal/telemetry"
	"github.com/aretw0/docflow/pkg/adapters/file"
	loamadapter "github.com/aretw0/docflow/pkg/adapters/loam"
	"github.com/aretw0/docflow/pkg/adapters/memory"
	"github.com/aretw0/docflow/pkg/adapters/process"
	redisadapter "github.com/aretw0/docflow/pkg/adapters/redis"
	"github.com/aretw0/docflow/pkg/adapters/sqlite"
	"github.com/aretw0/docflow/pkg/observability"
	"github.com/aretw0/docflow/pkg/persistence/middleware"
	"github.com/aretw0/docflow/pkg/ports"
	"github.com/aretw0/docflow/pkg/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// lockPrefix namespaces distributed lock keys away from the store's keys.
const lockPrefix = "docflow:lock:"

// Runtime is an engine together with everything its configuration opened.
// Close releases those resources in reverse order.
type Runtime struct {
	Engine   *docflow.Engine
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Logger   *slog.Logger

	closers []func(context.Context) error
}

// NewRuntime builds the engine described by cfg. On error, anything opened so
// far is closed before returning.
func NewRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (rt *Runtime, err error) {
	rt = &Runtime{
		Registry: prometheus.NewRegistry(),
		Logger:   logger,
	}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
			rt = nil
		}
	}()

	rt.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rt.Metrics = observability.NewMetrics(rt.Registry)

	source, err := newSource(cfg.Charts)
	if err != nil {
		return rt, err
	}

	store, client, err := rt.newStore(cfg.Store)
	if err != nil {
		return rt, err
	}
	store, err = secure(store, cfg.Store.Secure)
	if err != nil {
		return rt, err
	}

	tracer, shutdown, err := telemetry.Setup(ctx, telemetry.Options{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return rt, fmt.Errorf("failed to set up telemetry: %w", err)
	}
	rt.closers = append(rt.closers, shutdown)

	tasks, err := newTasks(cfg.Tasks)
	if err != nil {
		return rt, err
	}

	opts := []docflow.Option{
		docflow.WithChartSource(source),
		docflow.WithTasks(tasks),
		docflow.WithStore(store),
		docflow.WithLogger(logger),
		docflow.WithTracer(tracer),
		docflow.WithLifecycleHooks(rt.Metrics.Hooks().Merge(observability.AuditHooks(logger))),
	}

	if cfg.Lock.Distributed {
		if client == nil {
			client = rt.redisClient(cfg.Store.Redis)
		}
		prefix := lockPrefix
		if cfg.Store.Redis.Prefix != "" {
			prefix = cfg.Store.Redis.Prefix + "lock:"
		}
		opts = append(opts,
			docflow.WithLocker(redisadapter.NewLocker(client, prefix)),
			docflow.WithLockTTL(cfg.Lock.TTL),
		)
	}

	rt.Engine, err = docflow.New(cfg.Charts.Dir, opts...)
	if err != nil {
		return rt, fmt.Errorf("failed to initialize engine: %w", err)
	}

	logger.Debug("runtime ready",
		"charts", cfg.Charts.Dir,
		"source", cfg.Charts.Source,
		"store", cfg.Store.Kind,
		"distributed_lock", cfg.Lock.Distributed,
	)
	return rt, nil
}

// Close releases every resource opened by NewRuntime.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// newTasks returns the built-in tasks plus the configured commands.
func newTasks(cfg config.TasksConfig) (*task.Registry, error) {
	reg := task.DefaultRegistry()
	if cfg.File == "" {
		return reg, nil
	}
	commands, err := process.LoadCommands(cfg.File)
	if err != nil {
		return nil, err
	}
	process.NewRunner(process.WithCommands(commands), process.WithBaseDir(cfg.Dir)).Install(reg)
	return reg, nil
}

func newSource(cfg config.ChartsConfig) (ports.ChartSource, error) {
	switch cfg.Source {
	case config.SourceLoam:
		src, err := loamadapter.Open(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open chart repository: %w", err)
		}
		return src, nil
	case config.SourceFile, "":
		abs, err := filepath.Abs(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("invalid chart directory: %w", err)
		}
		return file.NewSource(abs), nil
	}
	return nil, fmt.Errorf("unknown chart source %q", cfg.Source)
}

// newStore opens the configured handle store. The Redis client is returned so
// the distributed lock can share its connection pool.
func (rt *Runtime) newStore(cfg config.StoreConfig) (ports.HandleStore, *redis.Client, error) {
	switch cfg.Kind {
	case config.StoreMemory, "":
		return memory.NewStore(), nil, nil
	case config.StoreFile:
		return file.New(cfg.Path), nil, nil
	case config.StoreRedis:
		client := rt.redisClient(cfg.Redis)
		var opts []redisadapter.Option
		if cfg.Redis.Prefix != "" {
			opts = append(opts, redisadapter.WithPrefix(cfg.Redis.Prefix))
		}
		return redisadapter.NewFromClient(client, opts...), client, nil
	case config.StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		store, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		rt.closers = append(rt.closers, func(context.Context) error { return store.Close() })
		return store, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
}

func (rt *Runtime) redisClient(cfg config.RedisConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	rt.closers = append(rt.closers, func(context.Context) error { return client.Close() })
	return client
}

// secure wraps the store with PII masking and encryption. Masking runs
// first so that encrypted payloads never contain the raw values.
func secure(store ports.HandleStore, cfg config.SecureConfig) (ports.HandleStore, error) {
	var mws []middleware.Middleware
	if len(cfg.PIIPatterns) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.PIIPatterns)
		if err != nil {
			return nil, err
		}
		mws = append(mws, pii)
	}
	if cfg.EncryptionKey != "" {
		active, fallback, err := cfg.EncryptionKeys()
		if err != nil {
			return nil, err
		}
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallback,
		})
		if err != nil {
			return nil, err
		}
		mws = append(mws, enc)
	}
	return middleware.Chain(store, mws...), nil
}
