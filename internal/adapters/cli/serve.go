package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	archiveadapter "github.com/andrescamacho/takaro-connector/internal/adapters/archive"
	gameserveradapter "github.com/andrescamacho/takaro-connector/internal/adapters/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/adapters/grpc"
	"github.com/andrescamacho/takaro-connector/internal/adapters/metrics"
	queueadapter "github.com/andrescamacho/takaro-connector/internal/adapters/queue"
	"github.com/andrescamacho/takaro-connector/internal/adapters/sandbox"
	"github.com/andrescamacho/takaro-connector/internal/application/command"
	"github.com/andrescamacho/takaro-connector/internal/application/common"
	"github.com/andrescamacho/takaro-connector/internal/application/connector"
	"github.com/andrescamacho/takaro-connector/internal/application/cronjob"
	"github.com/andrescamacho/takaro-connector/internal/application/events"
	appexec "github.com/andrescamacho/takaro-connector/internal/application/execution"
	"github.com/andrescamacho/takaro-connector/internal/application/hook"
	"github.com/andrescamacho/takaro-connector/internal/application/trigger"
	"github.com/andrescamacho/takaro-connector/internal/domain/execution"
	domainqueue "github.com/andrescamacho/takaro-connector/internal/domain/queue"
	"github.com/andrescamacho/takaro-connector/internal/infrastructure/database"
	"github.com/andrescamacho/takaro-connector/internal/infrastructure/telemetry"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the connection manager and every queue worker",
		Long: `Start the connector: connect to every enabled game server, forward their
events, match commands and hooks, schedule cron jobs and execute functions.

Runs until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, logger := a.cfg, a.logger

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(a.db); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	repos, err := a.repositories()
	if err != nil {
		return err
	}

	// 1. Queue fabric
	backend, redisClient, err := a.newBackend()
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		if rb, ok := backend.(*queueadapter.RedisBackend); ok {
			recovered, err := rb.Recover(ctx, domainqueue.Names...)
			if err != nil {
				return fmt.Errorf("failed to recover in-flight jobs: %w", err)
			}
			if recovered > 0 {
				logger.Info("requeued jobs left in flight by a previous run", "count", recovered)
			}
		}
	}
	fabric := domainqueue.NewFabric(backend)
	defer fabric.Close()

	// 2. Connection manager
	registry := gameserveradapter.NewRegistry(a.clock, logger)
	manager := connector.NewManager(registry, repos.GameServers, fabric, logger.With("component", "connector"), a.clock)

	// 3. Metrics
	var requestCollector *metrics.RequestMetricsCollector
	var connectorCollector *metrics.ConnectorMetricsCollector
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		connectorCollector = metrics.NewConnectorMetricsCollector(manager)
		executionCollector := metrics.NewExecutionMetricsCollector()
		platformCollector := metrics.NewPlatformMetricsCollector()
		requestCollector = metrics.NewRequestMetricsCollector()
		for _, r := range []interface{ Register() error }{connectorCollector, executionCollector, platformCollector, requestCollector} {
			if err := r.Register(); err != nil {
				return fmt.Errorf("failed to register metrics: %w", err)
			}
		}
		metrics.SetGlobalConnectorCollector(connectorCollector)
		metrics.SetGlobalExecutionCollector(executionCollector)
		metrics.SetGlobalPlatformCollector(platformCollector)
	}

	// 4. Trigger resolution and matching
	resolver := trigger.NewResolver(repos.Assignments, repos.Functions, logger)
	scheduler := cronjob.NewScheduler(repos.Modules, resolver, fabric, logger.With("component", "cron"))
	commands := command.NewService(repos.Modules, repos.GameServers, resolver, fabric, cfg.Connector.CommandPrefix)
	hooks := hook.NewService(repos.Modules, resolver, fabric)

	med := common.NewMediator()
	med.Use(common.LoggingMiddleware())
	if requestCollector != nil {
		med.Use(metrics.PrometheusMiddleware(requestCollector))
	}
	if err := events.RegisterHandlers(med, commands, hooks); err != nil {
		return err
	}

	var relay events.Relay = events.NopRelay{}
	if redisClient != nil {
		relay = queueadapter.NewRedisRelay(redisClient, cfg.Queue.Redis.Prefix)
	}
	router := events.NewRouter(med, repos.Events, relay, logger.With("component", "events"))

	// 5. Execution
	platform := a.newPlatformClient()
	tokens, err := a.newTokenSource(platform)
	if err != nil {
		return err
	}
	runner, err := a.newRunner(ctx, platform)
	if err != nil {
		return err
	}
	executor := sandbox.NewExecutor(runner, sandbox.ExecutorOptions{
		BaseURL:     cfg.Platform.BaseURL,
		Timeout:     cfg.Sandbox.Timeout,
		MaxLogLines: cfg.Sandbox.MaxLogLines,
		Logger:      logger.With("component", "sandbox"),
	})

	var archive execution.LogArchive
	if cfg.Archive.Enabled {
		s3, err := archiveadapter.NewS3Archive(ctx, archiveadapter.S3Config{
			Bucket:   cfg.Archive.Bucket,
			Region:   cfg.Archive.Region,
			Prefix:   cfg.Archive.Prefix,
			Endpoint: cfg.Archive.Endpoint,
		})
		if err != nil {
			return err
		}
		archive = s3
	}
	worker := appexec.NewWorker(repos.Functions, repos.Executions, executor, tokens, archive, a.clock, logger.With("component", "execution"))

	// 6. Workers
	workers := cfg.Queue.Workers
	fabric.RegisterWorker(connector.NewWorker(manager, scheduler.SyncHook), workers.Connector)
	fabric.RegisterWorker(router, workers.Events)
	fabric.RegisterWorker(domainqueue.Only(worker, domainqueue.Commands), workers.Commands)
	fabric.RegisterWorker(domainqueue.Only(worker, domainqueue.CronJobs), workers.CronJobs)
	fabric.RegisterWorker(domainqueue.Only(worker, domainqueue.Hooks), workers.Hooks)

	// 7. Start
	if err := manager.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize connections: %w", err)
	}
	logger.Info("connections initialized", "count", manager.Count())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return fabric.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })

	if connectorCollector != nil {
		connectorCollector.Start(gctx, 15*time.Second)
		defer connectorCollector.Stop()
		server := metrics.NewServer(cfg.Metrics.Host, cfg.Metrics.Port, cfg.Metrics.Path, logger)
		g.Go(func() error { return server.Run(gctx) })
	}

	if cfg.Health.Enabled {
		health, err := grpc.NewHealthServer(cfg.Health.Address, logger.With("component", "health"))
		if err != nil {
			return err
		}
		for _, c := range []string{grpc.ComponentConnector, grpc.ComponentEvents, grpc.ComponentExecutor} {
			health.SetServing(c, true)
		}
		g.Go(func() error { return health.Serve(gctx) })
	}

	if interval := cfg.Connector.ResyncInterval; interval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					scheduler.SyncHook(gctx)
				}
			}
		})
	}

	logger.Info("connector running",
		"queue_backend", cfg.Queue.Backend,
		"sandbox", cfg.Sandbox.Mode,
		"auth", cfg.Auth.Mode)

	runErr := g.Wait()
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Connector.ShutdownTimeout)
	defer cancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Warn("connections did not stop cleanly", "error", err)
	}
	logger.Info("connector stopped")
	return runErr
}
