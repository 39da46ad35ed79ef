package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/andrescamacho/takaro-connector/internal/adapters/api"
	"github.com/andrescamacho/takaro-connector/internal/adapters/auth"
	"github.com/andrescamacho/takaro-connector/internal/adapters/persistence"
	queueadapter "github.com/andrescamacho/takaro-connector/internal/adapters/queue"
	"github.com/andrescamacho/takaro-connector/internal/adapters/sandbox"
	"github.com/andrescamacho/takaro-connector/internal/adapters/secrets"
	appexec "github.com/andrescamacho/takaro-connector/internal/application/execution"
	"github.com/andrescamacho/takaro-connector/internal/domain/execution"
	domainqueue "github.com/andrescamacho/takaro-connector/internal/domain/queue"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
	"github.com/andrescamacho/takaro-connector/internal/infrastructure/config"
	"github.com/andrescamacho/takaro-connector/internal/infrastructure/database"
	"github.com/andrescamacho/takaro-connector/internal/infrastructure/logging"
)

// app bundles what every database-backed command needs
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *gorm.DB
	clock    shared.Clock
	closeLog func() error
}

func loadApp() (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &app{cfg: cfg, logger: logger, db: db, clock: shared.NewRealClock(), closeLog: closeLog}, nil
}

func (a *app) Close() {
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("failed to close database", "error", err)
	}
	_ = a.closeLog()
}

// repositories holds the GORM repositories over the app's database
type repositories struct {
	GameServers *persistence.GormGameServerRepository
	Functions   *persistence.GormFunctionRepository
	Assignments *persistence.GormAssignmentRepository
	Modules     *persistence.GormModuleRepository
	Events      *persistence.GormEventRepository
	Executions  *persistence.GormExecutionRepository
}

func (a *app) repositories() (*repositories, error) {
	identity, err := secrets.LoadIdentity(a.cfg.Secrets.Identity, a.cfg.Secrets.IdentityFile)
	if err != nil {
		return nil, err
	}
	sealer, err := secrets.NewAgeSealer(identity)
	if err != nil {
		return nil, err
	}

	return &repositories{
		GameServers: persistence.NewGormGameServerRepository(a.db, sealer, a.clock),
		Functions:   persistence.NewGormFunctionRepository(a.db),
		Assignments: persistence.NewGormAssignmentRepository(a.db),
		Modules:     persistence.NewGormModuleRepository(a.db, a.clock),
		Events:      persistence.NewGormEventRepository(a.db, a.clock),
		Executions:  persistence.NewGormExecutionRepository(a.db),
	}, nil
}

// newBackend returns the configured queue backend. The redis client is nil
// for the memory backend; callers own closing it.
func (a *app) newBackend() (domainqueue.Backend, *redis.Client, error) {
	q := a.cfg.Queue
	if q.Backend != "redis" {
		return queueadapter.NewMemoryBackend(q.BufferSize, q.MaxAttempts, a.logger.With("component", "queue")), nil, nil
	}

	client, err := queueadapter.NewRedisClient(q.Redis.URL, q.Redis.Addr, q.Redis.Password, q.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	return queueadapter.NewRedisBackend(client, q.Redis.Prefix, q.MaxAttempts, a.logger.With("component", "queue")), client, nil
}

func (a *app) newPlatformClient() *api.PlatformClient {
	return newPlatformClient(a.cfg.Platform, a.clock)
}

func newPlatformClient(cfg config.PlatformConfig, clock shared.Clock) *api.PlatformClient {
	return api.NewPlatformClient(api.ClientOptions{
		BaseURL:           cfg.BaseURL,
		AdminToken:        cfg.AdminToken,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RateLimit.Requests,
		Burst:             cfg.RateLimit.Burst,
		MaxRetries:        cfg.Retry.MaxAttempts,
		BackoffBase:       cfg.Retry.BackoffBase,
		BreakerThreshold:  cfg.CircuitBreaker.Threshold,
		BreakerCoolDown:   cfg.CircuitBreaker.Timeout,
	}, clock)
}

// newTokenSource picks the platform exchange or the local issuer and caches
// tokens per domain until shortly before they expire.
func (a *app) newTokenSource(platform *api.PlatformClient) (execution.TokenSource, error) {
	var source execution.TokenSource = platform
	if a.cfg.Auth.Mode == "local" {
		issuer, err := auth.NewLocalIssuer(a.cfg.Auth.SigningKey, a.cfg.Auth.TokenTTL, a.cfg.Auth.Issuer, a.clock)
		if err != nil {
			return nil, err
		}
		source = issuer
	}
	return auth.NewCachingSource(source, appexec.DefaultTokenMargin, a.clock), nil
}

func (a *app) newRunner(ctx context.Context, platform sandbox.Platform) (sandbox.Runner, error) {
	sb := a.cfg.Sandbox
	switch sb.Mode {
	case "inprocess":
		return sandbox.NewInProcessRunner(platform), nil

	case "lambda":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(sb.Lambda.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		return sandbox.NewLambdaRunner(lambda.NewFromConfig(awsCfg), sandbox.LambdaOptions{
			FunctionPrefix: sb.Lambda.FunctionPrefix,
			RoleARN:        sb.Lambda.RoleARN,
			Runtime:        sb.Lambda.Runtime,
			Handler:        sb.Lambda.Handler,
			MemoryMB:       sb.Lambda.MemoryMB,
			Timeout:        sb.Timeout,
			CodeBucket:     sb.Lambda.CodeBucket,
			CodeKey:        sb.Lambda.CodeKey,
			BaseURL:        a.cfg.Platform.BaseURL,
		}, a.logger.With("component", "lambda")), nil

	default:
		exe := sb.Executable
		if exe == "" {
			self, err := os.Executable()
			if err != nil {
				return nil, fmt.Errorf("failed to locate executable: %w", err)
			}
			exe = self
		}
		return sandbox.NewProcessRunner(exe, nil, a.cfg.Platform.BaseURL)
	}
}
