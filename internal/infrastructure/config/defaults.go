package config

import (
	"time"

	"github.com/spf13/viper"
)

// applyDefaults registers a default for every configuration key
func applyDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.type", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "takaro")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "takaro")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "takaro-connector.db")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.pool.max_open", 25)
	v.SetDefault("database.pool.max_idle", 5)
	v.SetDefault("database.pool.max_lifetime", 5*time.Minute)

	// Queue defaults
	v.SetDefault("queue.backend", "memory")
	v.SetDefault("queue.buffer_size", 1024)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.redis.url", "")
	v.SetDefault("queue.redis.addr", "localhost:6379")
	v.SetDefault("queue.redis.password", "")
	v.SetDefault("queue.redis.db", 0)
	v.SetDefault("queue.redis.prefix", "takaro")
	v.SetDefault("queue.workers.events", 4)
	v.SetDefault("queue.workers.commands", 4)
	v.SetDefault("queue.workers.cronjobs", 2)
	v.SetDefault("queue.workers.hooks", 4)
	v.SetDefault("queue.workers.connector", 1)

	// Platform defaults
	v.SetDefault("platform.base_url", "http://localhost:13000")
	v.SetDefault("platform.admin_token", "")
	v.SetDefault("platform.timeout", 30*time.Second)
	v.SetDefault("platform.rate_limit.requests", 20)
	v.SetDefault("platform.rate_limit.burst", 40)
	v.SetDefault("platform.retry.max_attempts", 3)
	v.SetDefault("platform.retry.backoff_base", 500*time.Millisecond)
	v.SetDefault("platform.circuit_breaker.threshold", 5)
	v.SetDefault("platform.circuit_breaker.timeout", 30*time.Second)

	// Auth defaults
	v.SetDefault("auth.mode", "platform")
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl", 5*time.Minute)
	v.SetDefault("auth.issuer", "takaro-connector")

	// Sandbox defaults
	v.SetDefault("sandbox.mode", "process")
	v.SetDefault("sandbox.timeout", 30*time.Second)
	v.SetDefault("sandbox.max_log_lines", 500)
	v.SetDefault("sandbox.executable", "")
	v.SetDefault("sandbox.lambda.region", "eu-west-1")
	v.SetDefault("sandbox.lambda.role_arn", "")
	v.SetDefault("sandbox.lambda.function_prefix", "takaro-fn-")
	v.SetDefault("sandbox.lambda.runtime", "provided.al2023")
	v.SetDefault("sandbox.lambda.handler", "bootstrap")
	v.SetDefault("sandbox.lambda.memory_mb", 256)
	v.SetDefault("sandbox.lambda.code_bucket", "")
	v.SetDefault("sandbox.lambda.code_key", "")

	// Connector defaults
	v.SetDefault("connector.command_prefix", "/")
	v.SetDefault("connector.resync_interval", 5*time.Minute)
	v.SetDefault("connector.shutdown_timeout", 15*time.Second)

	v.SetDefault("secrets.identity", "")
	v.SetDefault("secrets.identity_file", "")

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.region", "eu-west-1")
	v.SetDefault("archive.prefix", "executions/")
	v.SetDefault("archive.endpoint", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "")
	v.SetDefault("logging.include_caller", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.host", "localhost")
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("health.enabled", true)
	v.SetDefault("health.address", "localhost:50061")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.service_name", "takaro-connector")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}
