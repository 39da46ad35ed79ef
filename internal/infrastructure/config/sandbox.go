package config

import "time"

// SandboxConfig selects where user functions run
type SandboxConfig struct {
	// Mode: "process" (child process per job), "inprocess", or "lambda"
	Mode string `mapstructure:"mode" validate:"required,oneof=process inprocess lambda"`

	// Upper bound on a single execution
	Timeout time.Duration `mapstructure:"timeout" validate:"required,gt=0"`

	// Captured log lines kept per execution
	MaxLogLines int `mapstructure:"max_log_lines" validate:"min=1"`

	// Binary re-executed in process mode, defaults to the running executable
	Executable string `mapstructure:"executable"`

	Lambda LambdaConfig `mapstructure:"lambda"`
}

// LambdaConfig configures the remote execution variant
type LambdaConfig struct {
	Region         string `mapstructure:"region"`
	RoleARN        string `mapstructure:"role_arn"`
	FunctionPrefix string `mapstructure:"function_prefix"`
	Runtime        string `mapstructure:"runtime"`
	Handler        string `mapstructure:"handler"`
	MemoryMB       int32  `mapstructure:"memory_mb" validate:"omitempty,min=128"`

	// S3 location of the runtime bundle used when provisioning
	CodeBucket string `mapstructure:"code_bucket"`
	CodeKey    string `mapstructure:"code_key"`
}

// ConnectorConfig tunes the connection manager and command matching
type ConnectorConfig struct {
	// Chat prefix used when a server has no commandPrefix setting
	CommandPrefix string `mapstructure:"command_prefix" validate:"required"`

	// Cron entries are rebuilt on this interval in addition to connector jobs
	ResyncInterval time.Duration `mapstructure:"resync_interval"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required"`
}

// SecretsConfig holds the age identity sealing connection info at rest
type SecretsConfig struct {
	Identity     string `mapstructure:"identity"`
	IdentityFile string `mapstructure:"identity_file"`
}

// ArchiveConfig enables copying execution logs to S3-compatible storage
type ArchiveConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Bucket   string `mapstructure:"bucket" validate:"required_if=Enabled true"`
	Region   string `mapstructure:"region"`
	Prefix   string `mapstructure:"prefix"`
	Endpoint string `mapstructure:"endpoint"`
}
