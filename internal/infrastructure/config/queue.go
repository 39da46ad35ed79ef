package config

// QueueConfig selects and tunes the queue backend
type QueueConfig struct {
	// Backend: "memory" (single process) or "redis"
	Backend string `mapstructure:"backend" validate:"required,oneof=memory redis"`

	// Channel capacity per queue for the memory backend
	BufferSize int `mapstructure:"buffer_size" validate:"min=1"`

	// Deliveries per job before it is dead-lettered
	MaxAttempts int `mapstructure:"max_attempts" validate:"min=1"`

	Redis   RedisConfig   `mapstructure:"redis"`
	Workers WorkersConfig `mapstructure:"workers"`
}

// RedisConfig holds the redis connection used by the redis backend and relay
type RedisConfig struct {
	// URL takes precedence over Addr/Password/DB, e.g. redis://:pw@host:6379/0
	URL      string `mapstructure:"url"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`

	// Key prefix for every queue list
	Prefix string `mapstructure:"prefix" validate:"required"`
}

// WorkersConfig is the consumer concurrency per queue
type WorkersConfig struct {
	Events    int `mapstructure:"events" validate:"min=1"`
	Commands  int `mapstructure:"commands" validate:"min=1"`
	CronJobs  int `mapstructure:"cronjobs" validate:"min=1"`
	Hooks     int `mapstructure:"hooks" validate:"min=1"`
	Connector int `mapstructure:"connector" validate:"min=1"`
}
