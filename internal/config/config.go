package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	Auth     AuthConfig     `yaml:"auth"`
	Exam     ExamConfig     `yaml:"exam"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Workers  WorkersConfig  `yaml:"workers"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	Charset            string        `yaml:"charset"`
	ParseTime          bool          `yaml:"parse_time"`
	Loc                string        `yaml:"loc"`
	MaxConnections     int           `yaml:"max_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections"`
	ConnectionLifetime time.Duration `yaml:"connection_lifetime"`
	AutoMigrate        bool          `yaml:"auto_migrate"`
}

type RedisConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Password    string `yaml:"password"`
	DB          int    `yaml:"db"`
	PoolSize    int    `yaml:"pool_size"`
	ImportQueue string `yaml:"import_queue"`
	UnlockQueue string `yaml:"unlock_queue"`
	DLQSuffix   string `yaml:"dlq_suffix"`
	KeyPrefix   string `yaml:"key_prefix"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type AuthConfig struct {
	JWTSecret        string        `yaml:"jwt_secret"`
	Issuer           string        `yaml:"issuer"`
	AccessTTL        time.Duration `yaml:"access_ttl"`
	RefreshTTL       time.Duration `yaml:"refresh_ttl"`
	ActivityInterval time.Duration `yaml:"activity_interval"`
	IdleWindow       time.Duration `yaml:"idle_window"`
	MaxFailedLogins  int           `yaml:"max_failed_logins"`
	LockoutDuration  time.Duration `yaml:"lockout_duration"`
	// sql or redis
	SessionStore string `yaml:"session_store"`
}

type ExamConfig struct {
	Size            int `yaml:"size"`
	DurationMinutes int `yaml:"duration_minutes"`
	LegacyQuota     int `yaml:"legacy_quota"`
}

type GatewayConfig struct {
	BaseURL          string        `yaml:"base_url"`
	SecretKey        string        `yaml:"secret_key"`
	PublishableKey   string        `yaml:"publishable_key"`
	CallbackURL      string        `yaml:"callback_url"`
	WebhookSecret    string        `yaml:"webhook_secret"`
	EnforceSignature bool          `yaml:"enforce_signature"`
	Currency         string        `yaml:"currency"`
	Timeout          time.Duration `yaml:"timeout"`
	RetryAttempts    int           `yaml:"retry_attempts"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
}

type WorkersConfig struct {
	Import    ImportWorkerConfig    `yaml:"import"`
	Unlock    UnlockWorkerConfig    `yaml:"unlock"`
	Reconcile ReconcileWorkerConfig `yaml:"reconcile"`
}

type ImportWorkerConfig struct {
	Count int `yaml:"count"`
}

type UnlockWorkerConfig struct {
	Count       int           `yaml:"count"`
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

type ReconcileWorkerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
	BatchSize  int           `yaml:"batch_size"`
	RunOnStart bool          `yaml:"run_on_start"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads CONFIG_PATH (default config.yaml). A .env file, when present,
// is loaded first so ${VAR} references in the YAML can be resolved.
func Load() (*Config, error) {
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Exam.Size == 0 {
		c.Exam.Size = 20
	}
	if c.Exam.DurationMinutes == 0 {
		c.Exam.DurationMinutes = 30
	}
	if c.Exam.LegacyQuota == 0 {
		c.Exam.LegacyQuota = 5
	}
	if c.Auth.AccessTTL == 0 {
		c.Auth.AccessTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTTL == 0 {
		c.Auth.RefreshTTL = 7 * 24 * time.Hour
	}
	if c.Auth.ActivityInterval == 0 {
		c.Auth.ActivityInterval = time.Minute
	}
	if c.Auth.IdleWindow == 0 {
		c.Auth.IdleWindow = 24 * time.Hour
	}
	if c.Auth.MaxFailedLogins == 0 {
		c.Auth.MaxFailedLogins = 5
	}
	if c.Auth.LockoutDuration == 0 {
		c.Auth.LockoutDuration = 15 * time.Minute
	}
	if c.Auth.SessionStore == "" {
		c.Auth.SessionStore = "sql"
	}
	if c.Gateway.Currency == "" {
		c.Gateway.Currency = "SAR"
	}
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = 30 * time.Second
	}
	if c.Redis.DLQSuffix == "" {
		c.Redis.DLQSuffix = ":dlq"
	}
	if c.Redis.UnlockQueue == "" {
		c.Redis.UnlockQueue = "payments:unlock"
	}
	if c.Redis.ImportQueue == "" {
		c.Redis.ImportQueue = "questions:import"
	}
	if c.Workers.Import.Count == 0 {
		c.Workers.Import.Count = 2
	}
	if c.Workers.Unlock.Count == 0 {
		c.Workers.Unlock.Count = 2
	}
	if c.Workers.Unlock.MaxAttempts == 0 {
		c.Workers.Unlock.MaxAttempts = 5
	}
	if c.Workers.Unlock.RetryDelay == 0 {
		c.Workers.Unlock.RetryDelay = 30 * time.Second
	}
	if c.Workers.Reconcile.Interval == 0 {
		c.Workers.Reconcile.Interval = 10 * time.Minute
	}
	if c.Workers.Reconcile.StaleAfter == 0 {
		c.Workers.Reconcile.StaleAfter = 30 * time.Minute
	}
	if c.Workers.Reconcile.BatchSize == 0 {
		c.Workers.Reconcile.BatchSize = 100
	}
}

func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Auth.SessionStore != "sql" && c.Auth.SessionStore != "redis" {
		return fmt.Errorf("auth.session_store must be sql or redis, got %q", c.Auth.SessionStore)
	}
	if c.Exam.Size < 1 {
		return fmt.Errorf("exam.size must be positive")
	}
	return nil
}

// MySQL DSN format: [username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.Charset, c.Database.ParseTime, c.Database.Loc)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
