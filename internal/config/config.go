package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	LocalStore LocalStoreConfig `yaml:"local_store"`
	RemoteAPI  RemoteAPIConfig  `yaml:"remote_api"`
	License    LicenseConfig    `yaml:"license"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Storage    StorageConfig    `yaml:"storage"`
	Workers    WorkersConfig    `yaml:"workers"`
	Logging    LoggingConfig    `yaml:"logging"`
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
}

// LocalStoreConfig names the keys of the device-local record collection.
type LocalStoreConfig struct {
	Path           string `yaml:"path"`
	QuotaBytes     int64  `yaml:"quota_bytes"`
	RecordsKey     string `yaml:"records_key"`
	LegacyKey      string `yaml:"legacy_key"`
	LastSyncKey    string `yaml:"last_sync_key"`
	MigratedKey    string `yaml:"migrated_key"`
	PendingPushKey string `yaml:"pending_push_key"`
}

type RemoteAPIConfig struct {
	BaseURL          string        `yaml:"base_url"`
	RecordsEndpoint  string        `yaml:"records_endpoint"`
	LicenseEndpoint  string        `yaml:"license_endpoint"`
	Timeout          time.Duration `yaml:"timeout"`
	PageLimit        int           `yaml:"page_limit"`
	RetryAttempts    int           `yaml:"retry_attempts"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	EntitlementCache time.Duration `yaml:"entitlement_cache"`
}

// LicenseConfig carries the identity of this device. ActivationIDs is only
// read by the reference service to decide entitlement.
type LicenseConfig struct {
	DeviceID       string   `yaml:"device_id"`
	ActivationID   string   `yaml:"activation_id"`
	ActivationIDs  []string `yaml:"activation_ids"`
	DefaultQuota   int      `yaml:"default_quota"`
	RequireLicense bool     `yaml:"require_license"`
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
}

type RedisConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	SyncQueue string `yaml:"sync_queue"`
	DLQSuffix string `yaml:"dlq_suffix"`
}

type StorageConfig struct {
	S3           S3Config `yaml:"s3"`
	RubricPrefix string   `yaml:"rubric_prefix"`
	ImportPrefix string   `yaml:"import_prefix"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type WorkersConfig struct {
	Sync SyncWorkerConfig `yaml:"sync"`
}

type SyncWorkerConfig struct {
	Count int `yaml:"count"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	return LoadFile(configPath)
}

func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills every zero value that has a sensible default.
func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "grading-assistant-core"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	ls := &c.LocalStore
	if ls.Path == "" {
		ls.Path = "grading.db"
	}
	if ls.RecordsKey == "" {
		ls.RecordsKey = "grading_records"
	}
	if ls.LegacyKey == "" {
		ls.LegacyKey = "grading_history"
	}
	if ls.LastSyncKey == "" {
		ls.LastSyncKey = "grading_last_sync_time"
	}
	if ls.MigratedKey == "" {
		ls.MigratedKey = "grading_records_migrated"
	}
	if ls.PendingPushKey == "" {
		ls.PendingPushKey = "grading_pending_push"
	}

	api := &c.RemoteAPI
	if api.RecordsEndpoint == "" {
		api.RecordsEndpoint = "/api/v1/records"
	}
	if api.LicenseEndpoint == "" {
		api.LicenseEndpoint = "/api/v1/license/status"
	}
	if api.Timeout == 0 {
		api.Timeout = 30 * time.Second
	}
	if api.PageLimit == 0 {
		api.PageLimit = 100
	}
	if api.RetryAttempts == 0 {
		api.RetryAttempts = 3
	}
	if api.RetryDelay == 0 {
		api.RetryDelay = time.Second
	}
	if api.EntitlementCache == 0 {
		api.EntitlementCache = 5 * time.Minute
	}

	if c.Redis.SyncQueue == "" {
		c.Redis.SyncQueue = "grading:sync_triggers"
	}
	if c.Redis.DLQSuffix == "" {
		c.Redis.DLQSuffix = ":dlq"
	}
	if c.Storage.RubricPrefix == "" {
		c.Storage.RubricPrefix = "rubrics/"
	}
	if c.Storage.ImportPrefix == "" {
		c.Storage.ImportPrefix = "imports/"
	}
	if c.Workers.Sync.Count == 0 {
		c.Workers.Sync.Count = 1
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
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
