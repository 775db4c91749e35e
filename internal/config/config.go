package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting for the helpdesk service. Values come
// from environment variables, optionally seeded from a .env file.
type Config struct {
	Environment string

	Server        ServerConfig
	Logging       LoggingConfig
	SQLite        SQLiteConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	KMS           KMSConfig
	Hashing       HashingConfig
	Bucketing     BucketingConfig
	OTP           OTPConfig
	SMS           SMSConfig
	Auth          AuthConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	TLSPort      int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	EnableTLS    bool
	Domain       string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
	AdminEmail   string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	URL      string
	PoolSize int
}

type ScyllaConfig struct {
	Enabled  bool
	Hosts    []string
	Keyspace string
	Username string
	Password string
	Timeout  time.Duration
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type ElasticsearchConfig struct {
	Enabled      bool
	URL          string
	Username     string
	Password     string
	RequestIndex string
}

type ClickhouseConfig struct {
	Enabled  bool
	URL      string
	Database string
	Username string
	Password string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type HashingConfig struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	Pepper      string
}

type BucketingConfig struct {
	PhoneBuckets int
	EventBuckets int
}

// OTPConfig carries the issuance and rate-limit policy knobs.
type OTPConfig struct {
	ExpiryWindow  time.Duration
	MaxAttempts   int
	MaxFailures   int
	BlockDuration time.Duration
	DecayWindow   time.Duration
}

// SMSConfig configures the outbound SMS gateway. An empty GatewayURL puts
// the service in local disclosure mode: issued codes are returned to the
// caller instead of being sent.
type SMSConfig struct {
	GatewayURL string
	APIKey     string
	SenderID   string
}

type AuthConfig struct {
	JWTSecret         string
	SessionTTL        time.Duration
	AdminUsername     string
	AdminPasswordHash string
}

var (
	current *Config
	mu      sync.RWMutex
)

// LoadConfig reads the environment (and .env, if present) into a Config and
// installs it as the process-wide configuration.
func LoadConfig() (*Config, error) {
	// .env is optional; missing file is not an error
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			TLSPort:      getEnvInt("SERVER_TLS_PORT", 8443),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
			Domain:       getEnv("SERVER_DOMAIN", "localhost"),
			CertFile:     getEnv("SERVER_CERT_FILE", ""),
			KeyFile:      getEnv("SERVER_KEY_FILE", ""),
			AutoCertDir:  getEnv("SERVER_AUTOCERT_DIR", "./certs"),
			AdminEmail:   getEnv("SERVER_ADMIN_EMAIL", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "suvidha.db"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		Scylla: ScyllaConfig{
			Enabled:  getEnvBool("SCYLLA_ENABLED", false),
			Hosts:    getEnvSlice("SCYLLA_HOSTS", []string{"127.0.0.1"}),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "suvidha"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
			Timeout:  getEnvDuration("SCYLLA_TIMEOUT", 5*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Brokers: getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_TOPIC", "suvidha-events"),
		},
		Elasticsearch: ElasticsearchConfig{
			Enabled:      getEnvBool("ELASTICSEARCH_ENABLED", false),
			URL:          getEnv("ELASTICSEARCH_URL", "https://localhost:9200"),
			Username:     getEnv("ELASTICSEARCH_USERNAME", "elastic"),
			Password:     getEnv("ELASTICSEARCH_PASSWORD", ""),
			RequestIndex: getEnv("ELASTICSEARCH_REQUEST_INDEX", "service-requests"),
		},
		Clickhouse: ClickhouseConfig{
			Enabled:  getEnvBool("CLICKHOUSE_ENABLED", false),
			URL:      getEnv("CLICKHOUSE_URL", "localhost:9000"),
			Database: getEnv("CLICKHOUSE_DATABASE", "suvidha"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
		},
		KMS: KMSConfig{
			Enabled: getEnvBool("KMS_ENABLED", false),
			KeyID:   getEnv("KMS_KEY_ID", ""),
			Region:  getEnv("KMS_REGION", "ap-south-1"),
		},
		Hashing: HashingConfig{
			Memory:      uint32(getEnvInt("HASH_MEMORY_KB", 64*1024)),
			Iterations:  uint32(getEnvInt("HASH_ITERATIONS", 3)),
			Parallelism: uint8(getEnvInt("HASH_PARALLELISM", 2)),
			SaltLength:  uint32(getEnvInt("HASH_SALT_LENGTH", 16)),
			KeyLength:   uint32(getEnvInt("HASH_KEY_LENGTH", 32)),
			Pepper:      getEnv("HASH_PEPPER", ""),
		},
		Bucketing: BucketingConfig{
			PhoneBuckets: getEnvInt("BUCKETING_PHONE_BUCKETS", 64),
			EventBuckets: getEnvInt("BUCKETING_EVENT_BUCKETS", 16),
		},
		OTP: OTPConfig{
			ExpiryWindow:  getEnvDuration("OTP_EXPIRY_WINDOW", 5*time.Minute),
			MaxAttempts:   getEnvInt("OTP_MAX_ATTEMPTS", 3),
			MaxFailures:   getEnvInt("OTP_MAX_FAILURES", 5),
			BlockDuration: getEnvDuration("OTP_BLOCK_DURATION", 30*time.Minute),
			DecayWindow:   getEnvDuration("OTP_DECAY_WINDOW", time.Hour),
		},
		SMS: SMSConfig{
			GatewayURL: getEnv("SMS_GATEWAY_URL", ""),
			APIKey:     getEnv("SMS_API_KEY", ""),
			SenderID:   getEnv("SMS_SENDER_ID", "SUVIDHA"),
		},
		Auth: AuthConfig{
			JWTSecret:         getEnv("AUTH_JWT_SECRET", ""),
			SessionTTL:        getEnvDuration("AUTH_SESSION_TTL", 24*time.Hour),
			AdminUsername:     getEnv("AUTH_ADMIN_USERNAME", "admin"),
			AdminPasswordHash: getEnv("AUTH_ADMIN_PASSWORD_HASH", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	mu.Lock()
	current = cfg
	mu.Unlock()

	return cfg, nil
}

// Get returns the last loaded configuration, or nil before LoadConfig.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) validate() error {
	if c.IsProduction() {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("AUTH_JWT_SECRET is required in production")
		}
		if c.Hashing.Pepper == "" {
			return fmt.Errorf("HASH_PEPPER is required in production")
		}
	}
	if c.OTP.MaxAttempts < 1 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be at least 1")
	}
	if c.OTP.MaxFailures < 1 {
		return fmt.Errorf("OTP_MAX_FAILURES must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
