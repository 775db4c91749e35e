package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"suvidha-service/internal/bucketing"
	"suvidha-service/internal/client"
	"suvidha-service/internal/config"
	"suvidha-service/internal/encryption"
	"suvidha-service/internal/hashing"
	"suvidha-service/internal/otp"
	"suvidha-service/internal/ratelimit"
	redisrepo "suvidha-service/internal/repository/redis"
	"suvidha-service/internal/repository/scylla"
	"suvidha-service/internal/repository/sqlite"
	"suvidha-service/internal/service"
	"suvidha-service/internal/sms"
	"suvidha-service/internal/tls"
	"suvidha-service/internal/util"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// Factory manages the lifecycle of all application dependencies. SQLite
// is the only hard requirement; Redis, ScyllaDB, Kafka, Elasticsearch
// and ClickHouse are optional backends that degrade to in-process
// fallbacks when disabled or unreachable in development. In production
// a failed required backend aborts startup.
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	db               *gorm.DB
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher  *hashing.Hasher
	crypto  *encryption.Manager
	buckets *bucketing.Manager

	otpService     *otp.Service
	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads configuration and initializes all application
// dependencies.
func NewFactory() (*Factory, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tls.NewTLSManager(&tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCertDir != "" && cfg.Server.CertFile == "",
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.AdminEmail,
			Environment: cfg.Environment,
		})
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeManagers()
	factory.initializeOTP()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("scylla_enabled", cfg.Scylla.Enabled),
		util.Bool("kafka_enabled", cfg.Kafka.Enabled),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
	)

	return factory, nil
}

// initializeClients opens SQLite and the enabled external backends.
// SQLite failure is always fatal; the rest fail startup only in
// production.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sqlite.Open(f.config)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	f.db = db

	var initErrors []error

	// Redis backs sessions and the durable rate limit counters.
	if redisClient, err := client.NewRedisClient(f.config); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else if err := redisClient.HealthCheck(ctx); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		_ = redisClient.Close()
	} else {
		f.redisClient = redisClient
		util.Info("Redis client initialized and healthy")
	}

	// ScyllaDB holds the OTP record log.
	if f.config.Scylla.Enabled {
		if scyllaClient, err := scylla.NewScyllaClient(f.config); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
		} else if err := scyllaClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
			scyllaClient.Close()
		} else {
			f.scyllaClient = scyllaClient
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	// Kafka is best-effort in every environment.
	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without events", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized")
		}
	}

	if f.config.Elasticsearch.Enabled {
		if esClient, err := client.NewElasticsearchClient(f.config); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else if err := esClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch health check: %w", err))
			esClient.Close()
		} else {
			f.esClient = esClient
			util.Info("Elasticsearch client initialized and healthy")
		}
	}

	if f.config.Clickhouse.Enabled {
		if chClient, err := client.NewClickHouseClient(f.config); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else if err := chClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
			_ = chClient.Close()
		} else {
			f.clickhouseClient = chClient
			util.Info("ClickHouse client initialized and healthy")
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers wires hashing, field encryption and bucketing.
func (f *Factory) initializeManagers() {
	f.hasher = hashing.NewHasher(f.config)
	f.buckets = bucketing.NewManager(f.config)

	var kmsClient *kms.Client
	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			if f.config.IsProduction() {
				util.Fatal("KMS is enabled but AWS config could not be loaded", util.ErrorField(err))
			}
			util.Warn("KMS unavailable, falling back to local data keys", util.ErrorField(err))
		} else {
			kmsClient = kms.NewFromConfig(awsCfg)
			util.Info("KMS client initialized", util.String("key_id", f.config.KMS.KeyID))
		}
	}

	f.crypto = encryption.NewManager(f.config, kmsClient)
}

// initializeOTP assembles the OTP pipeline from whichever backends came
// up: Redis-backed rate limit counters when Redis is healthy, Scylla
// record storage when enabled, and the SMS gateway when configured. A
// missing gateway selects local disclosure mode.
func (f *Factory) initializeOTP() {
	var counters ratelimit.CounterStore
	if f.redisClient != nil {
		counters = redisrepo.NewRateLimitCache(f.redisClient)
	} else {
		util.Warn("Redis unavailable, rate limit counters are in-memory only")
		counters = ratelimit.NewMemoryCounterStore()
	}

	limiter := ratelimit.NewLimiter(counters, ratelimit.Config{
		MaxFailures:   f.config.OTP.MaxFailures,
		BlockDuration: f.config.OTP.BlockDuration,
		DecayWindow:   f.config.OTP.DecayWindow,
	})

	var store otp.RecordStore
	if f.scyllaClient != nil {
		store = scylla.NewOTPRepository(f.scyllaClient, f.buckets)
	} else {
		if f.config.Scylla.Enabled {
			util.Warn("ScyllaDB unavailable, OTP records are in-memory only")
		}
		store = otp.NewMemoryStore()
	}

	var sender otp.Sender
	if gateway := sms.NewGatewaySender(f.config.SMS); gateway != nil {
		sender = gateway
		util.Info("SMS gateway configured", util.String("sender_id", f.config.SMS.SenderID))
	} else {
		util.Warn("No SMS gateway configured, issued codes are disclosed to callers")
	}

	f.otpService = otp.NewService(store, limiter, sender, otp.Config{
		ExpiryWindow: f.config.OTP.ExpiryWindow,
		MaxAttempts:  f.config.OTP.MaxAttempts,
	})
}

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		deps := service.FactoryDeps{
			DB:      f.db,
			OTP:     f.otpService,
			Hasher:  f.hasher,
			Crypto:  f.crypto,
			Buckets: f.buckets,
			Search:  f.esClient,
		}
		if f.redisClient != nil {
			deps.Sessions = redisrepo.NewSessionCache(f.redisClient)
		}
		if f.kafkaProducer != nil {
			deps.Events = f.kafkaProducer
		}
		if f.clickhouseClient != nil {
			deps.Sink = f.clickhouseClient
		}
		f.serviceFactory = service.NewServiceFactory(f.config, deps)
	}
	return f.serviceFactory
}

// HealthCheck reports per-backend status. Disabled backends are omitted.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if sqlDB, err := f.db.DB(); err != nil {
		healthErrors["sqlite"] = err
	} else if err := sqlDB.PingContext(ctx); err != nil {
		healthErrors["sqlite"] = err
	}

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.config.Scylla.Enabled {
		if f.scyllaClient == nil {
			healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
		} else if err := f.scyllaClient.HealthCheck(); err != nil {
			healthErrors["scylla"] = err
		}
	}

	if f.config.Elasticsearch.Enabled {
		if f.esClient == nil {
			healthErrors["elasticsearch"] = fmt.Errorf("elasticsearch client not initialized")
		} else if err := f.esClient.HealthCheck(); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}

	if f.config.Clickhouse.Enabled {
		if f.clickhouseClient == nil {
			healthErrors["clickhouse"] = fmt.Errorf("clickhouse client not initialized")
		} else if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	return healthErrors
}

// IsHealthy ignores Redis and Kafka, which the service can run without.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "redis")
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		if sqlDB, err := f.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				util.Error("Failed to close SQLite store", util.ErrorField(err))
			} else {
				util.Info("SQLite store closed")
			}
		}

		if f.crypto != nil {
			f.crypto.ClearCache()
			util.Info("Encryption key cache cleared")
		}

		util.Sync()
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}
