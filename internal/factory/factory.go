package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"sentinel/internal/client"
	"sentinel/internal/config"
	"sentinel/internal/encryption"
	redisrepo "sentinel/internal/repository/redis"
	"sentinel/internal/service"
	"sentinel/internal/util"
)

// Factory owns the lifecycle of every external dependency and hands out the
// wired service layer. Redis is the one hard requirement; Kafka, ClickHouse,
// and KMS are optional sinks that degrade to nil when disabled or unhealthy.
type Factory struct {
	config *config.Config

	redisClient      *client.RedisClient
	alertPublisher   *client.KafkaAlertPublisher
	clickhouseClient *client.ClickHouseClient

	encryptionManager *encryption.Manager

	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

func NewFactory() (*Factory, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	f := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := f.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	f.initializeServices()

	// Calibrate once, off the request path. Hash cost must not drift per call.
	f.serviceFactory.CredentialPolicy().CalibrateHashCost()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("kafka_enabled", cfg.Kafka.Enabled),
		util.Bool("clickhouse_enabled", cfg.Clickhouse.Enabled),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
	)

	return f, nil
}

func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	redisClient, err := client.NewRedisClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	f.redisClient = redisClient
	if err := f.redisClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("redis health check: %w", err)
	}
	util.Info("Redis client initialized and healthy")

	if f.config.Kafka.Enabled {
		publisher, err := client.NewKafkaAlertPublisher(f.config, util.Get())
		if err != nil {
			if f.config.IsProduction() {
				return fmt.Errorf("kafka: %w", err)
			}
			util.Warn("Kafka initialization failed - proceeding without alert publishing", util.ErrorField(err))
		} else {
			f.alertPublisher = publisher
			util.Info("Kafka alert publisher initialized")
		}
	}

	if f.config.Clickhouse.Enabled {
		chClient, err := client.NewClickHouseClient(f.config, util.Get())
		if err != nil {
			if f.config.IsProduction() {
				return fmt.Errorf("clickhouse: %w", err)
			}
			util.Warn("ClickHouse initialization failed - proceeding without event archiving", util.ErrorField(err))
		} else {
			f.clickhouseClient = chClient
			util.Info("ClickHouse client initialized")
		}
	}

	var kmsClient *kms.Client
	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			return fmt.Errorf("aws config: %w", err)
		}
		kmsClient = kms.NewFromConfig(awsCfg)
		util.Info("KMS client initialized", util.String("key_id", f.config.KMS.KeyID))
	}

	f.encryptionManager = encryption.NewManager(f.config, kmsClient)

	return nil
}

func (f *Factory) initializeServices() {
	stores := service.Stores{
		Events:   redisrepo.NewEventLogCache(f.redisClient, f.config.Security.EventLogCap),
		Counters: redisrepo.NewRateLimitCache(f.redisClient),
		Activity: redisrepo.NewActivityCache(f.redisClient),
		Ledger:   redisrepo.NewTokenLedgerCache(f.redisClient),
		MFA:      redisrepo.NewMFACache(f.redisClient),
		Cipher:   f.encryptionManager,
	}
	if f.alertPublisher != nil {
		stores.Publisher = f.alertPublisher
	}
	if f.clickhouseClient != nil {
		stores.Archiver = f.clickhouseClient
	}

	f.serviceFactory = service.NewServiceFactory(f.config, stores, util.Get())
}

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	return f.serviceFactory
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) EncryptionManager() *encryption.Manager {
	return f.encryptionManager
}

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.alertPublisher != nil {
		if err := f.alertPublisher.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	return healthErrors
}

// IsHealthy reports whether the hard dependencies are usable. Optional sinks
// degrade the deployment, they do not fail it.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	delete(healthErrors, "clickhouse")
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

		if f.alertPublisher != nil {
			if err := f.alertPublisher.Close(); err != nil {
				util.Error("Failed to close Kafka publisher", util.ErrorField(err))
			} else {
				util.Info("Kafka publisher closed")
			}
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
			util.Info("Encryption manager cache cleared")
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}
