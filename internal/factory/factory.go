package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"jobdesk-auth/internal/audit"
	"jobdesk-auth/internal/bucketing"
	"jobdesk-auth/internal/client"
	"jobdesk-auth/internal/config"
	"jobdesk-auth/internal/hashing"
	"jobdesk-auth/internal/provider"
	redisrepo "jobdesk-auth/internal/repository/redis"
	"jobdesk-auth/internal/repository/scylla"
	"jobdesk-auth/internal/service"
	"jobdesk-auth/internal/tls"
	"jobdesk-auth/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher           *hashing.Hasher
	bucketingManager *bucketing.Manager

	// Repositories and stores
	userRepository  *scylla.UserRepository
	tokenRepository *scylla.RefreshTokenRepository
	otpCache        *redisrepo.OTPCache
	blacklistCache  *redisrepo.BlacklistCache
	rateLimitCache  *redisrepo.RateLimitCache

	auditPublisher *audit.Publisher
	dispatcher     *provider.Dispatcher
	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		tlsConfig := &tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		}
		factory.tlsManager = tls.NewTLSManager(tlsConfig)
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeManagers()
	factory.initializeStores()
	factory.initializeProviders()
	factory.startSweepLoop()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kafka_enabled", factory.kafkaProducer != nil),
		util.Bool("clickhouse_enabled", factory.clickhouseClient != nil),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health
// checks. Redis and Scylla are required; Kafka and ClickHouse are optional
// audit sinks.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// Redis
	if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = redisClient
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	// ScyllaDB
	if scyllaClient, err := scylla.NewScyllaClient(f.config); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = scyllaClient
		if err := f.scyllaClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	// Kafka
	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized")
		}
	}

	// ClickHouse
	if f.config.Clickhouse.Enabled {
		if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
			util.Warn("ClickHouse initialization failed - proceeding without ClickHouse", util.ErrorField(err))
		} else {
			f.clickhouseClient = chClient
			if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
				util.Warn("ClickHouse health check failed", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client initialized and healthy")
			}
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

func (f *Factory) initializeManagers() {
	f.hasher = hashing.NewHasher(f.config.Hashing())
	f.bucketingManager = bucketing.NewManager(f.config.Bucketing.UserBuckets)

	if f.config.IsProduction() {
		f.hasher.StartPepperRotation()
	}

	f.auditPublisher = audit.NewPublisher(f.kafkaProducer, f.clickhouseClient)
}

func (f *Factory) initializeStores() {
	f.otpCache = redisrepo.NewOTPCache(f.redisClient)
	f.blacklistCache = redisrepo.NewBlacklistCache(f.redisClient)
	f.rateLimitCache = redisrepo.NewRateLimitCache(f.redisClient)

	f.userRepository = scylla.NewUserRepository(f.scyllaClient, f.bucketingManager)
	f.tokenRepository = scylla.NewRefreshTokenRepository(f.scyllaClient)
}

// initializeProviders wires the delivery channels. Missing credentials fall
// back to the log provider outside production.
func (f *Factory) initializeProviders() {
	var sms provider.Provider
	if twilioProvider, err := provider.NewTwilioSMSProvider(f.config.Providers); err != nil {
		if f.config.IsProduction() {
			util.Error("Twilio provider unavailable", util.ErrorField(err))
		}
		sms = provider.NewLogProvider("sms")
	} else {
		sms = twilioProvider
	}

	var email provider.Provider
	if f.config.Providers.SMTPHost != "" {
		email = provider.NewSMTPEmailProvider(f.config.Providers)
	} else {
		email = provider.NewLogProvider("email")
	}

	f.dispatcher = provider.NewDispatcher(email, sms)
}

// startSweepLoop periodically walks the OTP keyspace to flag keys that lost
// their TTL. Redis expiry does the real cleanup; the sweep is a safety net.
func (f *Factory) startSweepLoop() {
	if f.redisClient == nil {
		return
	}

	ticker := time.NewTicker(time.Hour)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-f.closed:
				return
			case <-ticker.C:
				if _, err := f.otpCache.SweepStaleKeys(context.Background()); err != nil {
					util.Warn("OTP key sweep failed", util.ErrorField(err))
				}
			}
		}
	}()
}

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		f.serviceFactory = service.NewServiceFactory(
			f.config,
			f.otpCache,
			f.blacklistCache,
			f.rateLimitCache,
			f.userRepository,
			f.tokenRepository,
			f.hasher,
			f.dispatcher,
			f.auditPublisher,
		)
	}
	return f.serviceFactory
}

// HealthCheck probes every backing service concurrently
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	var mu sync.Mutex
	healthErrors := make(map[string]error)

	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		healthErrors[name] = err
	}

	g, ctx := errgroup.WithContext(ctx)

	if f.redisClient != nil {
		g.Go(func() error {
			if err := f.redisClient.HealthCheck(ctx); err != nil {
				record("redis", err)
			}
			return nil
		})
	} else {
		record("redis", fmt.Errorf("redis client not initialized"))
	}

	if f.scyllaClient != nil {
		g.Go(func() error {
			if err := f.scyllaClient.HealthCheck(ctx); err != nil {
				record("scylla", err)
			}
			return nil
		})
	} else {
		record("scylla", fmt.Errorf("scylla client not initialized"))
	}

	if f.kafkaProducer != nil {
		g.Go(func() error {
			if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
				record("kafka", err)
			}
			return nil
		})
	}

	if f.clickhouseClient != nil {
		g.Go(func() error {
			if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
				record("clickhouse", err)
			}
			return nil
		})
	}

	g.Wait()
	return healthErrors
}

// IsHealthy reports whether the required backends are reachable. The
// optional audit sinks never fail readiness.
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

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
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

func (f *Factory) ScyllaClient() *scylla.ScyllaClient {
	return f.scyllaClient
}

func (f *Factory) Hasher() *hashing.Hasher {
	return f.hasher
}

func (f *Factory) BucketingManager() *bucketing.Manager {
	return f.bucketingManager
}
