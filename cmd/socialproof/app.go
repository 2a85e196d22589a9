package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keymesh/socialproof/internal/adapters/outbound/directory"
	"github.com/keymesh/socialproof/internal/adapters/outbound/ethereum"
	"github.com/keymesh/socialproof/internal/adapters/outbound/facebook"
	"github.com/keymesh/socialproof/internal/adapters/outbound/memory"
	"github.com/keymesh/socialproof/internal/adapters/outbound/postgres"
	"github.com/keymesh/socialproof/internal/adapters/outbound/redis"
	"github.com/keymesh/socialproof/internal/adapters/outbound/sns"
	"github.com/keymesh/socialproof/internal/adapters/outbound/telemetry"
	"github.com/keymesh/socialproof/internal/adapters/outbound/twitter"
	"github.com/keymesh/socialproof/internal/config"
	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/ports/inbound"
	"github.com/keymesh/socialproof/internal/ports/outbound"
	"github.com/keymesh/socialproof/internal/services/identity"
	"github.com/keymesh/socialproof/internal/services/userinfo"
	"github.com/keymesh/socialproof/internal/services/verification"
)

// app holds the wired services shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	pool          *pgxpool.Pool
	verifications outbound.VerificationRepository
	userCaches    outbound.UserCacheRepository
	events        outbound.EventSink
	metrics       outbound.MetricsRecorder
	adapters      map[entity.Platform]outbound.PlatformAdapter

	registry     *identity.Registry
	verification *verification.Service
	rechecker    *verification.Rechecker
	directory    inbound.DirectoryService
	userinfo     *userinfo.Service
	health       healthChecks

	mu      sync.Mutex
	closers []func()
}

// appOptions replaces infrastructure in tests.
type appOptions struct {
	resolvers identity.ResolverFactory
	directory outbound.DirectoryClient
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts appOptions) (_ *app, err error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  outbound.NopMetrics{},
		adapters: make(map[entity.Platform]outbound.PlatformAdapter),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if cfg.Telemetry.OTLPEndpoint != "" {
		m, err := telemetry.NewMetrics("github.com/keymesh/socialproof")
		if err != nil {
			return nil, err
		}
		a.metrics = m
	}

	if err := a.openStorage(ctx); err != nil {
		return nil, err
	}
	if err := a.openEvents(ctx); err != nil {
		return nil, err
	}

	a.adapters[entity.PlatformTwitter] = twitter.New(twitter.Config{
		ConsumerKey:    cfg.Twitter.ConsumerKey,
		ConsumerSecret: cfg.Twitter.ConsumerSecret,
		BaseURL:        cfg.Twitter.BaseURL,
		Logger:         logger,
	})
	a.adapters[entity.PlatformFacebook] = facebook.New(facebook.Config{
		AppID:     cfg.Facebook.AppID,
		AppSecret: cfg.Facebook.AppSecret,
		GraphURL:  cfg.Facebook.GraphURL,
		Logger:    logger,
	})

	resolvers := opts.resolvers
	if resolvers == nil {
		resolvers = a.dialResolver(ctx)
	}
	cacheCfg := cfg.IdentityCacheConfig(logger)
	cacheCfg.NetworkID = cfg.DefaultNetwork()
	cacheCfg.Metrics = a.metrics
	a.registry, err = identity.NewRegistry(cacheCfg, a.userCaches, resolvers)
	if err != nil {
		return nil, err
	}

	a.verification, err = verification.NewService(a.verifications, logger, verification.WithProfileSync(a.registry, nil))
	if err != nil {
		return nil, err
	}

	platformAdapters := make([]outbound.PlatformAdapter, 0, len(a.adapters))
	for _, p := range entity.Platforms {
		platformAdapters = append(platformAdapters, a.adapters[p])
	}
	a.rechecker, err = verification.NewRechecker(verification.RecheckerConfig{
		Logger: logger,
		Events: a.events,
	}, a.registry, ethereum.Verifier{}, platformAdapters...)
	if err != nil {
		return nil, err
	}

	client := opts.directory
	if client == nil && cfg.Directory.SearchURL != "" && cfg.Directory.UsersURL != "" {
		client, err = directory.NewClient(directory.ClientConfig{
			SearchURL: cfg.Directory.SearchURL,
			UsersURL:  cfg.Directory.UsersURL,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
	}
	if client != nil {
		svc, err := userinfo.NewService(userinfo.Config{
			TTL:     cfg.Cache.UserInfoTTL,
			Logger:  logger,
			Metrics: a.metrics,
		}, client)
		if err != nil {
			return nil, err
		}
		a.onClose(svc.StartCleanup(cfg.Cache.UserInfoTTL))
		a.directory = svc
		a.userinfo = svc
	} else {
		a.directory = unconfiguredDirectory{}
	}

	return a, nil
}

func (a *app) openStorage(ctx context.Context) error {
	if a.cfg.Database.URL != "" {
		dbCfg := postgres.DefaultDBConfig(a.cfg.Database.URL)
		if a.cfg.Database.MaxConns > 0 {
			dbCfg.MaxConns = a.cfg.Database.MaxConns
		}
		pool, err := postgres.OpenPool(ctx, dbCfg)
		if err != nil {
			return err
		}
		a.pool = pool
		a.onClose(pool.Close)

		verifications, err := postgres.NewVerificationRepository(pool, a.logger)
		if err != nil {
			return err
		}
		userCaches, err := postgres.NewUserCacheRepository(pool, a.logger)
		if err != nil {
			return err
		}
		a.verifications = verifications
		a.userCaches = userCaches
		a.health = append(a.health, userCaches)
	} else {
		a.logger.Warn("DATABASE_URL not set, bindings are kept in memory")
		a.verifications = memory.NewVerificationRepository()
		a.userCaches = memory.NewUserCacheRepository()
	}

	if a.cfg.Redis.Addr != "" {
		rc, err := redis.NewUserCacheRepository(redis.Config{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
			TTL:      a.cfg.Redis.TTL,
		}, a.logger)
		if err != nil {
			return err
		}
		a.onClose(func() { _ = rc.Close() })
		if err := rc.Ping(ctx); err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		a.userCaches = rc
		a.health = append(a.health, rc)
	}
	return nil
}

func (a *app) openEvents(ctx context.Context) error {
	topics := a.cfg.SNS
	if topics.BindingsTopic == "" {
		return nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(topics.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	client := awssns.NewFromConfig(awsCfg, func(o *awssns.Options) {
		if topics.Endpoint != "" {
			o.BaseEndpoint = aws.String(topics.Endpoint)
		}
	})
	sink, err := sns.NewEventSink(client, sns.Config{
		Topics: sns.TopicARNs{
			Bindings:      topics.BindingsTopic,
			Verifications: topics.VerificationsTopic,
		},
		Logger: a.logger,
	})
	if err != nil {
		return err
	}
	a.events = sink
	a.onClose(func() { _ = sink.Close() })
	return nil
}

// dialResolver connects to the configured RPC endpoint of each network on first use.
func (a *app) dialResolver(ctx context.Context) identity.ResolverFactory {
	return func(network entity.NetworkID) (outbound.IdentityResolver, error) {
		if a.cfg.IdentityContract == "" {
			return nil, errors.New("IDENTITY_CONTRACT is not set")
		}
		rpcURL, ok := a.cfg.RPCURL(network)
		if !ok {
			return nil, fmt.Errorf("no ETH_RPC_URLS entry for network %s", network)
		}
		resolver, client, err := ethereum.Dial(ctx, rpcURL, a.cfg.IdentityContract, a.logger)
		if err != nil {
			return nil, err
		}
		a.onClose(client.Close)
		return resolver, nil
	}
}

func (a *app) onClose(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, fn)
}

// Close releases connections in reverse order of opening.
func (a *app) Close() {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

// healthChecks pings every backing store.
type healthChecks []inbound.HealthChecker

func (h healthChecks) Ping(ctx context.Context) error {
	var errs []error
	for _, c := range h {
		if err := c.Ping(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// unconfiguredDirectory serves directory routes when no directory URLs are set.
type unconfiguredDirectory struct{}

var errNoDirectory = fmt.Errorf("%w: user directory is not configured", entity.ErrTransientIO)

func (unconfiguredDirectory) Lookup(context.Context, entity.NetworkID, string) ([]entity.Profile, error) {
	return nil, errNoDirectory
}

func (unconfiguredDirectory) Search(context.Context, entity.NetworkID, string) ([]entity.Profile, error) {
	return nil, errNoDirectory
}
