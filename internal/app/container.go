package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/acme/voicecampaign/internal/api/handlers"
	"github.com/acme/voicecampaign/internal/config"
	"github.com/acme/voicecampaign/internal/contacts"
	"github.com/acme/voicecampaign/internal/infra/db"
	"github.com/acme/voicecampaign/internal/infra/redis"
	"github.com/acme/voicecampaign/internal/queue"
	"github.com/acme/voicecampaign/internal/repository"
	pgrepo "github.com/acme/voicecampaign/internal/repository/postgres"
	scyllarepo "github.com/acme/voicecampaign/internal/repository/scylla"
	campaignsvc "github.com/acme/voicecampaign/internal/service/campaign"
	dialsvc "github.com/acme/voicecampaign/internal/service/dial"
	"github.com/acme/voicecampaign/internal/service/lease"
	"github.com/acme/voicecampaign/internal/telephony"
	telephonyMock "github.com/acme/voicecampaign/internal/telephony/mock"
	"github.com/acme/voicecampaign/internal/telephony/signal"
	"github.com/acme/voicecampaign/pkg/logger"
)

// Container wires together shared infrastructure dependencies.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *queue.Kafka

	// lazily initialised components
	components struct {
		once         sync.Once
		repositories *repositories
		services     *services
		publisher    *queue.AttemptPublisher
		provider     telephony.Provider
		resolver     *contacts.Resolver
		lease        *lease.Keeper
	}
}

type repositories struct {
	Campaigns repository.CampaignRepository
	Contacts  repository.ContactRepository
	Routes    repository.RouteBindingRepository
	Tallies   repository.OutcomeTallyRepository
	Attempts  repository.AttemptStore
}

type services struct {
	Campaign *campaignsvc.Service
	Dial     *dialsvc.Service
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	pg, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("bootstrap postgres: %w", err)
	}

	scylla, err := db.NewScylla(cfg.Scylla)
	if err != nil {
		return nil, fmt.Errorf("bootstrap scylla: %w", err)
	}

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}

	kafka, err := queue.NewKafka(cfg.Kafka)
	if err != nil {
		return nil, fmt.Errorf("bootstrap kafka: %w", err)
	}

	container := &Container{
		Config:   cfg,
		Logger:   lg,
		Postgres: pg,
		Scylla:   scylla,
		Redis:    redisClient,
		Kafka:    kafka,
	}

	return container, nil
}

func (c *Container) initComponents() {
	c.components.once.Do(func() {
		repos := &repositories{
			Campaigns: pgrepo.NewCampaignRepository(c.Postgres.DB()),
			Contacts:  pgrepo.NewContactRepository(c.Postgres.DB()),
			Routes:    pgrepo.NewRouteBindingRepository(c.Postgres.DB()),
			Tallies:   pgrepo.NewOutcomeTallyRepository(c.Postgres.DB()),
			Attempts:  scyllarepo.NewAttemptStore(c.Scylla.Session()),
		}

		publisher := queue.NewAttemptPublisher(c.Kafka, c.Config.Kafka.AttemptTopic)

		var provider telephony.Provider
		if c.Config.Signal.BaseURL != "" {
			provider = signal.NewClient(c.Config.Signal, c.Logger)
		} else {
			provider = telephonyMock.NewProvider(0)
		}

		svcs := &services{
			Campaign: campaignsvc.NewService(
				repos.Campaigns,
				repos.Contacts,
				repos.Tallies,
				repos.Attempts,
				publisher,
				c.Logger,
			),
			Dial: dialsvc.NewService(
				repos.Routes,
				repos.Attempts,
				provider,
				publisher,
				c.Config.Engine.PlacementBudget,
				c.Logger,
			),
		}

		resolver := contacts.NewResolver(
			repos.Contacts,
			contacts.NewSpreadsheetSource(c.Config.Contacts.SpreadsheetDir),
			c.Config.Contacts,
			c.Logger,
		)

		c.components.repositories = repos
		c.components.services = svcs
		c.components.publisher = publisher
		c.components.provider = provider
		c.components.resolver = resolver
		c.components.lease = lease.NewKeeper(c.Redis.Inner(), c.Config.Engine.LeaseTTL)
	})
}

// Repositories exposes initialized repositories.
func (c *Container) Repositories() *repositories {
	c.initComponents()
	return c.components.repositories
}

// Services exposes initialized services.
func (c *Container) Services() *services {
	c.initComponents()
	return c.components.services
}

// Provider exposes the telephony provider.
func (c *Container) Provider() telephony.Provider {
	c.initComponents()
	return c.components.provider
}

// Resolver exposes the contact resolver.
func (c *Container) Resolver() *contacts.Resolver {
	c.initComponents()
	return c.components.resolver
}

// Lease exposes the per-campaign lease keeper.
func (c *Container) Lease() *lease.Keeper {
	c.initComponents()
	return c.components.lease
}

// HandlerSet builds HTTP handlers with dependencies.
func (c *Container) HandlerSet() *handlers.HandlerSet {
	c.initComponents()
	return handlers.NewHandlerSet(
		c.components.services.Campaign,
		c.components.repositories.Attempts,
		c.probeHealth,
		c.Logger,
	)
}

func (c *Container) probeHealth(ctx context.Context) map[string]string {
	errs := make(map[string]string)
	if err := c.Postgres.DB().PingContext(ctx); err != nil {
		errs["postgres"] = err.Error()
	}
	if err := c.Redis.Inner().Ping(ctx).Err(); err != nil {
		errs["redis"] = err.Error()
	}
	if err := c.Scylla.Session().Query("SELECT now() FROM system.local").WithContext(ctx).Exec(); err != nil {
		errs["scylla"] = err.Error()
	}
	return errs
}

// EnsureTopics creates the Kafka topics the engine publishes to.
func (c *Container) EnsureTopics(ctx context.Context) error {
	topics := []string{c.Config.Kafka.AttemptTopic}
	return c.Kafka.EnsureTopics(ctx, topics, c.Config.Kafka.Partitions, c.Config.Kafka.ReplicationFactor)
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.components.publisher != nil {
		if err := c.components.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("attempt publisher close: %w", err))
		}
	}
	if c.Kafka != nil {
		if err := c.Kafka.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka close: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scylla close: %w", err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
