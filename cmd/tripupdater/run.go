package main

import (
	"context"
	"database/sql"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"gtfsrt-tripupdater/internal/api"
	"gtfsrt-tripupdater/internal/config"
	"gtfsrt-tripupdater/internal/db"
	"gtfsrt-tripupdater/internal/engine"
	"gtfsrt-tripupdater/internal/ingest"
	"gtfsrt-tripupdater/internal/logging"
	"gtfsrt-tripupdater/internal/metrics"
	"gtfsrt-tripupdater/internal/processor"
	"gtfsrt-tripupdater/internal/publisher"
	"gtfsrt-tripupdater/internal/refdata"
	"gtfsrt-tripupdater/internal/transport"
	"gtfsrt-tripupdater/internal/tripid"
	"gtfsrt-tripupdater/internal/validate"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "consume the inbound bus and publish trip updates",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			logging.Setup(cfg.LogLevel, cfg.LogFormat)

			// Root context with cancellation on SIGINT/SIGTERM
			ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return run(ctx, cfg)
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	ing, err := newIngester(cfg.IngestRulesFile, cfg.FilterTrainRoutes)
	if err != nil {
		return err
	}

	var eng *engine.Engine
	mcol := metrics.NewCollector(cfg.Workers, func() int { return eng.Len() })
	eng = engine.New(cfg.CacheTTL, mcol)

	lookup, closeLookup, err := newLookup(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLookup()

	var resolver processor.Resolver
	if cfg.TripIDResolverURL != "" {
		r, err := tripid.New(tripid.Options{BaseURL: cfg.TripIDResolverURL, CacheTTL: cfg.TripIDCacheTTL})
		if err != nil {
			return err
		}
		resolver = r
	}

	nc, err := transport.Connect(cfg.NATSURL, "gtfsrt-tripupdater", mcol)
	if err != nil {
		return err
	}
	pub := publisher.NewNATSPublisher(nc, cfg.OutSubjectPrefix, cfg.LogNATSSubjects, mcol)
	defer pub.Close()

	var src transport.Source
	switch cfg.Bus {
	case config.BusKafka:
		src, err = transport.NewKafkaSource(transport.KafkaOptions{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topic:   cfg.KafkaTopic,
		})
	default:
		src, err = transport.NewJetStreamSource(nc, transport.JetStreamOptions{
			Stream:  cfg.NATSStreamName,
			Subject: cfg.NATSSubjectIn,
			Durable: cfg.NATSDurable,
		})
	}
	if err != nil {
		return err
	}
	defer src.Close()

	proc := processor.New(processor.Config{
		Workers:  cfg.Workers,
		Ingester: ing,
		Enricher: ingest.Enricher{Lookup: lookup},
		Engine:   eng,
		Validators: validate.Chain{
			validate.PrematureDeparture{MaxLead: cfg.PrematureDepartureMaxLead, Location: cfg.Location},
			validate.MaxAge{MaxAge: cfg.MaxEstimateAge},
			validate.MissingEstimates{Threshold: cfg.MissingEstimatesThreshold},
		},
		Resolver:  resolver,
		Publisher: pub,
		Metrics:   mcol,
	})

	if cfg.HTTPAddr != "" {
		app := api.NewApp(api.Options{
			Trips:   eng,
			Metrics: mcol.Handler(),
			Ready:   nc.IsConnected,
		})
		go func() {
			if err := app.Listen(cfg.HTTPAddr); err != nil {
				log.Error().Err(err).Msg("status server error")
			}
		}()
		defer func() {
			if err := app.ShutdownWithTimeout(3 * time.Second); err != nil {
				log.Warn().Err(err).Msg("status server shutdown")
			}
		}()
		log.Info().Str("addr", cfg.HTTPAddr).Msg("status server listening")
	}

	log.Info().Str("bus", cfg.Bus).Str("tz", cfg.Location.String()).Msg("tripupdater started")
	if err := proc.Run(ctx, src); err != nil {
		return err
	}
	log.Info().Msg("shutdown complete")
	return nil
}

func newIngester(rulesFile string, filterTrains bool) (*ingest.Ingester, error) {
	rules := ingest.DefaultRules()
	if rulesFile != "" {
		var err error
		if rules, err = ingest.LoadRules(rulesFile); err != nil {
			return nil, err
		}
	}
	rules.FilterTrains = rules.FilterTrains || filterTrains
	return ingest.New(rules)
}

// newLookup assembles the reference data chain: redis first, then postgres
// behind a redis read-through cache. Either source may be absent.
func newLookup(ctx context.Context, cfg *config.Config) (refdata.Lookup, func(), error) {
	var (
		chain   refdata.Fallback
		closers []func()
		rdb     *redis.Client
		sqlDB   *sql.DB
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		closers = append(closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis ping failed")
		}
		chain = append(chain, refdata.NewRedisStore(rdb))
	}

	if cfg.DatabaseURL != "" {
		var err error
		sqlDB, err = db.Open(cfg.DatabaseURL)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("db open error: %w", err)
		}
		closers = append(closers, func() { _ = sqlDB.Close() })
		if err := db.Ping(ctx, sqlDB); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("db ping error: %w", err)
		}
		var pg refdata.Lookup = refdata.NewPostgresStore(sqlDB)
		if rdb != nil {
			pg = refdata.NewCached(rdb, cfg.RefdataCacheTTL, pg)
		}
		chain = append(chain, pg)
	}

	if len(chain) == 0 {
		log.Info().Msg("no reference data source configured")
		return nil, closeAll, nil
	}
	return chain, closeAll, nil
}
