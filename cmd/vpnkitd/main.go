// Command vpnkitd wires the lifecycle engine to PostgreSQL, Redis, and the
// gin access layer, and keeps the expiry sweep running.
package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	authgin "github.com/open-rails/vpnkit/adapters/gin"
	"github.com/open-rails/vpnkit/adapters/ginutil"
	"github.com/open-rails/vpnkit/core"
	"github.com/open-rails/vpnkit/identity"
	migrations "github.com/open-rails/vpnkit/migrations/postgres"
	memorylimiter "github.com/open-rails/vpnkit/ratelimit/memory"
	redislimiter "github.com/open-rails/vpnkit/ratelimit/redis"
	pgstore "github.com/open-rails/vpnkit/storage/postgres"
	redisstore "github.com/open-rails/vpnkit/storage/redis"
	"github.com/open-rails/vpnkit/sweeper"
)

type config struct {
	Addr        string        `env:"ADDR" envDefault:":8080"`
	DatabaseURL string        `env:"DATABASE_URL,required"`
	Schema      string        `env:"DB_SCHEMA" envDefault:"vpn"`
	RedisAddr   string        `env:"REDIS_ADDR"`
	Issuer      string        `env:"AUTH_ISSUER,required"`
	Audience    string        `env:"AUTH_AUDIENCE,required"`
	JWKSURL     string        `env:"AUTH_JWKS_URL,required"`
	SweepRiver  bool          `env:"SWEEP_RIVER" envDefault:"false"`
	SweepEvery  time.Duration `env:"SWEEP_EVERY" envDefault:"10m"`
	SweepCron   string        `env:"SWEEP_CRON" envDefault:"@every 10m"`
	CatalogTTL  time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"5m"`
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.WithError(err).Fatal("config")
	}

	ctx := context.Background()

	if err := runMigrations(ctx, cfg.DatabaseURL); err != nil {
		log.WithError(err).Fatal("migrations")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("postgres")
	}
	defer pool.Close()

	store := pgstore.NewStore(pool, cfg.Schema)
	dir := pgstore.NewDirectory(pool, cfg.Schema)
	profiles := identity.NewStore(pool, cfg.Schema)

	var catalog core.Catalog = pgstore.NewCatalog(pool, cfg.Schema)
	limits := map[string]memorylimiter.Limit{
		ginutil.RLPackageBuy:   {Limit: 10, Window: time.Minute},
		ginutil.RLPackageRenew: {Limit: 10, Window: time.Minute},
		ginutil.RLPackageFree:  {Limit: 30, Window: time.Minute},
		ginutil.RLPackageGift:  {Limit: 10, Window: time.Minute},
	}
	var rl ginutil.RateLimiter = memorylimiter.New(limits)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		catalog = redisstore.NewCatalogCache(catalog, rdb, "", cfg.CatalogTTL)
		redisLimits := make(map[string]redislimiter.Limit, len(limits))
		for k, v := range limits {
			redisLimits[k] = redislimiter.Limit(v)
		}
		rl = redislimiter.New(rdb, redisLimits)
	}

	svc := core.New(store, catalog, dir, profiles, core.WithLogger(log))

	if cfg.SweepRiver {
		workers := river.NewWorkers()
		river.AddWorker(workers, sweeper.NewSweepWorker(svc, log))
		rc, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
			Queues:       map[string]river.QueueConfig{river.QueueDefault: {MaxWorkers: 1}},
			Workers:      workers,
			PeriodicJobs: []*river.PeriodicJob{sweeper.PeriodicJob(cfg.SweepEvery)},
		})
		if err != nil {
			log.WithError(err).Fatal("river")
		}
		if err := rc.Start(ctx); err != nil {
			log.WithError(err).Fatal("river start")
		}
		defer func() { _ = rc.Stop(ctx) }()
	} else {
		cr := cron.New()
		if _, err := sweeper.ScheduleCron(cr, svc, log, cfg.SweepCron); err != nil {
			log.WithError(err).Fatal("sweep schedule")
		}
		cr.Start()
		defer cr.Stop()
	}

	verifier, err := authgin.NewVerifier(ctx, cfg.Issuer, cfg.Audience, cfg.JWKSURL)
	if err != nil {
		log.WithError(err).Fatal("jwks")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	authgin.Mount(r, svc, verifier, rl)

	log.WithField("addr", cfg.Addr).Info("vpnkitd listening")
	if err := r.Run(cfg.Addr); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

// runMigrations applies the embedded SQL migrations with bun before the pgx
// pool opens for traffic.
func runMigrations(ctx context.Context, dsn string) error {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	defer sqldb.Close()

	db := bun.NewDB(sqldb, pgdialect.New())
	migrator := migrate.NewMigrator(db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return err
	}
	_, err := migrator.Migrate(ctx)
	return err
}
