// README: Wires config, infra clients and services into one runnable app.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"ridebid/internal/clock"
	"ridebid/internal/config"
	"ridebid/internal/infra"
	"ridebid/internal/modules/auction"
	"ridebid/internal/modules/mirror"
	"ridebid/internal/modules/notify"
	"ridebid/internal/modules/ride"
)

type app struct {
	cfg     config.Config
	log     *slog.Logger
	db      *pgxpool.Pool
	redis   *redis.Client
	amqp    *infra.AMQP
	auction *auction.Service
	ride    *ride.Service
}

func loadConfig(opts *RootOptions) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	log := infra.NewLogger(os.Stdout, cfg.Log.Level)
	slog.SetDefault(log)
	return cfg, log, nil
}

// newApp connects whatever the config enables. Without a DSN rides live in
// memory; without Redis or AMQP the matching mirror or notifier is skipped.
func newApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}
	clk := clock.System{}

	var (
		mirrors   mirror.Fanout
		notifiers notify.Multi
		rideStore ride.Store = ride.NewMemStore()
	)

	if cfg.DB.DSN != "" {
		db, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, err
		}
		a.db = db
		mirrors = append(mirrors, mirror.NewPostgresMirror(db))
		rideStore = ride.NewPGStore(db)
	} else {
		log.Warn("no database configured, rides kept in memory")
	}

	if cfg.Redis.Addr != "" {
		client, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			a.close()
			return nil, err
		}
		a.redis = client
		mirrors = append(mirrors, mirror.NewRedisMirror(client, cfg.Redis.MirrorTTL))
	}

	a.ride = ride.NewService(rideStore, clk, log)
	notifiers = append(notifiers, a.ride)

	if cfg.AMQP.URL != "" {
		conn, err := infra.NewAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			a.close()
			return nil, err
		}
		a.amqp = conn
		notifiers = append(notifiers, notify.NewRabbitNotifier(conn.Channel, cfg.AMQP.Exchange, clk))
	} else {
		notifiers = append(notifiers, notify.NewLogNotifier(log))
	}

	deps := auction.Deps{
		Clock:    clk,
		Notifier: notifiers,
		Starter:  a.ride,
		Logger:   log,
	}
	if len(mirrors) > 0 {
		deps.Mirror = mirrors
	}
	a.auction = auction.NewService(deps, cfg.Auction)

	log.Info("app wired",
		"postgres", a.db != nil,
		"redis", a.redis != nil,
		"amqp", a.amqp != nil,
		"sweep_interval", cfg.Auction.SweepInterval.String(),
	)
	return a, nil
}

func (a *app) close() {
	if a.auction != nil {
		a.auction.Close()
	}
	if a.amqp != nil {
		if err := a.amqp.Close(); err != nil {
			a.log.Warn("amqp close", "err", err)
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func requireDSN(cfg config.Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("RIDEBID_DB_DSN (or db.dsn) is required")
	}
	return nil
}
