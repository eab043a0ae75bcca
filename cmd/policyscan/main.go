package main

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/opsless/policyscan/internal/config"
	"github.com/opsless/policyscan/internal/monitor/api"
	"github.com/opsless/policyscan/internal/monitor/database"
	"github.com/opsless/policyscan/internal/monitor/metrics"
	"github.com/opsless/policyscan/internal/monitor/notify"
	"github.com/opsless/policyscan/internal/monitor/scan"
)

func main() {
	log.Info().Msg("Starting policyscan server")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	db, err := database.New(cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}

	backend, err := metrics.NewPromClient(cfg.Backend.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create metric backend client")
	}

	var sender notify.Sender
	if cfg.Notify.APIBase != "" {
		sender = notify.NewClient(cfg.Notify.APIBase, parseDuration(cfg.Notify.APITimeout, 10*time.Second))
	}

	policies := database.NewPolicyRepo(db)
	instances := database.NewInstanceRepo(db)
	alerts := database.NewAlertRepo(db)
	events := database.NewEventRepo(db)
	snapshots := database.NewSnapshotRepo(db)

	scanner := scan.NewScanner(policies, instances, alerts, events, snapshots, backend, sender)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := scan.LoadPolicies(ctx, cfg.Scan.PolicyFile, policies); err != nil {
		log.Error().Err(err).Msg("policy bootstrap failed")
	}

	lock := scan.NewRunLock(rdb, parseDuration(cfg.Scan.LockTTL, 10*time.Minute))
	scheduler := scan.NewScheduler(scanner, policies, lock,
		parseDuration(cfg.Scan.Interval, time.Minute),
		int64(cfg.Scan.MaxBackfillSeconds), cfg.Scan.MaxBackfillCount)
	go scheduler.Start(ctx)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	api.NewApi(db, scanner, lock, router)

	log.Info().Msgf("Starting server on %s", cfg.Server.BindAddr)
	if err := router.Run(cfg.Server.BindAddr); err != nil {
		log.Fatal().Err(err).Msg("start policyscan server failed.")
	}
	log.Info().Msg("policyscan server exit...")
}

func parseDuration(s string, d time.Duration) time.Duration {
	if s == "" {
		return d
	}
	if v, err := time.ParseDuration(s); err == nil {
		return v
	}
	return d
}
