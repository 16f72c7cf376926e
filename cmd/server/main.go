package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log" // Used until the structured logger is up
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/segment-reservation/internal/config"
	"github.com/iliyamo/segment-reservation/internal/database"
	"github.com/iliyamo/segment-reservation/internal/handler"
	"github.com/iliyamo/segment-reservation/internal/logger"
	"github.com/iliyamo/segment-reservation/internal/queue"
	"github.com/iliyamo/segment-reservation/internal/repository"
	"github.com/iliyamo/segment-reservation/internal/repository/memory"
	"github.com/iliyamo/segment-reservation/internal/router"
	"github.com/iliyamo/segment-reservation/internal/scheduler"
	"github.com/iliyamo/segment-reservation/internal/seed"
	"github.com/iliyamo/segment-reservation/internal/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to read .env: %v", err)
	}
	cfg := config.Load() // Load environment config

	lg, err := logger.New(os.Stdout, cfg.LogDir)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Close()

	store, db, err := openStore(cfg, lg)
	if err != nil {
		lg.Error("STARTUP", err.Error())
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	rdb := openRedis(lg)
	if rdb != nil {
		defer rdb.Close()
	}

	ncfg := config.LoadNotifyConfig()
	sink, err := queue.NewSink(ncfg, lg)
	if err != nil {
		lg.Error("STARTUP", err.Error())
		os.Exit(1)
	}
	dispatcher := queue.NewDispatcher(sink, ncfg.Buffer, lg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if ncfg.Consume && ncfg.Driver == config.NotifyRabbitMQ {
		consumer := &queue.AuditConsumer{
			URL:   ncfg.RabbitURL,
			Queue: ncfg.RabbitQueue,
			Path:  auditPath(cfg.LogDir),
			Log:   lg,
		}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("NOTIFY", fmt.Sprintf("audit consumer stopped: %v", err))
			}
		}()
	}

	eng := service.New(service.Deps{
		Store:    store,
		Policy:   config.LoadReservationPolicy(),
		Notifier: dispatcher,
		Log:      lg,
	})

	scfg := config.LoadSchedulerConfig()
	sched, err := scheduler.New(eng.Sweeper, scfg, lg)
	if err != nil {
		lg.Error("STARTUP", err.Error())
		os.Exit(1)
	}
	sched.Start()

	h := handler.New(eng, lg)
	h.AutoTrips = scfg.AutoTripStatus

	var health func(context.Context) error
	if db != nil {
		health = db.PingContext
	}
	e := router.New(h, router.Options{
		JWTSecret: cfg.JWTSecret,
		Redis:     rdb,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		Health:    health,
		Log:       lg,
	})

	addr := ":" + cfg.Port // Address string with port
	go func() {
		lg.Info("STARTUP", fmt.Sprintf("listening on %s (env=%s, store=%s, notify=%s)", addr, cfg.Env, cfg.StoreDriver, ncfg.Driver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("STARTUP", fmt.Sprintf("server: %v", err))
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info("SHUTDOWN", "signal received, draining")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		lg.Warn("SHUTDOWN", fmt.Sprintf("http: %v", err))
	}
	if err := sched.Shutdown(); err != nil {
		lg.Warn("SHUTDOWN", fmt.Sprintf("scheduler: %v", err))
	}
	if err := dispatcher.Close(); err != nil {
		lg.Warn("SHUTDOWN", fmt.Sprintf("notifier: %v", err))
	}
	if n := dispatcher.Dropped(); n > 0 {
		lg.Warn("SHUTDOWN", fmt.Sprintf("%d events were dropped while the notifier was saturated", n))
	}
}

// openStore returns the configured store. db is nil for the memory store.
func openStore(cfg config.Config, lg *logger.Logger) (service.Store, *sql.DB, error) {
	if cfg.StoreDriver == config.StoreMemory {
		mem := memory.New()
		if cfg.SeedDemo {
			res, err := seed.Apply(context.Background(), seed.Memory(mem), seed.Demo, time.Now())
			if err != nil {
				return nil, nil, fmt.Errorf("seed: %w", err)
			}
			lg.Info("STARTUP", fmt.Sprintf("seeded route %d, bus %d, %d trips", res.Route.ID, res.Bus.ID, len(res.Trips)))
		}
		lg.Warn("STARTUP", "using the in-memory store; data is lost on exit")
		return mem, nil, nil
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	if cfg.AutoMigrate {
		v, err := database.Migrate(db)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		lg.Info("STARTUP", fmt.Sprintf("schema at version %d", v))
	}
	return repository.NewStore(db), db, nil
}

// openRedis connects when REDIS_ADDR is reachable; otherwise rate limiting
// and caching are disabled.
func openRedis(lg *logger.Logger) *redis.Client {
	rdb, err := config.NewRedisClient(config.LoadRedisConfig())
	if err != nil {
		lg.Warn("STARTUP", fmt.Sprintf("redis unavailable, rate limiting and caching disabled: %v", err))
		return nil
	}
	return rdb
}

func auditPath(dir string) string {
	if dir == "" {
		dir = "logs"
	}
	return filepath.Join(dir, "events.log")
}
