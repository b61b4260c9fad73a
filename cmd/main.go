package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"raffle/internal/clock"
	"raffle/internal/config"
	"raffle/internal/db"
	"raffle/internal/escrow"
	"raffle/internal/events"
	"raffle/internal/handlers"
	"raffle/internal/keeper"
	"raffle/internal/models"
	"raffle/internal/oracle"
	"raffle/internal/sequence"
	"raffle/internal/services"
	"raffle/internal/store"
)

func main() {
	cfgPath := os.Getenv("RAFFLE_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	envOnly := false
	if raw := os.Getenv("RAFFLE_ENV_ONLY"); raw != "" {
		envOnly = strings.EqualFold(raw, "true") || raw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	// 1. Logging
	logOut := io.Discard
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			panic(err)
		}
		defer f.Close()
		logOut = f
	}
	defer logger.Init("raffled", cfg.Log.Verbose, false, logOut).Close()

	// 2. Storage backends
	var gdb *gorm.DB
	if cfg.Storage.Driver == "postgres" || cfg.Sequence.Driver == "postgres" {
		gdb, err = db.Open(cfg.DB)
		if err != nil {
			logger.Fatalf("db open failed: %v", err)
		}
		defer db.Close(gdb)
		if err := db.AutoMigrate(gdb); err != nil {
			logger.Fatalf("auto-migrate failed: %v", err)
		}
	}

	var rdb *redis.Client
	if cfg.Sequence.Driver == "redis" || cfg.Oracle.Driver == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Fatalf("redis ping %s failed: %v", cfg.Redis.Addr, err)
		}
		cancel()
	}

	raffles := newStore(cfg.Storage.Driver, gdb)
	ids := newSequence(cfg.Sequence, gdb, rdb)
	feed := newOracle(cfg.Oracle, rdb)

	// 3. Raffle service
	confirmers := make([]models.Identity, 0, len(cfg.Raffle.DeliveryConfirmers))
	for _, raw := range cfg.Raffle.DeliveryConfirmers {
		id, err := models.ParseIdentity(raw)
		if err != nil {
			logger.Fatalf("delivery confirmer %q: %v", raw, err)
		}
		confirmers = append(confirmers, id)
	}

	bank := escrow.NewBank()
	eventLog := events.NewMemory()
	svc := services.NewRaffleService(services.Dependencies{
		Store:     raffles,
		Sequence:  ids,
		Transfers: bank,
		Oracle:    feed,
		Events:    eventLog,
		Clock:     clock.NewSystem(),
	}, services.Options{
		MaxRandomnessAge:   cfg.Raffle.MaxRandomnessAge,
		DisputeWindow:      cfg.Raffle.DisputeWindow,
		DeliveryConfirmers: confirmers,
	})

	// 4. HTTP
	if cfg.App.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	httpHandler := handlers.NewHTTPHandler(svc, bank, eventLog, handlers.Options{
		OracleRef: cfg.Keeper.OracleRef,
		Faucet:    cfg.Bank.FaucetEnabled,
	})
	engine := handlers.NewRouter(httpHandler, &handlers.HealthHandler{DB: gdb}, gin.Logger())

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 5. Keeper
	if cfg.Keeper.Enabled {
		identity, err := models.ParseIdentity(cfg.Keeper.Identity)
		if err != nil {
			logger.Fatalf("keeper identity: %v", err)
		}
		runner := keeper.NewRunner(ctx)
		k := keeper.New(svc, identity, cfg.Keeper.OracleRef)
		if err := k.Schedule(runner, cfg.Keeper.Schedule); err != nil {
			logger.Fatalf("keeper schedule %q: %v", cfg.Keeper.Schedule, err)
		}
		runner.Start()
		defer runner.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on %s (storage=%s sequence=%s oracle=%s)",
			cfg.Server.HTTPAddr, cfg.Storage.Driver, cfg.Sequence.Driver, cfg.Oracle.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Infof("shutdown requested")
	case err := <-errCh:
		logger.Errorf("server error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warningf("shutdown: %v", err)
	}
}

func newStore(driver string, gdb *gorm.DB) store.Store {
	switch driver {
	case "memory":
		return store.NewMemory()
	case "postgres":
		return store.NewGorm(gdb)
	}
	logger.Fatalf("unknown storage driver %q", driver)
	return nil
}

func newSequence(cfg config.SequenceConfig, gdb *gorm.DB, rdb *redis.Client) sequence.Allocator {
	switch cfg.Driver {
	case "memory":
		return sequence.NewMemory()
	case "redis":
		return sequence.NewRedis(rdb, cfg.Key)
	case "postgres":
		return sequence.NewGorm(gdb)
	}
	logger.Fatalf("unknown sequence driver %q", cfg.Driver)
	return nil
}

func newOracle(cfg config.OracleConfig, rdb *redis.Client) oracle.Reader {
	switch cfg.Driver {
	case "memory":
		return oracle.NewMemory()
	case "redis":
		return oracle.NewRedisFeed(rdb, cfg.KeyPrefix)
	}
	logger.Fatalf("unknown oracle driver %q", cfg.Driver)
	return nil
}
