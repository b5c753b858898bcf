package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/vbonduro/rifas/internal/config"
	"github.com/vbonduro/rifas/internal/db"
	"github.com/vbonduro/rifas/internal/domain"
	"github.com/vbonduro/rifas/internal/events"
	"github.com/vbonduro/rifas/internal/imagestore/local"
	"github.com/vbonduro/rifas/internal/janitor"
	"github.com/vbonduro/rifas/internal/logging"
	"github.com/vbonduro/rifas/internal/service"
	"github.com/vbonduro/rifas/internal/store"
	"github.com/vbonduro/rifas/internal/web"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	if err := run(cfg, logger); err != nil {
		logger.Error("rifas stopped with error", zap.Error(err))
		cleanup()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	auctions, closeStore, err := newAuctionStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	images, err := local.NewLocalImageStore(cfg.UploadPath, logger)
	if err != nil {
		return err
	}

	hub := events.NewHub(cfg.CORSAllowedOrigin, logger)
	defer hub.Close()

	publishers := events.Multi{hub}
	if cfg.RedisAddr != "" {
		rp := events.NewRedisPublisher(redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}), cfg.RedisChannel)
		defer func() {
			if err := rp.Close(); err != nil {
				logger.Error("failed to close redis client", zap.Error(err))
			}
		}()

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rp.Ping(pingCtx); err != nil {
			logger.Warn("redis unreachable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		cancel()
		publishers = append(publishers, rp)
		logger.Info("publishing events to redis", zap.String("addr", cfg.RedisAddr), zap.String("channel", cfg.RedisChannel))
	}

	svc := service.NewAuctionService(auctions, images, publishers, logger)

	sweeper := janitor.New(images, svc, janitor.DefaultGracePeriod, logger)
	if err := sweeper.Start(ctx, cfg.JanitorSchedule); err != nil {
		return err
	}
	defer sweeper.Stop()

	server := web.NewServer(svc, images, hub, web.Options{
		PublicBaseURL:     cfg.PublicBaseURL,
		MaxUploadBytes:    cfg.MaxUploadBytes,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
	}, logger)
	return server.Run(ctx, cfg.ListenAddr)
}

// auctionStore is the method set shared by the memory and SQLite backends.
type auctionStore interface {
	Create(ctx context.Context, a *domain.Auction) (*domain.Auction, error)
	GetByID(ctx context.Context, id int64) (*domain.Auction, error)
	List(ctx context.Context, search string) ([]*domain.AuctionSummary, error)
	Mutate(ctx context.Context, id int64, fn func(*domain.Auction) error) (*domain.Auction, error)
	Delete(ctx context.Context, id int64) (*domain.Auction, error)
}

func newAuctionStore(cfg *config.Config, logger *zap.Logger) (auctionStore, func(), error) {
	if cfg.StoreBackend != config.StoreSQLite {
		logger.Info("using in-memory auction store")
		return store.NewMemoryAuctionStore(), func() {}, nil
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("using sqlite auction store", zap.String("path", cfg.DBPath))
	return store.NewAuctionStore(database), func() { closeDB(database, logger) }, nil
}

func closeDB(database *sql.DB, logger *zap.Logger) {
	if err := database.Close(); err != nil {
		logger.Error("failed to close database", zap.Error(err))
	}
}
