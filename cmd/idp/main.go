package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/layer-3/walletauth/adapters/events"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/adapters/tokenizer"
	"github.com/layer-3/walletauth/config"
	"github.com/layer-3/walletauth/logging"
	"github.com/layer-3/walletauth/ports"
	"github.com/layer-3/walletauth/service"
	"github.com/layer-3/walletauth/transport/http"
)

func main() {
	cfg := config.MustLoad("")

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("identity provider stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// Tokens do not survive a restart; load the key from a secret store for anything long-lived
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate signing key: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Store.Driver == config.StoreRedis || cfg.Events.Driver == config.EventsRedis {
		redisClient, err = store.NewRedisClient(ctx, cfg.Store.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	var kv ports.Store
	switch cfg.Store.Driver {
	case config.StoreRedis:
		kv = store.NewRedisStore(redisClient, cfg.Store.RedisPrefix)
	case config.StoreSQLite:
		sqlite, err := store.OpenSQLiteStore(cfg.Store.SQLitePath)
		if err != nil {
			return err
		}
		defer sqlite.Close()
		kv = sqlite
	default:
		kv = store.NewMemoryStore()
	}

	wmLogger := logging.NewWatermillLogger(logger)
	var publisher message.Publisher
	switch cfg.Events.Driver {
	case config.EventsRedis:
		publisher, err = redisstream.NewPublisher(redisstream.PublisherConfig{Client: redisClient}, wmLogger)
		if err != nil {
			return fmt.Errorf("create redis publisher: %w", err)
		}
	default:
		publisher = gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
	}
	defer publisher.Close()

	authService := service.NewAuthService(
		tokenizer.NewJWTTokenizer(privateKey, cfg.IdP.Issuer),
		kv,
		events.NewWatermillPublisher(publisher),
		logger,
		service.Config{
			ChallengeWindow: cfg.IdP.ChallengeWindow,
			ChallengeSkew:   service.DefaultConfig().ChallengeSkew,
			AccessTTL:       cfg.IdP.AccessTTL,
			RefreshTTL:      cfg.IdP.RefreshTTL,
		},
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := http.SetupRouter(authService, http.RouterConfig{
		Logger:             logger,
		LoginRatePerMinute: cfg.IdP.LoginRate,
		Metrics:            registry,
	})

	logger.Info("identity provider listening",
		zap.String("addr", cfg.IdP.Addr),
		zap.String("store", cfg.Store.Driver),
		zap.String("events", cfg.Events.Driver))

	return http.NewServer(router).Run(ctx, cfg.IdP.Addr)
}
