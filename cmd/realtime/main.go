package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mdawoud27/job-search-app-sub000/internal/api"
	"github.com/mdawoud27/job-search-app-sub000/internal/auth"
	"github.com/mdawoud27/job-search-app-sub000/internal/chat"
	"github.com/mdawoud27/job-search-app-sub000/internal/config"
	"github.com/mdawoud27/job-search-app-sub000/internal/directory"
	"github.com/mdawoud27/job-search-app-sub000/internal/handlers"
	"github.com/mdawoud27/job-search-app-sub000/internal/hub"
	"github.com/mdawoud27/job-search-app-sub000/internal/kafka"
	"github.com/mdawoud27/job-search-app-sub000/internal/logger"
	"github.com/mdawoud27/job-search-app-sub000/internal/metrics"
	rdb "github.com/mdawoud27/job-search-app-sub000/internal/redis"
	"github.com/mdawoud27/job-search-app-sub000/internal/repository"
	"github.com/mdawoud27/job-search-app-sub000/internal/ws"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to a config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	lg, err := logger.New(cfg.Log.Development, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if err := run(cfg, lg); err != nil {
		lg.Fatalw("realtime service failed", "err", err)
	}
}

func newVerifier(cfg *config.Config) (auth.Verifier, error) {
	if cfg.Auth.JWTPublicKeyPath != "" {
		return auth.NewJWTVerifierRS256(cfg.Auth.JWTPublicKeyPath)
	}
	return auth.NewJWTVerifierHS256(cfg.Auth.JWTSecret)
}

func run(cfg *config.Config, lg *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	verifier, err := newVerifier(cfg)
	if err != nil {
		return err
	}

	var (
		store repository.ConversationStore
		dir   directory.Directory
	)
	if cfg.Mongo.URI != "" {
		mc, err := repository.NewMongoClient(ctx, cfg.Mongo.URI, cfg.ConnectTimeout, lg)
		if err != nil {
			return err
		}
		defer func() { _ = mc.Disconnect(context.Background()) }()
		db := mc.Database(cfg.Mongo.Database)
		ms := repository.NewMongoStore(db)
		if err := ms.EnsureIndexes(ctx); err != nil {
			lg.Warnw("conversation indexes not created", "err", err)
		}
		store = ms
		dir = directory.NewMongo(db, cfg.QueryTimeout)
	} else {
		lg.Warn("mongo.uri not set, conversations and directory are in memory")
		store = repository.NewMemoryStore()
		dir = directory.NewMemory()
	}

	rooms := hub.NewHub(lg)
	chatSvc := chat.NewService(store, dir, lg)

	instanceID := cfg.App.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	var (
		presence *rdb.PresenceStore
		limiter  *rdb.RateLimiter
	)
	if cfg.Redis.Addr != "" {
		client, err := rdb.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.ConnectTimeout, lg)
		if err != nil {
			return err
		}
		defer client.Close()
		presence = rdb.NewPresenceStore(client, cfg.Redis.Prefix, cfg.PresenceTTL)
		if cfg.Redis.HTTPRateLimit > 0 {
			limiter = rdb.NewRateLimiter(client, cfg.Redis.Prefix, cfg.Redis.HTTPRateLimit, cfg.HTTPRateWindow)
		}

		relay := rdb.NewRoomRelay(client, cfg.Redis.RelayChannel, instanceID, rooms, lg)
		rooms.SetRelay(relay)
		go func() {
			if err := relay.Run(ctx); err != nil {
				lg.Errorw("room relay stopped", "err", err)
			}
		}()
	}

	notifier := handlers.NewNotifier(rooms, lg)
	if cfg.KafkaEnabled() {
		prod := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicMessageSent)
		defer prod.Close()
		chatSvc.WithEvents(prod, cfg.HandlerTimeout)

		cons := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicApplicationCreated, cfg.Kafka.GroupID, notifier, lg)
		defer cons.Close()
		go func() {
			if err := cons.Run(ctx); err != nil {
				lg.Errorw("application consumer stopped", "err", err)
			}
		}()
	}

	gw := ws.NewGateway(verifier, rooms, handlers.New(rooms, chatSvc, dir, lg).Table(), ws.Options{
		SendBuffer:     cfg.WS.SendBuffer,
		PingInterval:   cfg.PingInterval,
		PongWait:       cfg.PongWait,
		WriteWait:      cfg.WriteDeadline,
		MaxMessageSize: cfg.WS.MaxMessageSizeBytes,
		HandlerTimeout: cfg.HandlerTimeout,
		RateLimit:      cfg.WS.RateLimit,
		RateBurst:      cfg.WS.RateBurst,
	}, lg)

	deps := api.Deps{
		Gateway:       gw,
		Notifier:      notifier,
		Chat:          chatSvc,
		InternalToken: cfg.App.InternalToken,
		AccessLog:     cfg.Log.Development,
		Log:           lg,
	}
	if presence != nil {
		gw.WithPresence(presence)
		deps.Presence = presence
	}
	if limiter != nil {
		deps.Limiter = limiter
	}
	srv := api.NewServer(ctx, deps)

	errs := make(chan error, 1)
	go func() {
		lg.Infow("realtime service listening", "addr", cfg.Addr(), "instance", instanceID)
		errs <- srv.Listen(cfg.Addr())
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		lg.Info("shutdown signal received")
	}

	gw.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warnw("http shutdown", "err", err)
	}
	chatSvc.Wait()
	lg.Info("realtime service stopped")
	return nil
}
