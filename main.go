package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"vibeconnect/chat"
	"vibeconnect/config"
	"vibeconnect/database"
	"vibeconnect/database/memory"
	"vibeconnect/database/mongodb"
	"vibeconnect/events"
	"vibeconnect/feed"
	"vibeconnect/graph"
	"vibeconnect/handlers"
	"vibeconnect/logger"
	"vibeconnect/metrics"
	"vibeconnect/middleware"
	"vibeconnect/realtime"
	"vibeconnect/storage"
	"vibeconnect/users"
	"vibeconnect/utils"
)

// store is everything the services need from a backend.
type store interface {
	users.Store
	graph.Store
	chat.Store
	feed.Store
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store, func(), error) {
	switch cfg.StoreDriver {
	case "mysql":
		db, err := database.Connect(ctx, cfg.MysqlDSN, log)
		if err != nil {
			return nil, nil, err
		}
		s := database.NewStore(db, log)
		if err := s.CreateTables(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil

	case "mongo":
		client, err := mongodb.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		s := mongodb.New(client.Database(cfg.MongoDatabase), log)
		if err := s.EnsureIndexes(ctx); err != nil {
			client.Disconnect(context.Background())
			return nil, nil, err
		}
		closeFn := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client.Disconnect(ctx)
		}
		return s, closeFn, nil

	default:
		log.Warn("using in-memory store; data is lost on restart")
		return memory.New(), func() {}, nil
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	files, err := storage.NewLocal(cfg.UploadDir)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector("vibeconnect")
	hub := realtime.NewHub(log, collector)

	var notifier events.Notifier = hub
	var relay *realtime.RedisRelay
	if cfg.RedisAddr != "" {
		rdb, err := database.ConnectRedis(ctx, database.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		relay = realtime.NewRedisRelay(rdb, cfg.RedisChannel, hub, log, collector)
		notifier = relay
	}

	retry := utils.NewRetrier(cfg.StoreTimeout, cfg.StoreRetries, log.Named("store"))
	verifier := utils.NewTokenVerifier(cfg.JWTSecret)

	graphSvc := graph.NewService(st, notifier, retry, log)
	chatSvc := chat.NewService(st, notifier, retry, log)
	feedSvc := feed.NewService(st, graphSvc, notifier, retry, log)
	usersSvc := users.NewService(st, retry, log)

	ws := realtime.NewServer(realtime.ServerConfig{
		Hub:            hub,
		Notifier:       notifier,
		Chat:           chatSvc,
		Gate:           graphSvc,
		Verifier:       verifier,
		AllowedOrigins: cfg.CORSOrigins,
		Logger:         log,
		Metrics:        collector,
	})

	if err := utils.RegisterValidators(); err != nil {
		return err
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log, collector), middleware.CORS(cfg.CORSOrigins))

	h := handlers.New(handlers.Deps{
		Users:  usersSvc,
		Graph:  graphSvc,
		Chat:   chatSvc,
		Feed:   feedSvc,
		Files:  files,
		Logger: log,
	})
	h.Register(r, middleware.Auth(verifier), ws.ServeWS, collector.Handler())

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(ctx)
	})
	if relay != nil {
		g.Go(func() error {
			return relay.Run(ctx)
		})
	}
	g.Go(func() error {
		log.Info("server starting", zap.String("addr", cfg.ServerAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
