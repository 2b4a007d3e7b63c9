package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"docsync/internal/access"
	"docsync/internal/api"
	"docsync/internal/config"
	"docsync/internal/crdt"
	"docsync/internal/events"
	"docsync/internal/room"
	"docsync/internal/routers"
	"docsync/internal/saver"
	"docsync/internal/storage"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err == nil {
		err = mongoClient.Ping(ctx, nil)
	}
	cancel()
	if err != nil {
		logger.Fatal("mongodb unreachable", zap.String("uri", cfg.MongoURI), zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(ctx)
	}()

	db := mongoClient.Database(cfg.MongoDB)
	store := storage.NewMongoStore(db, cfg.DocumentsCollection)
	verifier := access.NewMongoVerifier(db, cfg.DocumentsCollection)

	var publisher *events.Publisher
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		publisher = events.NewPublisher(rdb, logger)
		logger.Info("session events enabled", zap.String("redis", cfg.RedisAddr))
	}

	scheduler := saver.New(store, logger, cfg.SaveDebounce)
	registry := room.NewRegistry(room.Config{
		Log:         logger,
		Store:       store,
		Saver:       scheduler,
		NewDoc:      func() room.Doc { return crdt.New() },
		Events:      publisher,
		LoadTimeout: cfg.StorageTimeout,
	})

	handlers := api.NewHandlers(logger, registry, verifier, []byte(cfg.JWTSecret))

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           routers.New(handlers, cfg.CORSOrigin),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("docsync listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	graceCtx, graceCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer graceCancel()

	// Close the listener and connections first so no new edits arrive, then
	// drain every pending snapshot within the grace period.
	if err := server.Shutdown(graceCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	scheduler.FlushAll(graceCtx)
	logger.Info("shutdown complete")
}
