package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"golang.org/x/sync/errgroup"

	"librarysvc/internal/config"
	"librarysvc/internal/server"
	"librarysvc/internal/util"
	"librarysvc/pkg/bookstore"
	"librarysvc/pkg/intentlog"
	"librarysvc/pkg/lending"
	"librarysvc/pkg/patronstore"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	books, err := bookstore.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init book store: %v", err)
	}
	defer books.Close()

	mongoClient, patrons, err := connectPatronStore(cfg)
	if err != nil {
		log.Fatalf("failed to init patron store: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(ctx); err != nil {
			logger.Error("mongo disconnect", "err", err)
		}
	}()

	var intents intentlog.Log = intentlog.Noop{}
	if cfg.RedisAddr != "" {
		redisLog, err := intentlog.NewRedisLog(intentlog.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Fatalf("failed to init intent log: %v", err)
		}
		defer redisLog.Close()
		intents = redisLog
	}

	coordinator, err := lending.New(lending.Config{
		Books:    books,
		Patrons:  patrons,
		Intents:  intents,
		MaxBooks: cfg.MaxBooksPerPatron,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("failed to init lending coordinator: %v", err)
	}

	httpServer, err := server.New(server.Config{Lending: coordinator})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	public := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var g errgroup.Group
	slog.Info("library server listening", "addr", public.Addr)
	g.Go(public.ListenAndServe)

	if cfg.OpsPort != "" {
		ops := &http.Server{
			Addr:         ":" + cfg.OpsPort,
			Handler:      httpServer.OpsRouter(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		slog.Info("ops server listening", "addr", ops.Addr)
		g.Go(ops.ListenAndServe)
	}

	if err := g.Wait(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

// connectPatronStore owns the mongo client lifecycle: bounded connect and
// ping timeouts, indexes ensured up front, disconnect deferred in main.
func connectPatronStore(cfg config.FileConfig) (*mongo.Client, *patronstore.MongoStore, error) {
	storeTimeout := time.Duration(cfg.StoreTimeoutSeconds) * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.MongoURI).
		SetServerSelectionTimeout(storeTimeout).
		SetConnectTimeout(10*time.Second).
		SetTimeout(20*time.Second))
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, nil, err
	}

	patrons := patronstore.NewMongoStore(client.Database(cfg.MongoDatabase))
	if err := patrons.EnsureIndexes(ctx); err != nil {
		return nil, nil, err
	}
	return client, patrons, nil
}
