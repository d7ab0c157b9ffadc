package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"example.com/yatube/cmd/server"
	"example.com/yatube/cmd/worker"
	"example.com/yatube/internal/activity"
	"example.com/yatube/internal/blob"
	appkafka "example.com/yatube/internal/broker"
	config "example.com/yatube/internal/init"
	"example.com/yatube/internal/logger"
	"example.com/yatube/internal/middleware"
	"example.com/yatube/internal/pagecache"
	"example.com/yatube/internal/store"
)

var logg = logger.New()

func main() {
	cfg := config.Init()

	// SIGINT/SIGTERM trigger graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kafkaCfg := appkafka.KafkaConfig{
		Brokers:      appkafka.ParseBrokers(cfg.KafkaBroker),
		Topic:        cfg.KafkaTopic,
		Partition:    cfg.KafkaPartition,
		GroupID:      cfg.KafkaGroupID,
		WriteTimeout: cfg.KafkaWriteTO,
		ReadTimeout:  cfg.KafkaReadTO,
	}

	switch cfg.Mode {
	case "migrate":
		if err := store.Migrate(cfg.DatabaseURL); err != nil {
			log.Fatalf("Postgres migrations failed: %v", err)
		}
		if cfg.CassandraHost != "" {
			if err := activity.Migrate(cfg); err != nil {
				log.Fatalf("Cassandra migrations failed: %v", err)
			}
		}

	case "server":
		runServer(ctx, cfg, kafkaCfg)

	case "worker":
		if cfg.CassandraHost == "" || cfg.KafkaBroker == "" {
			log.Fatal("worker mode needs CASSANDRA_HOST and KAFKA_BROKER")
		}
		act, err := activity.New(cfg)
		if err != nil {
			log.Fatalf("Cassandra connection failed: %v", err)
		}
		w := worker.New(act, appkafka.NewKafkaReader(kafkaCfg), cfg.WorkerCount, cfg.WorkerQueueSize)
		w.Run(ctx)
		if err := w.Close(); err != nil {
			logg.Error("main", "Worker close failed", err)
		}

	default:
		log.Fatalf("unknown mode: %s", cfg.Mode)
	}

	log.Println("Shutdown completed")
}

func runServer(ctx context.Context, cfg *config.Config, kafkaCfg appkafka.KafkaConfig) {
	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("Postgres migrations failed: %v", err)
	}
	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Postgres connection failed: %v", err)
	}
	defer st.Close()

	var blobs blob.Store
	mediaRoot := ""
	switch strings.ToLower(cfg.MediaBackend) {
	case "s3":
		blobs, err = blob.NewS3Store(blob.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			log.Fatalf("S3 media store init failed: %v", err)
		}
	default:
		blobs = blob.NewFSStore(cfg.MediaRoot, cfg.MediaURL)
		mediaRoot = cfg.MediaRoot
	}

	var events appkafka.KafkaWriter = appkafka.NopWriter{}
	if cfg.KafkaBroker != "" {
		kw, err := appkafka.NewKafkaWriter(ctx, kafkaCfg)
		if err != nil {
			log.Fatalf("Kafka writer init failed: %v", err)
		}
		defer kw.Close()
		events = kw
	} else {
		logg.Warn("main", "KAFKA_BROKER not set, activity events are dropped", nil)
	}

	var act activity.StoreInterface
	if cfg.CassandraHost != "" {
		cs, err := activity.New(cfg)
		if err != nil {
			log.Fatalf("Cassandra connection failed: %v", err)
		}
		defer cs.Close()
		act = cs
	}

	secret := cfg.JWTSecret
	if secret == "" {
		secret = randomSecret()
		logg.Warn("main", "JWT_SECRET not set, sessions will not survive a restart", nil)
	}

	srv, err := server.New(server.Deps{
		Store:          st,
		Events:         events,
		Blobs:          blobs,
		Cache:          pagecache.NewMemoryStore().WithMaxEntries(cfg.IndexCacheMax),
		Activity:       act,
		Auth:           middleware.NewAuthenticator(secret, cfg.SessionTTL).WithUsers(st),
		IndexCacheTTL:  cfg.IndexCacheTTL,
		MaxUploadBytes: cfg.MaxUploadBytes,
		MediaRoot:      mediaRoot,
	})
	if err != nil {
		log.Fatalf("Server init failed: %v", err)
	}
	server.Run(ctx, srv, cfg.ServerAddr)
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatalf("generate session secret: %v", err)
	}
	return hex.EncodeToString(b)
}
