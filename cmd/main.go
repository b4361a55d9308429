/**
 * @description
 * This is the main entry point for the ledger-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, the message broker, the statistics cache, repositories, the core
 * application service, the backup retention job, and the HTTP server. It wires
 * everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Statistics snapshot cache.
 * - github.com/robfig/cron/v3: Backup retention schedule.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/smswatch/ledger-service/internal/api"
	"github.com/smswatch/ledger-service/internal/app"
	"github.com/smswatch/ledger-service/internal/config"
	"github.com/smswatch/ledger-service/internal/store"
	"github.com/smswatch/ledger-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url must be configured\" env=DATABASE_URL")
	}

	log.Printf("level=info component=bootstrap msg=\"starting ledger-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	// The ledger is write-light but the dashboard polls hard; keep a modest
	// floor of warm connections.
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer for ledger lifecycle events. The ledger
	// must keep accepting notifications when the broker is down, so a failed
	// producer degrades to a no-op fallback instead of aborting startup.
	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Optional Redis cache for the statistics snapshot. Missing or unreachable
	// Redis only disables caching.
	var statsCache *app.StatsCache
	if cfg.RedisURL == "" {
		log.Println("level=info component=bootstrap msg=\"redis url missing; statistics cache disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; statistics cache disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; statistics cache disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				statsCache = app.NewStatsCache(redisClient, cfg.RedisKeyPrefix, cfg.StatsCacheTTL())
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	opts := []app.Option{
		app.WithEventPublisher(producer),
		app.WithStatsLocation(cfg.StatsLocation()),
		app.WithRecentLimit(cfg.RecentLimit),
		app.WithZeroAmountMatching(cfg.AllowZeroAmountMatch),
	}
	if statsCache != nil {
		opts = append(opts, app.WithStatsCache(statsCache))
	}
	ledgerService := app.NewService(repository, opts...)

	// Wire up the broker ingestion path: gateways that cannot reach the HTTP
	// API publish the same payloads to the broker instead.
	smsConsumer := app.NewSMSConsumer(ledgerService)
	rabbitConsumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer unavailable; broker ingestion disabled\" err=%v", err)
	} else {
		defer rabbitConsumer.Close()
		ingestBindings := map[string]func([]byte) bool{
			"sms.transaction.received": smsConsumer.HandleTransaction,
			"sms.backup.received":      smsConsumer.HandleBackup,
		}
		if err := rabbitConsumer.ConsumeWithBindings(rabbitmq.LedgerExchange, cfg.IngestEventQueue, ingestBindings); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"sms consumer start failed\" err=%v", err)
		}
		log.Printf("level=info component=bootstrap msg=\"sms consumer started\" queue=%s", cfg.IngestEventQueue)
	}

	// Schedule the backup retention job. A non-positive retention count
	// disables pruning.
	scheduler := cron.New()
	if cfg.BackupRetentionCount > 0 {
		_, err := scheduler.AddFunc(cfg.BackupPruneSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := ledgerService.PruneBackups(ctx, cfg.BackupRetentionCount); err != nil {
				log.Printf("level=error component=retention msg=\"backup prune failed\" err=%v", err)
			}
		})
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"invalid backup prune schedule\" schedule=%q err=%v", cfg.BackupPruneSchedule, err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		log.Printf("level=info component=bootstrap msg=\"backup retention scheduled\" schedule=%q keep=%d", cfg.BackupPruneSchedule, cfg.BackupRetentionCount)
	}

	// Initialize the API handlers and router.
	handlers := api.NewLedgerHandlers(ledgerService)
	router := api.LedgerRoutes(handlers)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
