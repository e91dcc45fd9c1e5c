package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-lifecycle/internal/api"
	"github.com/akylbek/payment-system/payment-lifecycle/internal/config"
	"github.com/akylbek/payment-system/payment-lifecycle/internal/gateway"
	"github.com/akylbek/payment-system/payment-lifecycle/internal/notifier"
	"github.com/akylbek/payment-system/payment-lifecycle/internal/repository"
	"github.com/akylbek/payment-system/payment-lifecycle/internal/scheduler"
	"github.com/akylbek/payment-system/payment-lifecycle/internal/service"
	"github.com/akylbek/payment-system/payment-lifecycle/internal/telemetry"
)

func main() {
	// Load configuration (.env is optional in containers)
	_ = godotenv.Load()
	cfg := config.Load()

	// Initialize telemetry
	if err := telemetry.InitTelemetry("payment-lifecycle"); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Payment Lifecycle Orchestrator")

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize repository
	repo := repository.NewPaymentRepository(db)
	if err := repo.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	// Connect to Redis (refund lock)
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})
	locker := service.NewRedisLocker(redisClient)

	// Kafka writer for status-change events
	kafkaWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers),
		Topic:    cfg.KafkaTopic,
		Balancer: &kafka.LeastBytes{},
	}
	defer kafkaWriter.Close()

	// Notification channels
	notify := notifier.NewMulti(
		notifier.NewKafkaNotifier(kafkaWriter),
		notifier.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID),
	)

	// Gateway client
	gatewayClient := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayShopID,
		cfg.GatewaySecret, cfg.GatewayTimeout)

	// Orchestrator and scheduler
	orchestrator := service.NewOrchestrator(repo, gatewayClient, notify, locker,
		cfg.ReturnURL, cfg.RecurringIntervalDays)

	schedCtx, stopScheduler := context.WithCancel(context.Background())
	sched := scheduler.New(orchestrator, repo, cfg.SweepInterval,
		cfg.RetryCheckDelay, cfg.SchedulerWorkers)
	go sched.Run(schedCtx)

	// Setup HTTP server
	r := api.NewRouter(orchestrator)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Payment Lifecycle Orchestrator starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	stopScheduler()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
}
