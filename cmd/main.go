package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/shopspring/decimal"

	"foodhub/internal/cache"
	"foodhub/internal/catalog"
	"foodhub/internal/config"
	"foodhub/internal/database"
	"foodhub/internal/httpx"
	"foodhub/internal/logger"
	"foodhub/internal/messaging"
	"foodhub/internal/realtime"
	"foodhub/internal/services/notification"
	"foodhub/internal/services/notification/journal"
	"foodhub/internal/services/order"
	"foodhub/internal/services/tracking"
	"foodhub/internal/telemetry"
)

func main() {
	var (
		mode       = flag.String("mode", "order-service", "Service mode (order-service, notification-subscriber)")
		port       = flag.Int("port", 0, "HTTP port, overrides server.port")
		configPath = flag.String("config", "config.yaml", "Path to the YAML configuration file")
		prefetch   = flag.Int("prefetch", 10, "RabbitMQ prefetch count")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	// money goes over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	log := logger.New(*mode)
	requestID := logger.GenerateRequestID()

	log.Info("service_started", fmt.Sprintf("Starting %s", *mode), requestID, map[string]interface{}{
		"mode": *mode,
		"port": cfg.Server.Port,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "order-service":
		if err := runOrderService(ctx, cfg, log, *prefetch); err != nil {
			log.Error("service_failed", "Order service failed", requestID, err, nil)
			os.Exit(1)
		}
	case "notification-subscriber":
		if err := runNotificationSubscriber(ctx, cfg, log, *prefetch); err != nil {
			log.Error("service_failed", "Notification subscriber failed", requestID, err, nil)
			os.Exit(1)
		}
	default:
		log.Error("validation_failed", fmt.Sprintf("Unknown mode: %s", *mode), requestID, nil, nil)
		os.Exit(1)
	}

	log.Info("service_stopped", "Service stopped gracefully", requestID, nil)
}

// runOrderService serves the order, tracking and event endpoints
func runOrderService(ctx context.Context, cfg *config.Config, log *logger.Logger, prefetch int) error {
	requestID := logger.GenerateRequestID()

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("tracer_shutdown_failed", "Failed to flush traces", requestID, map[string]interface{}{"error": err.Error()})
		}
	}()

	db, err := database.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	log.Info("db_connected", "Connected to PostgreSQL database", requestID, nil)

	if err := db.RunMigrations(ctx, cfg.Database.Migrations); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	checks := map[string]tracking.CheckFunc{}

	// without a reachable redis, idempotency keys are only shared by requests
	// that reach this instance
	var idem cache.Idempotency = cache.NewMemoryCache("order-service")
	if cfg.Redis.Addr != "" {
		rc := cache.NewRedisCache(cfg.Redis.Addr, "order-service")
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			log.Warn("redis_unavailable", "Redis unreachable, keeping idempotency keys in process", requestID, map[string]interface{}{
				"addr":  cfg.Redis.Addr,
				"error": err.Error(),
			})
		} else {
			idem = rc
			checks["redis"] = rc.Ping
			log.Info("redis_connected", "Connected to Redis", requestID, nil)
		}
	}

	var (
		recorder notification.Recorder
		history  notification.History
	)
	if cfg.Journal.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Journal.Path), 0o755); err != nil {
			return fmt.Errorf("failed to create journal directory: %w", err)
		}
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("failed to open notification journal: %w", err)
		}
		defer j.Close()
		recorder, history = j, j
	}

	hub := realtime.NewHub(cfg.Realtime.BufferSize)

	var broker notification.Broker
	var conn *messaging.Connection
	if cfg.BrokerEnabled() {
		conn, err = messaging.New(cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize messaging: %w", err)
		}
		defer conn.Close()

		log.Info("rabbitmq_connected", "Connected to RabbitMQ", requestID, nil)

		publisher := messaging.NewPublisher(conn, log)
		broker = publisher
		checks["rabbitmq"] = func(context.Context) error {
			if conn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}
	}

	fanout := notification.NewFanout(hub, broker, recorder, log)

	if conn != nil {
		relay := messaging.NewRelayConsumer(conn, log, fmt.Sprintf("relay-%s", requestID), prefetch)
		defer relay.Close()
		runner := messaging.NewRunner("relay", func(ctx context.Context) error {
			return relay.StartConsuming(ctx, fanout.HandleRelay)
		}, log)
		go runner.Run(ctx)
		checks["relay"] = runner.Check
	}

	directory := catalog.NewPostgres(db)
	pricer := order.NewPricer(directory, directory, cfg.Orders.StrictHubCheck, cfg.Orders.LookupConcurrency)
	store := order.NewPostgresStore(db, log)

	orderService := order.NewService(store, pricer, fanout, idem, order.Options{
		EnforceTransitions: cfg.Orders.EnforceTransitions,
		IdempotencyTTL:     cfg.Redis.IdempotencyTTL,
		PendingTTL:         cfg.Redis.PendingTTL,
	}, log)

	trackingService := tracking.NewService(store, cfg.Orders.RedactForeignSubOrders, log)
	for name, check := range checks {
		trackingService.AddCheck(name, check)
	}

	router := httpx.NewRouter(log,
		order.NewHandler(orderService, cfg.Server.RequestTimeout, log),
		tracking.NewHandler(trackingService, log),
		notification.NewHandler(hub, history, cfg.Realtime.KeepAliveInterval, log),
	)

	server := httpx.NewServer(cfg.Server.Port, router, hub.Close)

	errCh := make(chan error, 1)
	go func() {
		log.Info("service_started", fmt.Sprintf("Order Service started on port %d", cfg.Server.Port), requestID, map[string]interface{}{
			"port":   cfg.Server.Port,
			"broker": cfg.BrokerEnabled(),
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	log.Info("graceful_shutdown", "Shutting down HTTP server", requestID, nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// runNotificationSubscriber prints every event published on the broker
func runNotificationSubscriber(ctx context.Context, cfg *config.Config, log *logger.Logger, prefetch int) error {
	if !cfg.BrokerEnabled() {
		return errors.New("notification subscriber requires rabbitmq configuration")
	}

	conn, err := messaging.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	consumer := messaging.NewConsumer(conn, log, messaging.NotificationsQueue, "notification-subscriber", prefetch)
	subscriber := notification.NewSubscriber(consumer, log)

	return subscriber.Start(ctx)
}
