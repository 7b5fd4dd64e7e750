package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"messaging-service/internal/auth"
	"messaging-service/internal/bus"
	"messaging-service/internal/config"
	"messaging-service/internal/db"
	"messaging-service/internal/grpcserver"
	"messaging-service/internal/handlers"
	"messaging-service/internal/kafka"
	"messaging-service/internal/logging"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/presence"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/repositories/memory"
	"messaging-service/internal/repositories/mongostore"
	"messaging-service/internal/service"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "optional config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.IsDevelopment(), cfg.ServiceName)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("service stopped", zap.Error(err))
		os.Exit(1)
	}
}

type stores struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	users    repositories.UserDirectory
	pinger   grpcserver.Pinger
	close    func(context.Context) error
}

func openStores(ctx context.Context, cfg *config.Config, online repositories.OnlineChecker, logger *zap.Logger) (*stores, error) {
	switch cfg.Store.Backend {
	case config.StoreMongo:
		client, err := mongostore.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, err
		}
		store, err := mongostore.New(ctx, client.Database(cfg.Mongo.Database), online)
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return &stores{chats: store, messages: store, users: store, pinger: store, close: client.Disconnect}, nil
	case config.StoreMemory:
		var opts []memory.Option
		if online != nil {
			opts = append(opts, memory.WithPresence(online))
		}
		store := memory.New(opts...)
		return &stores{chats: store, messages: store, users: store, pinger: store, close: func(context.Context) error { return nil }}, nil
	default:
		database, err := db.Connect(ctx, cfg.DB.DSN, logger)
		if err != nil {
			return nil, err
		}
		users := repositories.NewUserDirectory(database, online)
		messages := repositories.NewMessageRepo(database, users)
		chats := repositories.NewChatRepo(database, users, messages)
		return &stores{
			chats:    chats,
			messages: messages,
			users:    users,
			pinger:   grpcserver.PingFunc(database.PingContext),
			close:    func(context.Context) error { return database.Close() },
		}, nil
	}
}

func openPublisher(cfg *config.Config, logger *zap.Logger) telemetry.Publisher {
	switch cfg.Broker.Kind {
	case config.BrokerKafka:
		return kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	case config.BrokerAMQP:
		return rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
	default:
		return rabbitmq.NewPublisher("", "", logger)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.OTel.Endpoint, cfg.ServiceName, cfg.Env)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	instanceID := uuid.NewString()
	logger = logger.With(zap.String("instance_id", instanceID))

	var (
		online      repositories.OnlineChecker
		tracker     *presence.Tracker
		busOpts     = []bus.Option{bus.WithQueueSize(cfg.Bus.QueueSize)}
		redisClient *redis.Client
	)
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		tracker = presence.NewTracker(redisClient, cfg.Redis.PresencePrefix, cfg.Redis.PresenceTTL)
		online = tracker
		busOpts = append(busOpts, bus.WithRelay(bus.NewRedisRelay(redisClient, cfg.Redis.RelayChannel, instanceID, logger)))
	} else {
		logger.Info("redis disabled, delivery stays on this instance and presence is off")
	}

	st, err := openStores(ctx, cfg, online, logger)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	publisher := openPublisher(cfg, logger)
	audit := telemetry.NewAuditEmitter(publisher, logger, "audit.messaging", cfg.ServiceName, cfg.Env)
	events := telemetry.NewEventEmitter(publisher, logger, cfg.Broker.Kind, "messaging.", cfg.ServiceName)

	delivery := bus.New(logger, busOpts...)
	svc := service.New(st.chats, st.messages, st.users, delivery, logger, service.WithEvents(events))
	validator := auth.NewValidator(cfg.JWT.Secret, cfg.JWT.Issuer)

	hub := ws.NewHub(publisher, logger)
	wsOpts := []ws.Option{ws.WithAllowedOrigins(cfg.WS.AllowedOrigins)}
	if tracker != nil {
		wsOpts = append(wsOpts, ws.WithPresence(tracker))
	}
	wsHandler := ws.NewHandler(hub, delivery, validator, logger, wsOpts...)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(cfg.ServiceName),
		middleware.RequestID(),
		middleware.Logger(logger),
		observability.HTTPMetricsMiddleware(),
	)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		if err := st.pinger.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ws", wsHandler.Handle)
	handlers.RegisterDebugRoutes(router, audit, delivery, cfg.Debug.Routes)

	api := router.Group("/", middleware.AuthMiddleware(validator))
	handlers.RegisterRoutes(api, handlers.NewChatHandler(svc, audit), handlers.NewMessageHandler(svc))

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	grpcServer := grpcserver.New(st.pinger, cfg.GRPC.HealthInterval, logger)
	grpcListener, err := net.Listen("tcp", ":"+cfg.GRPC.Port)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := grpcServer.Serve(grpcListener); err != nil {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		grpcServer.Watch(gctx)
		return nil
	})
	g.Go(func() error {
		if err := delivery.RunRelay(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("bus relay: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		hub.CloseAll()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.Stop()
		if cerr := publisher.Close(); cerr != nil {
			logger.Warn("publisher close failed", zap.Error(cerr))
		}
		if cerr := st.close(shutdownCtx); cerr != nil {
			logger.Warn("store close failed", zap.Error(cerr))
		}
		if redisClient != nil {
			_ = redisClient.Close()
		}
		if cerr := shutdownTracing(shutdownCtx); cerr != nil {
			logger.Warn("tracing shutdown failed", zap.Error(cerr))
		}
		return err
	})

	return g.Wait()
}
