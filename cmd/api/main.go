package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/inboxly/mail-assistant/internal/config"
	gateway "github.com/inboxly/mail-assistant/internal/gateways"
	"github.com/inboxly/mail-assistant/internal/handlers"
	"github.com/inboxly/mail-assistant/internal/model"
	"github.com/inboxly/mail-assistant/internal/queue"
	"github.com/inboxly/mail-assistant/internal/repository"
	"github.com/inboxly/mail-assistant/internal/services"
	xhttp "github.com/inboxly/mail-assistant/pkg/http"
	"github.com/inboxly/mail-assistant/pkg/logger"
	"github.com/inboxly/mail-assistant/pkg/pg"
	"github.com/inboxly/mail-assistant/pkg/prom"
	"github.com/inboxly/mail-assistant/pkg/redis"
	"github.com/inboxly/mail-assistant/pkg/secrets"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	// transport (tcp for now)
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(time.Second * 5))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	paymentClient, err := gateway.NewClient(&gateway.Config{
		APIBaseURL:              config.Get().PaymentAPIBaseURL,
		APIKey:                  config.Get().PaymentAPIKey,
		WebhookSecret:           config.Get().PaymentWebhookSecret,
		Timeout:                 config.Get().PaymentTimeout,
		MaxRetries:              config.Get().PaymentMaxRetries,
		RequestsPerSecond:       config.Get().PaymentRequestsPerSecond,
		CircuitBreakerThreshold: config.Get().PaymentBreakerThreshold,
		CircuitBreakerTimeout:   config.Get().PaymentBreakerTimeout,
	})
	if err != nil {
		logger.Error("failed to create payment gateway client", "error", err)
		return
	}

	jobQueue, err := queue.New(redisAdap, queue.Config{
		Name:              config.Get().QueueName,
		ConsumerGroup:     config.Get().QueueConsumerGroup,
		ConsumerName:      config.Get().QueueConsumerName,
		MaxRetries:        config.Get().QueueMaxRetries,
		VisibilityTimeout: config.Get().QueueVisibilityTimeout,
		PollInterval:      config.Get().QueuePollInterval,
		BatchSize:         config.Get().QueueBatchSize,
		MaxLen:            config.Get().QueueMaxLen,
		EnableDLQ:         config.Get().QueueEnableDLQ,
	})
	if err != nil {
		logger.Error("failed creating queue", "error", err)
		return
	}

	box, err := secrets.NewBox(config.Get().SecretsKey)
	if err != nil {
		logger.Error("failed to load secrets key", "error", err)
		return
	}

	ledgerRepo := repository.NewTransactionRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// services
	billingService := services.NewBillingService(ledgerRepo, userRepo, auditRepo, paymentClient, services.BillingConfig{
		Enabled:         config.Get().BillingEnabled,
		Packages:        model.DefaultCreditPackages(),
		SuccessURL:      config.Get().BillingSuccessURL,
		CancelURL:       config.Get().BillingCancelURL,
		PortalReturnURL: config.Get().BillingPortalReturnURL,
	})
	userService := services.NewUserService(userRepo, auditRepo, box)
	healthService := services.NewHealthService()
	healthService.AddCheck("redis", redisPinger{redisAdap})

	// v1 handlers
	billingHandler := handlers.NewBillingHandler(billingService)
	userHandler := handlers.NewUserHandler(userService)
	jobHandler := handlers.NewJobHandler(jobQueue)
	healthHandler := handlers.NewHealthHandler(healthService)

	g := s.Router.Group("/api/v1")
	handlers.RegisterBillingRoutes(g, billingHandler)
	handlers.RegisterUserRoutes(g, userHandler)
	handlers.RegisterJobRoutes(g, jobHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, config.Get().AppEnv, config.Get().PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	go func() {
		prom.ListenAndServer(":9090", "/metrics")
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(config.Get().HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	select {
	case <-c:
		s.Shutdown()
	}
}

type redisPinger struct {
	adapter redis.RedisAdapter
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.adapter.Client().Ping(ctx).Err()
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
