package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/genclean-otp/internal/application/otp"
	"github.com/genclean-otp/internal/application/registration"
	"github.com/genclean-otp/internal/config"
	"github.com/genclean-otp/internal/domain"
	"github.com/genclean-otp/internal/infrastructure/dynamo"
	jwtinfra "github.com/genclean-otp/internal/infrastructure/jwt"
	"github.com/genclean-otp/internal/infrastructure/memory"
	"github.com/genclean-otp/internal/infrastructure/postgres"
	redisinfra "github.com/genclean-otp/internal/infrastructure/redis"
	"github.com/genclean-otp/internal/infrastructure/smtp"
	"github.com/genclean-otp/internal/infrastructure/sns"
	"github.com/genclean-otp/internal/infrastructure/ws"
	transporthttp "github.com/genclean-otp/internal/transport/http"
	"github.com/genclean-otp/internal/transport/http/middleware"
	"github.com/joho/godotenv"
)

type registrationStore interface {
	Get(ctx context.Context, email string) (*domain.Registration, error)
	Put(ctx context.Context, r *domain.Registration, ttl time.Duration) error
	Delete(ctx context.Context, email string) error
}

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	ctx := context.Background()

	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	var dynamoClient *dynamodb.Client
	if cfg.OTPStore == config.BackendDynamo || cfg.UserStore == config.BackendDynamo {
		c, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			log.Fatalf("dynamo client: %v", err)
		}
		dynamoClient = c
	}

	// OTP entries and staged registrations share one backend.
	var (
		codeStore otp.Store
		regStore  registrationStore
	)
	switch cfg.OTPStore {
	case config.BackendMemory:
		opts := memory.Options{SweepEvery: cfg.StoreSweepInterval}
		cs, rs := memory.NewCodeStore(opts), memory.NewRegistrationStore(opts)
		closers = append(closers, cs, rs)
		codeStore, regStore = cs, rs
	case config.BackendRedis:
		rc := redisinfra.NewClient(cfg)
		if err := rc.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis ping: %v", err)
		}
		closers = append(closers, rc)
		codeStore, regStore = redisinfra.NewCodeStore(rc), redisinfra.NewRegistrationStore(rc)
	case config.BackendDynamo:
		dynamo.BootstrapCodes(ctx, dynamoClient, cfg.DynamoTables)
		codeStore = dynamo.NewCodeRepo(dynamoClient, cfg.DynamoTables.OTPCodes)
		regStore = dynamo.NewRegistrationRepo(dynamoClient, cfg.DynamoTables.Registrations)
	default:
		log.Fatalf("unknown OTP_STORE %q", cfg.OTPStore)
	}

	var users userStore
	switch cfg.UserStore {
	case config.BackendMemory:
		users = memory.NewUserStore()
	case config.BackendDynamo:
		dynamo.BootstrapUsers(ctx, dynamoClient, cfg.DynamoTables)
		users = dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users)
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		repo := postgres.NewUserRepo(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatalf("postgres schema: %v", err)
		}
		users = repo
	default:
		log.Fatalf("unknown USER_STORE %q", cfg.UserStore)
	}

	mailer := smtp.NewMailer(cfg)
	hub := ws.NewHub(cfg.AllowedOrigins)
	defer hub.Close()

	registry := otp.NewRegistry(codeStore, otp.Options{Window: cfg.OTPWindow, Cooldown: cfg.OTPResendCooldown})
	regDeps := registration.ServiceDeps{
		Codes:         registry,
		Registrations: regStore,
		Users:         users,
		Mailer:        mailer,
		Events:        hub,
		TTL:           cfg.RegistrationTTL,
	}
	deps := &transporthttp.Deps{
		OTP:    otp.NewService(registry, mailer),
		Events: hub,
	}

	// JWT provider (optional, admin routes answer 401 without it).
	// Assigned only when non-nil so the interfaces stay truly nil otherwise.
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		regDeps.Signer = p
		deps.Verifier = middleware.Verifier(p)
	} else {
		log.Printf("WARN: JWT provider not available: %v", err)
	}

	// SNS SMS sender (optional).
	if cfg.SNSEnabled {
		if sender, err := sns.NewSender(ctx, cfg); err == nil {
			regDeps.SMS = sender
		} else {
			log.Printf("WARN: SNS sender not available: %v", err)
		}
	}

	deps.Registrations = registration.NewService(regDeps)
	router, limiter := transporthttp.NewRouter(cfg, deps)
	defer limiter.Stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s, otp_store=%s, user_store=%s)",
			cfg.AppPort, cfg.AppEnv, cfg.OTPStore, cfg.UserStore)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
