package main

import (
	"context"
	"crypto"
	"database/sql"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"backoffice/backend/internal/audit"
	auditrepo "backoffice/backend/internal/audit/repository"
	"backoffice/backend/internal/config"
	"backoffice/backend/internal/credential"
	credentialrepo "backoffice/backend/internal/credential/repository"
	"backoffice/backend/internal/db"
	healthhandler "backoffice/backend/internal/health/handler"
	identityhandler "backoffice/backend/internal/identity/handler"
	identityservice "backoffice/backend/internal/identity/service"
	"backoffice/backend/internal/invite"
	"backoffice/backend/internal/mfa"
	mfarepo "backoffice/backend/internal/mfa/repository"
	"backoffice/backend/internal/notify"
	"backoffice/backend/internal/policy/engine"
	policyrepo "backoffice/backend/internal/policy/repository"
	"backoffice/backend/internal/security"
	"backoffice/backend/internal/server"
	"backoffice/backend/internal/server/interceptors"
	"backoffice/backend/internal/telemetry"
	otelsetup "backoffice/backend/internal/telemetry/otel"
	userrepo "backoffice/backend/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var emitter telemetry.EventEmitter
	if cfg.OTelEndpoint != "" {
		providers, err := otelsetup.NewProviders(ctx, otelsetup.Config{
			Endpoint:    cfg.OTelEndpoint,
			ServiceName: cfg.OTelServiceName,
			Environment: cfg.Env,
			Insecure:    cfg.OTelInsecure,
		})
		if err != nil {
			log.Fatalf("otel: %v", err)
		}
		providers.SetGlobal()
		emitter = otelsetup.NewEventEmitter(providers.LoggerProvider)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := providers.Shutdown(shutdownCtx); err != nil {
				log.Printf("otel: shutdown: %v", err)
			}
		}()
	}

	var (
		conn    *sql.DB
		users   userrepo.Repository
		tokens  credentialrepo.Repository
		auditDB auditrepo.Repository
	)
	if cfg.DatabaseURL != "" {
		conn, err = db.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer conn.Close()
		users = userrepo.NewPostgresRepository(conn)
		tokens = credentialrepo.NewPostgresRepository(conn)
		auditDB = auditrepo.NewPostgresRepository(conn)
	} else {
		log.Println("DATABASE_URL not set; using in-memory repositories (data is lost on restart)")
		users = userrepo.NewMemoryRepository()
		tokens = credentialrepo.NewMemoryRepository()
		auditDB = auditrepo.NewMemoryRepository()
	}

	var (
		challenges mfarepo.Repository
		cache      healthhandler.CachePinger
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		redisChallenges := mfarepo.NewRedisRepository(client, "", nil)
		challenges, cache = redisChallenges, redisChallenges
	} else {
		challenges = mfarepo.NewMemoryRepository(nil)
	}

	policyFile, err := policyrepo.NewFileRepository(cfg.PolicyFile)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}
	evaluator := engine.NewOPAEvaluator(policyFile)
	if err := evaluator.Validate(ctx); err != nil {
		log.Fatalf("policy: %v", err)
	}

	privateKey, publicKey, err := loadKeys(cfg)
	if err != nil {
		log.Fatalf("jwt keys: %v", err)
	}
	sessions := security.NewTokenProvider(privateKey, publicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.SessionTTL())

	var notifier notify.Notifier
	switch {
	case cfg.DevOutbox:
		log.Println("DEV_OUTBOX enabled; invite and reset emails are kept in memory")
		notifier = notify.NewMemoryOutbox()
	case cfg.MailConfigured():
		notifier = notify.NewHTTPMailClient(cfg.MailAPIKey, cfg.MailAPIURL, cfg.MailFrom)
	default:
		log.Println("mail not configured; invite and reset emails will fail to send")
	}

	auditLogger := audit.NewLogger(auditDB, interceptors.ClientIP, emitter)
	store := credential.NewStore(tokens, users, nil)
	invites := invite.NewService(store, users, notifier, auditLogger, cfg.InviteTTL(), cfg.ResetTTL())
	auth := identityservice.NewAuthService(
		users,
		invites,
		challenges,
		mfa.NewTOTP(cfg.TOTPSkew),
		security.NewHasher(cfg.BcryptCost),
		sessions,
		evaluator,
		auditLogger,
		identityservice.Config{
			TOTPIssuer:   cfg.TOTPIssuer,
			ChallengeTTL: cfg.MFAChallengeTTL(),
			MaxAttempts:  cfg.MFAMaxAttempts,
		},
	)

	var dbPinger healthhandler.Pinger
	if conn != nil {
		dbPinger = conn
	}
	checker := healthhandler.NewChecker(dbPinger, cache, evaluator, identityhandler.ServiceName)
	go checker.Run(ctx, healthhandler.DefaultInterval)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	s := server.NewServer(server.Deps{
		Auth:    auth,
		Invites: invites,
		BaseURL: cfg.AppBaseURL,
		Tokens:  sessions,
		Emitter: emitter,
		Health:  checker,
	})

	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := s.Serve(lis); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down gRPC server...")
	checker.Shutdown()
	cancel()
	s.GracefulStop()
	if emitter != nil {
		// Let in-flight audit and telemetry events finish before providers shut down.
		time.Sleep(telemetry.ShutdownDrainDuration)
	}
	log.Println("gRPC server stopped")
}

// loadKeys parses JWT_PRIVATE_KEY/JWT_PUBLIC_KEY, or generates an ephemeral pair outside production.
func loadKeys(cfg *config.Config) (crypto.Signer, crypto.PublicKey, error) {
	if cfg.JWTPrivateKey == "" {
		log.Println("JWT keys not set; using an ephemeral ES256 key (sessions end on restart)")
		return security.NewEphemeralKeyPair()
	}
	return security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
}
