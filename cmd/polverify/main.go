package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/adapters/events"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/adapters/store"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/adapters/tokenizer"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/antireplay"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/challenge"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/config"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/ledger"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/logger"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/ports"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/service"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/transport/http"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("polverify stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, zl *zap.Logger) error {
	privateKey, err := signingKey(cfg.SigningKeyPath, zl)
	if err != nil {
		return err
	}

	var (
		ledgerStore ports.LedgerStore = store.NewMemoryLedgerStore()
		publisher   message.Publisher
		wmLogger    = logger.NewWatermill(zl.Named("watermill"))
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach Redis: %w", err)
		}

		ledgerStore = store.NewRedisLedgerStore(redisClient)
		publisher, err = redisstream.NewPublisher(redisstream.PublisherConfig{Client: redisClient}, wmLogger)
		if err != nil {
			return fmt.Errorf("failed to create Redis publisher: %w", err)
		}
	} else {
		zl.Warn("REDIS_URL not set, tokens are kept in memory and events are not delivered")
		publisher = gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
	}
	defer publisher.Close()

	var users ports.UserRecordStore = store.NewMemoryUserStore()
	if cfg.SQLitePath != "" {
		db, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer db.Close()
		users = store.NewSQLiteUserStore(db)
	} else {
		zl.Warn("POL_SQLITE_PATH not set, enrollments are kept in memory")
	}

	eventPub := events.NewWatermillPublisher(publisher)
	ldg := ledger.New(ledgerStore,
		ledger.WithTokenizer(tokenizer.NewJWTTokenizer(privateKey)),
		ledger.WithEvents(eventPub),
		ledger.WithLogger(zl.Named("ledger")),
		ledger.WithValidity(cfg.TokenValidity),
	)
	guard := antireplay.NewGuard(antireplay.Config{
		MaxChallengeAge:     cfg.MaxChallengeAge,
		MinVerificationTime: cfg.MinVerificationTime,
		RateLimitMax:        cfg.RateLimitMax,
		RateLimitWindow:     cfg.RateLimitWindow,
	})
	fallback, err := service.ParseMatchFallback(cfg.MatchFallback)
	if err != nil {
		return err
	}
	coordinator := service.NewCoordinator(users, challenge.NewGenerator(), guard, ldg,
		service.WithConfig(service.Config{
			ChallengeTimer:     cfg.ChallengeTimer,
			FrameInterval:      cfg.FrameInterval,
			MatchFallback:      fallback,
			FallbackMatchScore: cfg.FallbackMatchScore,
		}),
		service.WithEvents(eventPub),
		service.WithLogger(zl.Named("coordinator")),
	)
	enroller := service.NewEnroller(users, service.WithEnrollerLogger(zl.Named("enroller")))

	sessions := http.NewRegistry(zl.Named("sessions"), http.WithSessionTTL(cfg.SessionTTL))
	defer sessions.Close()

	gin.SetMode(gin.ReleaseMode)
	handlers := http.NewHandlers(coordinator, enroller, users, ldg, sessions, zl.Named("http"))
	router := http.SetupRouter(handlers, http.RouterConfig{RatePerSecond: cfg.HTTPRatePerSecond}, zl.Named("http"))

	server := &nethttp.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		zl.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// signingKey loads the ES256 attestation key, or generates an ephemeral one
// when no path is configured
func signingKey(path string, zl *zap.Logger) (*ecdsa.PrivateKey, error) {
	if path == "" {
		zl.Warn("POL_SIGNING_KEY not set, attestations are signed with an ephemeral key")
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	return key, nil
}
