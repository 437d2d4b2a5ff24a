package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	acctrepo "audit-central/backend/internal/account/repository"
	"audit-central/backend/internal/activity"
	activityrepo "audit-central/backend/internal/activity/repository"
	"audit-central/backend/internal/auth"
	"audit-central/backend/internal/config"
	"audit-central/backend/internal/db"
	"audit-central/backend/internal/notify"
	"audit-central/backend/internal/otp"
	refreshrepo "audit-central/backend/internal/refresh/repository"
	"audit-central/backend/internal/security"
	sessionrepo "audit-central/backend/internal/session/repository"
	"audit-central/backend/internal/server"
	tenantrepo "audit-central/backend/internal/tenant/repository"
	"audit-central/backend/internal/token"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	pg, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Error("postgres", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	accounts := acctrepo.NewPostgresRepository(pg)
	sessions := sessionrepo.NewPostgresRegistry(pg, cfg.SessionTTL())
	refresh := refreshrepo.NewPostgresStore(pg, cfg.RefreshTTL())
	tenants := tenantrepo.NewPostgresLookup(pg)

	hasher := security.NewHasher(cfg.BcryptCost)
	provider := security.NewTokenProvider([]byte(cfg.JWTKey), cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	codec := security.NewCodec(cfg.TokenEncryptionKey)

	issuer := token.NewIssuer(provider, sessions, refresh, tenants, cfg.TokenHashKey, cfg.SessionTTL())
	validator := token.NewValidator(provider, sessions, accounts, tenants)

	codes := otp.NewStore(redisClient, cfg.OTPTTL())
	notifier := notify.NewSMTPNotifier(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort), cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
	recorder := activity.NewRecorder(activityrepo.NewPostgresRepository(pg), logger)

	svc := auth.NewService(accounts, accounts, sessions, refresh, tenants,
		hasher, issuer, validator, codes, notifier, recorder, logger)

	srv := server.New(cfg.HTTPAddr, svc, codec, logger)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("http server stopped")
}
