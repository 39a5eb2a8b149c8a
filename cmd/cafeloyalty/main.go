package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/theheadmen/cafeloyalty/internal/dbconnector"
	"github.com/theheadmen/cafeloyalty/internal/notify"
	"github.com/theheadmen/cafeloyalty/internal/ratelimit"
	"github.com/theheadmen/cafeloyalty/internal/security"
	"github.com/theheadmen/cafeloyalty/internal/server"
	"github.com/theheadmen/cafeloyalty/internal/serverconfig"
	"github.com/theheadmen/cafeloyalty/internal/service"
)

func main() {
	configStore := serverconfig.NewConfigStore()
	if err := configStore.ParseFlags(); err != nil {
		log.Fatal().Err(err).Msg("failed to read configuration")
	}
	configStore.SetupLogger()

	if configStore.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := dbconnector.OpenDBConnect(configStore.DatabaseURI)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := db.DBInitialize(); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}

	var notifier service.Notifier = service.NopNotifier{}
	twilio := notify.TwilioConfig{
		AccountSID:  configStore.TwilioAccountSID,
		AuthToken:   configStore.TwilioAuthToken,
		From:        configStore.TwilioPhoneNumber,
		BaseURL:     configStore.TwilioBaseURL,
		CountryCode: configStore.SMSCountryCode,
	}
	if twilio.Enabled() {
		dispatcher := notify.NewDispatcher(notify.NewTwilioClient(twilio, nil), 256)
		go dispatcher.Run(ctx)
		notifier = dispatcher
	} else {
		log.Warn().Msg("twilio credentials missing, sms notifications disabled")
	}

	ls := server.NewServerSystem(
		db,
		notifier,
		service.NewRandomSource(time.Now().UnixNano()),
		security.NewTokenManager(configStore.JWTSecret, configStore.TokenTTL),
		security.NewPasswordHasher(0),
	)
	ls.SuperAdminEmail = configStore.SuperAdminEmail
	if configStore.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: configStore.RedisAddr})
		defer rdb.Close()
		limiter, err := ratelimit.NewRateLimiter(rdb, configStore.TrustedProxies)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid TRUSTED_PROXIES")
		}
		ls.Limiter = limiter
		ls.RateLimit = configStore.RateLimit
	}
	srv := ls.MakeServer(configStore.RunAddr)

	server.MakeGorutineToReconcileVisits(ctx, ls, configStore.ReconcileInterval, configStore.ReconcileGrace)

	go func() {
		log.Info().Str("addr", configStore.RunAddr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	log.Info().Msg("server stopped")
}
