package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/betfoundry/playerlink/internal/api"
	"github.com/betfoundry/playerlink/internal/config"
	"github.com/betfoundry/playerlink/internal/database"
	"github.com/betfoundry/playerlink/internal/livechannel"
	"github.com/betfoundry/playerlink/internal/logger"
	"github.com/betfoundry/playerlink/internal/models"
	"github.com/betfoundry/playerlink/internal/notification"
	"github.com/betfoundry/playerlink/internal/recorder"
	"github.com/betfoundry/playerlink/internal/session"
	"github.com/betfoundry/playerlink/internal/wallet"
)

func main() {
	// Parse command-line arguments
	envFile := flag.String("envFile", ".env", "Path to .env file")
	flag.Parse()

	// Load environment variables from the specified file
	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("No .env file found at %s, using environment variables", *envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg := logger.New(cfg.LogLevel)

	// Expose Prometheus metrics
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":"+cfg.MetricsPort, nil); err != nil {
			logg.Error().Err(err).Msg("Metrics server stopped")
		}
	}()

	store, err := buildStore(cfg, logg)
	if err != nil {
		logg.Fatal().Err(err).Msg("Failed to initialize session store")
	}

	sessions, err := session.NewService(store, logg)
	if err != nil {
		logg.Fatal().Err(err).Msg("Failed to hydrate session")
	}

	client := api.New(cfg.APIBaseURL, sessions,
		api.WithTimeout(cfg.RequestTimeout),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		api.WithLogger(logg),
		api.WithSessionExpiredHandler(func() {
			logg.Warn().Msg("Session expired, a new login is required")
		}),
	)
	sessions.UseClient(client)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !sessions.IsAuthenticated() {
		if cfg.PlayerEmail == "" || cfg.PlayerPassword == "" {
			logg.Fatal().Msg("No stored session and no PLAYER_EMAIL/PLAYER_PASSWORD configured")
		}
		if err := sessions.Login(ctx, cfg.PlayerEmail, cfg.PlayerPassword, true); err != nil {
			logg.Fatal().Err(err).Msg("Login failed")
		}
	}
	logg.Info().Str("player_id", sessions.PlayerID()).Msg("Authenticated")

	wallets := wallet.NewManager(client, sessions, wallet.WithLogger(logg))
	feed := notification.NewFeed(client,
		notification.WithLogger(logg),
		notification.WithPageSize(cfg.NotificationPageSize),
	)

	if err := wallets.Fetch(ctx); err != nil {
		logg.Error().Err(err).Msg("Initial wallet fetch failed")
	} else if active, ok := wallets.Active(); ok {
		logg.Info().
			Str("wallet_id", active.ID).
			Str("currency", active.Currency.Code).
			Float64("balance", active.Balance).
			Msg("Active wallet loaded")
	}

	if err := feed.FetchPage(ctx, true); err != nil {
		logg.Error().Err(err).Msg("Initial notification fetch failed")
	} else {
		logg.Info().Int("unread", feed.Unread()).Msg("Notifications loaded")
	}

	// Optional feed recorder
	var feedRecorder *recorder.Recorder
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			logg.Fatal().Err(err).Msg("Failed to connect to database")
		}
		if err := database.Migrate(db); err != nil {
			logg.Fatal().Err(err).Msg("Failed to migrate database")
		}
		feedRecorder = recorder.New(db, logg)
		go func() {
			if err := feedRecorder.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logg.Error().Err(err).Msg("Feed recorder stopped")
			}
		}()
	}

	channel := livechannel.New(cfg.WSURL, sessions,
		livechannel.WithLogger(logg),
		livechannel.WithMaxReconnects(cfg.WSMaxReconnects),
		livechannel.WithBackoffBase(cfg.WSBackoffBase),
	)

	channel.OnState(func(state livechannel.State, err error) {
		event := logg.Info()
		if err != nil {
			event = logg.Warn().Err(err)
		}
		event.Str("state", state.String()).Msg("Live channel state changed")
	})
	channel.OnBalance(wallets.ApplyPush)
	channel.OnNotification(feed.AddLive)
	channel.OnNotificationSync(feed.ApplySync)
	if feedRecorder != nil {
		channel.OnBet(func(event models.BetEvent) {
			feedRecorder.Record("bet:placed", event)
		})
		channel.OnBigWin(func(event models.WinEvent) {
			feedRecorder.Record("win:big", event)
		})
		channel.OnTransaction(func(push models.TransactionPush) {
			feedRecorder.Record("transaction:update", push)
		})
	}

	// Logout tears everything down before any new identity connects
	sessions.OnChange(func(authenticated bool) {
		if !authenticated {
			channel.Close()
			wallets.Clear()
			feed.Clear()
		}
	})

	err = channel.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		logg.Info().Msg("Shutting down")
	case errors.Is(err, livechannel.ErrAuthRejected):
		logg.Warn().Msg("Live channel session expired, exiting")
	case err != nil:
		logg.Error().Err(err).Msg("Live channel terminated")
	}
}

func buildStore(cfg config.Config, logg zerolog.Logger) (session.Store, error) {
	switch cfg.SessionBackend {
	case "redis":
		return session.NewRedisStore(cfg.RedisURL, cfg.InstanceID, logg)
	case "memory":
		return session.NewMemoryStore(), nil
	default:
		return session.NewFileStore(cfg.StateFile), nil
	}
}
