package cmd

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kindred-backend/internal/config"
	"kindred-backend/internal/handlers"
	"kindred-backend/internal/middleware"
	"kindred-backend/internal/pubsub"
	"kindred-backend/internal/push"
	"kindred-backend/internal/repository"
	"kindred-backend/internal/repository/memory"
	"kindred-backend/internal/services"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	limiterPruneInterval = 5 * time.Minute
	limiterIdle          = 15 * time.Minute
)

// stores is one backend's set of repositories
type stores struct {
	users          userWriter
	blocks         services.BlockStore
	friendships    services.FriendshipStore
	invites        services.InviteStore
	sessions       services.SessionStore
	messages       services.MessageStore
	friendRequests services.FriendRequestStore
	close          func()
}

func Run() {
	configPath := flag.String("config", envOr("KINDRED_CONFIG", "config.yaml"), "path to the YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to storage
	st, err := openStores(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("Failed to open storage")
	}
	defer st.close()

	if cfg.Engine.SeedFile != "" {
		n, err := seedUsers(ctx, cfg.Engine.SeedFile, st.users)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Engine.SeedFile).Msg("Failed to seed users")
		}
		log.Info().Int("users", n).Msg("Seed users loaded")
	}

	// Event fan-out
	ps, err := pubsub.New(ctx, pubsub.Config{
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to pub/sub")
	}
	defer ps.Close()

	wsHub := services.NewWSHub(ps)
	go func() {
		if err := wsHub.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Event delivery stopped")
		}
	}()

	var pub services.Publisher = wsHub
	if cfg.APNs.PushEnabled() {
		sender, err := push.NewAPNs(push.Config{
			KeyPath:    cfg.APNs.KeyPath,
			KeyID:      cfg.APNs.KeyID,
			TeamID:     cfg.APNs.TeamID,
			Topic:      cfg.APNs.Topic,
			Production: cfg.APNs.Production,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create APNs client")
		}
		pub = services.NewPushPublisher(wsHub, wsHub, st.users, sender)
		log.Info().Bool("production", cfg.APNs.Production).Msg("Offline push enabled")
	}

	// Initialize services
	settings := services.Settings{
		InviteTTL:         cfg.Engine.InviteTTL,
		MinimumEngagement: cfg.Engine.MinimumEngagement,
		PenaltyDuration:   cfg.Engine.PenaltyDuration,
		MaxMatches:        cfg.Engine.MaxMatches,
		MaxMessageLength:  cfg.Engine.MaxMessageLength,
		MaxPromptLength:   cfg.Engine.MaxPromptLength,
	}
	verifier := services.NewTokenVerifier(cfg.JWT.Secret)
	penalties := services.NewPenaltyClock(st.users, settings.PenaltyDuration)
	friendRequestService := services.NewFriendRequestService(st.friendRequests, st.friendships, st.sessions, st.blocks, st.users, pub)
	sessionService := services.NewSessionService(st.sessions, st.messages, st.users, st.blocks, st.friendships, friendRequestService, penalties, pub, settings)
	inviteService := services.NewInviteService(st.invites, st.users, st.blocks, sessionService, penalties, pub, settings)
	matchService := services.NewMatchService(st.users, st.blocks, st.invites, st.sessions, penalties, pub, settings)
	directoryService := services.NewDirectoryService(st.blocks, st.friendships, st.invites, st.users, sessionService)
	userService := services.NewUserService(st.users)

	var transcriptService *services.TranscriptService
	if cfg.AWS.TranscriptsEnabled() {
		transcriptService, err = services.NewS3TranscriptService(ctx, sessionService, services.S3Options{
			Region:          cfg.AWS.Region,
			Bucket:          cfg.AWS.S3Bucket,
			Endpoint:        cfg.AWS.Endpoint,
			AccessKeyID:     cfg.AWS.AccessKey,
			SecretAccessKey: cfg.AWS.SecretKey,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create transcript service")
		}
	}

	// Background workers
	sweeper := services.NewInviteSweeper(inviteService, cfg.Engine.SweepInterval)
	go sweeper.Run(ctx)

	limiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
	go limiter.Run(ctx, limiterPruneInterval, limiterIdle)

	// Setup router
	router := handlers.NewRouter(handlers.Router{
		Match:     handlers.NewMatchHandler(matchService),
		Invite:    handlers.NewInviteHandler(inviteService, sessionService),
		Session:   handlers.NewSessionHandler(sessionService, transcriptService),
		Friend:    handlers.NewFriendHandler(directoryService, friendRequestService, sessionService),
		Block:     handlers.NewBlockHandler(directoryService),
		User:      handlers.NewUserHandler(userService),
		WebSocket: handlers.NewWebSocketHandler(wsHub, verifier, sessionService),
		Verifier:  verifier,
		Limiter:   limiter,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Str("driver", cfg.Database.Driver).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// openStores connects the configured storage backend
func openStores(ctx context.Context, cfg *config.DatabaseConfig) (*stores, error) {
	if cfg.Driver == "memory" {
		db := memory.New()
		log.Warn().Msg("Using in-memory storage; state is lost on restart")
		return &stores{
			users:          memory.NewUserRepository(db),
			blocks:         memory.NewBlockRepository(db),
			friendships:    memory.NewFriendshipRepository(db),
			invites:        memory.NewInviteRepository(db),
			sessions:       memory.NewSessionRepository(db),
			messages:       memory.NewMessageRepository(db),
			friendRequests: memory.NewFriendRequestRepository(db),
			close:          func() {},
		}, nil
	}

	pool, err := repository.Open(ctx, cfg.DSN(), cfg.MaxConns)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("Database connection established")

	if cfg.Migrate {
		if err := repository.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &stores{
		users:          repository.NewUserRepository(pool),
		blocks:         repository.NewBlockRepository(pool),
		friendships:    repository.NewFriendshipRepository(pool),
		invites:        repository.NewInviteRepository(pool),
		sessions:       repository.NewSessionRepository(pool),
		messages:       repository.NewMessageRepository(pool),
		friendRequests: repository.NewFriendRequestRepository(pool),
		close:          pool.Close,
	}, nil
}

// setupLogger configures zerolog logger
func setupLogger(level, format string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
