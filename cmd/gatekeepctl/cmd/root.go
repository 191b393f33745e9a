package cmd

import (
	"context"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	gatekeep "github.com/gatekeep-io/gatekeep"
	"github.com/gatekeep-io/gatekeep/cache"
	redicache "github.com/gatekeep-io/gatekeep/cache/redis"
	"github.com/gatekeep-io/gatekeep/client"
	"github.com/gatekeep-io/gatekeep/config"
	"github.com/gatekeep-io/gatekeep/mongodb"
)

var (
	cfg          *config.Config
	registry     *client.Registry
	authService  *gatekeep.AuthService
	sessionCache cache.SessionCache
)

var rootCmd = &cobra.Command{
	Use:   "gatekeepctl",
	Short: "gatekeepctl administers the gatekeep credential engine",
	Long:  `A command-line interface for registering OAuth clients, revoking them, and closing user sessions in the gatekeep credential store.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		level, parseErr := zerolog.ParseLevel(cfg.LogLevel)
		if parseErr != nil {
			level = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(level)
		if cfg.LogPretty {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		}

		ctx := cmd.Context()
		if err := mongodb.Init(ctx, cfg.MongoURI, cfg.MongoDBName); err != nil {
			return err
		}
		db, err := mongodb.Database()
		if err != nil {
			return err
		}

		sessionRepo, err := mongodb.NewSessionRepository(ctx, db)
		if err != nil {
			return err
		}
		tokenRepo, err := mongodb.NewRefreshTokenRepository(ctx, db)
		if err != nil {
			return err
		}
		clientRepo, err := mongodb.NewClientRepository(ctx, db)
		if err != nil {
			return err
		}

		if cfg.RedisAddr != "" {
			rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
			sessionCache = redicache.NewSessionCache(rdb, cfg.RedisPrefix, cfg.SessionCacheTTL())
		} else {
			sessionCache = cache.NewMemorySessionCache(cfg.SessionCacheTTL())
		}

		refreshSvc := gatekeep.NewRefreshTokenService(tokenRepo, cfg.RefreshTokenTTL(), cfg.TokenLengthBytes)
		sessionSvc := gatekeep.NewSessionService(sessionRepo, refreshSvc, sessionCache, gatekeep.SessionOptions{
			TokenLength:       cfg.TokenLengthBytes,
			SubnetPrefixBits:  cfg.SubnetPrefixBits,
			UAMismatchRevokes: cfg.UAMismatchRevokes,
		})
		registry = client.NewRegistry(clientRepo)
		authService = gatekeep.NewAuthService(sessionSvc, refreshSvc, registry)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
		if sessionCache != nil {
			if err := sessionCache.Close(); err != nil {
				log.Warn().Err(err).Msg("Error closing session cache")
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return mongodb.Disconnect(shutdownCtx)
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
