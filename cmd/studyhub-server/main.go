package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/studyhub/pkg/studyhub/auth"
	"github.com/mikepea/studyhub/pkg/studyhub/cache"
	"github.com/mikepea/studyhub/pkg/studyhub/config"
	"github.com/mikepea/studyhub/pkg/studyhub/database"
	"github.com/mikepea/studyhub/pkg/studyhub/logging"
	"github.com/mikepea/studyhub/pkg/studyhub/models"
	"github.com/mikepea/studyhub/pkg/studyhub/server"
	"github.com/mikepea/studyhub/pkg/studyhub/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

// @title StudyHub API
// @version 1.0
// @description Share study materials, run study groups and track contributions.

// @contact.name StudyHub Maintainers
// @contact.url https://github.com/mikepea/studyhub

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Session JWT. Format: "Bearer {token}"

// @securityDefinitions.apikey SessionCookie
// @in cookie
// @name studyhub_session
// @description Session JWT set by login

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "studyhub-server",
		Short: "StudyHub study materials and study groups server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			logger, err = logging.New(logging.Options{
				Level:   cfg.Logging.Level,
				Format:  cfg.Logging.Format,
				Verbose: verbose,
			})
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
		RunE:         runServe,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "studyhub.yaml", "path to config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Run database migrations and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := openDatabase(); err != nil {
					return err
				}
				defer database.Close()
				logger.Info("database migrations completed")
				return nil
			},
		},
		newCreateAdminCmd(),
	)

	return root
}

func newCreateAdminCmd() *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin user or promote an existing one",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || password == "" {
				return errors.New("--username and --password are required")
			}
			if err := openDatabase(); err != nil {
				return err
			}
			defer database.Close()

			created, err := auth.NewStore(database.GetDB()).EnsureAdmin(cmd.Context(), username, password)
			if err != nil {
				return fmt.Errorf("create admin: %w", err)
			}
			if created {
				logger.Info("created admin user", zap.String("username", username))
			} else {
				logger.Info("promoted existing user to admin", zap.String("username", username))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "admin username")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	return cmd
}

func openDatabase() error {
	if err := database.Connect(database.Options{
		Driver:   cfg.Database.Driver,
		DSN:      cfg.Database.DSN,
		LogLevel: cfg.Database.LogLevel,
	}); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	if err := models.AutoMigrate(database.GetDB()); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := openDatabase(); err != nil {
		return err
	}
	defer database.Close()
	logger.Info("database ready", zap.String("driver", cfg.Database.Driver))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Auth.AdminUsername != "" {
		created, err := auth.NewStore(database.GetDB()).EnsureAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword)
		if err != nil {
			return fmt.Errorf("ensure admin: %w", err)
		}
		if created {
			logger.Info("created admin user", zap.String("username", cfg.Auth.AdminUsername))
		}
	}

	blobs, err := storage.NewLocalStorage(cfg.Storage.Dir)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	deps := server.Deps{
		Config: cfg,
		DB:     database.GetDB(),
		Blobs:  blobs,
		Logger: logger,
	}

	if cfg.Redis.Addr != "" {
		rc, err := cache.New(cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Warn("redis unavailable, leaderboard cache disabled", zap.Error(err))
		} else {
			defer rc.Close()
			deps.Cache = rc
		}
	}

	gin.SetMode(cfg.Server.Mode)
	router := server.NewRouter(deps)

	addr := ":" + cfg.Server.Port
	if err := server.Run(ctx, addr, router, cfg.Server.ShutdownTimeout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}
