package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	config "github.com/Keoroanthony/orderflow/configs"
	"github.com/Keoroanthony/orderflow/internal/auth"
	"github.com/Keoroanthony/orderflow/internal/cart"
	"github.com/Keoroanthony/orderflow/internal/catalog"
	"github.com/Keoroanthony/orderflow/internal/db"
	"github.com/Keoroanthony/orderflow/internal/events"
	"github.com/Keoroanthony/orderflow/internal/handlers"
	"github.com/Keoroanthony/orderflow/internal/middleware"
	"github.com/Keoroanthony/orderflow/internal/notifier"
	"github.com/Keoroanthony/orderflow/internal/orders"
	"github.com/Keoroanthony/orderflow/internal/receipts"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "main").Logger()

func main() {
	cfg := config.Load()

	root := &cobra.Command{
		Use:   "orderflow",
		Short: "Order management service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
		SilenceUsage: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := openDB(cfg.DB)
			if err != nil {
				return err
			}
			logger.Info().Str("driver", cfg.DB.Driver).Msg("schema migrated")
			return closeDB(conn)
		},
	})

	var username, password string
	createAdmin := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator or promote an existing user",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := openDB(cfg.DB)
			if err != nil {
				return err
			}
			defer closeDB(conn)

			_, err = auth.NewService(conn).EnsureAdmin(cmd.Context(), username, password)
			return err
		},
	}
	createAdmin.Flags().StringVar(&username, "username", "admin", "admin username")
	createAdmin.Flags().StringVar(&password, "password", "", "admin password")
	_ = createAdmin.MarkFlagRequired("password")
	root.AddCommand(createAdmin)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func openDB(cfg config.DBConfig) (*gorm.DB, error) {
	conn, err := db.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(conn); err != nil {
		return nil, err
	}
	return conn, nil
}

func closeDB(conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func serve(ctx context.Context, cfg config.Config) error {
	conn, err := openDB(cfg.DB)
	if err != nil {
		return err
	}
	defer closeDB(conn)

	var store cart.Store = cart.NewMemoryStore()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		store = cart.NewRedisStore(rdb, cfg.Redis.CartTTL)
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("carts stored in redis")
	}

	publisher := events.New(cfg.Kafka)
	defer publisher.Close()

	email, err := notifier.NewEmailSender(ctx, cfg.Email)
	if err != nil {
		return err
	}
	notes := notifier.NewService(notifier.NewSMSSender(cfg.SMS), email, cfg.Email.OperationsEmail)

	repo := catalog.NewRepository(conn)
	carts := cart.NewService(store, repo)
	orderSvc := orders.NewService(conn, carts, publisher, notes)
	defer orderSvc.Wait()

	users := auth.NewService(conn)
	h := &handlers.Handler{
		Catalog:  repo,
		Carts:    carts,
		Orders:   orderSvc,
		Users:    users,
		Receipts: receipts.NewStore(cfg.Server.UploadDir),
		Images:   receipts.NewStore(filepath.Join(cfg.Server.UploadDir, "products")),
		AuthLimiter: middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:      rate.Limit(cfg.Server.AuthRate),
			Burst:     cfg.Server.AuthBurst,
			ExpiresIn: 3 * time.Minute,
		}),
	}

	if cfg.OIDC.Enabled() {
		if h.OIDC, err = auth.NewOIDC(ctx, cfg.OIDC, users); err != nil {
			return err
		}
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handlers.NewRouter(h, cfg.Server.SessionSecret),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info().Msg("shutting down")
	return srv.Shutdown(shutdownCtx)
}
