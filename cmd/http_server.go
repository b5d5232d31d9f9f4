package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/dineflow/restaurant-ordering/internal"
	"github.com/dineflow/restaurant-ordering/internal/auth"
	"github.com/dineflow/restaurant-ordering/internal/checkout"
	checkoutdb "github.com/dineflow/restaurant-ordering/internal/checkout/postgres"
	"github.com/dineflow/restaurant-ordering/internal/core/events"
	"github.com/dineflow/restaurant-ordering/internal/gateway"
	"github.com/dineflow/restaurant-ordering/internal/order"
	orderdb "github.com/dineflow/restaurant-ordering/internal/order/postgres"
	"github.com/dineflow/restaurant-ordering/internal/transport"
	"github.com/dineflow/restaurant-ordering/internal/transport/rest"
	"github.com/dineflow/restaurant-ordering/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle checkout and order API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config          *internal.Config
	DB              *sqlx.DB
	Router          *chi.Mux
	Logger          *slog.Logger
	CheckoutService *checkout.Service
	CheckoutHandler *checkout.Handler
	WebhookHandler  *checkout.WebhookHandler
	OrderHandler    *order.Handler
	TokenVerifier   *auth.TokenVerifier
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, deps.CheckoutHandler, deps.WebhookHandler, deps.OrderHandler, deps.TokenVerifier, deps.Logger)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		// stop session timers before closing the database they persist to
		deps.CheckoutService.Shutdown()
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm over pgx connection: %w", err)
	}

	eventBus := events.NewEventBus(lg)
	gatewayClient := gateway.NewClient(config.Gateway, lg)

	orderRepo := orderdb.NewOrderRepository(gormDB)
	orderService := order.NewService(orderRepo, lg)

	checkoutRepo := checkoutdb.NewCheckoutRepository(gormDB)
	notifyURL, err := url.JoinPath(config.Server.BaseURL, "/api/v1/payment/callback")
	if err != nil {
		return nil, fmt.Errorf("invalid server base_url: %w", err)
	}
	checkoutService := checkout.NewService(checkoutRepo, gatewayClient, orderService, eventBus, config.Checkout, notifyURL, lg)

	bridge := checkout.NewBridge(checkoutService, lg)
	bridge.RegisterEventHandlers(eventBus)

	baseHandler := transport.NewBaseHandler(lg)

	return &Dependencies{
		Config:          config,
		DB:              db,
		Router:          chi.NewRouter(),
		Logger:          lg,
		CheckoutService: checkoutService,
		CheckoutHandler: checkout.NewHandler(checkoutService),
		WebhookHandler:  checkout.NewWebhookHandler(baseHandler, eventBus, config.Gateway.WebhookSecret, lg),
		OrderHandler:    order.NewHandler(orderService),
		TokenVerifier:   auth.NewTokenVerifier(config.Security.StaffTokenSecret),
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
