package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/dineflow/restaurant-ordering/internal/checkout"
	checkoutdb "github.com/dineflow/restaurant-ordering/internal/checkout/postgres"
	"github.com/dineflow/restaurant-ordering/internal/gateway"
	"github.com/dineflow/restaurant-ordering/internal/order"
	orderdb "github.com/dineflow/restaurant-ordering/internal/order/postgres"
	"github.com/dineflow/restaurant-ordering/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start and manage background workers for payment reconciliation`,
}

// Reconcile sweep command. The in-process reconciler dies with the API
// server; this worker settles whatever the database still carries.
var reconcileWorkerCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Sweep unresolved payment sessions against the gateway",
	Long:  `Periodically poll the gateway for sessions whose payment was never resolved and finalize the ones that settled`,
	Run: func(cmd *cobra.Command, args []string) {
		startReconcileWorker()
	},
}

var (
	sweepInterval time.Duration
	sweepBatch    int
	sweepOnce     bool
)

func startReconcileWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)
	lg := logger.LoggerWrapper()

	sqlDB, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: sqlDB.DB}), &gorm.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open gorm: %v\n", err)
		os.Exit(1)
	}

	repo := checkoutdb.NewCheckoutRepository(gormDB)
	orderService := order.NewService(orderdb.NewOrderRepository(gormDB), lg)
	gatewayClient := gateway.NewClient(config.Gateway, lg)

	sweeper := checkout.NewSweeper(repo, repo, gatewayClient, orderService, lg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		lg.Info("received signal, stopping reconcile worker", "signal", sig)
		cancel()
	}()

	lg.Info("reconcile worker started",
		"interval", sweepInterval,
		"batch_size", sweepBatch,
		"once", sweepOnce)

	for {
		if _, err := sweeper.Run(ctx, sweepBatch); err != nil {
			if ctx.Err() != nil {
				break
			}
			lg.Error("sweep failed", "error", err)
		}

		if sweepOnce {
			break
		}

		select {
		case <-ctx.Done():
			lg.Info("reconcile worker stopped")
			return
		case <-time.After(sweepInterval):
		}
	}

	lg.Info("reconcile worker finished")
}

func init() {
	reconcileWorkerCmd.Flags().DurationVar(&sweepInterval, "interval", 2*time.Minute, "Delay between sweeps")
	reconcileWorkerCmd.Flags().IntVar(&sweepBatch, "batch-size", 100, "Maximum sessions per sweep")
	reconcileWorkerCmd.Flags().BoolVar(&sweepOnce, "once", false, "Run a single sweep and exit")

	workerCmd.AddCommand(reconcileWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
