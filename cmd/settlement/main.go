package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/BoostryJP/ibet-prime-wst/internal/applier"
	"github.com/BoostryJP/ibet-prime-wst/internal/config"
	"github.com/BoostryJP/ibet-prime-wst/internal/connection"
	"github.com/BoostryJP/ibet-prime-wst/internal/dvp"
	"github.com/BoostryJP/ibet-prime-wst/internal/keystore"
	"github.com/BoostryJP/ibet-prime-wst/internal/metrics"
	"github.com/BoostryJP/ibet-prime-wst/internal/monitor"
	"github.com/BoostryJP/ibet-prime-wst/internal/notification"
	"github.com/BoostryJP/ibet-prime-wst/internal/server"
	"github.com/BoostryJP/ibet-prime-wst/internal/storage"
	"github.com/BoostryJP/ibet-prime-wst/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application wires the settlement components together
type Application struct {
	config         *config.Config
	logger         *logrus.Logger
	metricsManager *metrics.Manager
	connection     *connection.ConnectionManager
	chain          *connection.ChainClient
	storage        storage.Storage
	keys           *keystore.Provider
	notifier       notification.Notifier
	monitor        *monitor.TxMonitor
	delivery       *dvp.Service
	server         *server.HTTPServer
	ctx            context.Context
	cancel         context.CancelFunc
}

// NewApplication creates the application and initializes every component
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config:         cfg,
		metricsManager: metrics.NewManager(),
		ctx:            ctx,
		cancel:         cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		app.Stop()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging
	if level := viper.GetString("log-level"); level != "" {
		logCfg.Level = level
	}

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return err
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
		"output": logCfg.Output,
	}).Info("Logger initialized")
	return nil
}

func (app *Application) initializeComponents() error {
	app.logger.Info("Initializing application components")

	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := app.initializeConnection(); err != nil {
		return fmt.Errorf("failed to initialize connection: %w", err)
	}
	if err := app.initializeNotification(); err != nil {
		return fmt.Errorf("failed to initialize notification: %w", err)
	}
	if err := app.initializeMonitor(); err != nil {
		return fmt.Errorf("failed to initialize monitor: %w", err)
	}
	if err := app.initializeDelivery(); err != nil {
		return fmt.Errorf("failed to initialize delivery service: %w", err)
	}
	app.initializeServer()

	app.logger.Info("All components initialized successfully")
	return nil
}

func (app *Application) initializeStorage() error {
	store, err := openStorage(&app.config.Storage)
	if err != nil {
		return err
	}
	app.storage = storage.NewStorageWithMetrics(store, app.metricsManager)
	app.keys = keystore.NewProvider(app.storage)

	app.logger.WithField("type", app.config.Storage.Type).Info("Storage layer initialized successfully")
	return nil
}

func (app *Application) initializeConnection() error {
	app.connection = connection.NewConnectionManager(&app.config.Chain)
	app.connection.SetMetricsManager(app.metricsManager)

	ctx, cancel := context.WithTimeout(app.ctx, app.config.Chain.RequestTimeout)
	defer cancel()
	if err := app.connection.HealthCheckWithContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to node: %w", err)
	}

	app.chain = connection.NewChainClient(app.connection, &app.config.Chain)
	app.chain.SetMetricsManager(app.metricsManager)

	app.logger.WithFields(logrus.Fields{
		"node_url": app.config.Chain.NodeURL,
		"chain_id": app.config.Chain.ChainID,
	}).Info("Connection manager initialized successfully")
	return nil
}

func (app *Application) initializeNotification() error {
	notifiers := notification.Multi{
		notification.NewNotifierWithMetrics(notification.NewLogNotifier(), "log", app.metricsManager),
	}

	if app.config.Notification.Enabled {
		natsNotifier, err := notification.NewNATSNotifier(&app.config.Notification)
		if err != nil {
			return err
		}
		notifiers = append(notifiers, notification.NewNotifierWithMetrics(natsNotifier, "nats", app.metricsManager))
	}

	app.notifier = notifiers
	app.logger.WithField("channels", len(notifiers)).Info("Notification initialized successfully")
	return nil
}

func (app *Application) initializeMonitor() error {
	gate, err := monitor.NewFinalityGate(&app.config.Monitor, app.chain)
	if err != nil {
		return err
	}

	app.monitor = monitor.NewTxMonitor(
		app.storage,
		app.chain,
		gate,
		applier.New(app.chain),
		app.notifier,
		&app.config.Monitor,
	)
	app.monitor.SetMetricsManager(app.metricsManager)

	app.logger.WithFields(logrus.Fields{
		"poll_interval": app.config.Monitor.PollInterval,
		"finality_mode": app.config.Monitor.FinalityMode,
	}).Info("Transaction monitor initialized successfully")
	return nil
}

func (app *Application) initializeDelivery() error {
	if app.config.DVP.ExchangeAddress == "" {
		app.logger.Info("No DVP exchange configured, delivery commands disabled")
		return nil
	}
	if !utils.IsValidAddress(app.config.DVP.ExchangeAddress) {
		return fmt.Errorf("invalid DVP exchange address: %s", app.config.DVP.ExchangeAddress)
	}

	app.delivery = dvp.NewService(app.storage, app.chain, app.keys, &app.config.DVP)
	app.delivery.SetMetricsManager(app.metricsManager)
	return nil
}

func (app *Application) initializeServer() {
	app.server = server.NewHTTPServer(&app.config.Server, app.storage, app.monitor, app.metricsManager, AppVersion)
}

// Start starts the HTTP server and the monitor loop
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
	}).Info("Starting ibet-WST settlement service")

	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := app.monitor.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start transaction monitor: %w", err)
	}

	app.logger.WithFields(logrus.Fields{
		"server_address": fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"node_url":       app.config.Chain.NodeURL,
	}).Info("ibet-WST settlement service started successfully")
	return nil
}

// Stop stops every component in reverse order of initialization
func (app *Application) Stop() {
	app.logger.Info("Stopping ibet-WST settlement service")
	app.cancel()

	if app.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := app.server.Stop(ctx); err != nil {
			app.logger.WithError(err).Error("Failed to stop HTTP server")
		}
		cancel()
	}
	if app.monitor != nil && app.monitor.IsRunning() {
		if err := app.monitor.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop transaction monitor")
		}
	}
	if app.notifier != nil {
		if err := app.notifier.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close notifiers")
		}
	}
	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close storage")
		}
	}
	if app.connection != nil {
		if err := app.connection.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close connection")
		}
	}

	app.logger.Info("ibet-WST settlement service stopped")
}

// openStorage connects to the configured database and applies migrations
func openStorage(cfg *config.StorageConfig) (storage.Storage, error) {
	store, err := storage.NewStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}
	if err := store.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to storage: %w", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to run storage migrations: %w", err)
	}
	return store, nil
}

// loadConfig reads and validates the configuration named by --config
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

var rootCmd = &cobra.Command{
	Use:           "ibet-wst-settlement",
	Short:         "ibet-WST transaction monitor and DVP settlement service",
	Long:          `Tracks submitted ibet-WST transactions to finality, projects their events into the local store and drives DVP deliveries.`,
	Version:       AppVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the transaction monitor and the HTTP query server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		app, err := NewApplication(cfg)
		if err != nil {
			return fmt.Errorf("failed to create application: %w", err)
		}

		signalChan := make(chan os.Signal, 1)
		signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

		if err := app.Start(); err != nil {
			app.Stop()
			return fmt.Errorf("failed to start application: %w", err)
		}

		<-signalChan
		fmt.Println("\nReceived shutdown signal, stopping application...")
		app.Stop()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "log level (debug, info, warn, error)")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
