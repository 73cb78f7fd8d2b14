package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/celerix-dev/celerix-records/internal/api"
	"github.com/celerix-dev/celerix-records/internal/config"
	internalengine "github.com/celerix-dev/celerix-records/internal/engine"
	"github.com/celerix-dev/celerix-records/internal/logger"
	"github.com/celerix-dev/celerix-records/internal/metrics"
	"github.com/celerix-dev/celerix-records/internal/server"
	"github.com/celerix-dev/celerix-records/internal/vault"
	"github.com/celerix-dev/celerix-records/pkg/engine"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := config.New()
	var configFile string

	cmd := &cobra.Command{
		Use:           "recordstored",
		Short:         "Record store daemon",
		Long:          "Serves the record store over the TCP line protocol and an HTTP API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(v, configFile)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	flags.String("tcp-port", "7001", "TCP protocol port")
	flags.String("http-port", "7002", "HTTP API port")
	flags.Bool("disable-tls", false, "serve the TCP protocol without TLS")
	flags.String("backend", config.BackendJSON, "storage backend (json|sqlite)")
	flags.String("data-dir", "./data", "directory of the JSON snapshot")
	flags.String("sqlite-path", "./data/records.db", "SQLite database file")
	flags.Uint64("max-records", engine.DefaultMaxRecords, "maximum number of records")
	flags.String("log-level", "info", "log level (debug|info|warn|error)")

	bindings := map[string]string{
		"server.tcp_port":     "tcp-port",
		"server.http_port":    "http-port",
		"server.disable_tls":  "disable-tls",
		"storage.backend":     "backend",
		"storage.data_dir":    "data-dir",
		"storage.sqlite_path": "sqlite-path",
		"store.max_records":   "max-records",
		"log.level":           "log-level",
	}
	for key, flag := range bindings {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the daemon (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(v, configFile)
		},
	})
	cmd.AddCommand(newMigrateCommand(v, &configFile))
	return cmd
}

// backend is a storage backend the store can restore from and persist to.
type backend interface {
	engine.Loader
	engine.Persister
}

func openBackend(kind string, cfg config.StorageConfig) (backend, func() error, error) {
	switch kind {
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
			return nil, nil, err
		}
		db, err := internalengine.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	case config.BackendJSON:
		p, err := internalengine.NewPersistence(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return p, func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", kind)
}

func serve(v *viper.Viper, configFile string) error {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	logger.BridgeGin(log)
	gin.SetMode(gin.ReleaseMode)

	log.Info("Starting record store daemon...")

	// 1. Initialize Persistence
	b, closeBackend, err := openBackend(cfg.Storage.Backend, cfg.Storage)
	if err != nil {
		return fmt.Errorf("initialize %s persistence: %w", cfg.Storage.Backend, err)
	}
	defer closeBackend()

	// 2. Load existing data and start the Engine
	snap, err := b.Load()
	if err != nil {
		return fmt.Errorf("load existing data: %w", err)
	}
	store, err := engine.NewMemStore(snap, b,
		engine.WithMaxRecords(cfg.Store.MaxRecords),
		engine.WithLogger(log),
		engine.WithObserver(metrics.ObserveOperation),
	)
	if err != nil {
		return err
	}
	host := engine.NewHost(store, engine.NewMonotonicClock())
	log.WithFields(logrus.Fields{
		"backend":  cfg.Storage.Backend,
		"records":  store.GetRecordCount(),
		"capacity": store.Capacity(),
	}).Info("Engine started")

	// 3. Initialize the TCP Router
	router := server.NewRouter(host, log)
	if !cfg.Server.DisableTLS {
		cert, err := vault.GenerateSelfSignedCert()
		if err != nil {
			return fmt.Errorf("generate TLS certificate: %w", err)
		}
		router.SetCertificate(cert)
		log.Info("TLS encryption enabled")
	} else {
		log.Warn("TLS encryption disabled")
	}

	// 4. Initialize HTTP API
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Server.HTTPPort,
		Handler:           api.NewEngine(&api.Handler{Host: host, Log: log}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Infof("HTTP API listening on :%s", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()
	go func() {
		log.Infof("Record engine listening on :%s (TCP)", cfg.Server.TCPPort)
		if err := router.Listen(cfg.Server.TCPPort); err != nil {
			errCh <- fmt.Errorf("TCP server failed: %w", err)
		}
	}()

	// 5. Handle Graceful Shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received. Finalizing disk writes...")
	case runErr = <-errCh:
	}

	router.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown incomplete")
	}
	store.Wait()
	log.Info("Persistence complete. Exiting.")
	return runErr
}

func newMigrateCommand(v *viper.Viper, configFile *string) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy the stored records from one backend to another",
		Long: `Copy the stored records from one backend to another.

Example:
  recordstored migrate --from json --to sqlite --data-dir ./data --sqlite-path ./data/records.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if from == to {
				return fmt.Errorf("--from and --to must differ")
			}
			cfg, err := config.Load(v, *configFile)
			if err != nil {
				return err
			}

			src, closeSrc, err := openBackend(from, cfg.Storage)
			if err != nil {
				return fmt.Errorf("open source: %w", err)
			}
			defer closeSrc()
			dst, closeDst, err := openBackend(to, cfg.Storage)
			if err != nil {
				return fmt.Errorf("open destination: %w", err)
			}
			defer closeDst()

			n, err := internalengine.Migrate(src, dst)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d records from %s to %s\n", n, from, to)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", config.BackendJSON, "source backend (json|sqlite)")
	cmd.Flags().StringVar(&to, "to", config.BackendSQLite, "destination backend (json|sqlite)")
	return cmd
}
