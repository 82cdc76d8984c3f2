// cmd/icepeakd is the Icepeak server entrypoint: it loads (and recovers) the
// document, starts the HTTP/WebSocket surface and the periodic sync ticker,
// and shuts down cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"icepeak/internal/api"
	"icepeak/internal/auth"
	"icepeak/internal/config"
	"icepeak/internal/coordinator"
	"icepeak/internal/log"
	"icepeak/internal/metrics"
	"icepeak/internal/persistence"
	"icepeak/internal/ws"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "icepeakd",
	Short:   "Icepeak - a hierarchical JSON document store over HTTP and WebSockets",
	Version: Version,
}

var cfg = config.Default()

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("icepeakd version %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Icepeak server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&cfg.DataFile, "data-file", cfg.DataFile, "Path to the snapshot file")
	serveCmd.Flags().StringVar(&cfg.JournalFile, "journal-file", cfg.JournalFile, "Path to the write-ahead journal (empty disables journaling)")
	serveCmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP/WebSocket listen address")
	serveCmd.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address")
	serveCmd.Flags().DurationVar(&cfg.SyncInterval, "sync-interval", cfg.SyncInterval, "Interval between periodic snapshot syncs")
	serveCmd.Flags().StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "HMAC secret for JWT bearer auth (empty disables auth)")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := log.WithComponent("icepeakd")

	pv, err := persistence.Load(persistence.Config{
		DataFile:    cfg.DataFile,
		JournalFile: cfg.JournalFile,
	})
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	coord := coordinator.New(pv)
	validator := auth.NewValidator(cfg.JWTSecret)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		coord.Run(gctx)
		return nil
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(api.Recovery(), api.Logger())
	api.NewHandler(coord, validator).Register(router)

	wsHandler := ws.NewHandler(coord, validator)
	wsMux := http.NewServeMux()
	wsHandler.Register(wsMux)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      dispatch(wsMux, router),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	g.Go(func() error {
		logger.Info().Str("addr", cfg.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := coord.Tick(gctx); err != nil && gctx.Err() == nil {
					logger.Error().Err(err).Msg("periodic sync failed")
				}
			}
		}
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		logger.Info().Msg("shutting down")
	case <-gctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
	}
	if err := coord.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("coordinator shutdown error")
	}

	cancel()
	_ = g.Wait()
	return nil
}

// dispatch routes WebSocket upgrade requests to wsMux and everything else to
// the REST router, so both surfaces share one listen address.
func dispatch(wsMux *http.ServeMux, rest http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			wsMux.ServeHTTP(w, r)
			return
		}
		rest.ServeHTTP(w, r)
	})
}
