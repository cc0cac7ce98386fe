package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maltedev/storefront-sku-lookup/internal/api"
	"github.com/maltedev/storefront-sku-lookup/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP lookup service",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("port", "", "listen port (overrides SERVER_PORT)")
	serveCmd.Flags().String("engine", "", "browser engine: playwright, chromedp or static")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if v, _ := cmd.Flags().GetString("port"); v != "" {
		cfg.Server.Port = v
	}
	if v, _ := cmd.Flags().GetString("engine"); v != "" {
		cfg.Browser.Engine = v
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	crawler, err := app.NewCrawler(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build crawler: %w", err)
	}

	store, closeStore := app.NewRateLimitStore(cfg, log)
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn("failed to close rate limit store", "error", err)
		}
	}()

	router := api.NewRouter(api.Dependencies{
		Logger:         log,
		Scraper:        crawler,
		RateLimitStore: store,
	}, app.RouterConfig(cfg))

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout * 2,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", server.Addr, "engine", cfg.Browser.Engine)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("server stopped")
	return nil
}
