package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/felo/eml-to-txt/internal/db"
	"github.com/felo/eml-to-txt/internal/handlers"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Browse the conversion ledger over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	flags := cmd.Flags()
	flags.String("ledger", "", "SQLite ledger written by convert --ledger")
	flags.String("addr", "", "Listen address as host:port (default localhost:8080)")
	flags.Bool("open", false, "Open the browser once the server is up")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	var addrErr error
	cfg, err := loadConfig(cmd, func(v *viper.Viper) {
		addr := v.GetString("addr")
		if addr == "" {
			return
		}
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			addrErr = fmt.Errorf("invalid --addr %q: %w", addr, err)
			return
		}
		v.Set("host", host)
		v.Set("port", port)
	})
	if err != nil {
		return err
	}
	if addrErr != nil {
		return addrErr
	}
	if err := cfg.ResolveServe(); err != nil {
		return err
	}

	closeLog, err := openLog(cfg.LogLevel, cfg.LogFile, cfg.LogJSON)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer closeLog()

	if _, err := os.Stat(cfg.LedgerPath); err != nil {
		return fmt.Errorf("ledger %s: %w", cfg.LedgerPath, err)
	}
	database, err := db.Open(cfg.LedgerPath)
	if err != nil {
		return err
	}
	defer database.Close()

	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handlers.New(database, cfg).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("module", "web").Str("url", cfg.URL()).Str("ledger", cfg.LedgerPath).
			Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	if open, _ := cmd.Flags().GetBool("open"); open {
		time.Sleep(500 * time.Millisecond)
		if err := openBrowser(cfg.URL()); err != nil {
			log.Warn().Err(err).Msgf("Failed to open browser, navigate to %s", cfg.URL())
		}
	}

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Str("phase", "shutdown").Msg("Shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info().Str("phase", "shutdown").Msg("Server stopped")
	return nil
}

// openBrowser opens the default browser to the specified URL
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	return cmd.Start()
}
