package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/awnumar/memguard"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"

	"github.com/jmcleod/steamrelay/account"
	"github.com/jmcleod/steamrelay/api"
	"github.com/jmcleod/steamrelay/audit"
	"github.com/jmcleod/steamrelay/hub"
	"github.com/jmcleod/steamrelay/internal/config"
	"github.com/jmcleod/steamrelay/login"
	"github.com/jmcleod/steamrelay/platform"
	"github.com/jmcleod/steamrelay/relay"
	"github.com/jmcleod/steamrelay/session"
	"github.com/jmcleod/steamrelay/storage"
	bboltstorage "github.com/jmcleod/steamrelay/storage/bbolt"
	"github.com/jmcleod/steamrelay/storage/memory"
	"github.com/jmcleod/steamrelay/web"
)

// errNoConnector is returned when no Steam client adapter is available.
var errNoConnector = errors.New("no Steam client adapter is compiled in; run with --simulate")

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Log the configured accounts in and start the relay server",
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
	f := serverCmd.Flags()
	f.IntP("port", "p", config.DefaultPort, "Port to listen on")
	f.String("data-dir", config.DefaultDataDir, "Directory for the audit event log (empty keeps events in memory)")
	f.String("accounts-file", "", "TOML file listing accounts (default: ACCOUNT_<n>_* settings)")
	f.String("env-file", config.DefaultEnvFile, "File of KEY=value settings read before the environment")
	f.Int("login-concurrency", 0, "Maximum logins in flight (0 = unlimited)")
	f.Bool("simulate", false, "Run against an in-process simulated Steam network")
}

func runServer(cmd *cobra.Command, args []string) error {
	defer memguard.Purge()

	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	webHandler, err := web.Handler()
	if err != nil {
		return err
	}

	creds, err := cfg.CredentialSource().Credentials()
	if err != nil {
		return fmt.Errorf("loading accounts: %w", err)
	}
	// Credentials are only needed for the initial logins.
	defer account.DestroyAll(creds)
	if len(creds) == 0 {
		logger.Warn("no accounts configured")
	}

	connector, err := newConnector(cfg, creds)
	if err != nil {
		return err
	}

	events, err := openEventLog(cfg.EventsPath(), false)
	if err != nil {
		return err
	}
	defer events.Close()

	al := audit.New(logger,
		audit.WithStore(events),
		audit.WithAlerts(func(alert audit.AlertEvent) {
			logger.Warn("audit alert", "type", string(alert.Type), "message", alert.Message,
				"count", alert.Count, "threshold", alert.Threshold)
		}),
	)

	registry := session.NewRegistry()
	bus := hub.New(hub.WithLogger(logger), hub.WithAudit(al))
	rl := relay.New(registry, api.NewSink(bus, logger), relay.WithLogger(logger), relay.WithAudit(al))
	a := api.New(rl, bus, api.WithLogger(logger), api.WithEventLog(events))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := rl.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	auth := login.New(connector, registry, rl,
		login.WithLogger(logger),
		login.WithAudit(al),
		login.WithConcurrency(cfg.LoginConcurrency),
	)
	auth.Run(gctx, creds)
	account.DestroyAll(creds)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(api.SecurityHeaders)
	r.Use(api.CORS)
	r.Get("/health", a.Health)
	r.Handle("/ws", a.Push())
	r.Mount("/api/v1", a.Router())
	r.Handle("/*", webHandler)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	printBanner()
	fmt.Printf("Server running on port %d\n", cfg.Port)
	fmt.Printf("Active Steam accounts: %d\n", registry.Len())

	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			fmt.Println("\nShutting down...")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		bus.Close()
		registry.Close()
		if err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	err = g.Wait()
	rl.Wait()
	return err
}

// newConnector selects the platform backend.
func newConnector(cfg *config.Config, creds []*account.Credential) (platform.Connector, error) {
	if !cfg.Simulate {
		return nil, errNoConnector
	}
	return newSimulatedNetwork(creds)
}

// openEventLog opens the bbolt event log at path, or an in-memory log when
// path is empty.
func openEventLog(path string, readOnly bool) (storage.EventLog, error) {
	if path == "" {
		return memory.NewEventLog(), nil
	}
	if !readOnly {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	log, err := bboltstorage.NewEventLogFromFile(path, &bbolt.Options{ReadOnly: readOnly, Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	return log, nil
}
