package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/hotslice/voicedesk/internal/config"
	"github.com/hotslice/voicedesk/internal/handler"
	"github.com/hotslice/voicedesk/internal/handler/telephony"
	"github.com/hotslice/voicedesk/internal/model/menu"
	"github.com/hotslice/voicedesk/internal/service/finalize"
	"github.com/hotslice/voicedesk/internal/service/orchestrator"
	"github.com/hotslice/voicedesk/internal/service/registry"
	"github.com/hotslice/voicedesk/internal/service/sink"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if !cfg.Realtime.Enabled() {
		log.Println("warning: realtime credentials missing; calls will connect but stay relay-only")
	}

	// Menu snapshot, swapped atomically on reload.
	var menuSnapshot atomic.Pointer[menu.Index]
	menuSnapshot.Store(loadMenu(cfg.Menu))
	menuProvider := func() *menu.Index { return menuSnapshot.Load() }

	sessionRegistry := registry.New()

	sinks, cleanup := buildSinks(cfg.Sinks)
	defer cleanup()
	gateway := finalize.New(cfg.Store, cfg.Tuning, sinks)

	orc := orchestrator.New(cfg, sessionRegistry, menuProvider, gateway)
	telephonyHandler := telephony.New(orc, cfg.Server.PublicHost)
	router := handler.NewRouter(telephonyHandler, menuProvider, sessionRegistry)

	scheduler := startJobs(cfg, sessionRegistry, &menuSnapshot)
	defer scheduler.Stop()

	startServer(ctx, cfg.Server, router)
}

// loadMenu reads the configured menu file, falling back to the built-in
// sample so the service always answers with a priceable menu.
func loadMenu(cfg config.MenuConfig) *menu.Index {
	if cfg.Path == "" {
		log.Println("no MENU_PATH configured, using built-in sample menu")
		return menu.Sample()
	}

	snapshot, err := menu.LoadFile(cfg.Path)
	if err != nil {
		log.Printf("warning: menu load failed, using sample menu: %v", err)
		return menu.Sample()
	}
	log.Printf("menu loaded from %s (%d items)", cfg.Path, snapshot.Len())
	return snapshot
}

// buildSinks assembles every configured logging sink. All are optional; a
// call with zero sinks still takes orders, it just logs them nowhere.
func buildSinks(cfg config.SinkConfig) ([]sink.Sink, func()) {
	var sinks []sink.Sink
	cleanup := func() {}

	if cfg.WebhookURL != "" {
		sinks = append(sinks, sink.NewWebhook("webhook", cfg.WebhookURL))
	}
	if cfg.POSURL != "" {
		sinks = append(sinks, sink.NewPOS(cfg.POSURL, cfg.POSToken))
	}
	if cfg.SlackWebhookURL != "" {
		sinks = append(sinks, sink.NewSlack(cfg.SlackWebhookURL))
	}
	if cfg.SQLitePath != "" {
		archive, err := sink.NewSQLite(cfg.SQLitePath)
		if err != nil {
			log.Printf("warning: sqlite sink disabled: %v", err)
		} else {
			sinks = append(sinks, archive)
			cleanup = func() {
				if err := archive.Close(); err != nil {
					log.Printf("sqlite sink close: %v", err)
				}
			}
		}
	}

	log.Printf("order sinks configured: %d", len(sinks))
	return sinks, cleanup
}

// startJobs schedules the background maintenance: the stale-session sweep
// leak guard and, when configured, periodic menu reload.
func startJobs(cfg *config.Config, reg *registry.Registry, menuSnapshot *atomic.Pointer[menu.Index]) *cron.Cron {
	scheduler := cron.New()

	if _, err := scheduler.AddFunc(cfg.Tuning.SweepSpec, func() {
		if n := reg.Sweep(cfg.Tuning.SessionMaxAge); n > 0 {
			log.Printf("session sweep evicted %d stale sessions", n)
		}
	}); err != nil {
		log.Printf("warning: session sweep not scheduled: %v", err)
	}

	if cfg.Tuning.MenuReloadSpec != "" && cfg.Menu.Path != "" {
		if _, err := scheduler.AddFunc(cfg.Tuning.MenuReloadSpec, func() {
			snapshot, err := menu.LoadFile(cfg.Menu.Path)
			if err != nil {
				log.Printf("menu reload failed, keeping current snapshot: %v", err)
				return
			}
			menuSnapshot.Store(snapshot)
			log.Printf("menu reloaded (%d items)", snapshot.Len())
		}); err != nil {
			log.Printf("warning: menu reload not scheduled: %v", err)
		}
	}

	scheduler.Start()
	return scheduler
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("voicedesk listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
