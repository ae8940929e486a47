package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rfsilva/zapmux/internal/config"
	"github.com/rfsilva/zapmux/internal/credentials"
	"github.com/rfsilva/zapmux/internal/database"
	"github.com/rfsilva/zapmux/internal/handlers"
	"github.com/rfsilva/zapmux/internal/hub"
	"github.com/rfsilva/zapmux/internal/logging"
	"github.com/rfsilva/zapmux/internal/logutil"
	"github.com/rfsilva/zapmux/internal/middleware"
	"github.com/rfsilva/zapmux/internal/session"
	"github.com/rfsilva/zapmux/internal/wire"
	"github.com/robfig/cron/v3"
)

const messageRetention = 30 * 24 * time.Hour

func main() {
	// Handle CLI commands before starting the server
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--set-token":
			runCLICommand("set-token")
			return
		}
	}

	config.Load()
	logging.Init()

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	log.Printf("Config: ListenAddr=%s, BridgeURL=%s, AuthDisabled=%v",
		config.Cfg.ListenAddr, config.Cfg.BridgeURL, config.Cfg.AuthDisabled)

	store := credentials.NewDBStore()
	factory := wire.NewFactory(wire.Config{
		BridgeURL:         config.Cfg.BridgeURL,
		ConnectTimeout:    config.Cfg.ConnectTimeout,
		QueryTimeout:      config.Cfg.QueryTimeout,
		KeepAliveInterval: config.Cfg.KeepAliveInterval,
	})
	eventHub := hub.New()
	ctrl := session.NewController(session.NewRegistry(), store, factory, eventHub, config.Cfg.ReconnectDelay)

	handlers.Ctrl = ctrl
	handlers.EventHub = eventHub

	// Bring back every known tenant on boot, then keep resyncing on a
	// schedule so sessions dropped by failed reconnects come back.
	resync(ctrl, store)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(config.Cfg.ResyncSchedule, func() {
		resync(ctrl, store)
		if n, err := database.PruneOutboundMessages(messageRetention); err != nil {
			log.Printf("Message prune failed: %v", err)
		} else if n > 0 {
			log.Printf("Pruned %d outbound messages older than %s", n, messageRetention)
		}
	}); err != nil {
		log.Fatalf("Invalid resync schedule %q: %v", config.Cfg.ResyncSchedule, err)
	}
	scheduler.Start()

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	// Health (no auth)
	r.Get("/health", handlers.HealthCheck)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)

		r.Get("/sessions", handlers.ListSessions)
		r.Get("/sessions/{tenantId}/pairing", handlers.GetPairing)
		r.Get("/sessions/{tenantId}/status", handlers.GetSessionStatus)
		r.Delete("/sessions/{tenantId}", handlers.LogoutSession)
		r.Post("/sessions/{tenantId}/messages", handlers.SendMessage)
		r.Get("/sessions/{tenantId}/messages", handlers.ListMessages)
		r.Get("/sessions/{tenantId}/events", handlers.SessionEvents)

		r.Get("/logs", handlers.GetServerLogs)
		r.Delete("/logs", handlers.ClearServerLogs)
	})

	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	cronCtx := scheduler.Stop()
	<-cronCtx.Done()

	ctrl.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

// resync ensures a live session for every tenant that has stored credentials
// or is listed in the tenants.yaml provisioning file. Failures are logged and
// retried on the next scheduled run.
func resync(ctrl *session.Controller, store credentials.Store) {
	known := make(map[string]struct{})

	ids, err := store.Tenants()
	if err != nil {
		log.Printf("Resync: listing credentialed tenants failed: %v", err)
	}
	for _, id := range ids {
		known[id] = struct{}{}
	}

	provisioned, err := config.LoadTenants(config.Cfg.DataPath)
	if err != nil {
		log.Printf("Resync: reading tenants.yaml failed: %v", err)
	}
	for _, t := range provisioned {
		known[t.ID] = struct{}{}
	}

	for id := range known {
		ctx, cancel := context.WithTimeout(context.Background(), config.Cfg.ConnectTimeout)
		_, err := ctrl.EnsureSession(ctx, id)
		cancel()
		if err != nil {
			log.Printf("Resync: session for %s failed: %v", logutil.SanitizeForLog(id), err)
		}
	}
}

func runCLICommand(command string) {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	token := fs.String("token", "", "API token")
	fs.Parse(os.Args[2:])

	if *token == "" {
		fmt.Fprintf(os.Stderr, "Usage: zapmux --%s --token <token>\n", command)
		os.Exit(1)
	}

	config.Load()
	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	if err := middleware.SetAPIToken(*token); err != nil {
		log.Fatalf("Failed to set API token: %v", err)
	}
	fmt.Println("API token updated.")
}
