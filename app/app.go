package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/logging"
	"github.com/ristiko/smilodon/activitypub"
	"github.com/ristiko/smilodon/db"
	"github.com/ristiko/smilodon/middleware"
	"github.com/ristiko/smilodon/realtime"
	"github.com/ristiko/smilodon/reminders"
	"github.com/ristiko/smilodon/util"
	"github.com/ristiko/smilodon/web"
)

// App owns the servers and background workers and tears them down in
// order on shutdown.
type App struct {
	config      *util.AppConfig
	database    *db.DB
	broadcaster *realtime.Broadcaster
	inboxDeps   *activitypub.InboxDeps
	sshServer   *ssh.Server
	httpServer  *http.Server
	delivery    *activitypub.DeliveryWorker
	reminders   *reminders.Scheduler
	done        chan os.Signal
}

// New creates an App for the given configuration.
func New(conf *util.AppConfig) (*App, error) {
	return &App{
		config: conf,
		done:   make(chan os.Signal, 1),
	}, nil
}

// Initialize opens the database (running migrations) and builds the SSH
// and HTTP servers without starting them.
func (a *App) Initialize() error {
	dbPath := util.ResolveFilePath("smilodon.db")
	log.Printf("Opening database at: %s", dbPath)
	database, err := db.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.database = database

	a.broadcaster = realtime.NewBroadcaster()
	a.inboxDeps = activitypub.NewInboxDeps(database, a.broadcaster)

	sshKeyPath := util.ResolveFilePathWithSubdir(".ssh", "smilodonhostkey")
	log.Printf("Using SSH host key at: %s", sshKeyPath)

	sshServer, err := wish.NewServer(
		wish.WithAddress(fmt.Sprintf("%s:%d", a.config.Conf.Host, a.config.Conf.SshPort)),
		wish.WithHostKeyPath(sshKeyPath),
		wish.WithPublicKeyAuth(func(ssh.Context, ssh.PublicKey) bool { return true }),
		wish.WithMiddleware(
			middleware.MainTui(a.config, database),
			middleware.AuthMiddleware(a.config, database),
			logging.MiddlewareWithLogger(log.Default()),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create SSH server: %w", err)
	}
	a.sshServer = sshServer

	router := web.Router(&web.Services{
		Conf:        a.config,
		DB:          database,
		AP:          a.inboxDeps,
		Broadcaster: a.broadcaster,
	})
	a.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Conf.HttpPort),
		Handler: router,
	}

	return nil
}

// Start launches the servers and workers and blocks until a shutdown
// signal arrives.
func (a *App) Start() error {
	if a.config.Conf.WithFederation {
		a.delivery = activitypub.StartDeliveryWorker(a.config, a.inboxDeps.Database, a.inboxDeps.HTTPClient)
	}
	a.reminders = reminders.StartScheduler(a.config, a.database, a.broadcaster)

	signal.Notify(a.done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("Starting SSH server on %s:%d", a.config.Conf.Host, a.config.Conf.SshPort)
	go func() {
		if err := a.sshServer.ListenAndServe(); err != nil && err != ssh.ErrServerClosed {
			log.Fatalf("SSH server error: %v", err)
		}
	}()

	log.Printf("Starting HTTP server on %s:%d", a.config.Conf.Host, a.config.Conf.HttpPort)
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-a.done
	log.Println("Shutdown signal received")

	return a.Shutdown()
}

// Shutdown stops the servers first so no new work arrives, then drains
// the workers and closes the database. 30 second cap.
func (a *App) Shutdown() error {
	log.Println("Initiating graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var shutdownErr error

	log.Println("Stopping HTTP server...")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		shutdownErr = err
	}

	log.Println("Stopping SSH server...")
	if err := a.sshServer.Shutdown(ctx); err != nil {
		log.Printf("SSH server shutdown error: %v", err)
		if shutdownErr == nil {
			shutdownErr = err
		}
	}

	if a.delivery != nil {
		a.delivery.Stop()
	}
	if a.reminders != nil {
		a.reminders.Stop()
	}
	a.broadcaster.Close()

	if err := a.database.Close(); err != nil {
		log.Printf("Database close error: %v", err)
		if shutdownErr == nil {
			shutdownErr = err
		}
	}

	log.Println("All servers stopped")
	return shutdownErr
}
