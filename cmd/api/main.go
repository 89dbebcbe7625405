package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"prosite.org/internal/agent"
	"prosite.org/internal/auth"
	"prosite.org/internal/castle"
	"prosite.org/internal/config"
	"prosite.org/internal/httpapi"
	"prosite.org/internal/obs"
)

var (
	version = "1.2.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if db == nil {
		log.Fatal("PROSITE_PG_DSN is required")
	}

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.AccessTTL)
	if err != nil {
		log.Fatalf("issuer: %v", err)
	}
	hasher := auth.NewHasher(cfg.BcryptCost)
	store := auth.NewPGStore(db)

	// Reset links are handed to the mail pipeline; until one is wired we
	// surface them in the structured log so operators can relay manually.
	mailer := auth.MailerFunc(func(ctx context.Context, email, token string) error {
		obs.Info("password reset issued", map[string]any{"email": email, "token": token})
		return nil
	})

	sessions := auth.NewService(store, issuer, hasher, auth.WithRefreshTTL(cfg.RefreshTTL))
	resets := auth.NewResetFlow(store, hasher, mailer, auth.WithResetTTL(cfg.ResetTTL))
	gate := auth.NewGate(issuer, store.Accounts())

	var pusher castle.Pusher
	if cfg.AgentURL != "" {
		client, err := agent.New(cfg.AgentURL, cfg.AgentKey,
			agent.WithAttempts(cfg.AgentAttempts),
			agent.WithRetryDelay(cfg.AgentRetryDelay),
			agent.WithTimeout(cfg.AgentTimeout),
		)
		if err != nil {
			log.Fatalf("agent: %v", err)
		}
		pusher = client
	}
	castles := castle.NewService(castle.NewPGStore(db), pusher)

	api := httpapi.New(httpapi.Options{
		Gate:          gate,
		Sessions:      sessions,
		Resets:        resets,
		Castles:       castles,
		Ready:         httpapi.ReadyProbe{DB: db},
		Version:       version,
		RateBurst:     cfg.RateBurst,
		RatePerSecond: cfg.RatePerSecond,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting prosite-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	// Let in-flight settings deliveries finish before the process exits.
	castles.Drain()
	_ = db.Close()
	log.Println("Stopped")
}
