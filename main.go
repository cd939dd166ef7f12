package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/devanchen/needix-mvp/internal/config"
	"github.com/devanchen/needix-mvp/internal/db"
	"github.com/devanchen/needix-mvp/internal/handlers"
	"github.com/devanchen/needix-mvp/internal/ingest"
	"github.com/devanchen/needix-mvp/internal/mailbox"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Ensure database directory exists
	dbDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	// Open database
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	log.Printf("Database opened at: %s", cfg.DBPath)

	// Select the mailbox source
	client, err := newMailboxClient(cfg)
	if err != nil {
		log.Fatalf("Failed to configure mailbox: %v", err)
	}
	log.Printf("Mailbox source: %s", client.Source())

	ingestSvc := ingest.New(database, client, cfg.Ingest.Query)

	// Set up router
	h := handlers.New(database, cfg, ingestSvc)

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// Routes
	h.Routes(r)

	// Create server
	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Create shutdown signal channel
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		log.Printf("Starting server on %s", cfg.URL())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	log.Println("\nShutting down gracefully...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// newMailboxClient builds the configured mail source
func newMailboxClient(cfg *config.Config) (mailbox.Client, error) {
	if cfg.Mailbox.Source == "gmail" {
		oauthCfg := &oauth2.Config{
			ClientID:     cfg.Mailbox.Gmail.ClientID,
			ClientSecret: cfg.Mailbox.Gmail.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{mailbox.GmailReadScope},
		}
		token := &oauth2.Token{RefreshToken: cfg.Mailbox.Gmail.RefreshToken}
		ts := oauthCfg.TokenSource(context.Background(), token)
		return mailbox.NewGmail(context.Background(), ts), nil
	}

	// Create the maildir on first run so ingest has somewhere to look
	if _, err := os.Stat(cfg.Mailbox.MaildirPath); os.IsNotExist(err) {
		log.Printf("Mail directory not found, creating: %s", cfg.Mailbox.MaildirPath)
		if err := os.MkdirAll(cfg.Mailbox.MaildirPath, 0755); err != nil {
			return nil, err
		}
		log.Printf("Place your .eml files in this directory and trigger an ingest")
	}
	return mailbox.NewMaildir(cfg.Mailbox.MaildirPath), nil
}
