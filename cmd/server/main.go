package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tournament-desk/internal/config"
	"tournament-desk/internal/remote"
	"tournament-desk/internal/server"
	"tournament-desk/internal/session"
	"tournament-desk/internal/sheets"
	"tournament-desk/internal/store"
	"tournament-desk/internal/store/local"
	"tournament-desk/internal/tgbot"
	"tournament-desk/internal/tourney"
)

func main() {
	hashSecret := flag.String("hash-secret", "", "print an argon2id hash of this secret for ADMIN_SECRET and exit")
	flag.Parse()
	if *hashSecret != "" {
		if err := printSecretHash(os.Stdout, *hashSecret); err != nil {
			log.Fatalf("FATAL: hash secret: %v", err)
		}
		return
	}

	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("FATAL: config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("FATAL: storage: %v", err)
	}
	defer st.Close()
	log.Printf("INFO: storage backend %q ready", cfg.StorageBackend)

	svc := tourney.New(st, nil)
	sessions := session.NewManager(cfg.AdminSecret, []byte(cfg.SessionSigningKey), cfg.SessionTTL)
	httpSrv := server.New(cfg, svc, sessions)

	// Start HTTP server
	go func() {
		log.Printf("INFO: HTTP listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("FATAL: http server: %v", err)
		}
	}()

	// Start Telegram, if configured
	if cfg.TelegramToken != "" {
		botApp, err := tgbot.New(cfg, svc)
		if err != nil {
			log.Fatalf("FATAL: telegram: %v", err)
		}
		go func() {
			if err := botApp.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("bot stopped: %v", err)
			}
		}()
		log.Println("INFO: telegram bot started")
	}

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	cancel()
	ctxTimeout, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = httpSrv.Shutdown(ctxTimeout)

	log.Println("bye")
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.StorageBackend {
	case config.BackendSheets:
		c, err := sheets.New(ctx, cfg.GoogleServiceAccountJSON, cfg.SpreadsheetID)
		if err != nil {
			return nil, err
		}
		log.Printf("INFO: using spreadsheet %s", c.SpreadsheetID())
		return c, nil
	case config.BackendRemote:
		c := remote.New(cfg.RemoteEndpointURL, cfg.RemoteTimeout)
		if cfg.RemoteAdminSecret != "" {
			if err := c.Login(ctx, cfg.RemoteAdminSecret); err != nil {
				return nil, fmt.Errorf("remote login: %w", err)
			}
		}
		return c, nil
	default:
		if err := os.MkdirAll(cfg.DataPath, 0o755); err != nil {
			return nil, err
		}
		s, err := local.Open(ctx, cfg.DatabaseFile())
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func printSecretHash(w io.Writer, secret string) error {
	hash, err := session.HashSecret(secret)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, hash)
	return err
}
