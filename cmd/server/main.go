package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fdrpot/chat/internal/api"
	"github.com/fdrpot/chat/internal/config"
	"github.com/fdrpot/chat/internal/database"
	"github.com/fdrpot/chat/internal/mail"
	"github.com/fdrpot/chat/internal/server"
	"github.com/fdrpot/chat/internal/stats"
)

const shutdownTimeout = 10 * time.Second

type stringSliceFlag []string

func (f *stringSliceFlag) String() string {
	return strings.Join(*f, ",")
}

func (f *stringSliceFlag) Set(value string) error {
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			*f = append(*f, v)
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := log.New(os.Stdout, "chat: ", log.LstdFlags|log.Lshortfile)

	if err := config.LoadEnv(); err != nil {
		logger.Fatalf("failed to load .env: %v", err)
	}

	var (
		addr           = flag.String("addr", envOr("CHAT_ADDR", "localhost:8080"), "server listen address")
		dsn            = flag.String("dsn", os.Getenv("CHAT_DATABASE_DSN"), "postgres connection string")
		signingSecret  = flag.String("signing-secret", os.Getenv("CHAT_SIGNING_SECRET"), "base64-encoded JWT signing secret")
		baseURL        = flag.String("base-url", os.Getenv("CHAT_BASE_URL"), "public base URL used in activation links")
		runMigrations  = flag.Bool("migrate", false, "apply schema migrations on startup")
		smtpAddr       = flag.String("smtp-addr", os.Getenv("CHAT_SMTP_ADDR"), "SMTP server address; activation mail is logged when unset")
		smtpFrom       = flag.String("smtp-from", os.Getenv("CHAT_SMTP_FROM"), "From address for activation mail")
		smtpUser       = flag.String("smtp-user", os.Getenv("CHAT_SMTP_USER"), "SMTP username")
		smtpPassword   = flag.String("smtp-password", os.Getenv("CHAT_SMTP_PASSWORD"), "SMTP password")
		allowedOrigins stringSliceFlag
	)
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed CORS origins")
	flag.Parse()

	if len(allowedOrigins) == 0 {
		allowedOrigins.Set(os.Getenv("CHAT_ALLOWED_ORIGINS"))
	}

	cfg, err := config.NewConfig(*addr, *dsn, *signingSecret, *baseURL, allowedOrigins, config.SMTPConfig{
		Addr:     *smtpAddr,
		From:     *smtpFrom,
		Username: *smtpUser,
		Password: *smtpPassword,
	})
	if err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	if *runMigrations {
		if err := database.Migrate(cfg.DatabaseDSN); err != nil {
			logger.Fatalf("failed to run migrations: %v", err)
		}
		logger.Println("schema migrations applied")
	}

	db, err := database.NewPgChatRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	mux := http.NewServeMux()

	su := stats.NewStatsUpdater(mux)
	su.Run()
	defer su.Stop()

	sessions := api.NewSessionResolver(cfg.SigningKey)

	cs, err := server.NewChatServer(logger, db, sessions, su)
	if err != nil {
		logger.Fatalf("failed to create chat server: %v", err)
	}

	var mailer mail.Mailer
	if cfg.SMTP.Addr != "" {
		mailer = mail.NewSMTPMailer(cfg.SMTP.Addr, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
	} else {
		mailer = &mail.NoopMailer{Log: logger}
	}

	app := api.NewChatApp(mux, logger, cs, db, sessions, mailer, cfg)

	errChan := make(chan error, 1)
	go func() {
		if err := app.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		logger.Fatalf("server error: %v", err)
	case sig := <-sigChan:
		logger.Printf("received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	cs.Shutdown()
	if err := app.Shutdown(ctx); err != nil {
		logger.Fatalf("failed to shut down server: %v", err)
	}
}
