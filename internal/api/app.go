package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/fdrpot/chat/internal/config"
	"github.com/fdrpot/chat/internal/database"
	"github.com/fdrpot/chat/internal/mail"
	"github.com/fdrpot/chat/internal/server"
	"github.com/gorilla/handlers"
)

type ChatApp struct {
	log            *log.Logger
	db             database.ChatRepository
	mux            *http.Server
	cs             *server.ChatServer
	sessions       *SessionResolver
	mailer         mail.Mailer
	signingKey     []byte
	allowedOrigins []string
	baseURL        string
}

func NewChatApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.ChatRepository, sessions *SessionResolver, mailer mail.Mailer, cfg *config.Config) *ChatApp {
	s := &ChatApp{
		log:            logger,
		db:             db,
		cs:             cs,
		sessions:       sessions,
		mailer:         mailer,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
		baseURL:        cfg.BaseURL,
	}

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("GET /api/auth/activate", s.activateAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.Handle("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("/api/account", s.authMiddleware(s.account))
	mux.Handle("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.Handle("GET /api/rooms", s.authMiddleware(s.getRoom))
	mux.Handle("PUT /api/rooms", s.authMiddleware(s.updateRoom))
	mux.Handle("GET /api/rooms/list", s.authMiddleware(s.listRooms))
	mux.Handle("POST /api/rooms/members", s.authMiddleware(s.changeMembership))
	mux.Handle("POST /api/rooms/enter", s.authMiddleware(s.enterRoom))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.Handle("POST /api/messages", s.authMiddleware(s.postMessage))
	mux.Handle("POST /api/messages/delete", s.authMiddleware(s.deleteMessage))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *ChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
