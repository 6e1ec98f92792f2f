package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
	"github.com/ncastellani/parlor/internal/config"
	"github.com/ncastellani/parlor/internal/database"
	"github.com/ncastellani/parlor/internal/files"
	"github.com/ncastellani/parlor/internal/moderation"
	"github.com/ncastellani/parlor/internal/server"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ParlorApp struct {
	log            *zap.SugaredLogger
	db             database.ParlorRepository
	mux            *http.Server
	cs             *server.ChatServer
	mod            *moderation.Engine
	uploads        *files.Store
	validate       *validator.Validate
	limiter        *rateLimiter
	signingKey     []byte
	allowedOrigins []string
}

func NewParlorApp(mux *http.ServeMux, logger *zap.SugaredLogger, cs *server.ChatServer, db database.ParlorRepository, mod *moderation.Engine, uploads *files.Store, cfg *config.Config) *ParlorApp {
	s := &ParlorApp{
		log:            logger,
		db:             db,
		cs:             cs,
		mod:            mod,
		uploads:        uploads,
		validate:       validator.New(),
		limiter:        newRateLimiter(rate.Limit(20), 40),
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.HandleFunc("/api/account", s.authMiddleware(s.account))
	mux.HandleFunc("POST /api/account/avatar", s.authMiddleware(s.uploadAvatar))
	mux.HandleFunc("POST /api/uploads", s.authMiddleware(s.uploadMedia))
	mux.HandleFunc("GET /api/rooms", s.authMiddleware(s.listRooms))
	mux.HandleFunc("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.HandleFunc("GET /api/rooms/{name}", s.authMiddleware(s.getRoom))
	mux.HandleFunc("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.HandleFunc("POST /api/reactions", s.authMiddleware(s.createReaction))
	mux.HandleFunc("POST /api/pins", s.adminMiddleware(s.createPin))
	mux.HandleFunc("POST /api/admin/ban/{id}", s.adminMiddleware(s.banUser))
	mux.HandleFunc("POST /api/admin/unban/{id}", s.adminMiddleware(s.unbanUser))
	mux.HandleFunc("POST /api/admin/mute/{id}", s.adminMiddleware(s.muteUser))
	mux.HandleFunc("GET /uploads/{file}", s.serveUpload)
	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.rateLimitMiddleware(h)
	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *ParlorApp) Start() error {
	s.log.Infof("starting server on %s", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ParlorApp) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
