package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"tournament-desk/internal/apperr"
	"tournament-desk/internal/config"
	"tournament-desk/internal/session"
	"tournament-desk/internal/tourney"
	"tournament-desk/internal/util"
)

// maxBody leaves room for a 3 MiB image after base64 inflation.
const maxBody = 8 << 20

type Server struct {
	cfg      config.Config
	svc      *tourney.Service
	sessions *session.Manager
}

func New(cfg config.Config, svc *tourney.Service, sessions *session.Manager) *http.Server {
	s := &Server{cfg: cfg, svc: svc, sessions: sessions}
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ts": util.NowISO()})
	})

	r.With(s.sessionMiddleware).Post("/api", s.handleAction)

	r.Get("/export/registrants.txt", s.handleExportRegistrants(false))
	r.Get("/export/registrants.csv", s.handleExportRegistrants(true))
	r.Get("/export/subscribers.txt", s.handleExportSubscribers)

	return r
}

type contextKey string

const sessionContextKey = contextKey("session")

// sessionMiddleware attaches the admin session named by the bearer token.
// Requests without a valid token run as visitors.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearer(r)
		if token != "" {
			sess, err := s.sessions.Resolve(token)
			if err == nil {
				r = r.WithContext(context.WithValue(r.Context(), sessionContextKey, sess))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func bearer(r *http.Request) string {
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return ""
}

func sessionFrom(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionContextKey).(*session.Session)
	return sess
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	js, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Internal Server Error: Failed to marshal JSON", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(js)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  any         `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
	Code  apperr.Code `json:"code,omitempty"`
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, response{OK: true, Data: data})
}

// errorJSON reports err with the status matching its kind.
func errorJSON(w http.ResponseWriter, op string, err error) {
	status := statusOf(err)
	if status >= 500 {
		log.Printf("ERROR: %s: %v", op, err)
	}
	writeJSON(w, status, response{Error: apperr.UserMessage(err), Code: apperr.CodeOf(err)})
}

func statusOf(err error) int {
	switch apperr.CodeOf(err) {
	case apperr.CodeValidation, apperr.CodeImageTooLarge, apperr.CodeUnsupportedImage:
		return http.StatusBadRequest
	case apperr.CodeForbidden:
		return http.StatusForbidden
	case apperr.CodeNotFound, apperr.CodeNotRegistered:
		return http.StatusNotFound
	case apperr.CodeCapacityReached, apperr.CodeDuplicate:
		return http.StatusConflict
	}
	if errors.Is(err, apperr.ErrTransport) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
