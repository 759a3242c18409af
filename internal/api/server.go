package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"task-manager/internal/cerr"
	"task-manager/internal/clog"
	"task-manager/internal/service"
)

type Server struct {
	server         *http.Server
	allowedOrigins []string
	authService    *service.AuthService
	taskService    *service.TaskService
	reportService  *service.ReportService
	loginLimit     func(http.Handler) http.Handler
}

func NewServer(
	addr string,
	allowedOrigins []string,
	authService *service.AuthService,
	taskService *service.TaskService,
	reportService *service.ReportService,
	loginLimit int,
	loginWindow time.Duration,
) *Server {
	s := &Server{
		allowedOrigins: allowedOrigins,
		authService:    authService,
		taskService:    taskService,
		reportService:  reportService,
		loginLimit:     loginRateLimit(loginLimit, loginWindow),
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(clog.SlogChiMiddleware, middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/users/register", s.register)
		r.With(s.loginLimit).Post("/users/login", s.login)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Put("/users/me", s.updateMe)

			r.Get("/tasks", s.listTasks)
			r.Post("/tasks", s.createTask)
			r.Get("/tasks/{taskID}", s.getTask)
			r.Put("/tasks/{taskID}", s.updateTask)
			r.Delete("/tasks/{taskID}", s.deleteTask)
			r.Get("/tasks/{taskID}/history", s.taskHistory)

			r.Get("/report", s.getReport)
			r.Put("/report", s.updateReport)
		})

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, r, cerr.NewError(cerr.NotFound, "not found", nil))
		})
	})

	return cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(r)
}

// ListenAndServe starts the HTTP server. ctx is the base context of every
// request.
func (s *Server) ListenAndServe(ctx context.Context) error {
	slog.Info("starting server", "addr", s.server.Addr)
	s.server.BaseContext = func(_ net.Listener) context.Context { return ctx }
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
