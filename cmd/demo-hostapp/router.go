package main

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	sa "github.com/panyam/siteauth"
)

var homeTemplate = template.Must(template.New("home").Parse(`<!DOCTYPE html>
<html><head><title>siteauth demo</title></head>
<body>
{{if .Session}}
  <p>Signed in as {{.Session.User.Name}} {{with .Session.User.Email}}({{.}}){{end}}</p>
  <p><a href="/me">Session JSON</a> | <a href="{{.AuthPath}}/signout">Sign out</a></p>
{{else}}
  <p>You are not signed in.</p>
  <p><a href="{{.AuthPath}}/signin">Sign in</a></p>
{{end}}
</body></html>`))

// statusRecorder captures the response status for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func newSlogMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			logger.Info("http request", "method", r.Method, "path", r.URL.Path, "status", recorder.status, "duration", time.Since(start).String())
		})
	}
}

// newRouter mounts the auth handler under its base path, a home page that
// shows the session, and /me which requires one.
func newRouter(cfg *Config, auth *sa.SiteAuth, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(newSlogMiddleware(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	authPath := cfg.Auth.BasePath
	if authPath == "" {
		authPath = "/api/auth"
	}
	r.Handle(authPath+"/*", auth.Handler())

	mw := auth.Middleware()
	r.With(mw.ExtractUser).Get("/", func(w http.ResponseWriter, r *http.Request) {
		data := struct {
			Session  *sa.SessionView
			AuthPath string
		}{sa.SessionFromContext(r.Context()), authPath}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := homeTemplate.Execute(w, data); err != nil {
			logger.Error("rendering home", "error", err)
		}
	})
	r.With(mw.EnsureUser).Get("/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"userId":  sa.UserIDFromContext(r.Context()),
			"session": sa.SessionFromContext(r.Context()),
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
