package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires every auth route behind the request id, logging and error
// boundary middleware.
func NewRouter(ac *AuthContext) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(ac.RequestLogger)
	r.Use(ac.Recoverer)

	r.Get("/healthz", ac.Healthz)
	r.Get("/", ac.handle(ac.Index))

	r.Group(func(r chi.Router) {
		r.Use(ac.RedirectIfAuthenticated)
		r.Get("/login", ac.handle(ac.LoginPage))
		r.Get("/signup", ac.handle(ac.SignupPage))
	})
	r.Post("/login", ac.handle(ac.Login))
	r.Post("/signup", ac.handle(ac.Signup))
	r.Post("/logout", ac.handle(ac.Logout))

	r.With(ac.RequireUser).Get("/account", ac.handle(ac.Account))

	return r
}

// RequestLogger logs one line per request with the chi request id.
func (ac *AuthContext) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		ac.Logger.Info(r.Context(), "request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}
