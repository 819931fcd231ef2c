package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"collab-billing/internal/domain"
	"collab-billing/internal/infra/logging"
	"collab-billing/internal/infra/metrics"
	red "collab-billing/internal/infra/redis"
)

// RateLimiter counts hits per key over a rolling window. redis.RateLimiter satisfies it.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

var _ RateLimiter = (*red.RateLimiter)(nil)

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func (s *Server) traceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tid := r.Header.Get("X-Request-Id")
		if tid == "" {
			tid = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", tid)
		next.ServeHTTP(w, r.WithContext(logging.WithTraceID(r.Context(), tid)))
	})
}

// requestLog logs every request and records its duration by route pattern.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		d := time.Since(start)
		route := routePattern(r)
		metrics.ObserveHTTP(route, r.Method, ww.status, d)
		l := logging.With(r.Context(), s.log)
		l.Info().
			Str("method", r.Method).
			Str("route", route).
			Int("status", ww.status).
			Dur("duration", d).
			Msg("http_request")
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				l := logging.With(r.Context(), s.log)
				l.Error().Interface("panic", rec).Msg("panic recovered")
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Code: string(domain.KindInternal)})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) timeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			s.writeError(w, r, domain.ErrUnauthorized)
			return
		}
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			s.writeError(w, r, domain.ErrUnauthorized)
			return
		}
		ctx := withClaims(r.Context(), claims)
		ctx = logging.WithUserID(ctx, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !claimsFrom(r.Context()).IsAdmin() {
			metrics.IncAdminRequest(r.URL.Path, "forbidden")
			s.writeError(w, r, domain.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
		metrics.IncAdminRequest(routePattern(r), "authorized")
	})
}

// rateLimit allows RateLimitPerMin calls of action per user per minute. Limiter
// failures let the request through.
func (s *Server) rateLimit(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := claimsFrom(r.Context())
			if s.limiter == nil || c == nil || s.opts.RateLimitPerMin <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ok, err := s.limiter.Allow(r.Context(), red.UserActionKey(c.Subject, action), s.opts.RateLimitPerMin, time.Minute)
			if err != nil {
				l := logging.With(r.Context(), s.log)
				l.Warn().Err(err).Str("action", action).Msg("rate limiter unavailable")
			} else if !ok {
				metrics.IncRateLimitTriggered(action)
				s.writeError(w, r, domain.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

