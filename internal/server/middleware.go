package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/quiplabs/quip/internal/models"
)

// slowRequestThreshold is the duration above which requests are logged at
// WARN level.
const slowRequestThreshold = 2 * time.Second

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLogging returns middleware that logs all requests with timing.
// Slow requests are logged at WARN level.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", duration.Milliseconds(),
			}

			switch {
			case rec.status >= http.StatusInternalServerError:
				logger.Error("request failed", attrs...)
			case duration > slowRequestThreshold:
				logger.Warn("slow request", attrs...)
			default:
				logger.Debug("request completed", attrs...)
			}
		})
	}
}

// authHandler receives the authenticated principal along with the request.
type authHandler func(w http.ResponseWriter, r *http.Request, principal *models.User)

// requireAuth validates the session token (Authorization header first,
// cookie fallback) and loads the principal.
func (s *Server) requireAuth(next authHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			if cookie, err := r.Cookie("token"); err == nil {
				token = cookie.Value
			}
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing session token", 0)
			return
		}

		principalID, err := s.parseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid session token", 0)
			return
		}

		user, err := s.store.GetUser(r.Context(), principalID)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", "account lookup failed", 0)
			return
		}
		if user == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "unknown account", 0)
			return
		}

		next(w, r, user)
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// issueToken creates a signed session token for a principal.
func (s *Server) issueToken(principalID string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:  principalID,
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// parseToken validates a session token and returns the principal ID.
func (s *Server) parseToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) { return s.jwtSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return "", err
	}
	return token.Claims.GetSubject()
}
