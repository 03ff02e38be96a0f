package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/target/hrm-scheduler/internal/domain/auth"
	"github.com/target/hrm-scheduler/internal/ports"
)

const (
	anonymousUserID = "anonymous"
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 128
)

var (
	errInternal           = errors.New("internal server error")
	errAuthRequired       = errors.New("authentication required")
	errInsufficientAccess = errors.New("insufficient permissions")
)

// RequestID returns a middleware that propagates or generates the X-Request-ID header.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(requestIDHeader))
			if id == "" || len(id) > maxRequestIDLen {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)
			ctx := contextWithRequestID(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", RequestIDFromContext(r.Context())),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					WriteError(w, ErrorParams{
						Code:    http.StatusInternalServerError,
						ErrCode: "internal",
						Err:     errInternal,
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Auth configures bearer token authentication for the API.
// A nil Verifier disables authentication: every request acts as an anonymous admin.
type Auth struct {
	Verifier ports.TokenVerifier
	Roles    ports.RoleMapper
	Logger   *slog.Logger
}

// RequireAuth returns a middleware that authenticates the bearer token and stores the
// principal in the request context. Missing or invalid tokens get 401; callers without
// a readable role get 403.
func RequireAuth(auth Auth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, status, err := auth.authenticate(r)
			if err != nil {
				WriteError(w, ErrorParams{Code: status, ErrCode: authErrCode(status), Err: err})
				return
			}
			ctx := SetPrincipalInContext(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole returns a middleware that requires a specific role.
// It must run after RequireAuth.
func RequireRole(requiredRole domainauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "authentication_required", Err: errAuthRequired})
				return
			}
			if !hasRequiredRole(principal.Role, requiredRole) {
				WriteError(w, ErrorParams{Code: http.StatusForbidden, ErrCode: "insufficient_permissions", Err: errInsufficientAccess})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a Auth) authenticate(r *http.Request) (*domainauth.Principal, int, error) {
	if a.Verifier == nil {
		return &domainauth.Principal{
			Identity: domainauth.Identity{UserID: anonymousUserID},
			Role:     domainauth.RoleAdmin,
		}, http.StatusOK, nil
	}

	token, ok := bearerToken(r)
	if !ok {
		return nil, http.StatusUnauthorized, errAuthRequired
	}
	id, err := a.Verifier.Verify(r.Context(), token)
	if err != nil {
		if a.Logger != nil {
			a.Logger.WarnContext(r.Context(), "bearer token rejected", "path", r.URL.Path, "error", err)
		}
		return nil, http.StatusUnauthorized, errAuthRequired
	}

	role := domainauth.RoleUser
	if a.Roles != nil {
		role = a.Roles.Map(id.Groups)
	}
	principal := &domainauth.Principal{Identity: id, Role: role}
	if !principal.CanRead() {
		return nil, http.StatusForbidden, errInsufficientAccess
	}
	return principal, http.StatusOK, nil
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func authErrCode(status int) string {
	if status == http.StatusForbidden {
		return "insufficient_permissions"
	}
	return "authentication_required"
}

// hasRequiredRole checks if the user's role meets the required role.
// Role hierarchy: Guest < User < Admin.
func hasRequiredRole(userRole, requiredRole domainauth.Role) bool {
	roleHierarchy := map[domainauth.Role]int{
		domainauth.RoleGuest: 0,
		domainauth.RoleUser:  1,
		domainauth.RoleAdmin: 2,
	}

	userLevel, userExists := roleHierarchy[userRole]
	requiredLevel, requiredExists := roleHierarchy[requiredRole]

	if !userExists || !requiredExists {
		return false
	}

	return userLevel >= requiredLevel
}
