package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const loginContextKey contextKey = "login"

// RequireAuth is middleware that requires a valid login session.
func RequireAuth(lm *LoginManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			login := lm.GetLoginFromRequest(r)
			if login == nil {
				http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), loginContextKey, login)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTeacher rejects requests whose login is not a teacher. Must run
// after RequireAuth.
func RequireTeacher(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		login := GetLoginFromContext(r.Context())
		if login == nil || login.Role != RoleTeacher {
			http.Error(w, `{"error": "teacher login required"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetLoginFromContext retrieves the login from the request context.
func GetLoginFromContext(ctx context.Context) *Login {
	login, ok := ctx.Value(loginContextKey).(*Login)
	if !ok {
		return nil
	}
	return login
}

// SetLoginInContext adds a login to the context.
// This is primarily for testing - use RequireAuth middleware in production.
func SetLoginInContext(ctx context.Context, login *Login) context.Context {
	return context.WithValue(ctx, loginContextKey, login)
}
