package middleware

import (
	"net/http"

	"storefront/internal/session"

	"go.uber.org/zap"
)

// LoginPath is where anonymous visitors are sent by RequireLogin.
const LoginPath = "/auth/login"

// RequireLogin lets logged in sessions through. Other visitors get 401 on
// JSON requests, or are redirected to the login page with the current URL
// remembered for after login.
func RequireLogin(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := session.FromContext(r.Context())
			if sess != nil && sess.LoggedIn() {
				next.ServeHTTP(w, r)
				return
			}

			if WantsJSON(r) {
				RespondWithError(w, http.StatusUnauthorized, "login required")
				return
			}

			if sess != nil {
				if r.Method == http.MethodGet {
					sess.SetReturnTo(r.URL.RequestURI())
				}
				sess.Flash(session.FlashInfo, "Faça login para continuar.")
			}
			logger.Debug("Redirecting anonymous visitor to login", zap.String("path", r.URL.Path))
			http.Redirect(w, r, LoginPath, http.StatusSeeOther)
		})
	}
}

// RequireAdminSession allows only admin sessions and hands everyone else to
// forbidden.
func RequireAdminSession(forbidden http.Handler, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := session.FromContext(r.Context())
			if sess != nil && sess.User != nil && sess.User.IsAdmin {
				next.ServeHTTP(w, r)
				return
			}

			fields := []zap.Field{zap.String("path", r.URL.Path)}
			if sess != nil && sess.User != nil {
				fields = append(fields, zap.String("user_id", sess.User.ID.String()))
			}
			logger.Warn("Non-admin attempted to access admin area", fields...)
			forbidden.ServeHTTP(w, r)
		})
	}
}
