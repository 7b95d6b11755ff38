package middlewarectx

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/finance-saas/internal/http/response"
	"github.com/magabrotheeeer/finance-saas/internal/lib/session"
	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/services/auth"
)

var errUnauthenticated = errors.New("unauthenticated")

// AuthMiddleware пропускает запрос только с действующей пользовательской сессией
// или bearer-токеном в заголовке Authorization. Пользователь кладётся в контекст.
func AuthMiddleware(sessions SessionLoader, authenticator Authenticator, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.Auth"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			userID, err := identifyUser(r, sessions, authenticator)
			if errors.Is(err, errUnauthenticated) {
				response.Fail(w, r, http.StatusUnauthorized, "authentication required")
				return
			}
			if err != nil {
				log.Error("failed to load session", sl.Err(err))
				response.Internal(w, r)
				return
			}

			user, err := authenticator.CurrentUser(r.Context(), userID)
			if errors.Is(err, auth.ErrUserNotFound) {
				log.Info("session refers to missing user", sl.UserID(userID))
				response.Fail(w, r, http.StatusUnauthorized, "authentication required")
				return
			}
			if err != nil {
				log.Error("failed to load user", sl.Err(err))
				response.Internal(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func identifyUser(r *http.Request, sessions SessionLoader, authenticator Authenticator) (uuid.UUID, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return uuid.Nil, errUnauthenticated
		}
		id, err := authenticator.Authenticate(strings.TrimSpace(token))
		if err != nil {
			return uuid.Nil, errUnauthenticated
		}
		return id, nil
	}

	data, _, err := sessions.Load(r)
	if errors.Is(err, session.ErrNoSession) {
		return uuid.Nil, errUnauthenticated
	}
	if err != nil {
		return uuid.Nil, err
	}
	if data.UserID == nil {
		return uuid.Nil, errUnauthenticated
	}
	return *data.UserID, nil
}

// AdminMiddleware пропускает запрос только с административной сессией активного администратора.
func AdminMiddleware(sessions SessionLoader, authenticator Authenticator, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.Admin"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			data, _, err := sessions.Load(r)
			if err != nil && !errors.Is(err, session.ErrNoSession) {
				log.Error("failed to load session", sl.Err(err))
				response.Internal(w, r)
				return
			}
			if data == nil || data.AdminUserID == nil {
				response.Fail(w, r, http.StatusUnauthorized, "admin authentication required")
				return
			}

			admin, err := authenticator.CurrentAdmin(r.Context(), *data.AdminUserID)
			if errors.Is(err, auth.ErrUserNotFound) {
				log.Warn("admin session for inactive or missing admin", slog.String("admin_id", data.AdminUserID.String()))
				response.Fail(w, r, http.StatusUnauthorized, "admin authentication required")
				return
			}
			if err != nil {
				log.Error("failed to load admin", sl.Err(err))
				response.Internal(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAdmin(r.Context(), admin)))
		})
	}
}
