// Package adminauth реализует вход и выход администраторов.
// Администратор записывается в ту же серверную сессию, что и пользователь, в поля adminUserId и adminUser.
package adminauth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/magabrotheeeer/finance-saas/internal/http/handlers/auth/userauth"
	"github.com/magabrotheeeer/finance-saas/internal/http/middlewarectx"
	"github.com/magabrotheeeer/finance-saas/internal/http/request"
	"github.com/magabrotheeeer/finance-saas/internal/http/response"
	"github.com/magabrotheeeer/finance-saas/internal/lib/session"
	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/models"
)

type Service interface {
	AdminLogin(ctx context.Context, email, password, ip string) (*models.AdminUser, error)
}

type Handler struct {
	log      *slog.Logger
	service  Service
	sessions userauth.Sessions
	validate *validator.Validate
}

func New(log *slog.Logger, service Service, sessions userauth.Sessions) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		sessions: sessions,
		validate: request.NewValidator(),
	}
}

// Login godoc
// @Summary Вход администратора
// @Tags Admin
// @Accept json
// @Produce json
// @Param request body userauth.LoginRequest true "Учётные данные"
// @Success 200 {object} response.Response{data=models.AdminUser}
// @Failure 401 {object} response.ErrorResponse
// @Failure 429 {object} response.ErrorResponse
// @Router /api/admin/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.login"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req userauth.LoginRequest
	if !request.Bind(w, r, h.validate, &req, log) {
		return
	}

	admin, err := h.service.AdminLogin(r.Context(), req.Email, req.Password, request.ClientIP(r))
	if err != nil {
		userauth.WriteLoginError(w, r, log, err)
		return
	}

	err = h.sessions.Renew(w, r, func(d *session.Data) {
		d.AdminUserID = &admin.ID
		d.AdminUser = &session.AdminUser{
			ID:    admin.ID,
			Email: admin.Email,
			Name:  admin.Name,
			Role:  string(admin.Role),
		}
	})
	if err != nil {
		log.Error("failed to open admin session", sl.Err(err))
		response.Internal(w, r)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(admin))
}

// Logout godoc
// @Summary Выход администратора
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/admin/auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	err := h.sessions.Renew(w, r, func(d *session.Data) {
		d.AdminUserID = nil
		d.AdminUser = nil
	})
	if err != nil {
		h.log.Error("failed to close admin session", sl.Err(err))
		response.Internal(w, r)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(nil))
}

// Me godoc
// @Summary Текущий администратор
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Response{data=models.AdminUser}
// @Failure 401 {object} response.ErrorResponse
// @Router /api/admin/auth/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	admin, ok := middlewarectx.AdminFrom(r.Context())
	if !ok {
		response.Fail(w, r, http.StatusUnauthorized, "admin authentication required")
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(admin))
}
