// Package userauth реализует HTTP-обработчики регистрации, входа и выхода пользователей,
// а также выпуск bearer-токенов для API-клиентов.
//
// Вход через cookie записывает userId в серверную сессию; административная часть той же
// сессии при этом не затрагивается.
package userauth

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/magabrotheeeer/finance-saas/internal/http/request"
	"github.com/magabrotheeeer/finance-saas/internal/http/response"
	"github.com/magabrotheeeer/finance-saas/internal/lib/session"
	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/services/auth"
)

// Service описывает интерфейс бизнес-логики аутентификации.
type Service interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*models.User, error)
	Login(ctx context.Context, email, password, ip string) (*models.User, error)
	IssueToken(ctx context.Context, email, password, ip string) (*auth.Token, error)
}

// Sessions изменяет серверную сессию запроса.
type Sessions interface {
	Renew(w http.ResponseWriter, r *http.Request, mutate func(*session.Data)) error
}

// LoginRequest — учётные данные для входа.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Handler обрабатывает запросы аутентификации пользователей.
type Handler struct {
	log      *slog.Logger
	service  Service
	sessions Sessions
	validate *validator.Validate
}

func New(log *slog.Logger, service Service, sessions Sessions) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		sessions: sessions,
		validate: request.NewValidator(),
	}
}

func (h *Handler) logger(r *http.Request, op string) *slog.Logger {
	return h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

// Register godoc
// @Summary Регистрация пользователя
// @Description Создаёт пользователя с пробным периодом на плане basic и открывает сессию.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body auth.RegisterRequest true "Данные пользователя"
// @Success 201 {object} response.Response{data=models.User}
// @Failure 400 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 409 {object} response.ErrorResponse "E-mail уже зарегистрирован"
// @Failure 500 {object} response.ErrorResponse
// @Router /api/auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.auth.register")

	var req auth.RegisterRequest
	if !request.Bind(w, r, h.validate, &req, log) {
		return
	}

	user, err := h.service.Register(r.Context(), req)
	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		response.Fail(w, r, http.StatusConflict, "email already registered")
		return
	case errors.Is(err, auth.ErrInvalidInput):
		log.Info("registration rejected", sl.Err(err))
		response.Fail(w, r, http.StatusBadRequest, "invalid registration data")
		return
	case err != nil:
		log.Error("failed to register user", sl.Err(err))
		response.Internal(w, r)
		return
	}

	if err := h.sessions.Renew(w, r, func(d *session.Data) { d.UserID = &user.ID }); err != nil {
		log.Error("failed to open session", sl.Err(err))
		response.Internal(w, r)
		return
	}

	log.Info("user registered", sl.UserID(user.ID))
	response.Send(w, r, http.StatusCreated, response.OK(user))
}

// Login godoc
// @Summary Вход пользователя
// @Description Проверяет e-mail и пароль и открывает cookie-сессию. Неудачные попытки ограничены по IP.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Учётные данные"
// @Success 200 {object} response.Response{data=models.User}
// @Failure 400 {object} response.ErrorResponse
// @Failure 401 {object} response.ErrorResponse "Неверные учётные данные"
// @Failure 429 {object} response.ErrorResponse "Слишком много попыток"
// @Router /api/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.auth.login")

	var req LoginRequest
	if !request.Bind(w, r, h.validate, &req, log) {
		return
	}

	user, err := h.service.Login(r.Context(), req.Email, req.Password, request.ClientIP(r))
	if err != nil {
		WriteLoginError(w, r, log, err)
		return
	}

	if err := h.sessions.Renew(w, r, func(d *session.Data) { d.UserID = &user.ID }); err != nil {
		log.Error("failed to open session", sl.Err(err))
		response.Internal(w, r)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(user))
}

// Logout godoc
// @Summary Выход пользователя
// @Tags Auth
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.auth.logout")

	if err := h.sessions.Renew(w, r, func(d *session.Data) { d.UserID = nil }); err != nil {
		log.Error("failed to close session", sl.Err(err))
		response.Internal(w, r)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(nil))
}

// Token godoc
// @Summary Выпуск bearer-токена
// @Description Проверяет учётные данные и возвращает JWT для заголовка Authorization.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Учётные данные"
// @Success 200 {object} response.Response{data=auth.Token}
// @Failure 401 {object} response.ErrorResponse
// @Failure 429 {object} response.ErrorResponse
// @Router /api/auth/token [post]
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.auth.token")

	var req LoginRequest
	if !request.Bind(w, r, h.validate, &req, log) {
		return
	}

	token, err := h.service.IssueToken(r.Context(), req.Email, req.Password, request.ClientIP(r))
	if err != nil {
		WriteLoginError(w, r, log, err)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(token))
}

// WriteLoginError отвечает на неудачный вход. Используется и административным входом.
func WriteLoginError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var throttled *auth.ThrottledError
	switch {
	case errors.As(err, &throttled):
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(throttled.RetryAfter.Seconds()))))
		response.Fail(w, r, http.StatusTooManyRequests, "too many login attempts, try again later")
	case errors.Is(err, auth.ErrInvalidCredentials):
		response.Fail(w, r, http.StatusUnauthorized, "invalid email or password")
	default:
		log.Error("login failed", sl.Err(err))
		response.Internal(w, r)
	}
}
