// Package auth отвечает за регистрацию, вход пользователей и администраторов,
// ограничение попыток входа и выпуск bearer-токенов.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/finance-saas/internal/lib/jwt"
	"github.com/magabrotheeeer/finance-saas/internal/lib/password"
	"github.com/magabrotheeeer/finance-saas/internal/lib/period"
	"github.com/magabrotheeeer/finance-saas/internal/lib/ratelimit"
	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/metrics"
	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/services/audit"
	"github.com/magabrotheeeer/finance-saas/internal/storage"
)

var (
	// ErrInvalidCredentials — неверный e-mail или пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailTaken — e-mail уже зарегистрирован.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidInput — некорректные данные регистрации.
	ErrInvalidInput = errors.New("invalid registration data")
	// ErrTooManyAttempts — превышено число неудачных попыток входа.
	ErrTooManyAttempts = errors.New("too many login attempts")
	// ErrUserNotFound — пользователь из сессии или токена больше не существует.
	ErrUserNotFound = errors.New("user not found")
)

// ThrottledError сообщает, через сколько можно повторить вход.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("%s, retry after %s", ErrTooManyAttempts, e.RetryAfter.Round(time.Second))
}

func (e *ThrottledError) Unwrap() error { return ErrTooManyAttempts }

// UserRepository — хранилище пользователей.
type UserRepository interface {
	CreateUser(ctx context.Context, u *models.User) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// AdminRepository — хранилище администраторов.
type AdminRepository interface {
	CreateAdmin(ctx context.Context, a *models.AdminUser) (*models.AdminUser, error)
	GetAdminByEmail(ctx context.Context, email string) (*models.AdminUser, error)
	GetAdminByID(ctx context.Context, id uuid.UUID) (*models.AdminUser, error)
	CountAdmins(ctx context.Context) (int64, error)
	TouchAdminLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Limiter считает неудачные попытки входа по ключу.
type Limiter interface {
	Status(ctx context.Context, key string) (*ratelimit.Result, error)
	Hit(ctx context.Context, key string) (*ratelimit.Result, error)
	Reset(ctx context.Context, key string) error
}

// Auditor пишет журнал действий.
type Auditor interface {
	Log(ctx context.Context, entry *models.AuditLog)
}

// RegisterRequest — данные регистрации.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=100"`
	Password string `json:"password" validate:"required,min=8"`
	Timezone string `json:"timezone,omitempty"`
}

// Token — выпущенный bearer-токен.
type Token struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Service — аутентификация пользователей и администраторов.
type Service struct {
	users     UserRepository
	admins    AdminRepository
	limiter   Limiter
	tokens    jwt.Maker
	audit     Auditor
	log       *slog.Logger
	trialDays int
	now       func() time.Time
}

func New(users UserRepository, admins AdminRepository, limiter Limiter, tokens jwt.Maker, auditor Auditor, trialDays int, log *slog.Logger) *Service {
	return &Service{
		users:     users,
		admins:    admins,
		limiter:   limiter,
		tokens:    tokens,
		audit:     auditor,
		log:       log,
		trialDays: trialDays,
		now:       time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register создаёт пользователя с пробным периодом на плане basic.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	const op = "auth.Register"

	email := normalizeEmail(req.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%s: %w: bad email", op, ErrInvalidInput)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%s: %w: name is required", op, ErrInvalidInput)
	}
	if len(req.Password) < password.MinLength {
		return nil, fmt.Errorf("%s: %w: password shorter than %d", op, ErrInvalidInput, password.MinLength)
	}
	tz := strings.TrimSpace(req.Timezone)
	if tz == "" {
		tz = period.DefaultTimezone
	}
	if _, err := time.LoadLocation(tz); err != nil || tz == "Local" {
		return nil, fmt.Errorf("%s: %w: unknown timezone %q", op, ErrInvalidInput, tz)
	}

	hash, err := password.GetHash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.users.CreateUser(ctx, &models.User{
		Email:              email,
		Name:               name,
		PasswordHash:       hash,
		Timezone:           tz,
		SubscriptionStatus: models.StatusTrialing,
		PlanType:           models.PlanBasic,
		TrialEndsAt:        s.now().UTC().AddDate(0, 0, s.trialDays),
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("user registered", sl.UserID(user.ID), slog.Time("trial_ends_at", user.TrialEndsAt))
	s.audit.Log(ctx, audit.User(user.ID, "auth.register", "user", user.ID.String()))
	return user, nil
}

// checkThrottle отказывает, если для ключа исчерпаны попытки.
// Недоступный Redis не блокирует вход: ошибка только логируется.
func (s *Service) checkThrottle(ctx context.Context, key string) error {
	res, err := s.limiter.Status(ctx, key)
	if err != nil {
		s.log.Error("login limiter unavailable", sl.Err(err))
		return nil
	}
	if !res.Allowed {
		metrics.RecordLoginThrottled()
		return &ThrottledError{RetryAfter: res.RetryAfter(s.now())}
	}
	return nil
}

func (s *Service) recordFailure(ctx context.Context, key, email, ip string, actor models.ActorType) {
	if _, err := s.limiter.Hit(ctx, key); err != nil {
		s.log.Error("failed to count login attempt", sl.Err(err))
	}
	s.audit.Log(ctx, &models.AuditLog{
		ActorType: actor,
		Action:    "auth.login_failed",
		Resource:  "session",
		IP:        ip,
		Severity:  models.SeverityWarning,
		Metadata:  map[string]any{"email": email},
	})
}

func (s *Service) resetThrottle(ctx context.Context, key string) {
	if err := s.limiter.Reset(ctx, key); err != nil {
		s.log.Error("failed to reset login attempts", sl.Err(err))
	}
}

// Login проверяет пароль пользователя. Неудачные попытки считаются по IP клиента.
func (s *Service) Login(ctx context.Context, email, rawPassword, ip string) (*models.User, error) {
	const op = "auth.Login"
	key := "user:" + ip
	if err := s.checkThrottle(ctx, key); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	email = normalizeEmail(email)
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if user == nil || password.CompareHash(user.PasswordHash, rawPassword) != nil {
		s.recordFailure(ctx, key, email, ip, models.ActorUser)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	s.resetThrottle(ctx, key)
	s.log.Info("user logged in", sl.UserID(user.ID))
	entry := audit.User(user.ID, "auth.login", "session", "")
	entry.IP = ip
	s.audit.Log(ctx, entry)
	return user, nil
}

// IssueToken проверяет учётные данные и выпускает bearer-токен для API-клиента.
func (s *Service) IssueToken(ctx context.Context, email, rawPassword, ip string) (*Token, error) {
	const op = "auth.IssueToken"
	user, err := s.Login(ctx, email, rawPassword, ip)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.tokens.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Token{AccessToken: token, TokenType: "Bearer", ExpiresAt: expiresAt}, nil
}

// Authenticate проверяет bearer-токен и возвращает идентификатор пользователя.
func (s *Service) Authenticate(token string) (uuid.UUID, error) {
	claims, err := s.tokens.ParseToken(token)
	if err != nil {
		return uuid.Nil, err
	}
	return claims.UserID()
}

// CurrentUser возвращает пользователя по идентификатору из сессии или токена.
func (s *Service) CurrentUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "auth.CurrentUser"
	user, err := s.users.GetUserByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// AdminLogin проверяет пароль администратора. Выключенная учётная запись не входит.
func (s *Service) AdminLogin(ctx context.Context, email, rawPassword, ip string) (*models.AdminUser, error) {
	const op = "auth.AdminLogin"
	key := "admin:" + ip
	if err := s.checkThrottle(ctx, key); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	email = normalizeEmail(email)
	admin, err := s.admins.GetAdminByEmail(ctx, email)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if admin == nil || !admin.IsActive || password.CompareHash(admin.PasswordHash, rawPassword) != nil {
		s.recordFailure(ctx, key, email, ip, models.ActorAdmin)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	s.resetThrottle(ctx, key)
	now := s.now()
	if err := s.admins.TouchAdminLogin(ctx, admin.ID, now); err != nil {
		s.log.Warn("failed to update admin last login", sl.Err(err))
	}
	admin.LastLoginAt = &now

	s.log.Info("admin logged in", slog.String("admin_id", admin.ID.String()))
	entry := audit.Admin(admin.ID, "auth.admin_login", "session", "")
	entry.IP = ip
	s.audit.Log(ctx, entry)
	return admin, nil
}

// CurrentAdmin возвращает активного администратора по идентификатору из сессии.
func (s *Service) CurrentAdmin(ctx context.Context, id uuid.UUID) (*models.AdminUser, error) {
	const op = "auth.CurrentAdmin"
	admin, err := s.admins.GetAdminByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !admin.IsActive) {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return admin, nil
}

// BootstrapAdmin создаёт первого администратора с ролью super_admin, если их ещё нет.
// Пустой e-mail означает, что создавать никого не нужно.
func (s *Service) BootstrapAdmin(ctx context.Context, email, rawPassword, name string) error {
	const op = "auth.BootstrapAdmin"
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}
	n, err := s.admins.CountAdmins(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n > 0 {
		return nil
	}
	if len(rawPassword) < password.MinLength {
		return fmt.Errorf("%s: %w: bootstrap password shorter than %d", op, ErrInvalidInput, password.MinLength)
	}
	hash, err := password.GetHash(rawPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	admin, err := s.admins.CreateAdmin(ctx, &models.AdminUser{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         models.RoleSuperAdmin,
		IsActive:     true,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("bootstrap admin created", slog.String("admin_id", admin.ID.String()))
	s.audit.Log(ctx, audit.System("admin.bootstrap", "admin", admin.ID.String()))
	return nil
}
