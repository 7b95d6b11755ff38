// Package session управляет серверными сессиями, привязанными к cookie.
//
// Данные сессии хранятся в Store (PostgreSQL), в cookie передаётся только
// непрозрачный идентификатор. Пользовательская и административная авторизация
// живут в одной сессии: поля userId и adminUserId независимы.
package session

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ErrNoSession возвращается, если cookie отсутствует, сессия не найдена или истекла.
var ErrNoSession = errors.New("no session")

// AdminUser — сведения об администраторе, сохраняемые в сессии.
type AdminUser struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Role  string    `json:"role"`
}

// Data — содержимое сессии.
type Data struct {
	UserID      *uuid.UUID `json:"userId,omitempty"`
	AdminUserID *uuid.UUID `json:"adminUserId,omitempty"`
	AdminUser   *AdminUser `json:"adminUser,omitempty"`
}

// IsEmpty сообщает, что в сессии не осталось ни пользователя, ни администратора.
func (d *Data) IsEmpty() bool {
	return d.UserID == nil && d.AdminUserID == nil
}

// Store — постоянное хранилище сессий.
type Store interface {
	CreateSession(ctx context.Context, sid string, data []byte, expiresAt time.Time) error
	GetSession(ctx context.Context, sid string) (data []byte, expiresAt time.Time, found bool, err error)
	DeleteSession(ctx context.Context, sid string) error
}

// Config задаёт параметры cookie.
type Config struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Manager создаёт, читает и уничтожает сессии.
type Manager struct {
	store Store
	cfg   Config
	now   func() time.Time
}

// NewManager создаёт Manager.
func NewManager(store Store, cfg Config) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = "connect.sid"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &Manager{store: store, cfg: cfg, now: time.Now}
}

// CookieName возвращает имя cookie сессии.
func (m *Manager) CookieName() string {
	return m.cfg.CookieName
}

// Load возвращает данные сессии запроса и её идентификатор.
func (m *Manager) Load(r *http.Request) (*Data, string, error) {
	const op = "session.Load"
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return nil, "", ErrNoSession
	}
	raw, expiresAt, found, err := m.store.GetSession(r.Context(), cookie.Value)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}
	if !found || !expiresAt.After(m.now()) {
		return nil, "", ErrNoSession
	}
	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}
	return &data, cookie.Value, nil
}

// Renew применяет mutate к данным текущей сессии (или к пустым данным)
// и сохраняет результат под новым идентификатором, удаляя прежний.
// Если после mutate сессия пуста, она уничтожается, а cookie стирается.
func (m *Manager) Renew(w http.ResponseWriter, r *http.Request, mutate func(*Data)) error {
	const op = "session.Renew"
	ctx := r.Context()

	data, oldSID, err := m.Load(r)
	if err != nil && !errors.Is(err, ErrNoSession) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if data == nil {
		data = &Data{}
	}
	mutate(data)

	if oldSID != "" {
		if err := m.store.DeleteSession(ctx, oldSID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if data.IsEmpty() {
		m.clearCookie(w)
		return nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	sid := rand.Text()
	expiresAt := m.now().Add(m.cfg.TTL)
	if err := m.store.CreateSession(ctx, sid, raw, expiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    sid,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Destroy удаляет сессию запроса целиком.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) error {
	const op = "session.Destroy"
	defer m.clearCookie(w)
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	if err := m.store.DeleteSession(r.Context(), cookie.Value); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
