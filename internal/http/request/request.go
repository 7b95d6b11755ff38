// Package request разбирает тела, параметры пути и строки запроса HTTP-обработчиков.
package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/finance-saas/internal/http/response"
	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/models"
)

const maxBodyBytes = 1 << 20

// NewValidator создаёт валидатор, который называет поля по их JSON-именам.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Bind декодирует JSON-тело в dst и валидирует его.
// При ошибке ответ уже записан, обработчик должен просто вернуться.
func Bind(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any, log *slog.Logger) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		response.Fail(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			log.Info("validation failed", sl.Err(err))
			response.Send(w, r, http.StatusBadRequest, response.ValidationError(verrs))
			return false
		}
		log.Error("validator failed", sl.Err(err))
		response.Fail(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// UUIDParam читает идентификатор из пути.
func UUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return id, nil
}

// Page читает limit и offset из строки запроса. Некорректные значения игнорируются.
func Page(r *http.Request) models.Page {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return models.Page{Limit: limit, Offset: offset}.Normalize()
}

// Time читает момент времени из строки запроса: RFC3339 или дату 2006-01-02 (полночь UTC).
// Отсутствующий параметр даёт nil.
func Time(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return &t, nil
}

// ClientIP возвращает адрес клиента без порта. Заголовки прокси учитывает middleware.RealIP.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
