// Package response содержит вспомогательные типы и функции для формирования
// унифицированных JSON‑ответов HTTP‑обработчиков.
package response

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

const (
	// StatusOK — значение статуса для успешного ответа.
	StatusOK = "OK"
	// StatusError — значение статуса для ответа с ошибкой.
	StatusError = "Error"
)

// Response описывает стандартную структуру JSON‑ответа сервера.
// Поля Limit, Current, UpgradeRequired и RedirectTo заполняются при отказе по тарифу.
type Response struct {
	Status          string            `json:"status"`
	Error           string            `json:"error,omitempty"`
	Data            any               `json:"data,omitempty"`
	Fields          map[string]string `json:"fields,omitempty"`
	Limit           *int              `json:"limit,omitempty"`
	Current         *int64            `json:"current,omitempty"`
	UpgradeRequired bool              `json:"upgradeRequired,omitempty"`
	RedirectTo      string            `json:"redirectTo,omitempty"`
}

// ErrorResponse — структура ошибки для Swagger-документации.
type ErrorResponse struct {
	Status string `json:"status" example:"Error"`
	Error  string `json:"error" example:"invalid request body"`
}

// List — страница выборки.
type List struct {
	Items  any   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// OK возвращает успешный Response с данными.
func OK(data any) Response {
	return Response{Status: StatusOK, Data: data}
}

// Error возвращает Response с ошибкой.
func Error(msg string) Response {
	return Response{Status: StatusError, Error: msg}
}

// Send пишет ответ с HTTP-статусом code.
func Send(w http.ResponseWriter, r *http.Request, code int, resp Response) {
	render.Status(r, code)
	render.JSON(w, r, resp)
}

// Fail пишет ответ с ошибкой.
func Fail(w http.ResponseWriter, r *http.Request, code int, msg string) {
	Send(w, r, code, Error(msg))
}

// Internal пишет 500 без подробностей; подробности остаются в логах.
func Internal(w http.ResponseWriter, r *http.Request) {
	Fail(w, r, http.StatusInternalServerError, "internal server error")
}

// ValidationError формирует ответ по ошибкам валидации: общий текст и сообщение по каждому полю.
func ValidationError(errs validator.ValidationErrors) Response {
	msgs := make([]string, 0, len(errs))
	fields := make(map[string]string, len(errs))

	for _, err := range errs {
		var msg string
		switch err.ActualTag() {
		case "required":
			msg = fmt.Sprintf("field %s is a required field", err.Field())
		case "email":
			msg = fmt.Sprintf("field %s must be a valid email", err.Field())
		case "min":
			msg = fmt.Sprintf("field %s must be at least %s characters", err.Field(), err.Param())
		case "max":
			msg = fmt.Sprintf("field %s must be at most %s characters", err.Field(), err.Param())
		case "oneof":
			msg = fmt.Sprintf("field %s must be one of [%s]", err.Field(), err.Param())
		case "uuid":
			msg = fmt.Sprintf("field %s can contain only uuid", err.Field())
		case "url":
			msg = fmt.Sprintf("field %s must be a valid url", err.Field())
		default:
			msg = fmt.Sprintf("field %s is not valid", err.Field())
		}
		msgs = append(msgs, msg)
		fields[err.Field()] = msg
	}
	return Response{
		Status: StatusError,
		Error:  strings.Join(msgs, ", "),
		Fields: fields,
	}
}

// Detail возвращает текст ошибки, начиная с sentinel: префиксы операций в ответ клиенту не попадают.
func Detail(err, sentinel error) string {
	msg := err.Error()
	if i := strings.Index(msg, sentinel.Error()); i >= 0 {
		return msg[i:]
	}
	return sentinel.Error()
}
