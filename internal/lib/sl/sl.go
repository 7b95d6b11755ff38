// Package sl содержит вспомогательные функции для работы с логгером slog.
// Основная цель — упростить формирование структурированных полей лога,
// например, для передачи информации об ошибках и идентификаторах.
package sl

import (
	"log/slog"

	"github.com/google/uuid"
)

// Err возвращает slog.Attr с ключом "error" и значением текста ошибки.
// Для nil-ошибки возвращается "<nil>", чтобы логирование никогда не паниковало.
//
// Пример:
//
//	log.Error("failed to do something", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// UserID возвращает атрибут с идентификатором пользователя.
func UserID(id uuid.UUID) slog.Attr {
	return slog.String("user_id", id.String())
}
