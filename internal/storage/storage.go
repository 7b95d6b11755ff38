// Package storage объявляет ошибки слоя хранения, общие для реализаций и сервисов.
package storage

import "errors"

// Ошибки хранилища.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушено ограничение уникальности.
	ErrAlreadyExists = errors.New("already exists")
	// ErrStateConflict — запись находится не в том состоянии, которого требует операция.
	ErrStateConflict = errors.New("state conflict")
	// ErrUsageLimit — исчерпан лимит использований кампании.
	ErrUsageLimit = errors.New("usage limit reached")
	// ErrLocked — блокировка уже удерживается другим процессом.
	ErrLocked = errors.New("lock is held by another process")
)
