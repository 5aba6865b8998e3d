// Package common — errors.go определяет пользовательские ошибки,
// которые используются во всех модулях бота.
// Эти ошибки позволяют обработчикам различать типы проблем
// и отправлять пользователю понятные сообщения.
package common

import (
	"errors"
	"fmt"
)

// Ошибки ссылок (link lifecycle)
var (
	// ErrLinkNotFound — ссылка не найдена (возможно, уже удалена после исчерпания лимита)
	ErrLinkNotFound = errors.New("ссылка не найдена")
	// ErrLinkExhausted — лимит заявок по ссылке уже выбран
	ErrLinkExhausted = errors.New("лимит заявок по ссылке исчерпан")
)

// Ошибки заявок (claim lifecycle)
var (
	// ErrClaimNotFound — заявка не найдена
	ErrClaimNotFound = errors.New("заявка не найдена")
	// ErrDuplicateClaim — вторая заявка на ту же ссылку от того же пользователя
	ErrDuplicateClaim = errors.New("заявка на эту ссылку уже подана")
	// ErrOwnLink — попытка подать заявку на собственную ссылку
	ErrOwnLink = errors.New("нельзя использовать собственную ссылку")
	// ErrClaimNotPending — заявка уже одобрена или отклонена, повторный переход невозможен
	ErrClaimNotPending = errors.New("заявка уже рассмотрена")
	// ErrClaimNotApproved — награду можно выдать только по одобренной заявке
	ErrClaimNotApproved = errors.New("заявка не одобрена")
)

// Ошибки пользователей
var (
	// ErrUserNotFound — пользователь не найден в базе
	ErrUserNotFound = errors.New("пользователь не найден")
	// ErrNoFreeCredits — нет бесплатных публикаций для списания
	ErrNoFreeCredits = errors.New("нет доступных бесплатных публикаций")
	// ErrNoUsername — у пользователя нет публичного @username
	ErrNoUsername = errors.New("нужен публичный @username в Telegram")
)

// Ошибки админки
var (
	// ErrNotAdmin — пользователь не является администратором
	ErrNotAdmin = errors.New("нет прав администратора")
	// ErrWrongPassword — неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
)

// ValidationError — некорректный ввод пользователя (форма ссылки).
// Field называет поле, Reason — человекочитаемую причину.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("некорректное поле %s: %s", e.Field, e.Reason)
}

// NewValidationError создаёт ошибку валидации.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// AsValidation возвращает *ValidationError, если err им является.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
