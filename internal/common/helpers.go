// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: форматирование дат и счётчиков, обрезка текста.
package common

import (
	"fmt"
	"time"
)

// FormatDateTime форматирует время в формат "2006-01-02 15:04" (UTC).
// Используется для отображения дат заявок в админ-панели.
func FormatDateTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04")
}

// FormatOccupancy форматирует занятость ссылки в виде "3/5".
func FormatOccupancy(claimed, capacity int) string {
	return fmt.Sprintf("%d/%d", claimed, capacity)
}

// Truncate обрезает текст до max рун, добавляя многоточие.
// Нужен для логов и превью описаний в списках.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// Plural возвращает "s", если n != 1. Для английских сообщений бота
// ("3 claims", "1 claim").
func Plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
