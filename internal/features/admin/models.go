// Package admin реализует панель ревью заявок с парольной аутентификацией.
// models.go описывает структуры сессий, попыток входа и статистики.
package admin

import "time"

// Session — активная сессия администратора.
type Session struct {
	ID              int64     `db:"id"`
	UserID          int64     `db:"user_id"`
	SessionToken    string    `db:"session_token"`
	AuthenticatedAt time.Time `db:"authenticated_at"`
	ExpiresAt       time.Time `db:"expires_at"`
	LastActivity    time.Time `db:"last_activity"`
	IsActive        bool      `db:"is_active"`
}

// LoginAttempt — попытка входа (для защиты от brute-force).
type LoginAttempt struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	AttemptTime time.Time `db:"attempt_time"`
	Success     bool      `db:"success"`
}

// Состояния пошаговых диалогов админ-панели.
const StateAwaitingPassword = "awaiting_password"

// AdminState — состояние диалога админа (хранится в памяти, живёт 5 минут).
type AdminState struct {
	State     string
	Data      interface{}
	ExpiresAt time.Time
}

// DashboardStats — сводка для админ-дашборда.
type DashboardStats struct {
	TotalUsers     int
	TotalLinks     int
	ActiveLinks    int
	PendingClaims  int
	ApprovedClaims int
	RejectedClaims int
	// Оценка оборота Stars: получено за платные публикации,
	// причитается за одобренные заявки
	StarsReceived int
	StarsToPay    int
}
