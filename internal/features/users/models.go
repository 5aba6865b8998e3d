// Package users управляет участниками обмена: регистрацией,
// счётчиком подтверждённых заявок и бесплатными публикациями.
// models.go описывает структуру таблицы users.
package users

import (
	"strconv"
	"time"
)

// User представляет пользователя бота в базе данных.
// Создаётся идемпотентно при первом контакте и никогда не удаляется.
type User struct {
	UserID         int64     `db:"user_id"`         // Telegram user ID (первичный ключ)
	Username       string    `db:"username"`        // @username (публичный, обязателен для работы с ботом)
	VerifiedClaims int       `db:"verified_claims"` // Сколько заявок пользователя одобрено (только растёт)
	FreeCredits    int       `db:"free_credits"`    // Доступные бесплатные публикации (>= 0)
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// DisplayName возвращает отображаемое имя пользователя.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return "id" + strconv.FormatInt(u.UserID, 10)
}
