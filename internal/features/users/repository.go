// Package users — repository.go отвечает за все операции с таблицей users в БД.
// Счётчики наград меняются атомарными UPDATE ... RETURNING, потому что
// одновременно могут работать несколько процессов бота.
package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"refloop.app/referral-bot/internal/common"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Upsert создаёт пользователя или обновляет его username.
// Повторный вызов с тем же user_id безопасен: счётчики не трогаются.
func (r *Repository) Upsert(ctx context.Context, userID int64, username string) error {
	query := `
		INSERT INTO users (user_id, username)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET username = EXCLUDED.username,
		    updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, userID, username); err != nil {
		return fmt.Errorf("ошибка создания/обновления пользователя: %w", err)
	}
	return nil
}

// GetByUserID: если не найден — common.ErrUserNotFound.
func (r *Repository) GetByUserID(ctx context.Context, userID int64) (*User, error) {
	query := `
		SELECT user_id, username, verified_claims, free_credits, created_at, updated_at
		FROM users
		WHERE user_id = $1
	`
	var u User
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&u.UserID, &u.Username, &u.VerifiedClaims, &u.FreeCredits,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("ошибка чтения пользователя (user_id=%d): %w", userID, err)
	}
	return &u, nil
}

// IncrementVerifiedClaims атомарно увеличивает счётчик подтверждённых
// заявок и возвращает новое значение. RETURNING гарантирует, что два
// одновременных одобрения не увидят одно и то же число.
func (r *Repository) IncrementVerifiedClaims(ctx context.Context, userID int64) (int, error) {
	query := `
		UPDATE users
		SET verified_claims = verified_claims + 1, updated_at = NOW()
		WHERE user_id = $1
		RETURNING verified_claims
	`
	var count int
	err := r.db.QueryRow(ctx, query, userID).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, common.ErrUserNotFound
		}
		return 0, fmt.Errorf("ошибка инкремента заявок (user_id=%d): %w", userID, err)
	}
	return count, nil
}

// AddFreeCredits начисляет бесплатные публикации.
func (r *Repository) AddFreeCredits(ctx context.Context, userID int64, delta int) error {
	query := `
		UPDATE users
		SET free_credits = free_credits + $2, updated_at = NOW()
		WHERE user_id = $1
	`
	if _, err := r.db.Exec(ctx, query, userID, delta); err != nil {
		return fmt.Errorf("ошибка начисления кредитов (user_id=%d): %w", userID, err)
	}
	return nil
}

// SpendFreeCredit списывает одну бесплатную публикацию.
// Условие free_credits > 0 в самом UPDATE: два одновременных списания
// последнего кредита не уведут счётчик в минус.
func (r *Repository) SpendFreeCredit(ctx context.Context, userID int64) error {
	query := `
		UPDATE users
		SET free_credits = free_credits - 1, updated_at = NOW()
		WHERE user_id = $1 AND free_credits > 0
	`
	tag, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("ошибка списания кредита (user_id=%d): %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNoFreeCredits
	}
	return nil
}

// Count возвращает общее количество пользователей (для дашборда).
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта пользователей: %w", err)
	}
	return n, nil
}
