// Package drafts — repository.go выполняет операции с таблицей drafts.
package drafts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Upsert сохраняет черновик целиком. Старый черновик пользователя
// перезаписывается: активный диалог всегда один.
func (r *Repository) Upsert(ctx context.Context, d *Draft) error {
	query := `
		INSERT INTO drafts (user_id, kind, step, plan, category, service_name, url, description, link_id, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET kind = EXCLUDED.kind,
		    step = EXCLUDED.step,
		    plan = EXCLUDED.plan,
		    category = EXCLUDED.category,
		    service_name = EXCLUDED.service_name,
		    url = EXCLUDED.url,
		    description = EXCLUDED.description,
		    link_id = EXCLUDED.link_id,
		    updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query,
		d.UserID, string(d.Kind), string(d.Step),
		d.Plan, d.Category, d.ServiceName, d.URL, d.Description, d.LinkID,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения черновика: %w", err)
	}
	return nil
}

// Get возвращает черновик пользователя, nil — если черновика нет.
func (r *Repository) Get(ctx context.Context, userID int64) (*Draft, error) {
	query := `
		SELECT user_id, kind, step, plan, category, service_name, url, description, link_id, started_at, updated_at
		FROM drafts
		WHERE user_id = $1
	`
	var d Draft
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&d.UserID, &d.Kind, &d.Step, &d.Plan, &d.Category,
		&d.ServiceName, &d.URL, &d.Description, &d.LinkID,
		&d.StartedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения черновика (user_id=%d): %w", userID, err)
	}
	return &d, nil
}

// Delete удаляет черновик пользователя (завершение или отмена диалога).
func (r *Repository) Delete(ctx context.Context, userID int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM drafts WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("ошибка удаления черновика (user_id=%d): %w", userID, err)
	}
	return nil
}

// DeleteStale удаляет черновики, не обновлявшиеся дольше ttl.
// Возвращает число удалённых. Вызывается кроном.
func (r *Repository) DeleteStale(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)
	tag, err := r.db.Exec(ctx, `DELETE FROM drafts WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки черновиков: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
