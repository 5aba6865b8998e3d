// Package links — repository.go выполняет все операции с таблицей referral_links.
// Учёт использований сделан одним условным UPDATE: при гонке двух одобрений
// последний слот достаётся ровно одному, второй получает отказ.
package links

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

// Create сохраняет новую ссылку с нулевым счётчиком и возвращает её ID.
func (r *Repository) Create(ctx context.Context, l *Link) (int64, error) {
	query := `
		INSERT INTO referral_links (owner_user_id, category, service_name, url, description, capacity, claimed_count, paid_stars)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRow(ctx, query,
		l.OwnerUserID, l.Category, l.ServiceName, l.URL, l.Description, l.Capacity, l.PaidStars,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ошибка создания ссылки: %w", err)
	}
	return id, nil
}

// GetByID: если не найдена — common.ErrLinkNotFound.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Link, error) {
	query := `
		SELECT id, owner_user_id, category, service_name, url, description, capacity, claimed_count, paid_stars, created_at
		FROM referral_links
		WHERE id = $1
	`
	var l Link
	err := r.db.QueryRow(ctx, query, id).Scan(
		&l.ID, &l.OwnerUserID, &l.Category, &l.ServiceName, &l.URL,
		&l.Description, &l.Capacity, &l.ClaimedCount, &l.PaidStars, &l.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrLinkNotFound
		}
		return nil, fmt.Errorf("ошибка чтения ссылки (id=%d): %w", id, err)
	}
	return &l, nil
}

// ListAvailable возвращает доступные ссылки (claimed_count < capacity),
// свежие первыми. Сортировка по created_at и id даёт стабильный порядок
// между вызовами, пока данные не меняются.
func (r *Repository) ListAvailable(ctx context.Context, category string) ([]*Link, error) {
	query := `
		SELECT id, owner_user_id, category, service_name, url, description, capacity, claimed_count, paid_stars, created_at
		FROM referral_links
		WHERE claimed_count < capacity
	`
	args := []interface{}{}
	if category != "" {
		query += ` AND category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса ссылок: %w", err)
	}
	defer rows.Close()

	var out []*Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(
			&l.ID, &l.OwnerUserID, &l.Category, &l.ServiceName, &l.URL,
			&l.Description, &l.Capacity, &l.ClaimedCount, &l.PaidStars, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// Categories возвращает категории, в которых есть доступные ссылки.
func (r *Repository) Categories(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT category FROM referral_links
		WHERE claimed_count < capacity
		ORDER BY category
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса категорий: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("ошибка сканирования категории: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// IncrementClaims атомарно увеличивает claimed_count.
// Условие claimed_count < capacity в самом UPDATE — единственная
// межпроцессная гарантия: превысить capacity невозможно.
//
// Если строка не обновилась, различаем причины повторным чтением:
// ссылки нет — common.ErrLinkNotFound, лимит выбран — common.ErrLinkExhausted.
func (r *Repository) IncrementClaims(ctx context.Context, id int64) (*UseSnapshot, error) {
	query := `
		UPDATE referral_links
		SET claimed_count = claimed_count + 1
		WHERE id = $1 AND claimed_count < capacity
		RETURNING id, owner_user_id, service_name, claimed_count, capacity
	`
	var s UseSnapshot
	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.LinkID, &s.OwnerUserID, &s.ServiceName, &s.ClaimedCount, &s.Capacity,
	)
	if err == nil {
		return &s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ошибка учёта использования (id=%d): %w", id, err)
	}

	// UPDATE никого не задел: либо ссылки нет, либо лимит уже выбран
	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM referral_links WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("ошибка проверки ссылки (id=%d): %w", id, err)
	}
	if !exists {
		return nil, common.ErrLinkNotFound
	}
	return nil, common.ErrLinkExhausted
}

// DecrementClaims возвращает один занятый слот (компенсация при
// проигранной гонке ревью). Ниже нуля счётчик не уходит.
func (r *Repository) DecrementClaims(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE referral_links
		SET claimed_count = claimed_count - 1
		WHERE id = $1 AND claimed_count > 0
	`, id)
	if err != nil {
		return fmt.Errorf("ошибка возврата слота (id=%d): %w", id, err)
	}
	return nil
}

// DeleteIfExhausted удаляет ссылку, если лимит выбран.
// Возвращает true, если удаление произошло. Условие в WHERE защищает
// от удаления ссылки, у которой ещё остались слоты.
func (r *Repository) DeleteIfExhausted(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM referral_links WHERE id = $1 AND claimed_count >= capacity`, id,
	)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления ссылки (id=%d): %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete принудительно удаляет ссылку вместе с её заявками (админ-действие).
// Возвращает количество удалённых заявок.
func (r *Repository) Delete(ctx context.Context, id int64) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	claimsTag, err := tx.Exec(ctx, `DELETE FROM claims WHERE link_id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления заявок ссылки (id=%d): %w", id, err)
	}

	linkTag, err := tx.Exec(ctx, `DELETE FROM referral_links WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления ссылки (id=%d): %w", id, err)
	}
	if linkTag.RowsAffected() == 0 {
		return 0, common.ErrLinkNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return int(claimsTag.RowsAffected()), nil
}

// ListAll возвращает все ссылки (для админ-панели удаления).
func (r *Repository) ListAll(ctx context.Context) ([]*Link, error) {
	query := `
		SELECT id, owner_user_id, category, service_name, url, description, capacity, claimed_count, paid_stars, created_at
		FROM referral_links
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса всех ссылок: %w", err)
	}
	defer rows.Close()

	var out []*Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(
			&l.ID, &l.OwnerUserID, &l.Category, &l.ServiceName, &l.URL,
			&l.Description, &l.Capacity, &l.ClaimedCount, &l.PaidStars, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

// Counts возвращает (всего, доступно) ссылок — для дашборда.
func (r *Repository) Counts(ctx context.Context) (total, active int, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE claimed_count < capacity)
		FROM referral_links
	`).Scan(&total, &active)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка подсчёта ссылок: %w", err)
	}
	return total, active, nil
}
