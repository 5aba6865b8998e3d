// Package claims — repository.go выполняет все операции с таблицей claims.
// Дубликаты отсекаются уникальным индексом (claimant_user_id, link_id),
// переходы из pending защищены условием в самом UPDATE.
package claims

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"refloop.app/referral-bot/internal/common"
)

// Код PostgreSQL «unique_violation»
const pgUniqueViolation = "23505"

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create сохраняет новую pending-заявку и возвращает её ID.
// Нарушение уникального индекса превращается в common.ErrDuplicateClaim:
// повторная заявка на ту же ссылку невозможна независимо от статуса первой.
func (r *Repository) Create(ctx context.Context, claimantID, linkID int64, proofFileID string) (int64, error) {
	query := `
		INSERT INTO claims (claimant_user_id, link_id, proof_file_id, status)
		VALUES ($1, $2, $3, 'pending')
		RETURNING id
	`
	var id int64
	err := r.db.QueryRow(ctx, query, claimantID, linkID, proofFileID).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return 0, common.ErrDuplicateClaim
		}
		return 0, fmt.Errorf("ошибка создания заявки: %w", err)
	}
	return id, nil
}

// GetByID: если не найдена — common.ErrClaimNotFound.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Claim, error) {
	query := `
		SELECT id, claimant_user_id, link_id, proof_file_id, status, rewarded, created_at, decided_at
		FROM claims
		WHERE id = $1
	`
	var c Claim
	err := r.db.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.ClaimantUserID, &c.LinkID, &c.ProofFileID,
		&c.Status, &c.Rewarded, &c.CreatedAt, &c.DecidedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrClaimNotFound
		}
		return nil, fmt.Errorf("ошибка чтения заявки (id=%d): %w", id, err)
	}
	return &c, nil
}

// Exists проверяет, была ли когда-либо заявка пары (claimant, link).
func (r *Repository) Exists(ctx context.Context, claimantID, linkID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM claims WHERE claimant_user_id = $1 AND link_id = $2)`,
		claimantID, linkID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки дубликата заявки: %w", err)
	}
	return exists, nil
}

// Transition переводит pending-заявку в терминальный статус.
// Условие status = 'pending' в UPDATE гарантирует ровно один переход:
// повторный вызов вернёт common.ErrClaimNotPending.
func (r *Repository) Transition(ctx context.Context, id int64, to Status) error {
	query := `
		UPDATE claims
		SET status = $2, decided_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	tag, err := r.db.Exec(ctx, query, id, string(to))
	if err != nil {
		return fmt.Errorf("ошибка перехода заявки (id=%d -> %s): %w", id, to, err)
	}
	if tag.RowsAffected() == 0 {
		// Либо заявки нет, либо она уже рассмотрена
		var exists bool
		if err := r.db.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM claims WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("ошибка проверки заявки (id=%d): %w", id, err)
		}
		if !exists {
			return common.ErrClaimNotFound
		}
		return common.ErrClaimNotPending
	}
	return nil
}

// MarkRewarded помечает одобренную заявку как вознаграждённую.
// Идемпотентна: повторный вызов на rewarded-заявке — no-op без ошибки.
func (r *Repository) MarkRewarded(ctx context.Context, id int64) error {
	query := `
		UPDATE claims
		SET rewarded = TRUE
		WHERE id = $1 AND status = 'approved'
	`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("ошибка отметки награды (id=%d): %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM claims WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("ошибка проверки заявки (id=%d): %w", id, err)
		}
		if !exists {
			return common.ErrClaimNotFound
		}
		return common.ErrClaimNotApproved
	}
	return nil
}

// ListPending возвращает pending-заявки с контекстом для админ-панели,
// старые первыми (FIFO ревью). JOIN по ссылке — LEFT: заявка могла
// пережить свою ссылку, такие строки показываются с прочерком и
// закрываются авто-отказом при попытке одобрения.
func (r *Repository) ListPending(ctx context.Context) ([]*PendingDetail, error) {
	query := `
		SELECT c.id, c.claimant_user_id, u.username, c.link_id,
		       COALESCE(l.service_name, '—'), COALESCE(l.category, '—'), COALESCE(l.url, ''),
		       c.proof_file_id <> '', c.created_at
		FROM claims c
		JOIN users u ON c.claimant_user_id = u.user_id
		LEFT JOIN referral_links l ON c.link_id = l.id
		WHERE c.status = 'pending'
		ORDER BY c.created_at ASC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса pending-заявок: %w", err)
	}
	defer rows.Close()

	var out []*PendingDetail
	for rows.Next() {
		var d PendingDetail
		if err := rows.Scan(
			&d.ClaimID, &d.ClaimantID, &d.ClaimantName, &d.LinkID,
			&d.ServiceName, &d.Category, &d.URL, &d.HasProof, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования заявки: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// CountByStatus возвращает количество заявок по статусам (для дашборда).
func (r *Repository) CountByStatus(ctx context.Context) (pending, approved, rejected int, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'approved'),
		       COUNT(*) FILTER (WHERE status = 'rejected')
		FROM claims
	`).Scan(&pending, &approved, &rejected)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("ошибка подсчёта заявок: %w", err)
	}
	return pending, approved, rejected, nil
}

// CountUnrewarded возвращает количество одобренных заявок, по которым
// награда ещё не выплачена.
func (r *Repository) CountUnrewarded(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM claims WHERE status = 'approved' AND rewarded = FALSE`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта невыплаченных наград: %w", err)
	}
	return count, nil
}
