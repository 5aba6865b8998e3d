// Package claims управляет жизненным циклом заявок на использование
// ссылок: подача со скриншотом, ревью админом, награды.
// models.go описывает структуры таблицы claims.
package claims

import "time"

// Status — состояние заявки.
// State-машина: pending --approve--> approved, pending --reject--> rejected.
// approved и rejected терминальны, повторных переходов нет.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Claim представляет заявку пользователя «я воспользовался ссылкой».
// На пару (claimant_user_id, link_id) может существовать максимум одна
// заявка за всю историю — дубликаты отсекает уникальный индекс.
type Claim struct {
	ID             int64      `db:"id"`
	ClaimantUserID int64      `db:"claimant_user_id"`
	LinkID         int64      `db:"link_id"` // Без FK: ссылка может быть удалена раньше заявки
	ProofFileID    string     `db:"proof_file_id"` // Telegram file_id скриншота
	Status         Status     `db:"status"`
	Rewarded       bool       `db:"rewarded"` // Награда подтверждена платёжным слоем
	CreatedAt      time.Time  `db:"created_at"`
	DecidedAt      *time.Time `db:"decided_at"` // Когда заявка одобрена/отклонена
}

// ApprovalResult — структурированный итог одобрения заявки.
// Транспортный слой собирает из него уведомления; сам сервис
// сообщений не отправляет.
type ApprovalResult struct {
	ClaimID        int64
	ClaimantUserID int64

	// Авто-отказ: ссылка исчезла или выбрала лимит к моменту ревью.
	// Заявка при этом переведена в rejected, а не оставлена висеть.
	AutoRejected bool
	RejectReason string

	// Заполняются только при успешном одобрении
	VerifiedClaims int  // Новый счётчик подтверждённых заявок пользователя
	Milestone      bool // Пересечён рубеж «каждые N заявок»
	LinkDeleted    bool // Ссылка выбрала лимит и удалена
	LinkOwnerID    int64
	ServiceName    string
	ClaimedCount   int
	Capacity       int
}

// PendingDetail — заявка с контекстом для списка ревью в админ-панели.
type PendingDetail struct {
	ClaimID       int64
	ClaimantID    int64
	ClaimantName  string
	LinkID        int64
	ServiceName   string
	Category      string
	URL           string
	HasProof      bool
	CreatedAt     time.Time
}
