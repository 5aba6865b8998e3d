// Package links управляет жизненным циклом реферальных ссылок:
// публикация, учёт использований, автоудаление при исчерпании лимита.
// models.go описывает структуры таблицы referral_links и тарифные планы.
package links

import "time"

// Link представляет опубликованную реферальную ссылку.
// Инвариант: 0 <= ClaimedCount <= Capacity. Ссылка доступна для заявок,
// пока ClaimedCount < Capacity; при достижении лимита удаляется навсегда.
type Link struct {
	ID          int64     `db:"id"`
	OwnerUserID int64     `db:"owner_user_id"` // Кто опубликовал
	Category    string    `db:"category"`
	ServiceName string    `db:"service_name"`
	URL         string    `db:"url"`
	Description string    `db:"description"` // До 120 символов
	Capacity    int       `db:"capacity"`    // Лимит одобренных заявок (фиксируется при создании)
	ClaimedCount int      `db:"claimed_count"`
	PaidStars   int       `db:"paid_stars"` // Сколько Stars заплачено за публикацию (0 для бесплатных планов)
	CreatedAt   time.Time `db:"created_at"`
}

// Available сообщает, можно ли ещё подавать заявки по ссылке.
func (l *Link) Available() bool {
	return l.ClaimedCount < l.Capacity
}

// UseSnapshot — срез состояния ссылки сразу после учёта использования.
// Возвращается из RegisterClaimUse, чтобы вызывающий код не перечитывал
// изменяемые поля отдельным запросом.
type UseSnapshot struct {
	LinkID       int64
	OwnerUserID  int64
	ServiceName  string
	ClaimedCount int
	Capacity     int
}

// Exhausted сообщает, выбрала ли ссылка весь лимит.
func (s *UseSnapshot) Exhausted() bool {
	return s.ClaimedCount >= s.Capacity
}

// Категории ссылок — фиксированный набор (как в канале RefLoop).
var Categories = []string{
	"🎮 Games",
	"💰 Crypto",
	"🏦 Banks",
	"📱 Telecom",
	"📦 Other",
}

// ValidCategory проверяет принадлежность к набору категорий.
func ValidCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

// MaxDescriptionLen — предел длины описания ссылки (в рунах).
const MaxDescriptionLen = 120

// Plan — тарифный план публикации: лимит заявок и цена в Telegram Stars.
type Plan struct {
	Code       string
	Title      string
	Capacity   int
	PriceStars int
}

// Тарифные планы публикации.
//
// PlanSingle доступен в промо-режиме и ничего не стоит; PlanCredit
// списывает одну бесплатную публикацию, заработанную заявками;
// остальные оплачиваются Stars.
var (
	PlanSingle = Plan{Code: "single", Title: "Single use (free)", Capacity: 1, PriceStars: 0}
	PlanCredit = Plan{Code: "credit", Title: "Free submission (earned)", Capacity: 5, PriceStars: 0}
	PlanBasic  = Plan{Code: "basic", Title: "Basic — 5 referrals", Capacity: 5, PriceStars: 25}
	PlanPlus   = Plan{Code: "plus", Title: "Plus — 10 referrals", Capacity: 10, PriceStars: 40}
	PlanMax    = Plan{Code: "max", Title: "Max — 30 referrals", Capacity: 30, PriceStars: 100}
)

// AllPlans — порядок показа в меню выбора плана.
var AllPlans = []Plan{PlanSingle, PlanCredit, PlanBasic, PlanPlus, PlanMax}

// PlanByCode возвращает план по коду.
func PlanByCode(code string) (Plan, bool) {
	for _, p := range AllPlans {
		if p.Code == code {
			return p, true
		}
	}
	return Plan{}, false
}
