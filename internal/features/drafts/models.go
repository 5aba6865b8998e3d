// Package drafts хранит незавершённые пошаговые диалоги (публикация
// ссылки, подача заявки) в БД, а не в памяти процесса: рестарт бота
// или второй инстанс не теряют прогресс пользователя.
// models.go описывает структуру таблицы drafts и шаги диалогов.
package drafts

import "time"

// Kind — тип диалога.
type Kind string

const (
	KindSubmit Kind = "submit" // Публикация ссылки
	KindClaim  Kind = "claim"  // Подача заявки
)

// Step — текущий шаг диалога. Маршрутизация свободного текста идёт
// switch-ом по этим константам: один case — один шаг со своей
// валидацией, вместо сравнения сырых строк по всему коду.
type Step string

const (
	// Шаги публикации: план → категория → сервис → URL → описание → (оплата)
	StepSubmitPlan        Step = "submit_plan"
	StepSubmitCategory    Step = "submit_category"
	StepSubmitService     Step = "submit_service"
	StepSubmitURL         Step = "submit_url"
	StepSubmitDescription Step = "submit_description"
	StepSubmitPayment     Step = "submit_payment" // Ждём оплату Stars

	// Шаг заявки: ждём скриншот-подтверждение
	StepClaimProof Step = "claim_proof"
)

// Draft — незавершённый диалог пользователя. На пользователя — максимум
// один черновик (user_id — первичный ключ): начало нового диалога
// перезаписывает старый. Поля заполняются по мере прохождения шагов.
type Draft struct {
	UserID      int64     `db:"user_id"`
	Kind        Kind      `db:"kind"`
	Step        Step      `db:"step"`
	Plan        string    `db:"plan"`         // Код тарифного плана (submit)
	Category    string    `db:"category"`     // (submit)
	ServiceName string    `db:"service_name"` // (submit)
	URL         string    `db:"url"`          // (submit)
	Description string    `db:"description"`  // (submit)
	LinkID      int64     `db:"link_id"`      // Цель заявки (claim)
	StartedAt   time.Time `db:"started_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}
