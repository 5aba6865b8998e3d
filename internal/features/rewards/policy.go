// Package rewards — политика наград за подтверждённые заявки.
// Правило «каждые N заявок = 1 бесплатная публикация» вынесено
// в чистые функции, чтобы порог можно было менять и тестировать
// отдельно от state-машины заявок.
package rewards

// DefaultClaimsPerCredit — порог по умолчанию: каждая третья
// подтверждённая заявка открывает одну бесплатную публикацию.
const DefaultClaimsPerCredit = 3

// DefaultStarsPerClaim — сколько Telegram Stars полагается
// за одну подтверждённую заявку.
const DefaultStarsPerClaim = 3

// FreeCreditDelta возвращает, сколько бесплатных публикаций открылось
// при росте счётчика подтверждённых заявок с oldCount до newCount.
//
// Формула: floor(new/every) - floor(old/every). В этой системе счётчик
// растёт строго на единицу, поэтому результат всегда 0 или 1.
func FreeCreditDelta(oldCount, newCount, every int) int {
	if every <= 0 {
		every = DefaultClaimsPerCredit
	}
	if newCount <= oldCount {
		return 0
	}
	return newCount/every - oldCount/every
}

// IsMilestone сообщает, пересёк ли счётчик кратную порогу отметку
// на этом шаге. Используется для поздравительного уведомления.
func IsMilestone(newCount, every int) bool {
	if every <= 0 {
		every = DefaultClaimsPerCredit
	}
	return newCount > 0 && newCount%every == 0
}

// ClaimsUntilNextCredit возвращает, сколько заявок осталось
// до следующей бесплатной публикации.
func ClaimsUntilNextCredit(count, every int) int {
	if every <= 0 {
		every = DefaultClaimsPerCredit
	}
	rem := count % every
	return every - rem
}
