package middleware

import (
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(3, 50*time.Millisecond, nil)
	defer rl.Close()

	const userID int64 = 100
	for i := 0; i < 3; i++ {
		if !rl.Allow(userID) {
			t.Fatalf("запрос %d не должен был быть отклонён", i+1)
		}
	}
	if rl.Allow(userID) {
		t.Fatal("четвёртый запрос в окне должен быть отклонён")
	}

	time.Sleep(60 * time.Millisecond)
	if !rl.Allow(userID) {
		t.Fatal("после истечения окна запрос должен пройти")
	}
}

func TestRateLimiterExemptsAdmins(t *testing.T) {
	const adminID int64 = 7
	rl := NewRateLimiter(1, time.Minute, []int64{adminID})
	defer rl.Close()

	for i := 0; i < 10; i++ {
		if !rl.Allow(adminID) {
			t.Fatalf("админ не должен ограничиваться (запрос %d)", i+1)
		}
	}

	if !rl.Allow(8) {
		t.Fatal("первый запрос обычного пользователя должен пройти")
	}
	if rl.Allow(8) {
		t.Fatal("второй запрос обычного пользователя должен быть отклонён")
	}
}
