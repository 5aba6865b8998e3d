package middleware

import (
	"sync"
	"time"
)

// RateLimiter ограничивает частоту запросов на пользователя
// по скользящему окну. Администраторы не ограничиваются:
// при разборе очереди заявок они шлют команды пачками.
type RateLimiter struct {
	mu     sync.Mutex
	seen   map[int64][]time.Time
	exempt map[int64]struct{}
	limit  int
	window time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewRateLimiter(limit int, window time.Duration, exemptIDs []int64) *RateLimiter {
	exempt := make(map[int64]struct{}, len(exemptIDs))
	for _, id := range exemptIDs {
		exempt[id] = struct{}{}
	}
	rl := &RateLimiter{
		seen:   make(map[int64][]time.Time),
		exempt: exempt,
		limit:  limit,
		window: window,
		stopCh: make(chan struct{}),
	}
	go rl.evictLoop()
	return rl
}

// Close останавливает фоновую горутину очистки.
// Его надо вызывать на shutdown (иначе evictLoop будет жить вечно).
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) Allow(userID int64) bool {
	if _, ok := rl.exempt[userID]; ok {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	recent := prune(rl.seen[userID], time.Now().Add(-rl.window))
	if len(recent) >= rl.limit {
		rl.seen[userID] = recent
		return false
	}
	rl.seen[userID] = append(recent, time.Now())
	return true
}

// prune отбрасывает метки старше cutoff, переиспользуя срез.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

func (rl *RateLimiter) evictLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := time.Now().Add(-rl.window)
			for userID, times := range rl.seen {
				kept := prune(times, cutoff)
				if len(kept) == 0 {
					delete(rl.seen, userID)
				} else {
					rl.seen[userID] = kept
				}
			}
			rl.mu.Unlock()
		}
	}
}
