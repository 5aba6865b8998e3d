package rewards

import "testing"

func TestFreeCreditDeltaSingleSteps(t *testing.T) {
	// Счётчик растёт по одному: кредит выдаётся ровно на кратных трём.
	wantDelta := map[int]int{1: 0, 2: 0, 3: 1, 4: 0, 5: 0, 6: 1, 7: 0, 8: 0, 9: 1}
	for newCount, want := range wantDelta {
		got := FreeCreditDelta(newCount-1, newCount, 3)
		if got != want {
			t.Errorf("FreeCreditDelta(%d, %d, 3) = %d, want %d", newCount-1, newCount, got, want)
		}
	}
}

func TestFreeCreditDeltaNeverMoreThanOnePerStep(t *testing.T) {
	total := 0
	for n := 1; n <= 30; n++ {
		d := FreeCreditDelta(n-1, n, 3)
		if d < 0 || d > 1 {
			t.Fatalf("delta на шаге %d = %d, ожидался 0 или 1", n, d)
		}
		total += d
	}
	if total != 10 {
		t.Fatalf("за 30 заявок выдано %d кредитов, ожидалось 10", total)
	}
}

func TestFreeCreditDeltaNonIncreasing(t *testing.T) {
	if got := FreeCreditDelta(5, 5, 3); got != 0 {
		t.Errorf("равные счётчики: got %d, want 0", got)
	}
	if got := FreeCreditDelta(6, 3, 3); got != 0 {
		t.Errorf("убывающий счётчик: got %d, want 0", got)
	}
}

func TestFreeCreditDeltaCustomThreshold(t *testing.T) {
	if got := FreeCreditDelta(4, 5, 5); got != 1 {
		t.Errorf("порог 5: got %d, want 1", got)
	}
	if got := FreeCreditDelta(3, 4, 5); got != 0 {
		t.Errorf("порог 5 не достигнут: got %d, want 0", got)
	}
}

func TestIsMilestone(t *testing.T) {
	cases := []struct {
		count int
		want  bool
	}{
		{0, false}, {1, false}, {2, false}, {3, true},
		{4, false}, {6, true}, {7, false}, {9, true},
	}
	for _, c := range cases {
		if got := IsMilestone(c.count, 3); got != c.want {
			t.Errorf("IsMilestone(%d, 3) = %v, want %v", c.count, got, c.want)
		}
	}
}

func TestClaimsUntilNextCredit(t *testing.T) {
	cases := []struct {
		count, want int
	}{
		{0, 3}, {1, 2}, {2, 1}, {3, 3}, {4, 2}, {5, 1}, {6, 3},
	}
	for _, c := range cases {
		if got := ClaimsUntilNextCredit(c.count, 3); got != c.want {
			t.Errorf("ClaimsUntilNextCredit(%d, 3) = %d, want %d", c.count, got, c.want)
		}
	}
}
