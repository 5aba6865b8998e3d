package drafts

import (
	"context"
	"testing"
	"time"
)

// fakeStore хранит черновики in-memory с семантикой upsert по user_id.
type fakeStore struct {
	drafts  map[int64]*Draft
	updated map[int64]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{drafts: make(map[int64]*Draft), updated: make(map[int64]time.Time)}
}

func (f *fakeStore) Upsert(ctx context.Context, d *Draft) error {
	cp := *d
	f.drafts[d.UserID] = &cp
	f.updated[d.UserID] = time.Now()
	return nil
}

func (f *fakeStore) Get(ctx context.Context, userID int64) (*Draft, error) {
	d, ok := f.drafts[userID]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (f *fakeStore) Delete(ctx context.Context, userID int64) error {
	delete(f.drafts, userID)
	delete(f.updated, userID)
	return nil
}

func (f *fakeStore) DeleteStale(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)
	n := 0
	for userID, at := range f.updated {
		if at.Before(cutoff) {
			delete(f.drafts, userID)
			delete(f.updated, userID)
			n++
		}
	}
	return n, nil
}

func TestSubmissionStepOrder(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewService(store)

	d, err := svc.BeginSubmission(ctx, 100)
	if err != nil {
		t.Fatalf("BeginSubmission: %v", err)
	}
	if d.Kind != KindSubmit || d.Step != StepSubmitPlan {
		t.Fatalf("начальный шаг %s/%s", d.Kind, d.Step)
	}

	steps := []struct {
		apply func() error
		want  Step
	}{
		{func() error { return svc.SetPlan(ctx, d, "basic") }, StepSubmitCategory},
		{func() error { return svc.SetCategory(ctx, d, "💰 Crypto") }, StepSubmitService},
		{func() error { return svc.SetService(ctx, d, "Bybit") }, StepSubmitURL},
		{func() error { return svc.SetURL(ctx, d, "https://bybit.com/ref") }, StepSubmitDescription},
		{func() error { return svc.SetDescription(ctx, d, "Bonus") }, StepSubmitDescription},
		{func() error { return svc.AwaitPayment(ctx, d) }, StepSubmitPayment},
	}
	for i, s := range steps {
		if err := s.apply(); err != nil {
			t.Fatalf("шаг %d: %v", i, err)
		}
		if d.Step != s.want {
			t.Fatalf("после шага %d: step = %s, want %s", i, d.Step, s.want)
		}
	}

	// Каждый переход сохранён: перечитанный черновик совпадает
	saved, _ := svc.Get(ctx, 100)
	if saved == nil || saved.Step != StepSubmitPayment || saved.Plan != "basic" ||
		saved.Category != "💰 Crypto" || saved.ServiceName != "Bybit" ||
		saved.URL != "https://bybit.com/ref" || saved.Description != "Bonus" {
		t.Errorf("сохранённый черновик неполон: %+v", saved)
	}
}

func TestBeginOverwritesExistingDraft(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeStore())

	d, _ := svc.BeginSubmission(ctx, 100)
	svc.SetPlan(ctx, d, "max")

	// Новый диалог заявки вытесняет незавершённую публикацию
	if _, err := svc.BeginClaim(ctx, 100, 42); err != nil {
		t.Fatalf("BeginClaim: %v", err)
	}

	saved, _ := svc.Get(ctx, 100)
	if saved.Kind != KindClaim || saved.Step != StepClaimProof || saved.LinkID != 42 {
		t.Errorf("черновик не перезаписан: %+v", saved)
	}
	if saved.Plan != "" {
		t.Errorf("поле старого диалога пережило перезапись: plan=%q", saved.Plan)
	}
}

func TestClearAndGetMissing(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeStore())

	if d, err := svc.Get(ctx, 100); err != nil || d != nil {
		t.Fatalf("нет диалога: d=%v, err=%v", d, err)
	}

	svc.BeginSubmission(ctx, 100)
	if err := svc.Clear(ctx, 100); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if d, _ := svc.Get(ctx, 100); d != nil {
		t.Errorf("черновик пережил Clear: %+v", d)
	}

	// Clear без черновика не ошибка
	if err := svc.Clear(ctx, 100); err != nil {
		t.Errorf("повторный Clear: %v", err)
	}
}

func TestCleanupStale(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewService(store)

	svc.BeginSubmission(ctx, 100)
	svc.BeginClaim(ctx, 200, 1)

	// Состарим один черновик вручную
	store.updated[100] = time.Now().Add(-72 * time.Hour)

	if err := svc.CleanupStale(ctx, 48*time.Hour); err != nil {
		t.Fatalf("CleanupStale: %v", err)
	}
	if d, _ := svc.Get(ctx, 100); d != nil {
		t.Error("протухший черновик не удалён")
	}
	if d, _ := svc.Get(ctx, 200); d == nil {
		t.Error("свежий черновик удалён")
	}
}
