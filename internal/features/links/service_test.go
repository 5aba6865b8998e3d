package links

import (
	"context"
	"strings"
	"testing"

	"refloop.app/referral-bot/internal/common"
)

// fakeStore реализует Store in-memory. Сервису от хранилища нужна
// только семантика условного инкремента, остальное — прямые делегаты.
type fakeStore struct {
	links  map[int64]*Link
	nextID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{links: make(map[int64]*Link), nextID: 1}
}

func (f *fakeStore) Create(ctx context.Context, l *Link) (int64, error) {
	id := f.nextID
	f.nextID++
	cp := *l
	cp.ID = id
	f.links[id] = &cp
	return id, nil
}

func (f *fakeStore) GetByID(ctx context.Context, id int64) (*Link, error) {
	l, ok := f.links[id]
	if !ok {
		return nil, common.ErrLinkNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeStore) ListAvailable(ctx context.Context, category string) ([]*Link, error) {
	var out []*Link
	for _, l := range f.links {
		if l.Available() && (category == "" || l.Category == category) {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) Categories(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, l := range f.links {
		if l.Available() && !seen[l.Category] {
			seen[l.Category] = true
			out = append(out, l.Category)
		}
	}
	return out, nil
}

func (f *fakeStore) IncrementClaims(ctx context.Context, id int64) (*UseSnapshot, error) {
	l, ok := f.links[id]
	if !ok {
		return nil, common.ErrLinkNotFound
	}
	if l.ClaimedCount >= l.Capacity {
		return nil, common.ErrLinkExhausted
	}
	l.ClaimedCount++
	return &UseSnapshot{
		LinkID: l.ID, OwnerUserID: l.OwnerUserID, ServiceName: l.ServiceName,
		ClaimedCount: l.ClaimedCount, Capacity: l.Capacity,
	}, nil
}

func (f *fakeStore) DecrementClaims(ctx context.Context, id int64) error {
	if l, ok := f.links[id]; ok && l.ClaimedCount > 0 {
		l.ClaimedCount--
	}
	return nil
}

func (f *fakeStore) DeleteIfExhausted(ctx context.Context, id int64) (bool, error) {
	l, ok := f.links[id]
	if !ok || l.ClaimedCount < l.Capacity {
		return false, nil
	}
	delete(f.links, id)
	return true, nil
}

func (f *fakeStore) Delete(ctx context.Context, id int64) (int, error) {
	if _, ok := f.links[id]; !ok {
		return 0, common.ErrLinkNotFound
	}
	delete(f.links, id)
	return 0, nil
}

func (f *fakeStore) ListAll(ctx context.Context) ([]*Link, error) {
	var out []*Link
	for _, l := range f.links {
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

// --- Валидация публикации ---

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeStore())

	valid := func() (Plan, string, string, string, string) {
		return PlanBasic, "🏦 Banks", "Revolut", "https://revolut.com/ref/abc", "Get a free card"
	}

	t.Run("успешная публикация", func(t *testing.T) {
		plan, cat, name, url, desc := valid()
		id, err := svc.Create(ctx, 100, plan, cat, name, url, desc)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if id == 0 {
			t.Fatal("нулевой ID")
		}
	})

	cases := []struct {
		name    string
		mutate  func(plan *Plan, cat, svcName, url, desc *string)
		field   string
	}{
		{
			name:   "неизвестная категория",
			mutate: func(p *Plan, cat, n, u, d *string) { *cat = "🚀 Rockets" },
			field:  "category",
		},
		{
			name:   "пустое название сервиса",
			mutate: func(p *Plan, cat, n, u, d *string) { *n = "   " },
			field:  "service_name",
		},
		{
			name:   "URL без схемы",
			mutate: func(p *Plan, cat, n, u, d *string) { *u = "revolut.com/ref/abc" },
			field:  "url",
		},
		{
			name:   "URL с чужой схемой",
			mutate: func(p *Plan, cat, n, u, d *string) { *u = "ftp://revolut.com" },
			field:  "url",
		},
		{
			name:   "описание длиннее лимита",
			mutate: func(p *Plan, cat, n, u, d *string) { *d = strings.Repeat("я", MaxDescriptionLen+1) },
			field:  "description",
		},
		{
			name:   "нулевой лимит",
			mutate: func(p *Plan, cat, n, u, d *string) { p.Capacity = 0 },
			field:  "capacity",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			plan, cat, name, url, desc := valid()
			c.mutate(&plan, &cat, &name, &url, &desc)

			_, err := svc.Create(ctx, 100, plan, cat, name, url, desc)
			v, ok := common.AsValidation(err)
			if !ok {
				t.Fatalf("err = %v, ожидалась ValidationError", err)
			}
			if v.Field != c.field {
				t.Errorf("поле %q, want %q", v.Field, c.field)
			}
		})
	}
}

func TestCreateDescriptionBoundary(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeStore())

	// Ровно на границе — проходит; считаем руны, не байты
	desc := strings.Repeat("ё", MaxDescriptionLen)
	if _, err := svc.Create(ctx, 100, PlanBasic, "📦 Other", "X", "https://x.com", desc); err != nil {
		t.Errorf("описание ровно в лимит: %v", err)
	}
}

func TestCreateStoresPlanFields(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewService(store)

	id, err := svc.Create(ctx, 100, PlanPlus, "🎮 Games", "Steam", "https://s.team/ref", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	l := store.links[id]
	if l.Capacity != PlanPlus.Capacity {
		t.Errorf("capacity %d, want %d", l.Capacity, PlanPlus.Capacity)
	}
	if l.PaidStars != PlanPlus.PriceStars {
		t.Errorf("paid_stars %d, want %d", l.PaidStars, PlanPlus.PriceStars)
	}
	if l.ClaimedCount != 0 {
		t.Errorf("новая ссылка с claimed_count %d", l.ClaimedCount)
	}
}

// --- Учёт использований ---

func TestRegisterAndReleaseClaimUse(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewService(store)

	id, _ := svc.Create(ctx, 100, PlanSingle, "📦 Other", "X", "https://x.com", "")

	s, err := svc.RegisterClaimUse(ctx, id)
	if err != nil {
		t.Fatalf("RegisterClaimUse: %v", err)
	}
	if !s.Exhausted() {
		t.Error("single-ссылка не исчерпана после одного использования")
	}

	// Второй слот отсутствует
	if _, err := svc.RegisterClaimUse(ctx, id); err != common.ErrLinkExhausted {
		t.Errorf("err = %v, want ErrLinkExhausted", err)
	}

	// Компенсация возвращает слот
	if err := svc.ReleaseClaimUse(ctx, id); err != nil {
		t.Fatalf("ReleaseClaimUse: %v", err)
	}
	if _, err := svc.RegisterClaimUse(ctx, id); err != nil {
		t.Errorf("слот после компенсации занять не удалось: %v", err)
	}
}

func TestDeleteIfExhausted(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewService(store)

	id, _ := svc.Create(ctx, 100, PlanSingle, "📦 Other", "X", "https://x.com", "")

	// Лимит не выбран — ссылка остаётся
	if deleted, _ := svc.DeleteIfExhausted(ctx, id); deleted {
		t.Error("удаление до исчерпания лимита")
	}

	svc.RegisterClaimUse(ctx, id)
	deleted, err := svc.DeleteIfExhausted(ctx, id)
	if err != nil || !deleted {
		t.Fatalf("deleted=%v, err=%v", deleted, err)
	}
	if _, err := svc.Get(ctx, id); err != common.ErrLinkNotFound {
		t.Errorf("ссылка осталась после удаления: %v", err)
	}
}

// --- Планы ---

func TestPlanByCode(t *testing.T) {
	for _, p := range AllPlans {
		got, ok := PlanByCode(p.Code)
		if !ok || got.Capacity != p.Capacity {
			t.Errorf("PlanByCode(%q) = %+v, ok=%v", p.Code, got, ok)
		}
	}
	if _, ok := PlanByCode("enterprise"); ok {
		t.Error("несуществующий план найден")
	}
}
