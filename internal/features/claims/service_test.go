package claims

import (
	"context"
	"errors"
	"testing"
	"time"

	"refloop.app/referral-bot/internal/common"
	"refloop.app/referral-bot/internal/features/links"
	"refloop.app/referral-bot/internal/features/rewards"
)

// --- Фейки хранилищ ---

// fakeLinkGateway воспроизводит семантику учёта слотов in-memory:
// условный инкремент, компенсация, удаление при исчерпании.
type fakeLinkGateway struct {
	links map[int64]*links.Link
}

func newFakeLinkGateway() *fakeLinkGateway {
	return &fakeLinkGateway{links: make(map[int64]*links.Link)}
}

func (f *fakeLinkGateway) add(id, ownerID int64, capacity int) {
	f.links[id] = &links.Link{
		ID: id, OwnerUserID: ownerID, ServiceName: "TestService",
		Category: "📦 Other", Capacity: capacity,
	}
}

func (f *fakeLinkGateway) Get(ctx context.Context, id int64) (*links.Link, error) {
	l, ok := f.links[id]
	if !ok {
		return nil, common.ErrLinkNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLinkGateway) RegisterClaimUse(ctx context.Context, id int64) (*links.UseSnapshot, error) {
	l, ok := f.links[id]
	if !ok {
		return nil, common.ErrLinkNotFound
	}
	if l.ClaimedCount >= l.Capacity {
		return nil, common.ErrLinkExhausted
	}
	l.ClaimedCount++
	return &links.UseSnapshot{
		LinkID: l.ID, OwnerUserID: l.OwnerUserID, ServiceName: l.ServiceName,
		ClaimedCount: l.ClaimedCount, Capacity: l.Capacity,
	}, nil
}

func (f *fakeLinkGateway) ReleaseClaimUse(ctx context.Context, id int64) error {
	if l, ok := f.links[id]; ok && l.ClaimedCount > 0 {
		l.ClaimedCount--
	}
	return nil
}

func (f *fakeLinkGateway) DeleteIfExhausted(ctx context.Context, id int64) (bool, error) {
	l, ok := f.links[id]
	if !ok || l.ClaimedCount < l.Capacity {
		return false, nil
	}
	delete(f.links, id)
	return true, nil
}

// fakeClaimStore хранит заявки in-memory и повторяет семантику
// условных UPDATE. failTransition имитирует отказ БД на переходе.
type fakeClaimStore struct {
	claims         map[int64]*Claim
	nextID         int64
	failTransition bool
}

func newFakeClaimStore() *fakeClaimStore {
	return &fakeClaimStore{claims: make(map[int64]*Claim), nextID: 1}
}

func (f *fakeClaimStore) Create(ctx context.Context, claimantID, linkID int64, proofFileID string) (int64, error) {
	for _, c := range f.claims {
		if c.ClaimantUserID == claimantID && c.LinkID == linkID {
			return 0, common.ErrDuplicateClaim
		}
	}
	id := f.nextID
	f.nextID++
	f.claims[id] = &Claim{
		ID: id, ClaimantUserID: claimantID, LinkID: linkID,
		ProofFileID: proofFileID, Status: StatusPending, CreatedAt: time.Now(),
	}
	return id, nil
}

func (f *fakeClaimStore) GetByID(ctx context.Context, id int64) (*Claim, error) {
	c, ok := f.claims[id]
	if !ok {
		return nil, common.ErrClaimNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeClaimStore) Exists(ctx context.Context, claimantID, linkID int64) (bool, error) {
	for _, c := range f.claims {
		if c.ClaimantUserID == claimantID && c.LinkID == linkID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeClaimStore) Transition(ctx context.Context, id int64, to Status) error {
	if f.failTransition {
		return errors.New("db down")
	}
	c, ok := f.claims[id]
	if !ok {
		return common.ErrClaimNotFound
	}
	if c.Status != StatusPending {
		return common.ErrClaimNotPending
	}
	now := time.Now()
	c.Status = to
	c.DecidedAt = &now
	return nil
}

func (f *fakeClaimStore) MarkRewarded(ctx context.Context, id int64) error {
	c, ok := f.claims[id]
	if !ok {
		return common.ErrClaimNotFound
	}
	if c.Status != StatusApproved {
		return common.ErrClaimNotApproved
	}
	c.Rewarded = true
	return nil
}

func (f *fakeClaimStore) ListPending(ctx context.Context) ([]*PendingDetail, error) {
	var out []*PendingDetail
	for _, c := range f.claims {
		if c.Status == StatusPending {
			out = append(out, &PendingDetail{ClaimID: c.ID, ClaimantID: c.ClaimantUserID, LinkID: c.LinkID})
		}
	}
	return out, nil
}

// fakeUserGateway считает подтверждённые заявки и выдаёт кредиты
// по той же формуле, что и боевой сервис.
type fakeUserGateway struct {
	verified map[int64]int
	credits  map[int64]int
}

func newFakeUserGateway() *fakeUserGateway {
	return &fakeUserGateway{verified: make(map[int64]int), credits: make(map[int64]int)}
}

func (f *fakeUserGateway) RecordVerifiedClaim(ctx context.Context, userID int64) (int, bool, error) {
	old := f.verified[userID]
	f.verified[userID] = old + 1
	delta := rewards.FreeCreditDelta(old, old+1, 3)
	f.credits[userID] += delta
	return old + 1, delta > 0, nil
}

func newTestService(allowSelfClaim bool) (*Service, *fakeClaimStore, *fakeLinkGateway, *fakeUserGateway) {
	store := newFakeClaimStore()
	linkGw := newFakeLinkGateway()
	userGw := newFakeUserGateway()
	return NewService(store, linkGw, userGw, allowSelfClaim), store, linkGw, userGw
}

// --- Подача заявки ---

func TestCreateChecks(t *testing.T) {
	ctx := context.Background()
	svc, _, linkGw, _ := newTestService(false)
	linkGw.add(1, 100, 2)

	if _, err := svc.Create(ctx, 100, 1, "photo"); !errors.Is(err, common.ErrOwnLink) {
		t.Errorf("заявка на свою ссылку: err = %v, want ErrOwnLink", err)
	}
	if _, err := svc.Create(ctx, 200, 99, "photo"); !errors.Is(err, common.ErrLinkNotFound) {
		t.Errorf("несуществующая ссылка: err = %v, want ErrLinkNotFound", err)
	}

	id, err := svc.Create(ctx, 200, 1, "photo")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == 0 {
		t.Fatal("Create вернул нулевой ID")
	}

	if _, err := svc.Create(ctx, 200, 1, "photo2"); !errors.Is(err, common.ErrDuplicateClaim) {
		t.Errorf("повторная заявка: err = %v, want ErrDuplicateClaim", err)
	}

	// Исчерпанная ссылка не принимает заявки
	linkGw.links[1].ClaimedCount = 2
	if _, err := svc.Create(ctx, 300, 1, "photo"); !errors.Is(err, common.ErrLinkExhausted) {
		t.Errorf("исчерпанная ссылка: err = %v, want ErrLinkExhausted", err)
	}
}

func TestCreateSelfClaimAllowed(t *testing.T) {
	ctx := context.Background()
	svc, _, linkGw, _ := newTestService(true)
	linkGw.add(1, 100, 2)

	if _, err := svc.Create(ctx, 100, 1, "photo"); err != nil {
		t.Errorf("самоиспользование разрешено конфигом, но err = %v", err)
	}
}

// --- Одобрение ---

func TestApproveHappyPath(t *testing.T) {
	ctx := context.Background()
	svc, store, linkGw, userGw := newTestService(false)
	linkGw.add(1, 100, 3)

	claimID, _ := svc.Create(ctx, 200, 1, "photo")
	result, err := svc.Approve(ctx, claimID, 1)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}

	if result.AutoRejected {
		t.Fatal("одобрение превратилось в авто-отказ")
	}
	if result.ClaimantUserID != 200 || result.LinkOwnerID != 100 {
		t.Errorf("участники: claimant %d, owner %d", result.ClaimantUserID, result.LinkOwnerID)
	}
	if result.ClaimedCount != 1 || result.Capacity != 3 {
		t.Errorf("занятость %d/%d, want 1/3", result.ClaimedCount, result.Capacity)
	}
	if result.LinkDeleted {
		t.Error("ссылка удалена до исчерпания лимита")
	}
	if result.VerifiedClaims != 1 || result.Milestone {
		t.Errorf("счётчик %d (milestone=%v), want 1 (false)", result.VerifiedClaims, result.Milestone)
	}

	c, _ := store.GetByID(ctx, claimID)
	if c.Status != StatusApproved {
		t.Errorf("статус %s, want approved", c.Status)
	}
	if c.DecidedAt == nil {
		t.Error("DecidedAt не проставлен")
	}
	if got := userGw.verified[200]; got != 1 {
		t.Errorf("verified у заявителя = %d, want 1", got)
	}
}

func TestApproveDeletesExhaustedLink(t *testing.T) {
	ctx := context.Background()
	svc, _, linkGw, _ := newTestService(false)
	linkGw.add(1, 100, 2)

	// Две заявки разных пользователей закрывают лимит
	id1, _ := svc.Create(ctx, 200, 1, "p1")
	id2, _ := svc.Create(ctx, 300, 1, "p2")

	r1, err := svc.Approve(ctx, id1, 1)
	if err != nil || r1.LinkDeleted {
		t.Fatalf("первое одобрение: err=%v, deleted=%v", err, r1.LinkDeleted)
	}
	r2, err := svc.Approve(ctx, id2, 1)
	if err != nil {
		t.Fatalf("второе одобрение: %v", err)
	}
	if !r2.LinkDeleted {
		t.Error("ссылка не удалена при достижении лимита")
	}
	if _, ok := linkGw.links[1]; ok {
		t.Error("ссылка осталась в хранилище после исчерпания")
	}
}

func TestApproveAutoRejectsWhenLinkGone(t *testing.T) {
	ctx := context.Background()
	svc, store, linkGw, userGw := newTestService(false)
	linkGw.add(1, 100, 1)

	// Обе заявки поданы, пока ссылка была доступна
	id1, _ := svc.Create(ctx, 200, 1, "p1")
	id2, _ := svc.Create(ctx, 300, 1, "p2")

	if r, err := svc.Approve(ctx, id1, 1); err != nil || !r.LinkDeleted {
		t.Fatalf("первое одобрение: err=%v", err)
	}

	// Ссылка уже удалена — вторую заявку ждёт авто-отказ
	r2, err := svc.Approve(ctx, id2, 1)
	if err != nil {
		t.Fatalf("авто-отказ вернул ошибку: %v", err)
	}
	if !r2.AutoRejected || r2.RejectReason != ReasonLinkGone {
		t.Errorf("AutoRejected=%v, reason=%q", r2.AutoRejected, r2.RejectReason)
	}

	c, _ := store.GetByID(ctx, id2)
	if c.Status != StatusRejected {
		t.Errorf("статус %s, want rejected", c.Status)
	}
	if userGw.verified[300] != 0 {
		t.Error("авто-отказ накрутил счётчик наград")
	}
}

func TestApproveAutoRejectsWhenLinkExhausted(t *testing.T) {
	ctx := context.Background()
	svc, _, linkGw, _ := newTestService(false)
	linkGw.add(1, 100, 1)

	id1, _ := svc.Create(ctx, 200, 1, "p1")

	// Лимит выбран, но ссылка ещё не удалена (гонка с автоудалением)
	linkGw.links[1].ClaimedCount = 1

	r, err := svc.Approve(ctx, id1, 1)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if !r.AutoRejected || r.RejectReason != ReasonLinkExhausted {
		t.Errorf("AutoRejected=%v, reason=%q, want exhausted", r.AutoRejected, r.RejectReason)
	}
}

func TestApproveReleasesSlotOnTransitionFailure(t *testing.T) {
	ctx := context.Background()
	svc, store, linkGw, _ := newTestService(false)
	linkGw.add(1, 100, 2)

	claimID, _ := svc.Create(ctx, 200, 1, "p")
	store.failTransition = true

	if _, err := svc.Approve(ctx, claimID, 1); err == nil {
		t.Fatal("ожидалась ошибка перехода")
	}
	// Занятый слот возвращён компенсацией
	if got := linkGw.links[1].ClaimedCount; got != 0 {
		t.Errorf("claimed_count = %d после отката, want 0", got)
	}
}

func TestApproveTerminalStates(t *testing.T) {
	ctx := context.Background()
	svc, _, linkGw, _ := newTestService(false)
	linkGw.add(1, 100, 5)

	id1, _ := svc.Create(ctx, 200, 1, "p1")
	if _, err := svc.Approve(ctx, id1, 1); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if _, err := svc.Approve(ctx, id1, 1); !errors.Is(err, common.ErrClaimNotPending) {
		t.Errorf("повторное одобрение: err = %v, want ErrClaimNotPending", err)
	}

	id2, _ := svc.Create(ctx, 300, 1, "p2")
	if err := svc.Reject(ctx, id2, 1); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if _, err := svc.Approve(ctx, id2, 1); !errors.Is(err, common.ErrClaimNotPending) {
		t.Errorf("одобрение отклонённой: err = %v, want ErrClaimNotPending", err)
	}

	// Отказ не трогает слоты ссылки
	if got := linkGw.links[1].ClaimedCount; got != 1 {
		t.Errorf("claimed_count = %d, want 1 (только одобрение занимает слот)", got)
	}

	if _, err := svc.Approve(ctx, 999, 1); !errors.Is(err, common.ErrClaimNotFound) {
		t.Errorf("несуществующая заявка: err = %v, want ErrClaimNotFound", err)
	}
}

func TestApproveMilestoneEveryThreeClaims(t *testing.T) {
	ctx := context.Background()
	svc, _, linkGw, userGw := newTestService(false)

	// Один заявитель закрывает заявки по трём разным ссылкам
	for i := int64(1); i <= 3; i++ {
		linkGw.add(i, 100+i, 5)
	}

	var milestones int
	for i := int64(1); i <= 3; i++ {
		claimID, err := svc.Create(ctx, 200, i, "p")
		if err != nil {
			t.Fatalf("Create(link %d): %v", i, err)
		}
		r, err := svc.Approve(ctx, claimID, 1)
		if err != nil {
			t.Fatalf("Approve(link %d): %v", i, err)
		}
		if r.Milestone {
			milestones++
			if r.VerifiedClaims != 3 {
				t.Errorf("рубеж на счётчике %d, want 3", r.VerifiedClaims)
			}
		}
	}

	if milestones != 1 {
		t.Errorf("рубежей %d, want 1", milestones)
	}
	if userGw.credits[200] != 1 {
		t.Errorf("кредитов %d, want 1", userGw.credits[200])
	}
}

func TestLinkLifecycleFullCapacity(t *testing.T) {
	ctx := context.Background()
	svc, _, linkGw, _ := newTestService(false)

	const capacity = 5
	linkGw.add(1, 100, capacity)

	var deletions int
	for i := 0; i < capacity; i++ {
		claimant := int64(200 + i)
		claimID, err := svc.Create(ctx, claimant, 1, "p")
		if err != nil {
			t.Fatalf("Create(#%d): %v", i, err)
		}
		r, err := svc.Approve(ctx, claimID, 1)
		if err != nil {
			t.Fatalf("Approve(#%d): %v", i, err)
		}
		if r.AutoRejected {
			t.Fatalf("одобрение #%d ушло в авто-отказ", i)
		}
		if r.LinkDeleted {
			deletions++
			if i != capacity-1 {
				t.Errorf("удаление на заявке #%d, want последняя", i)
			}
		}
	}

	if deletions != 1 {
		t.Errorf("удалений %d, want ровно 1", deletions)
	}
	// После исчерпания новые заявки не принимаются
	if _, err := svc.Create(ctx, 999, 1, "p"); !errors.Is(err, common.ErrLinkNotFound) {
		t.Errorf("заявка на удалённую ссылку: err = %v, want ErrLinkNotFound", err)
	}
}

// --- Награды ---

func TestMarkRewarded(t *testing.T) {
	ctx := context.Background()
	svc, store, linkGw, _ := newTestService(false)
	linkGw.add(1, 100, 5)

	claimID, _ := svc.Create(ctx, 200, 1, "p")
	if err := svc.MarkRewarded(ctx, claimID); !errors.Is(err, common.ErrClaimNotApproved) {
		t.Errorf("награда за pending: err = %v, want ErrClaimNotApproved", err)
	}

	if _, err := svc.Approve(ctx, claimID, 1); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := svc.MarkRewarded(ctx, claimID); err != nil {
		t.Fatalf("MarkRewarded: %v", err)
	}
	// Повторный вызов идемпотентен
	if err := svc.MarkRewarded(ctx, claimID); err != nil {
		t.Fatalf("повторный MarkRewarded: %v", err)
	}

	c, _ := store.GetByID(ctx, claimID)
	if !c.Rewarded {
		t.Error("флаг rewarded не проставлен")
	}
}
