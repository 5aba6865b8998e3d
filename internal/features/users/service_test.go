package users

import (
	"context"
	"errors"
	"testing"

	"refloop.app/referral-bot/internal/common"
)

// fakeStore реализует Store in-memory.
type fakeStore struct {
	users map[int64]*User
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[int64]*User)}
}

func (f *fakeStore) ensure(userID int64) *User {
	u, ok := f.users[userID]
	if !ok {
		u = &User{UserID: userID}
		f.users[userID] = u
	}
	return u
}

func (f *fakeStore) Upsert(ctx context.Context, userID int64, username string) error {
	f.ensure(userID).Username = username
	return nil
}

func (f *fakeStore) GetByUserID(ctx context.Context, userID int64) (*User, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) IncrementVerifiedClaims(ctx context.Context, userID int64) (int, error) {
	u := f.ensure(userID)
	u.VerifiedClaims++
	return u.VerifiedClaims, nil
}

func (f *fakeStore) AddFreeCredits(ctx context.Context, userID int64, delta int) error {
	f.ensure(userID).FreeCredits += delta
	return nil
}

func (f *fakeStore) SpendFreeCredit(ctx context.Context, userID int64) error {
	u := f.ensure(userID)
	if u.FreeCredits <= 0 {
		return common.ErrNoFreeCredits
	}
	u.FreeCredits--
	return nil
}

func TestRecordVerifiedClaimMilestones(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewService(store, 3)

	// Девять одобрений: кредит на 3-м, 6-м и 9-м
	wantMilestone := map[int]bool{3: true, 6: true, 9: true}
	for i := 1; i <= 9; i++ {
		count, milestone, err := svc.RecordVerifiedClaim(ctx, 100)
		if err != nil {
			t.Fatalf("RecordVerifiedClaim(#%d): %v", i, err)
		}
		if count != i {
			t.Errorf("счётчик %d, want %d", count, i)
		}
		if milestone != wantMilestone[i] {
			t.Errorf("milestone на %d = %v, want %v", i, milestone, wantMilestone[i])
		}
	}

	if got := store.users[100].FreeCredits; got != 3 {
		t.Errorf("кредитов %d, want 3", got)
	}
}

func TestRecordVerifiedClaimDefaultThreshold(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	// Невалидный порог откатывается к дефолту
	svc := NewService(store, 0)

	if svc.ClaimsPerCredit() != 3 {
		t.Fatalf("порог %d, want 3", svc.ClaimsPerCredit())
	}
	for i := 0; i < 3; i++ {
		svc.RecordVerifiedClaim(ctx, 100)
	}
	if got := store.users[100].FreeCredits; got != 1 {
		t.Errorf("кредитов %d, want 1", got)
	}
}

func TestSpendFreeCredit(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewService(store, 3)

	if err := svc.SpendFreeCredit(ctx, 100); !errors.Is(err, common.ErrNoFreeCredits) {
		t.Errorf("списание без кредитов: err = %v, want ErrNoFreeCredits", err)
	}

	for i := 0; i < 3; i++ {
		svc.RecordVerifiedClaim(ctx, 100)
	}
	if err := svc.SpendFreeCredit(ctx, 100); err != nil {
		t.Fatalf("SpendFreeCredit: %v", err)
	}
	if got := store.users[100].FreeCredits; got != 0 {
		t.Errorf("кредитов после списания %d, want 0", got)
	}
	if err := svc.SpendFreeCredit(ctx, 100); !errors.Is(err, common.ErrNoFreeCredits) {
		t.Errorf("повторное списание: err = %v, want ErrNoFreeCredits", err)
	}
}

func TestEnsureUserIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewService(store, 3)

	svc.EnsureUser(ctx, 100, "alice")
	store.users[100].VerifiedClaims = 5

	// Повторный апдейт обновляет username, не трогая счётчики
	svc.EnsureUser(ctx, 100, "alice_new")
	u, _ := svc.Get(ctx, 100)
	if u.Username != "alice_new" || u.VerifiedClaims != 5 {
		t.Errorf("после повторного EnsureUser: %+v", u)
	}
}
