package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/repository/memory"
	"gangkeeper-backend/internal/service"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockNotifier
type MockNotifier struct {
	mock.Mock
	mu      sync.Mutex
	notices []domain.Notice
}

func (m *MockNotifier) Notify(ctx context.Context, notice domain.Notice) error {
	m.mu.Lock()
	m.notices = append(m.notices, notice)
	m.mu.Unlock()
	args := m.Called(ctx, notice)
	return args.Error(0)
}

func (m *MockNotifier) Sent() []domain.Notice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Notice(nil), m.notices...)
}

// MockProvisioner
type MockProvisioner struct {
	mock.Mock
}

func (m *MockProvisioner) PlatformRole(ctx context.Context, gang *domain.Gang, externalID string) (domain.PlatformRole, error) {
	args := m.Called(ctx, gang, externalID)
	return args.Get(0).(domain.PlatformRole), args.Error(1)
}

type fixture struct {
	ctx         context.Context
	store       *memory.Store
	svc         *service.Services
	notifier    *MockNotifier
	provisioner *MockProvisioner
	gang        *domain.Gang
	owner       domain.Actor
	ownerMember *domain.Member
}

const testPenalty = 50

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	notifier := new(MockNotifier)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(nil).Maybe()
	provisioner := new(MockProvisioner)

	svc := service.New(store, service.Options{
		MaxAmount:         1_000_000,
		SuperUsers:        []string{"root"},
		StaleClosingAfter: time.Minute,
	}, notifier, provisioner)

	owner := domain.UserActor("owner")
	gang := &domain.Gang{Name: "Night Owls", PenaltyAmount: testPenalty, ChatID: -100}
	ownerMember, err := svc.Membership.CreateGang(ctx, owner, gang, "Boss")
	require.NoError(t, err)

	return &fixture{
		ctx:         ctx,
		store:       store,
		svc:         svc,
		notifier:    notifier,
		provisioner: provisioner,
		gang:        gang,
		owner:       owner,
		ownerMember: ownerMember,
	}
}

// join registers externalID and has the owner approve it, then sets role.
func (f *fixture) join(t *testing.T, externalID string, role domain.PermissionLevel) (domain.Actor, *domain.Member) {
	t.Helper()
	actor := domain.UserActor(externalID)
	m, err := f.svc.Membership.Register(f.ctx, actor, f.gang.ID, externalID)
	require.NoError(t, err)
	m, err = f.svc.Membership.Review(f.ctx, f.owner, m.ID, true)
	require.NoError(t, err)
	if role != domain.PermissionMember {
		require.NoError(t, f.store.Repos().Members.UpdateRole(f.ctx, m.ID, role))
		m.GangRole = role
	}
	return actor, m
}

func (f *fixture) member(t *testing.T, id int32) *domain.Member {
	t.Helper()
	m, err := f.store.Repos().Members.GetByID(f.ctx, id)
	require.NoError(t, err)
	return m
}

func (f *fixture) reloadGang(t *testing.T) *domain.Gang {
	t.Helper()
	g, err := f.store.Repos().Gangs.GetByID(f.ctx, f.gang.ID)
	require.NoError(t, err)
	return g
}

func (f *fixture) post(t *testing.T, txType domain.TransactionType, amount int64, memberID *int32) *domain.PostResult {
	t.Helper()
	res, err := f.svc.Ledger.PostTransaction(f.ctx, f.owner, service.PostRequest{
		GangID: f.gang.ID, Type: txType, Amount: amount, MemberID: memberID,
	})
	require.NoError(t, err)
	return res
}
