// Package memory is an in-process Store used by tests and by single-node
// deployments started with database.driver=memory.
package memory

import (
	"context"
	"sync"

	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/repository"
)

type state struct {
	nextGang    int32
	nextMember  int32
	nextTx      int32
	nextSession int32
	nextRecord  int32
	nextLeave   int32
	nextAudit   int64

	gangs        map[int32]domain.Gang
	members      map[int32]domain.Member
	transactions map[int32]domain.Transaction
	sessions     map[int32]domain.AttendanceSession
	records      map[int32]domain.AttendanceRecord
	leaves       map[int32]domain.LeaveRequest
	audit        []domain.AuditLogEntry
}

func newState() *state {
	return &state{
		gangs:        map[int32]domain.Gang{},
		members:      map[int32]domain.Member{},
		transactions: map[int32]domain.Transaction{},
		sessions:     map[int32]domain.AttendanceSession{},
		records:      map[int32]domain.AttendanceRecord{},
		leaves:       map[int32]domain.LeaveRequest{},
	}
}

// clone copies every table. Rows are plain values, so copying the maps is a
// full snapshot.
func (s *state) clone() *state {
	c := *s
	c.gangs = cloneMap(s.gangs)
	c.members = cloneMap(s.members)
	c.transactions = cloneMap(s.transactions)
	c.sessions = cloneMap(s.sessions)
	c.records = cloneMap(s.records)
	c.leaves = cloneMap(s.leaves)
	c.audit = append([]domain.AuditLogEntry(nil), s.audit...)
	return &c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store serialises every operation on one mutex. WithTx holds it for the whole
// callback and restores the snapshot when the callback fails.
type Store struct {
	mu    sync.Mutex
	st    *state
	repos *repository.Repositories
}

func NewStore() *Store {
	s := &Store{st: newState()}
	s.repos = s.bind(false)
	return s
}

func (s *Store) bind(inTx bool) *repository.Repositories {
	b := base{s: s, inTx: inTx}
	return &repository.Repositories{
		Gangs:        &gangRepository{b},
		Members:      &memberRepository{b},
		Transactions: &transactionRepository{b},
		Attendance:   &attendanceRepository{b},
		Leaves:       &leaveRepository{b},
		Audit:        &auditRepository{b},
	}
}

func (s *Store) Repos() *repository.Repositories {
	return s.repos
}

func (s *Store) WithTx(ctx context.Context, fn func(repos *repository.Repositories) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	defer func() {
		if p := recover(); p != nil {
			s.st = snapshot
			panic(p)
		}
	}()

	if err := fn(s.bind(true)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

type base struct {
	s    *Store
	inTx bool
}

// lock takes the store mutex unless the caller already runs inside WithTx.
func (b base) lock() func() {
	if b.inTx {
		return func() {}
	}
	b.s.mu.Lock()
	return b.s.mu.Unlock
}

func (b base) st() *state {
	return b.s.st
}
