package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignRules(t *testing.T) {
	tests := []struct {
		typ         TransactionType
		gangDelta   int64
		memberDelta int64
		needsMember bool
	}{
		{TransactionTypeIncome, 100, 0, false},
		{TransactionTypeExpense, -100, 0, false},
		{TransactionTypeLoan, -100, -100, true},
		{TransactionTypeRepayment, 100, 100, true},
		{TransactionTypeDeposit, 100, 100, true},
		{TransactionTypePenalty, 0, -100, true},
		{TransactionTypeGangFee, 100, -100, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.gangDelta, tt.typ.GangDelta(100))
			assert.Equal(t, tt.memberDelta, tt.typ.MemberDelta(100))
			assert.Equal(t, tt.needsMember, tt.typ.RequiresMember())
		})
	}

	assert.True(t, TransactionTypeExpense.GuardsFunds())
	assert.False(t, TransactionTypeLoan.GuardsFunds())
	assert.True(t, TransactionTypeLoan.MemberRequestable())
	assert.True(t, TransactionTypeRepayment.MemberRequestable())
	assert.False(t, TransactionTypeIncome.MemberRequestable())
}

func TestValidateEntry(t *testing.T) {
	memberID := int32(7)

	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, ValidateEntry(TransactionTypeLoan, 50, 1000, &memberID))
		assert.NoError(t, ValidateEntry(TransactionTypeIncome, 50, 1000, nil))
	})

	t.Run("Non-positive amount", func(t *testing.T) {
		err := ValidateEntry(TransactionTypeIncome, 0, 1000, nil)
		assert.True(t, errors.Is(err, ErrValidation))
	})

	t.Run("Over limit", func(t *testing.T) {
		err := ValidateEntry(TransactionTypeIncome, 1001, 1000, nil)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("Missing member", func(t *testing.T) {
		err := ValidateEntry(TransactionTypePenalty, 10, 1000, nil)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("Unknown type", func(t *testing.T) {
		err := ValidateEntry(TransactionType("BRIBE"), 10, 1000, nil)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestPermissionLevel(t *testing.T) {
	assert.True(t, PermissionOwner.AtLeast(PermissionAdmin))
	assert.True(t, PermissionAdmin.AtLeast(PermissionTreasurer))
	assert.True(t, PermissionTreasurer.AtLeast(PermissionMember))
	assert.False(t, PermissionMember.AtLeast(PermissionTreasurer))
	assert.False(t, PermissionNone.AtLeast(PermissionMember))

	for _, l := range []PermissionLevel{PermissionMember, PermissionTreasurer, PermissionAdmin, PermissionOwner} {
		parsed, err := ParsePermissionLevel(l.String())
		require.NoError(t, err)
		assert.Equal(t, l, parsed)
	}

	_, err := ParsePermissionLevel("emperor")
	assert.ErrorIs(t, err, ErrValidation)

	var scanned PermissionLevel
	require.NoError(t, scanned.Scan([]byte("TREASURER")))
	assert.Equal(t, PermissionTreasurer, scanned)
}

func TestPlatformRoleLevel(t *testing.T) {
	assert.Equal(t, PermissionAdmin, PlatformRoleOwner.Level(), "platform owner never maps to OWNER")
	assert.Equal(t, PermissionAdmin, PlatformRoleAdmin.Level())
	assert.Equal(t, PermissionTreasurer, PlatformRoleTreasurer.Level())
	assert.Equal(t, PermissionMember, PlatformRoleMember.Level())
	assert.Equal(t, PermissionNone, PlatformRole("GUEST").Level())
}

func TestLeaveRequest_Overlaps(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC) }
	leave := &LeaveRequest{StartDate: day(10), EndDate: day(12)}

	assert.True(t, leave.Overlaps(day(12), day(13)))
	assert.True(t, leave.Overlaps(day(9), day(10)))
	assert.True(t, leave.Overlaps(day(11), day(11)))
	assert.True(t, leave.Overlaps(day(12).Add(20*time.Hour), day(12).Add(22*time.Hour)))
	assert.False(t, leave.Overlaps(day(13), day(14)))
	assert.False(t, leave.Overlaps(day(1), day(9)))
}

func TestGang_TransferDue(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	g := &Gang{TransferStatus: GangTransferStatusActive, TransferDeadline: &past}
	assert.True(t, g.TransferDue(now))

	g.TransferStatus = GangTransferStatusNone
	assert.False(t, g.TransferDue(now))
}
