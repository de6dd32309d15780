package platform

import (
	"context"
	"errors"
	"testing"

	"gangkeeper-backend/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockChatMembers struct {
	mock.Mock
}

func (m *MockChatMembers) GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	args := m.Called(config.ChatID, config.UserID)
	return args.Get(0).(tgbotapi.ChatMember), args.Error(1)
}

func TestTelegramProvisioner_PlatformRole(t *testing.T) {
	ctx := context.Background()
	gang := &domain.Gang{ID: 1, ChatID: -500}

	tests := []struct {
		name   string
		member tgbotapi.ChatMember
		want   domain.PlatformRole
	}{
		{"Creator", tgbotapi.ChatMember{Status: "creator"}, domain.PlatformRoleOwner},
		{"Admin", tgbotapi.ChatMember{Status: "administrator"}, domain.PlatformRoleAdmin},
		{"TreasurerTitle", tgbotapi.ChatMember{Status: "administrator", CustomTitle: " treasurer "}, domain.PlatformRoleTreasurer},
		{"Member", tgbotapi.ChatMember{Status: "member"}, domain.PlatformRoleMember},
		{"Restricted", tgbotapi.ChatMember{Status: "restricted"}, domain.PlatformRoleMember},
		{"Left", tgbotapi.ChatMember{Status: "left"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot := new(MockChatMembers)
			bot.On("GetChatMember", int64(-500), int64(42)).Return(tt.member, nil)
			p := NewTelegramProvisioner(bot, "Treasurer")

			got, err := p.PlatformRole(ctx, gang, "42")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTelegramProvisioner_Errors(t *testing.T) {
	ctx := context.Background()
	bot := new(MockChatMembers)
	bot.On("GetChatMember", int64(-500), int64(7)).Return(tgbotapi.ChatMember{}, errors.New("Bad Request: user not found"))
	p := NewTelegramProvisioner(bot, "Treasurer")

	_, err := p.PlatformRole(ctx, &domain.Gang{ID: 1}, "7")
	assert.Error(t, err, "gang without chat")

	_, err = p.PlatformRole(ctx, &domain.Gang{ID: 1, ChatID: -500}, "not-a-number")
	assert.Error(t, err)

	_, err = p.PlatformRole(ctx, &domain.Gang{ID: 1, ChatID: -500}, "7")
	assert.ErrorContains(t, err, "user not found")
}
