// Package platform reads role grants from the chat platform.
package platform

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gangkeeper-backend/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ChatMemberGetter is the part of *tgbotapi.BotAPI the provisioner needs.
type ChatMemberGetter interface {
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// TelegramProvisioner maps a chat member's status onto a PlatformRole. Chat
// admins whose custom title matches treasurerTitle count as treasurers.
type TelegramProvisioner struct {
	bot            ChatMemberGetter
	treasurerTitle string
}

func NewTelegramProvisioner(bot ChatMemberGetter, treasurerTitle string) *TelegramProvisioner {
	return &TelegramProvisioner{bot: bot, treasurerTitle: treasurerTitle}
}

func (p *TelegramProvisioner) PlatformRole(_ context.Context, gang *domain.Gang, externalID string) (domain.PlatformRole, error) {
	if gang.ChatID == 0 {
		return "", fmt.Errorf("gang %d has no chat", gang.ID)
	}
	userID, err := strconv.ParseInt(externalID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("external id %q is not a telegram user id: %w", externalID, err)
	}

	member, err := p.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: gang.ChatID, UserID: userID},
	})
	if err != nil {
		return "", fmt.Errorf("getChatMember failed: %w", err)
	}
	return p.roleFor(member), nil
}

func (p *TelegramProvisioner) roleFor(member tgbotapi.ChatMember) domain.PlatformRole {
	switch member.Status {
	case "creator":
		return domain.PlatformRoleOwner
	case "administrator":
		if p.treasurerTitle != "" && strings.EqualFold(strings.TrimSpace(member.CustomTitle), p.treasurerTitle) {
			return domain.PlatformRoleTreasurer
		}
		return domain.PlatformRoleAdmin
	case "member", "restricted":
		return domain.PlatformRoleMember
	}
	// left or kicked: no grant
	return ""
}
