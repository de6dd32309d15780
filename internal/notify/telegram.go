package notify

import (
	"context"
	"fmt"

	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of *tgbotapi.BotAPI the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts notices into the gang's chat. Notices that carry a
// review get Approve / Reject buttons.
type TelegramNotifier struct {
	bot   Sender
	gangs GangLookup
}

func NewTelegramNotifier(bot Sender, gangs GangLookup) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, gangs: gangs}
}

func (n *TelegramNotifier) Notify(ctx context.Context, notice domain.Notice) error {
	gang, err := n.gangs.GetByID(ctx, notice.GangID)
	if err != nil {
		return fmt.Errorf("failed to load gang %d: %w", notice.GangID, err)
	}
	if gang.ChatID == 0 {
		logger.Debug("Gang has no chat, skipping telegram notice", "gangID", gang.ID)
		return nil
	}

	msg := tgbotapi.NewMessage(gang.ChatID, formatNotice(notice))
	if notice.Review != nil {
		msg.ReplyMarkup = ReviewKeyboard(*notice.Review)
	}

	logger.ExternalServiceCall("telegram", "sendMessage", "chatID", gang.ChatID, "subject", notice.Subject)
	_, err = n.bot.Send(msg)
	logger.ExternalServiceResult("telegram", "sendMessage", err, "chatID", gang.ChatID)
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// ReviewKeyboard builds the Approve / Reject row for a review.
func ReviewKeyboard(review domain.Review) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", CallbackData(review, true)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Reject", CallbackData(review, false)),
		),
	)
}

func formatNotice(notice domain.Notice) string {
	if notice.Subject == "" {
		return notice.Message
	}
	return notice.Subject + "\n" + notice.Message
}
