package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/repository/memory"
	"gangkeeper-backend/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) lastReply(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if msg, ok := f.sent[i].(tgbotapi.MessageConfig); ok {
			return msg.Text
		}
	}
	t.Fatal("no reply sent")
	return ""
}

func (f *fakeAPI) lastAnswer(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	cb, ok := f.requests[len(f.requests)-1].(tgbotapi.CallbackConfig)
	require.True(t, ok)
	return cb.Text
}

const groupChat = int64(-4242)

func command(chatID, userID int64, text string) tgbotapi.Update {
	name := strings.Fields(text)[0]
	chatType := "group"
	if chatID > 0 {
		chatType = "private"
	}
	return tgbotapi.Update{
		UpdateID: int(userID),
		Message: &tgbotapi.Message{
			MessageID: 10,
			From:      &tgbotapi.User{ID: userID, UserName: fmt.Sprintf("user%d", userID)},
			Chat:      &tgbotapi.Chat{ID: chatID, Type: chatType},
			Text:      text,
			Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
		},
	}
}

func button(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb",
			From: &tgbotapi.User{ID: userID, UserName: fmt.Sprintf("user%d", userID)},
			Data: data,
			Message: &tgbotapi.Message{
				MessageID: 99,
				Chat:      &tgbotapi.Chat{ID: groupChat, Type: "group"},
				Text:      "Approval needed",
			},
		},
	}
}

type harness struct {
	ctx context.Context
	api *fakeAPI
	bot *Bot
	svc *service.Services
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	svc := service.New(memory.NewStore(), service.Options{MaxAmount: 10_000}, nil, nil)
	api := &fakeAPI{}
	return &harness{ctx: context.Background(), api: api, bot: New(api, svc, 0), svc: svc}
}

func (h *harness) say(t *testing.T, userID int64, text string) string {
	t.Helper()
	h.bot.HandleUpdate(h.ctx, command(groupChat, userID, text))
	return h.api.lastReply(t)
}

func (h *harness) click(t *testing.T, userID int64, data string) string {
	t.Helper()
	h.bot.HandleUpdate(h.ctx, button(userID, data))
	return h.api.lastAnswer(t)
}

func (h *harness) memberID(t *testing.T, externalID string) int32 {
	t.Helper()
	gang, err := h.svc.Membership.GetGangByChat(h.ctx, groupChat)
	require.NoError(t, err)
	members, err := h.svc.Membership.ListMembers(h.ctx, domain.UserActor("1"), gang.ID)
	require.NoError(t, err)
	for _, m := range members {
		if m.ExternalID == externalID {
			return m.ID
		}
	}
	t.Fatalf("member %s not found", externalID)
	return 0
}

func TestBot_UnknownChat(t *testing.T) {
	h := newHarness(t)
	assert.Contains(t, h.say(t, 1, "/balance"), "not a gang yet")
	assert.Contains(t, h.say(t, 1, "/help"), "/creategang")

	h.bot.HandleUpdate(h.ctx, command(555, 1, "/creategang Solo"))
	assert.Contains(t, h.api.lastReply(t), "inside the group chat")
}

func TestBot_GangFlow(t *testing.T) {
	h := newHarness(t)

	assert.Contains(t, h.say(t, 1, "/creategang Night Owls 25"), "Night Owls created")
	gang, err := h.svc.Membership.GetGangByChat(h.ctx, groupChat)
	require.NoError(t, err)
	assert.Equal(t, "Night Owls", gang.Name)
	assert.Equal(t, int64(25), gang.PenaltyAmount)

	assert.Contains(t, h.say(t, 1, "/income 100 sponsor"), "Balance: 100")

	assert.Contains(t, h.say(t, 2, "/join"), "waiting for an admin")
	bob := h.memberID(t, "2")

	assert.Equal(t, "Approved", h.click(t, 1, fmt.Sprintf("member:approve:%d", bob)))
	assert.Equal(t, "Already resolved", h.click(t, 1, fmt.Sprintf("member:approve:%d", bob)))
	assert.Contains(t, h.say(t, 2, "/join"), "already a member")

	assert.Contains(t, h.say(t, 2, "/expense 10"), "not allowed")

	reply := h.say(t, 2, "/loan 30 rent")
	require.Contains(t, reply, "sent for approval")
	var txID int32
	_, err = fmt.Sscanf(reply, "Request #%d", &txID)
	require.NoError(t, err)

	assert.Contains(t, h.click(t, 2, fmt.Sprintf("tx:approve:%d", txID)), "not allowed")
	assert.Equal(t, "Approved", h.click(t, 1, fmt.Sprintf("tx:approve:%d", txID)))
	assert.Contains(t, h.say(t, 1, "/balance"), "balance: 70")
	assert.Contains(t, h.say(t, 2, "/me"), "Balance: -30")

	history := h.say(t, 2, "/history")
	assert.Contains(t, history, "LOAN 30")
	assert.Contains(t, history, "INCOME 100")

	assert.Contains(t, h.say(t, 1, "/reconcile"), "matches history")
	assert.Equal(t, "Unknown button", h.click(t, 1, "bogus"))
}

func TestBot_AttendanceCommands(t *testing.T) {
	h := newHarness(t)
	h.say(t, 1, "/creategang Crew 40")

	reply := h.say(t, 1, "/session Raid night 60")
	require.Contains(t, reply, "is open")
	var sessionID int32
	_, err := fmt.Sscanf(reply, "📋 Session #%d", &sessionID)
	require.NoError(t, err)

	assert.Equal(t, "✅ Checked in", h.say(t, 1, fmt.Sprintf("/checkin %d", sessionID)))
	assert.Equal(t, "Already checked in.", h.say(t, 1, fmt.Sprintf("/checkin %d", sessionID)))
	assert.Contains(t, h.say(t, 1, fmt.Sprintf("/close %d", sessionID)), "1 present")
	assert.Contains(t, h.say(t, 1, fmt.Sprintf("/close %d", sessionID)), "already closed")
	assert.Contains(t, h.say(t, 1, "/checkin"), "Usage")
}

func TestBot_LeaveAndTransfer(t *testing.T) {
	h := newHarness(t)
	h.say(t, 1, "/creategang Crew")
	h.say(t, 2, "/join")
	h.click(t, 1, fmt.Sprintf("member:approve:%d", h.memberID(t, "2")))

	tomorrow := time.Now().AddDate(0, 0, 1).Format(time.DateOnly)
	reply := h.say(t, 2, "/leave full "+tomorrow+" dentist")
	require.Contains(t, reply, "sent for approval")
	var leaveID int32
	_, err := fmt.Sscanf(reply, "Leave request #%d", &leaveID)
	require.NoError(t, err)
	assert.Equal(t, "Rejected", h.click(t, 1, fmt.Sprintf("leave:reject:%d", leaveID)))
	assert.Contains(t, h.say(t, 2, "/leave someday"), "Usage")

	assert.Contains(t, h.say(t, 1, "/transfer 24"), "Transfer started")
	assert.Contains(t, h.say(t, 2, "/confirm"), "coming along")
	assert.Equal(t, "You already answered.", h.say(t, 2, "/quit"))
	assert.Contains(t, h.say(t, 1, "/stoptransfer"), "Transfer complete")
	assert.Equal(t, "No transfer in progress.", h.say(t, 1, "/stoptransfer"))
}
