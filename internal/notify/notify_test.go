package notify

import (
	"context"
	"errors"
	"testing"

	"gangkeeper-backend/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockGangs struct {
	mock.Mock
}

func (m *MockGangs) GetByID(ctx context.Context, id int32) (*domain.Gang, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Gang), args.Error(1)
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return tgbotapi.Message{}, args.Error(0)
}

type MockMailClient struct {
	mock.Mock
}

func (m *MockMailClient) Send(email *mail.SGMailV3) (*rest.Response, error) {
	args := m.Called(email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rest.Response), args.Error(1)
}

type stubNotifier struct {
	err   error
	calls int
}

func (s *stubNotifier) Notify(context.Context, domain.Notice) error {
	s.calls++
	return s.err
}

func TestCallbackData_RoundTrip(t *testing.T) {
	review := domain.Review{Kind: domain.ReviewTransaction, TargetID: 42}
	assert.Equal(t, "tx:approve:42", CallbackData(review, true))
	assert.Equal(t, "tx:reject:42", CallbackData(review, false))

	got, approve, err := ParseCallback("leave:approve:7")
	require.NoError(t, err)
	assert.True(t, approve)
	assert.Equal(t, domain.Review{Kind: domain.ReviewLeave, TargetID: 7}, got)

	for _, bad := range []string{"", "tx:approve", "loan:approve:1", "tx:maybe:1", "tx:approve:x", "tx:approve:-3"} {
		_, _, err := ParseCallback(bad)
		assert.ErrorIs(t, err, domain.ErrValidation, bad)
	}
}

func TestTelegramNotifier_Notify(t *testing.T) {
	ctx := context.Background()
	gangs := new(MockGangs)
	gangs.On("GetByID", ctx, int32(1)).Return(&domain.Gang{ID: 1, Name: "Crew", ChatID: -1001}, nil)
	gangs.On("GetByID", ctx, int32(2)).Return(&domain.Gang{ID: 2, Name: "Quiet"}, nil)

	t.Run("ReviewGetsKeyboard", func(t *testing.T) {
		sender := new(MockSender)
		sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			if !ok || msg.ChatID != -1001 {
				return false
			}
			kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
			return ok && len(kb.InlineKeyboard) == 1 && *kb.InlineKeyboard[0][0].CallbackData == "tx:approve:9"
		})).Return(nil)

		n := NewTelegramNotifier(sender, gangs)
		err := n.Notify(ctx, domain.Notice{GangID: 1, Subject: "Approval needed", Message: "loan",
			Review: &domain.Review{Kind: domain.ReviewTransaction, TargetID: 9}})
		require.NoError(t, err)
		sender.AssertExpectations(t)
	})

	t.Run("NoChatIsSkipped", func(t *testing.T) {
		sender := new(MockSender)
		n := NewTelegramNotifier(sender, gangs)
		require.NoError(t, n.Notify(ctx, domain.Notice{GangID: 2, Message: "hi"}))
		sender.AssertNotCalled(t, "Send", mock.Anything)
	})

	t.Run("SendFailure", func(t *testing.T) {
		sender := new(MockSender)
		sender.On("Send", mock.Anything).Return(errors.New("bot was kicked"))
		n := NewTelegramNotifier(sender, gangs)
		assert.Error(t, n.Notify(ctx, domain.Notice{GangID: 1, Message: "hi"}))
	})
}

func TestEmailNotifier_Notify(t *testing.T) {
	ctx := context.Background()
	gangs := new(MockGangs)
	gangs.On("GetByID", ctx, int32(1)).Return(&domain.Gang{ID: 1, Name: "Crew", ContactEmail: "boss@example.com"}, nil)
	gangs.On("GetByID", ctx, int32(2)).Return(&domain.Gang{ID: 2, Name: "Quiet"}, nil)

	t.Run("OutcomeIsMailed", func(t *testing.T) {
		client := new(MockMailClient)
		client.On("Send", mock.MatchedBy(func(m *mail.SGMailV3) bool {
			return m.Subject == "[Crew] Transfer completed" && m.Personalizations[0].To[0].Address == "boss@example.com"
		})).Return(&rest.Response{StatusCode: 202}, nil)

		n := NewEmailNotifier(client, "bot@example.com", "Gangkeeper", gangs)
		require.NoError(t, n.Notify(ctx, domain.Notice{GangID: 1, Subject: "Transfer completed", Message: "done"}))
		client.AssertExpectations(t)
	})

	t.Run("ReviewsStayInChat", func(t *testing.T) {
		client := new(MockMailClient)
		n := NewEmailNotifier(client, "bot@example.com", "Gangkeeper", gangs)
		require.NoError(t, n.Notify(ctx, domain.Notice{GangID: 1, Review: &domain.Review{Kind: domain.ReviewLeave, TargetID: 1}}))
		client.AssertNotCalled(t, "Send", mock.Anything)
	})

	t.Run("NoContact", func(t *testing.T) {
		client := new(MockMailClient)
		n := NewEmailNotifier(client, "bot@example.com", "Gangkeeper", gangs)
		require.NoError(t, n.Notify(ctx, domain.Notice{GangID: 2, Subject: "x"}))
		client.AssertNotCalled(t, "Send", mock.Anything)
	})

	t.Run("ErrorStatus", func(t *testing.T) {
		client := new(MockMailClient)
		client.On("Send", mock.Anything).Return(&rest.Response{StatusCode: 401, Body: "unauthorized"}, nil)
		n := NewEmailNotifier(client, "bot@example.com", "Gangkeeper", gangs)
		assert.ErrorContains(t, n.Notify(ctx, domain.Notice{GangID: 1, Subject: "x"}), "status 401")
	})
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := &stubNotifier{}
	failing := &stubNotifier{err: errors.New("down")}
	m := Multi{ok, nil, failing}

	err := m.Notify(context.Background(), domain.Notice{GangID: 1})
	assert.ErrorContains(t, err, "down")
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, 1, failing.calls)

	assert.NoError(t, Multi{ok}.Notify(context.Background(), domain.Notice{}))
}
