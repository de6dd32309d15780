// Package bot routes Telegram commands and review buttons into the services.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/logger"
	"gangkeeper-backend/internal/notify"
	"gangkeeper-backend/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Bot struct {
	api            API
	svc            *service.Services
	transferWindow time.Duration
}

func New(api API, svc *service.Services, transferWindow time.Duration) *Bot {
	if transferWindow <= 0 {
		transferWindow = 72 * time.Hour
	}
	return &Bot{api: api, svc: svc, transferWindow: transferWindow}
}

// Run handles updates until ctx is done or the channel closes.
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	ctx = logger.WithRequestID(ctx, fmt.Sprintf("tg-%d", update.UpdateID))
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "Update handler panicked", "updateID", update.UpdateID, "panic", r)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.reply(update.Message, b.handleCommand(ctx, update.Message))
	}
}

func actorOf(u *tgbotapi.User) domain.Actor {
	return domain.UserActor(strconv.FormatInt(u.ID, 10))
}

func nameOf(u *tgbotapi.User) string {
	if u.UserName != "" {
		return "@" + u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	if text == "" {
		return
	}
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID
	if _, err := b.api.Send(out); err != nil {
		logger.Warn("Failed to send reply", "chatID", msg.Chat.ID, "error", err)
	}
}

const helpText = `Gang commands:
/creategang <name> [penalty] - set this chat up as a gang
/join - ask to join
/me - your balance and role
/members - roster
/balance - gang balance
/history - last transactions

Money:
/loan <amount> [note] - request a loan
/repay <amount> [note] - report a repayment
/income <amount> [note], /expense <amount> [note]
/deposit|/fee|/penalty <member id> <amount> [note]
/reconcile

Attendance:
/session <name> <minutes> - open a session now
/checkin <session id>
/close <session id>, /cancelsession <session id>
/leave <FULL|LATE> <YYYY-MM-DD> [YYYY-MM-DD] [reason]

Server transfer:
/transfer [hours], /confirm, /quit, /stoptransfer, /canceltransfer

/sync - pull roles from chat admins`

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) string {
	if msg.From == nil {
		return ""
	}
	actor := actorOf(msg.From)
	cmd := strings.ToLower(msg.Command())
	args := strings.Fields(msg.CommandArguments())
	logger.InfoContext(ctx, "Bot command", "command", cmd, "chatID", msg.Chat.ID, "actor", actor)

	switch cmd {
	case "start", "help":
		return helpText
	case "creategang":
		return b.createGang(ctx, actor, msg, args)
	}

	gang, err := b.svc.Membership.GetGangByChat(ctx, msg.Chat.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return "This chat is not a gang yet. Use /creategang <name>."
	}
	if err != nil {
		return errText(err)
	}

	switch cmd {
	case "join":
		return b.join(ctx, actor, gang, msg.From)
	case "me":
		return b.me(ctx, actor, gang)
	case "members":
		return b.members(ctx, actor, gang)
	case "balance":
		g, err := b.svc.Membership.GetGang(ctx, actor, gang.ID)
		if err != nil {
			return errText(err)
		}
		return fmt.Sprintf("💰 %s balance: %d", g.Name, g.Balance)
	case "history":
		return b.history(ctx, actor, gang)
	case "loan":
		return b.submit(ctx, actor, gang, domain.TransactionTypeLoan, args)
	case "repay":
		return b.submit(ctx, actor, gang, domain.TransactionTypeRepayment, args)
	case "income":
		return b.post(ctx, actor, gang, domain.TransactionTypeIncome, args, false)
	case "expense":
		return b.post(ctx, actor, gang, domain.TransactionTypeExpense, args, false)
	case "deposit":
		return b.post(ctx, actor, gang, domain.TransactionTypeDeposit, args, true)
	case "fee":
		return b.post(ctx, actor, gang, domain.TransactionTypeGangFee, args, true)
	case "penalty":
		return b.post(ctx, actor, gang, domain.TransactionTypePenalty, args, true)
	case "reconcile":
		drift, err := b.svc.Ledger.Reconcile(ctx, actor, gang.ID)
		if err != nil {
			return errText(err)
		}
		if drift.Consistent() {
			return fmt.Sprintf("✅ Balance %d matches history", drift.Stored)
		}
		if drift.Stored != drift.Computed {
			return fmt.Sprintf("⚠️ Stored balance %d, history says %d", drift.Stored, drift.Computed)
		}
		return fmt.Sprintf("⚠️ %d member balance(s) disagree with history", len(drift.Members))
	case "session":
		return b.openSession(ctx, actor, gang, args)
	case "checkin":
		return b.checkIn(ctx, actor, args)
	case "close":
		return b.closeSession(ctx, actor, args)
	case "cancelsession":
		id, err := parseID(args)
		if err != nil {
			return "Usage: /cancelsession <session id>"
		}
		if err := b.svc.Attendance.Cancel(ctx, actor, id); err != nil {
			return errText(err)
		}
		return fmt.Sprintf("Session #%d cancelled", id)
	case "leave":
		return b.requestLeave(ctx, actor, gang, args)
	case "transfer":
		return b.startTransfer(ctx, actor, gang, args)
	case "confirm":
		if _, err := b.svc.Transfers.Confirm(ctx, actor, gang.ID); err != nil {
			return errText(err)
		}
		return fmt.Sprintf("✅ %s is coming along", nameOf(msg.From))
	case "quit":
		if _, err := b.svc.Transfers.Leave(ctx, actor, gang.ID); err != nil {
			return errText(err)
		}
		return fmt.Sprintf("👋 %s is leaving the gang", nameOf(msg.From))
	case "stoptransfer":
		summary, err := b.svc.Transfers.Complete(ctx, actor, gang.ID)
		if err != nil {
			return errText(err)
		}
		if summary.NoOp {
			return "No transfer in progress."
		}
		return fmt.Sprintf("Transfer complete: %d removed, %d transactions cleared", summary.Departed, summary.TransactionsWiped)
	case "canceltransfer":
		if err := b.svc.Transfers.Cancel(ctx, actor, gang.ID); err != nil {
			return errText(err)
		}
		return "Transfer cancelled."
	case "sync":
		report, err := b.svc.Roles.SyncGang(ctx, actor, gang.ID)
		if err != nil {
			return errText(err)
		}
		return fmt.Sprintf("Roles synced: %d checked, %d changed, %d failed", report.Checked, report.Changed, report.Failed)
	}
	return "Unknown command. /help lists them."
}

func (b *Bot) createGang(ctx context.Context, actor domain.Actor, msg *tgbotapi.Message, args []string) string {
	if msg.Chat.IsPrivate() {
		return "Run /creategang inside the group chat."
	}
	if len(args) == 0 {
		return "Usage: /creategang <name> [penalty]"
	}
	gang := &domain.Gang{ChatID: msg.Chat.ID}
	if n := len(args); n > 1 {
		if penalty, err := strconv.ParseInt(args[n-1], 10, 64); err == nil {
			gang.PenaltyAmount = penalty
			args = args[:n-1]
		}
	}
	gang.Name = strings.Join(args, " ")

	if _, err := b.svc.Membership.CreateGang(ctx, actor, gang, nameOf(msg.From)); err != nil {
		return errText(err)
	}
	return fmt.Sprintf("🎉 %s created. Members can /join now.", gang.Name)
}

func (b *Bot) join(ctx context.Context, actor domain.Actor, gang *domain.Gang, from *tgbotapi.User) string {
	m, err := b.svc.Membership.Register(ctx, actor, gang.ID, nameOf(from))
	if err != nil {
		return errText(err)
	}
	if m.Eligible() {
		return "You are already a member."
	}
	return "Request sent, waiting for an admin."
}

func (b *Bot) me(ctx context.Context, actor domain.Actor, gang *domain.Gang) string {
	m, err := b.svc.Membership.Me(ctx, actor, gang.ID)
	if err != nil {
		return errText(err)
	}
	return fmt.Sprintf("#%d %s\nRole: %s\nStatus: %s\nBalance: %d", m.ID, m.DisplayName, m.GangRole, m.Status, m.Balance)
}

func (b *Bot) members(ctx context.Context, actor domain.Actor, gang *domain.Gang) string {
	members, err := b.svc.Membership.ListMembers(ctx, actor, gang.ID)
	if err != nil {
		return errText(err)
	}
	var sb strings.Builder
	sb.WriteString("👥 Members:\n")
	for _, m := range members {
		if !m.Eligible() {
			continue
		}
		fmt.Fprintf(&sb, "#%d %s (%s) %d\n", m.ID, m.DisplayName, m.GangRole, m.Balance)
	}
	return sb.String()
}

func (b *Bot) history(ctx context.Context, actor domain.Actor, gang *domain.Gang) string {
	txs, _, err := b.svc.Ledger.ListTransactions(ctx, actor, gang.ID, nil, 1, 10)
	if err != nil {
		return errText(err)
	}
	if len(txs) == 0 {
		return "📭 No transactions yet"
	}
	var sb strings.Builder
	sb.WriteString("📜 Latest transactions:\n")
	for _, tx := range txs {
		fmt.Fprintf(&sb, "#%d %s %s %d", tx.ID, tx.CreatedAt.Format("02.01 15:04"), tx.Type, tx.Amount)
		if tx.Status != domain.TransactionStatusApproved {
			fmt.Fprintf(&sb, " [%s]", tx.Status)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (b *Bot) submit(ctx context.Context, actor domain.Actor, gang *domain.Gang, txType domain.TransactionType, args []string) string {
	if len(args) == 0 {
		return fmt.Sprintf("Usage: /%s <amount> [note]", strings.ToLower(string(txType)))
	}
	amount, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "Amount must be a whole number."
	}
	tx, err := b.svc.Approvals.Submit(ctx, actor, gang.ID, txType, amount, strings.Join(args[1:], " "))
	if err != nil {
		return errText(err)
	}
	return fmt.Sprintf("Request #%d sent for approval", tx.ID)
}

func (b *Bot) post(ctx context.Context, actor domain.Actor, gang *domain.Gang, txType domain.TransactionType, args []string, withMember bool) string {
	req := service.PostRequest{GangID: gang.ID, Type: txType}
	if withMember {
		if len(args) < 2 {
			return "Usage: /<command> <member id> <amount> [note]"
		}
		id, err := strconv.ParseInt(args[0], 10, 32)
		if err != nil {
			return "Member id must be a number."
		}
		memberID := int32(id)
		req.MemberID = &memberID
		args = args[1:]
	}
	if len(args) == 0 {
		return "Usage: /<command> <amount> [note]"
	}
	amount, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "Amount must be a whole number."
	}
	req.Amount = amount
	req.Description = strings.Join(args[1:], " ")

	res, err := b.svc.Ledger.PostTransaction(ctx, actor, req)
	if err != nil {
		return errText(err)
	}
	return fmt.Sprintf("✅ %s #%d posted. Balance: %d", txType, res.Transaction.ID, res.GangBalance)
}

func (b *Bot) openSession(ctx context.Context, actor domain.Actor, gang *domain.Gang, args []string) string {
	if len(args) < 2 {
		return "Usage: /session <name> <minutes>"
	}
	minutes, err := strconv.Atoi(args[len(args)-1])
	if err != nil || minutes <= 0 {
		return "Minutes must be a positive number."
	}
	now := time.Now()
	session, err := b.svc.Attendance.Create(ctx, actor, gang.ID, strings.Join(args[:len(args)-1], " "), now, now.Add(time.Duration(minutes)*time.Minute))
	if err != nil {
		return errText(err)
	}
	if _, err := b.svc.Attendance.Start(ctx, actor, session.ID); err != nil {
		return errText(err)
	}
	return fmt.Sprintf("📋 Session #%d \"%s\" is open for %d minutes. /checkin %d", session.ID, session.Name, minutes, session.ID)
}

func (b *Bot) checkIn(ctx context.Context, actor domain.Actor, args []string) string {
	id, err := parseID(args)
	if err != nil {
		return "Usage: /checkin <session id>"
	}
	_, inserted, err := b.svc.Attendance.CheckIn(ctx, actor, id)
	if err != nil {
		return errText(err)
	}
	if !inserted {
		return "Already checked in."
	}
	return "✅ Checked in"
}

func (b *Bot) closeSession(ctx context.Context, actor domain.Actor, args []string) string {
	id, err := parseID(args)
	if err != nil {
		return "Usage: /close <session id>"
	}
	summary, err := b.svc.Attendance.Close(ctx, actor, id)
	if err != nil {
		return errText(err)
	}
	if summary.NoOp {
		return fmt.Sprintf("Session #%d is already closed.", id)
	}
	return fmt.Sprintf("Session #%d closed: %d present, %d on leave, %d absent (%d penalised, %d failed)",
		id, summary.Present, summary.Leave, summary.Absent, summary.Penalized, summary.Failures)
}

func (b *Bot) requestLeave(ctx context.Context, actor domain.Actor, gang *domain.Gang, args []string) string {
	const usage = "Usage: /leave <FULL|LATE> <YYYY-MM-DD> [YYYY-MM-DD] [reason]"
	if len(args) < 2 {
		return usage
	}
	start, err := time.Parse(time.DateOnly, args[1])
	if err != nil {
		return usage
	}
	end, rest := start, args[2:]
	if len(rest) > 0 {
		if t, err := time.Parse(time.DateOnly, rest[0]); err == nil {
			end, rest = t, rest[1:]
		}
	}
	leave, err := b.svc.Leaves.Request(ctx, actor, gang.ID, domain.LeaveType(strings.ToUpper(args[0])), start, end, strings.Join(rest, " "))
	if err != nil {
		return errText(err)
	}
	return fmt.Sprintf("Leave request #%d sent for approval", leave.ID)
}

func (b *Bot) startTransfer(ctx context.Context, actor domain.Actor, gang *domain.Gang, args []string) string {
	window := b.transferWindow
	if len(args) > 0 {
		hours, err := strconv.Atoi(args[0])
		if err != nil || hours <= 0 {
			return "Usage: /transfer [hours]"
		}
		window = time.Duration(hours) * time.Hour
	}
	if _, err := b.svc.Transfers.Start(ctx, actor, gang.ID, time.Now().Add(window)); err != nil {
		return errText(err)
	}
	return "🚚 Transfer started. Everyone: /confirm to come along or /quit to leave."
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	answer := b.resolveReview(ctx, q)
	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, answer)); err != nil {
		logger.Warn("Failed to answer callback", "callbackID", q.ID, "error", err)
	}
}

// resolveReview applies a review button and, once the review is settled,
// replaces the buttons with the outcome.
func (b *Bot) resolveReview(ctx context.Context, q *tgbotapi.CallbackQuery) string {
	review, approve, err := notify.ParseCallback(q.Data)
	if err != nil {
		return "Unknown button"
	}
	actor := actorOf(q.From)

	verdict := "Rejected"
	if approve {
		verdict = "Approved"
	}
	switch review.Kind {
	case domain.ReviewTransaction:
		decision := domain.DecisionReject
		if approve {
			decision = domain.DecisionApprove
		}
		_, err = b.svc.Approvals.Resolve(ctx, actor, review.TargetID, decision)
	case domain.ReviewLeave:
		_, err = b.svc.Leaves.Resolve(ctx, actor, review.TargetID, approve)
	case domain.ReviewMember:
		_, err = b.svc.Membership.Review(ctx, actor, review.TargetID, approve)
	}

	switch {
	case err == nil:
		b.settle(q, fmt.Sprintf("%s by %s", verdict, nameOf(q.From)))
		return verdict
	case errors.Is(err, domain.ErrAlreadyResolved):
		b.settle(q, "Already resolved")
		return "Already resolved"
	}
	return errText(err)
}

func (b *Bot) settle(q *tgbotapi.CallbackQuery, outcome string) {
	if q.Message == nil {
		return
	}
	edit := tgbotapi.NewEditMessageText(q.Message.Chat.ID, q.Message.MessageID, q.Message.Text+"\n\n"+outcome)
	if _, err := b.api.Send(edit); err != nil {
		logger.Warn("Failed to update review message", "chatID", q.Message.Chat.ID, "error", err)
	}
}

func parseID(args []string) (int32, error) {
	if len(args) == 0 {
		return 0, errors.New("missing id")
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 32)
	return int32(id), err
}

// errText turns a service error into a chat reply.
func errText(err error) string {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		return "⛔ You are not allowed to do that."
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "❌ Not enough money in the gang."
	case errors.Is(err, domain.ErrNotFound):
		return "❌ Not found."
	case errors.Is(err, domain.ErrAlreadyResolved):
		return "Already resolved."
	case errors.Is(err, domain.ErrAlreadyFinal):
		return "You already answered."
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidState):
		return "❌ " + err.Error()
	}
	logger.Error("Bot command failed", "error", err)
	return "❌ Something went wrong, try again later."
}
