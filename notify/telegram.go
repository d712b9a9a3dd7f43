package notify

import (
	"context"
	"fmt"
	"sync"

	"git.0xdad.com/tblyler/mymed/apperr"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// botAPI is the part of *tgbotapi.BotAPI the notifier uses
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// TelegramBot sends reminders with Take/Snooze buttons and turns button
// presses into actions
type TelegramBot struct {
	api     botAPI
	logger  logrus.FieldLogger
	actions chan Action

	mu sync.Mutex
	// chats maps a reminder to the chat its buttons were sent to
	chats map[uuid.UUID]int64
}

// NewTelegramBot authorizes the bot token
func NewTelegramBot(token string, logger logrus.FieldLogger) (*TelegramBot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	logger.Infof("Authorized on account %s", api.Self.UserName)

	return newTelegramBot(api, logger), nil
}

func newTelegramBot(api botAPI, logger logrus.FieldLogger) *TelegramBot {
	return &TelegramBot{
		api:     api,
		logger:  logger.WithField("notifier", "telegram"),
		actions: make(chan Action, 16),
		chats:   make(map[uuid.UUID]int64),
	}
}

// Actions implements ActionSource
func (b *TelegramBot) Actions() <-chan Action {
	return b.actions
}

// Run long polls for button presses until ctx is done
func (b *TelegramBot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("Bot started with long polling")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Stopping bot...")
			b.api.StopReceivingUpdates()
			return nil

		case update, ok := <-updates:
			if !ok {
				return nil
			}

			b.handleUpdate(ctx, update)
		}
	}
}

func (b *TelegramBot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	query := update.CallbackQuery
	if query == nil {
		return
	}

	action, err := ParseAction(query.Data)
	if err != nil {
		b.logger.WithError(err).Warn("Ignoring unknown callback")
		return
	}

	if !b.sentTo(action.ReminderID, query.Message) {
		b.logger.WithField("reminder", action.ReminderID).Warn("Ignoring callback from a chat the reminder was not sent to")

		if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "This reminder is no longer active")); err != nil {
			b.logger.WithError(err).Warn("Failed to answer callback")
		}

		return
	}

	answer := "Marked as taken"
	if action.Kind == ActionSnooze {
		answer = "Snoozed"
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, answer)); err != nil {
		b.logger.WithError(err).Warn("Failed to answer callback")
	}

	select {
	case b.actions <- action:
	case <-ctx.Done():
	}
}

func (b *TelegramBot) sentTo(reminderID uuid.UUID, msg *tgbotapi.Message) bool {
	if msg == nil || msg.Chat == nil {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	chatID, ok := b.chats[reminderID]

	return ok && chatID == msg.Chat.ID
}

func (b *TelegramBot) remember(reminderID uuid.UUID, chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.chats[reminderID] = chatID
}

// For returns a Notifier delivering to one chat
func (b *TelegramBot) For(chatID int64) *Telegram {
	return &Telegram{
		bot:      b,
		chatID:   chatID,
		deferred: newDeferred(b.logger.WithField("chat", chatID)),
		sent:     make(map[int]int),
	}
}

// Telegram delivers notifications to a single chat
type Telegram struct {
	bot      *TelegramBot
	chatID   int64
	deferred *deferred

	mu   sync.Mutex
	sent map[int]int
}

// Schedule a notification
func (t *Telegram) Schedule(ctx context.Context, n Notification) error {
	return t.deferred.schedule(ctx, n, t.deliver)
}

// Cancel a pending notification or delete the delivered message
func (t *Telegram) Cancel(ctx context.Context, id int) error {
	t.deferred.cancel(id)

	t.mu.Lock()
	messageID, ok := t.sent[id]
	delete(t.sent, id)
	t.mu.Unlock()

	if !ok {
		return nil
	}

	if _, err := t.bot.api.Request(tgbotapi.NewDeleteMessage(t.chatID, messageID)); err != nil {
		return fmt.Errorf("failed to delete telegram message %d: %w", messageID, err)
	}

	return nil
}

// CancelAll pending notifications and delete delivered messages
func (t *Telegram) CancelAll(ctx context.Context) error {
	t.deferred.cancelAll()

	t.mu.Lock()
	ids := make([]int, 0, len(t.sent))
	for id := range t.sent {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := t.Cancel(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (t *Telegram) deliver(ctx context.Context, n Notification) error {
	if t.chatID == 0 {
		return fmt.Errorf("%w: no telegram chat linked", apperr.ErrPermission)
	}

	msg := tgbotapi.NewMessage(t.chatID, fmt.Sprintf("⏰ %s\n%s", n.Title, n.Body))
	if n.Actions {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Take", Action{ReminderID: n.ReminderID, Kind: ActionTake}.String()),
				tgbotapi.NewInlineKeyboardButtonData("Snooze", Action{ReminderID: n.ReminderID, Kind: ActionSnooze}.String()),
			),
		)
	}

	sent, err := t.bot.api.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}

	if n.Actions {
		t.bot.remember(n.ReminderID, t.chatID)
	}

	t.mu.Lock()
	t.sent[n.ID] = sent.MessageID
	t.mu.Unlock()

	return nil
}
