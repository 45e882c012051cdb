package bot

import (
	"context"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ignite88-dev/finance-bot-cloud/internal/ai"
)

// Bot is the Telegram transport: it normalizes updates, hands them to the
// orchestrator and renders replies.
type Bot struct {
	api          *tgbotapi.BotAPI
	orchestrator *Orchestrator
	transcriber  *ai.Transcriber
	logger       *zap.Logger
}

func New(token string, orchestrator *Orchestrator, transcriber *ai.Transcriber, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		api:          api,
		orchestrator: orchestrator,
		transcriber:  transcriber,
		logger:       logger,
	}, nil
}

func (b *Bot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			go b.handleCallback(update.CallbackQuery)
		case update.Message != nil:
			go b.handleMessage(update.Message)
		}
	}

	return nil
}

func (b *Bot) handleMessage(message *tgbotapi.Message) {
	ctx := context.Background()
	in := incomingFrom(message)

	if message.IsCommand() {
		reply := b.orchestrator.HandleCommand(ctx, in, message.Command(), message.CommandArguments())
		b.send(message.Chat.ID, reply)
		return
	}

	if message.Voice != nil {
		b.handleVoice(ctx, message, in)
		return
	}

	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}
	if content == "" {
		return
	}
	in.Text = content

	reply := b.orchestrator.HandleText(ctx, in)
	b.send(message.Chat.ID, reply)
}

func (b *Bot) handleVoice(ctx context.Context, message *tgbotapi.Message, in Incoming) {
	url, err := b.api.GetFileDirectURL(message.Voice.FileID)
	if err != nil {
		b.logger.Error("Failed to resolve voice file",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
		b.send(message.Chat.ID, Reply{Text: "Maaf, pesan suara tidak dapat diunduh."})
		return
	}

	resp, err := http.Get(url)
	if err != nil {
		b.logger.Error("Failed to download voice file",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
		b.send(message.Chat.ID, Reply{Text: "Maaf, pesan suara tidak dapat diunduh."})
		return
	}
	defer resp.Body.Close()

	text, err := b.transcriber.Transcribe(ctx, resp.Body, "voice.ogg")
	if err != nil || text == "" {
		b.logger.Error("Failed to transcribe voice message",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
		b.send(message.Chat.ID, Reply{Text: "Maaf, pesan suara tidak dapat dikenali. Coba ketik saja."})
		return
	}

	in.Text = text
	in.MessageType = "voice"

	reply := b.orchestrator.HandleText(ctx, in)
	reply.Text = fmt.Sprintf("🎤 \"%s\"\n\n%s", text, reply.Text)
	b.send(message.Chat.ID, reply)
}

func (b *Bot) handleCallback(query *tgbotapi.CallbackQuery) {
	ctx := context.Background()
	if query.Message == nil {
		return
	}

	in := Incoming{
		ChatID:      query.Message.Chat.ID,
		ChatTitle:   query.Message.Chat.Title,
		UserID:      query.From.ID,
		Username:    query.From.UserName,
		FirstName:   query.From.FirstName,
		MessageType: "text",
	}

	reply := b.orchestrator.HandleCallback(ctx, in, query.Data)

	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		b.logger.Warn("Failed to answer callback", zap.Error(err))
	}

	// Strip the keyboard once the entry is gone. A rejected press from a
	// non-owner must leave the owner's buttons usable.
	if reply.Consumed {
		edit := tgbotapi.NewEditMessageReplyMarkup(query.Message.Chat.ID, query.Message.MessageID,
			tgbotapi.InlineKeyboardMarkup{InlineKeyboard: make([][]tgbotapi.InlineKeyboardButton, 0)})
		if _, err := b.api.Request(edit); err != nil {
			b.logger.Warn("Failed to remove confirmation keyboard", zap.Error(err))
		}
	}

	b.send(query.Message.Chat.ID, reply)
}

func (b *Bot) send(chatID int64, reply Reply) {
	if reply.Text == "" {
		return
	}

	msg := tgbotapi.NewMessage(chatID, reply.Text)
	if reply.ConfirmToken != "" {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ Konfirmasi", callbackConfirm+reply.ConfirmToken),
				tgbotapi.NewInlineKeyboardButtonData("❌ Batal", callbackCancel+reply.ConfirmToken),
			),
		)
	}

	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func incomingFrom(message *tgbotapi.Message) Incoming {
	return Incoming{
		ChatID:      message.Chat.ID,
		ChatTitle:   message.Chat.Title,
		UserID:      message.From.ID,
		Username:    message.From.UserName,
		FirstName:   message.From.FirstName,
		MessageType: "text",
	}
}
