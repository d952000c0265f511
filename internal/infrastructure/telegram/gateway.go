package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/linepoll/linepoll/internal/domain/gateway"
)

// Gateway implements gateway.Gateway on the Telegram Bot API: native
// non-anonymous single-answer polls, markdown messages and document uploads.
type Gateway struct {
	bot    *tgbotapi.BotAPI
	logger zerolog.Logger
}

// New authenticates against the Bot API.
func New(token string, logger zerolog.Logger) (*Gateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return &Gateway{
		bot:    bot,
		logger: logger.With().Str("gateway", "telegram").Logger(),
	}, nil
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}
	return id, nil
}

// PublishPoll sends a poll and returns its poll id and the message id
// needed to stop it later.
func (g *Gateway) PublishPoll(ctx context.Context, chatID, question string, options []string) (gateway.PollHandle, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return gateway.PollHandle{}, err
	}

	poll := tgbotapi.NewPoll(id, question, options...)
	poll.IsAnonymous = false
	poll.AllowsMultipleAnswers = false

	msg, err := g.bot.Send(poll)
	if err != nil {
		return gateway.PollHandle{}, fmt.Errorf("send poll: %w", err)
	}
	if msg.Poll == nil {
		return gateway.PollHandle{}, fmt.Errorf("send poll: response carried no poll")
	}
	return gateway.PollHandle{
		PollID:     msg.Poll.ID,
		MessageRef: strconv.Itoa(msg.MessageID),
	}, nil
}

// ClosePoll stops vote collection on a published poll.
func (g *Gateway) ClosePoll(ctx context.Context, chatID, messageRef string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	messageID, err := strconv.Atoi(messageRef)
	if err != nil {
		return fmt.Errorf("invalid message ref %q: %w", messageRef, err)
	}
	if _, err := g.bot.StopPoll(tgbotapi.NewStopPoll(id, messageID)); err != nil {
		return fmt.Errorf("stop poll: %w", err)
	}
	return nil
}

// SendMessage delivers a markdown-formatted text message.
func (g *Gateway) SendMessage(ctx context.Context, chatID, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(id, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := g.bot.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendDocument uploads raw bytes as a named file.
func (g *Gateway) SendDocument(ctx context.Context, chatID string, data []byte, filename, caption string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	doc := tgbotapi.NewDocument(id, tgbotapi.FileBytes{Name: filename, Bytes: data})
	doc.Caption = caption
	if _, err := g.bot.Send(doc); err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	return nil
}

// VoteHandler consumes inbound ballots.
type VoteHandler func(ctx context.Context, ev gateway.VoteEvent)

// CommandHandler consumes inbound bot commands.
type CommandHandler func(ctx context.Context, ev gateway.CommandEvent)

// Run long-polls Telegram for updates until the context is cancelled,
// translating poll answers into VoteEvents and bot commands into
// CommandEvents.
func (g *Gateway) Run(ctx context.Context, onVote VoteHandler, onCommand CommandHandler) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	cfg.AllowedUpdates = []string{"message", "poll_answer"}

	updates := g.bot.GetUpdatesChan(cfg)
	g.logger.Info().Str("username", g.bot.Self.UserName).Msg("telegram update loop started")

	for {
		select {
		case <-ctx.Done():
			g.bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			g.dispatch(ctx, update, onVote, onCommand)
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, update tgbotapi.Update, onVote VoteHandler, onCommand CommandHandler) {
	if update.PollAnswer != nil {
		onVote(ctx, gateway.VoteEvent{
			PollID:        update.PollAnswer.PollID,
			VoterID:       strconv.FormatInt(update.PollAnswer.User.ID, 10),
			OptionIndexes: update.PollAnswer.OptionIDs,
		})
		return
	}
	if update.Message != nil && update.Message.From != nil && update.Message.IsCommand() {
		args := strings.Fields(update.Message.CommandArguments())
		onCommand(ctx, gateway.CommandEvent{
			ChatID:  strconv.FormatInt(update.Message.Chat.ID, 10),
			UserID:  strconv.FormatInt(update.Message.From.ID, 10),
			Command: update.Message.Command(),
			Args:    args,
		})
	}
}
