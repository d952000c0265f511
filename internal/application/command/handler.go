package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	appGame "github.com/linepoll/linepoll/internal/application/game"
	"github.com/linepoll/linepoll/internal/domain/game"
	"github.com/linepoll/linepoll/internal/domain/gateway"
)

const logTailLines = 100
const logTailBytes = 4000

// Handler routes inbound chat commands to the lifecycle controller. It owns
// authorization for the admin-only subset and keeps every reply user-facing:
// internal failures become a chat message, never a crash.
type Handler struct {
	game     *appGame.Service
	gw       gateway.Gateway
	adminIDs map[string]struct{}
	logFile  string
	logger   zerolog.Logger
}

// NewHandler creates a command handler. adminIDs are the user ids allowed to
// run the admin-only commands; logFile backs /logs and /alllogs.
func NewHandler(gameSvc *appGame.Service, gw gateway.Gateway, adminIDs []string, logFile string, logger zerolog.Logger) *Handler {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		id = strings.TrimSpace(id)
		if id != "" {
			admins[id] = struct{}{}
		}
	}
	return &Handler{
		game:     gameSvc,
		gw:       gw,
		adminIDs: admins,
		logFile:  logFile,
		logger:   logger.With().Str("service", "command").Logger(),
	}
}

// IsAdmin reports whether a user may run admin-only commands.
func (h *Handler) IsAdmin(userID string) bool {
	_, ok := h.adminIDs[userID]
	return ok
}

func (h *Handler) authorize(userID string) error {
	if !h.IsAdmin(userID) {
		return game.ErrUnauthorized
	}
	return nil
}

// targetChat resolves the chat a command acts on: an explicit first argument
// when present, the originating chat otherwise.
func targetChat(ev gateway.CommandEvent) (string, error) {
	if len(ev.Args) == 0 {
		return ev.ChatID, nil
	}
	if _, err := strconv.ParseInt(ev.Args[0], 10, 64); err != nil {
		return "", fmt.Errorf("chat id %q: %w", ev.Args[0], game.ErrInvalidArgs)
	}
	return ev.Args[0], nil
}

// Handle processes one command event.
func (h *Handler) Handle(ctx context.Context, ev gateway.CommandEvent) {
	h.logger.Info().
		Str("chat_id", ev.ChatID).
		Str("user_id", ev.UserID).
		Str("command", ev.Command).
		Msg("command received")

	switch ev.Command {
	case "start":
		h.start(ctx, ev)
	case "stop":
		h.stop(ctx, ev)
	case "sendnow":
		h.sendNow(ctx, ev)
	case "code":
		h.code(ctx, ev)
	case "code_completed":
		h.codeCompleted(ctx, ev)
	case "health":
		h.health(ctx, ev)
	case "logs":
		h.logs(ctx, ev)
	case "alllogs":
		h.allLogs(ctx, ev)
	default:
		// unknown commands are ignored, the transport may route them elsewhere
	}
}

func (h *Handler) reply(ctx context.Context, chatID, text string) {
	if err := h.gw.SendMessage(ctx, chatID, text); err != nil {
		h.logger.Warn().Err(err).Str("chat_id", chatID).Msg("failed to send reply")
	}
}

// requireAdmin sends a refusal and returns false for non-admin users.
func (h *Handler) requireAdmin(ctx context.Context, ev gateway.CommandEvent) bool {
	if err := h.authorize(ev.UserID); errors.Is(err, game.ErrUnauthorized) {
		h.reply(ctx, ev.ChatID, "This command is only available to administrators.")
		return false
	}
	return true
}

// start restarts the game for a target chat (admins), or greets regular
// users with the chat status.
func (h *Handler) start(ctx context.Context, ev gateway.CommandEvent) {
	if !h.IsAdmin(ev.UserID) {
		h.welcome(ctx, ev)
		return
	}

	target, err := targetChat(ev)
	if errors.Is(err, game.ErrInvalidArgs) {
		h.reply(ctx, ev.ChatID, "Invalid chat id format. Usage: /start [chat_id]")
		return
	}

	completed, err := h.game.Restart(ctx, target)
	if completed != "" {
		h.reply(ctx, ev.ChatID, fmt.Sprintf("Completed code for chat %s:\n\n```python\n%s\n```", target, completed))
		filename := fmt.Sprintf("generated_code_%s.py", target)
		if derr := h.gw.SendDocument(ctx, ev.ChatID, []byte(completed), filename, fmt.Sprintf("Completed code for chat %s", target)); derr != nil {
			h.logger.Warn().Err(derr).Str("chat_id", ev.ChatID).Msg("failed to send completed code document")
		}
	}
	if err != nil {
		h.logger.Error().Err(err).Str("chat_id", target).Msg("restart failed")
		h.reply(ctx, ev.ChatID, fmt.Sprintf("History of chat %s cleared, but the first poll could not be opened. Try /sendnow.", target))
		return
	}
	h.reply(ctx, ev.ChatID, fmt.Sprintf("History of chat %s cleared. First poll is on its way.", target))
}

func (h *Handler) welcome(ctx context.Context, ev gateway.CommandEvent) {
	st, err := h.game.Status(ctx, ev.ChatID)
	if err != nil {
		h.logger.Error().Err(err).Str("chat_id", ev.ChatID).Msg("status lookup failed")
		h.reply(ctx, ev.ChatID, "Welcome to the collaborative code generation game!")
		return
	}
	active := "no"
	if st.PollActive {
		active = "yes"
	}
	h.reply(ctx, ev.ChatID, fmt.Sprintf(
		"Welcome to the collaborative code generation game!\n\n"+
			"Chat id (ask an admin to start a session): %s\n"+
			"Polls completed: %d\n"+
			"Active poll: %s\n\n"+
			"You can vote in polls and view the current code with /code.\n"+
			"Admin commands: /start, /stop, /sendnow, /code_completed",
		ev.ChatID, st.PollsCompleted, active))
}

func (h *Handler) stop(ctx context.Context, ev gateway.CommandEvent) {
	if !h.requireAdmin(ctx, ev) {
		return
	}
	err := h.game.Stop(ctx, ev.ChatID)
	switch {
	case err == nil:
		h.reply(ctx, ev.ChatID, "Poll closed. The game is paused; use /sendnow or /start to continue.")
	case errors.Is(err, game.ErrStalePoll):
		h.reply(ctx, ev.ChatID, "No active poll to stop.")
	default:
		h.logger.Error().Err(err).Str("chat_id", ev.ChatID).Msg("stop failed")
		h.reply(ctx, ev.ChatID, "Could not stop the poll, see logs.")
	}
}

func (h *Handler) sendNow(ctx context.Context, ev gateway.CommandEvent) {
	if !h.requireAdmin(ctx, ev) {
		return
	}
	err := h.game.ForceSend(ctx, ev.ChatID)
	switch {
	case err == nil:
	case errors.Is(err, game.ErrPollActive):
		h.reply(ctx, ev.ChatID, "A poll is already active. Wait for it to finish.")
	default:
		h.logger.Error().Err(err).Str("chat_id", ev.ChatID).Msg("sendnow failed")
		h.reply(ctx, ev.ChatID, "Could not open a poll, see logs.")
	}
}

func (h *Handler) code(ctx context.Context, ev gateway.CommandEvent) {
	history, err := h.game.Transcript(ctx, ev.ChatID)
	if err != nil {
		h.logger.Error().Err(err).Str("chat_id", ev.ChatID).Msg("transcript lookup failed")
		h.reply(ctx, ev.ChatID, "Could not load the code, see logs.")
		return
	}
	if len(history) == 0 {
		h.reply(ctx, ev.ChatID, "The code is empty so far. Ask an admin to run /start.")
		return
	}
	h.reply(ctx, ev.ChatID, fmt.Sprintf("Current code:\n\n```python\n%s\n```", appGame.FormatTranscript(history)))
}

func (h *Handler) codeCompleted(ctx context.Context, ev gateway.CommandEvent) {
	if !h.requireAdmin(ctx, ev) {
		return
	}
	completed, err := h.game.CompletedTranscript(ctx, ev.ChatID)
	if err != nil {
		h.logger.Error().Err(err).Str("chat_id", ev.ChatID).Msg("completion failed")
		h.reply(ctx, ev.ChatID, "Could not complete the code, see logs.")
		return
	}
	if completed == "" {
		h.reply(ctx, ev.ChatID, "The code is empty. Nothing to complete.")
		return
	}
	h.reply(ctx, ev.ChatID, fmt.Sprintf("Completed code:\n\n```python\n%s\n```", completed))
	if err := h.gw.SendDocument(ctx, ev.ChatID, []byte(completed), "generated_code.py", "Completed code"); err != nil {
		h.logger.Warn().Err(err).Str("chat_id", ev.ChatID).Msg("failed to send completed code document")
	}
}

func (h *Handler) health(ctx context.Context, ev gateway.CommandEvent) {
	if !h.requireAdmin(ctx, ev) {
		return
	}
	st, err := h.game.Status(ctx, ev.ChatID)
	if err != nil {
		h.logger.Error().Err(err).Str("chat_id", ev.ChatID).Msg("status lookup failed")
		h.reply(ctx, ev.ChatID, "Could not read bot status, see logs.")
		return
	}
	hours := st.UptimeSeconds / 3600
	minutes := (st.UptimeSeconds % 3600) / 60
	seconds := st.UptimeSeconds % 60
	active := "no"
	if st.PollActive {
		active = "yes"
	}
	text := fmt.Sprintf(
		"Bot status\n\n"+
			"Uptime: %dh %dm %ds\n"+
			"Active poll: %s\n"+
			"Polls completed: %d\n"+
			"Chats in store: %d\n",
		hours, minutes, seconds, active, st.PollsCompleted, st.ChatsInStore)
	if st.PollActive && st.SecondsToClose > 0 {
		text += fmt.Sprintf("Poll closes in: %ds\n", st.SecondsToClose)
	}
	h.reply(ctx, ev.ChatID, text)
}

func (h *Handler) logs(ctx context.Context, ev gateway.CommandEvent) {
	if !h.requireAdmin(ctx, ev) {
		return
	}
	data, err := os.ReadFile(h.logFile)
	if err != nil {
		h.reply(ctx, ev.ChatID, "Log file not found.")
		return
	}
	h.reply(ctx, ev.ChatID, fmt.Sprintf("```\n%s\n```", tailLines(string(data), logTailLines, logTailBytes)))
}

func (h *Handler) allLogs(ctx context.Context, ev gateway.CommandEvent) {
	if !h.requireAdmin(ctx, ev) {
		return
	}
	data, err := os.ReadFile(h.logFile)
	if err != nil {
		h.reply(ctx, ev.ChatID, "Log file not found.")
		return
	}
	if err := h.gw.SendDocument(ctx, ev.ChatID, data, "bot.log", "Full bot log"); err != nil {
		h.logger.Warn().Err(err).Str("chat_id", ev.ChatID).Msg("failed to send log file")
	}
}

// tailLines keeps the last maxLines lines, trimmed to maxBytes.
func tailLines(text string, maxLines, maxBytes int) string {
	lines := strings.Split(text, "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	out := strings.Join(lines, "\n")
	if len(out) > maxBytes {
		out = out[len(out)-maxBytes:]
	}
	return out
}
