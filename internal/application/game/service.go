package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/linepoll/linepoll/internal/application/scheduler"
	"github.com/linepoll/linepoll/internal/domain/game"
	"github.com/linepoll/linepoll/internal/domain/gateway"
)

// Generator proposes candidate lines and completes transcripts. It never
// fails; degraded backends surface as deterministic fallback output.
type Generator interface {
	ProposeNextLines(ctx context.Context, history []string) []string
	CompleteTranscript(ctx context.Context, history []string) string
}

// Service is the poll lifecycle controller: it opens polls, ingests votes,
// closes polls on timeout or manual triggers, commits winners to the line
// history and chains the next poll. All lifecycle transitions for one chat
// are linearized behind a per-chat lock; disjoint chats run concurrently.
type Service struct {
	store game.Store
	gw    gateway.Gateway
	gen   Generator
	sched scheduler.Scheduler

	pollTimeout time.Duration
	settleDelay time.Duration
	startedAt   time.Time
	logger      zerolog.Logger

	mu      sync.Mutex
	chatMu  map[string]*sync.Mutex
	pending map[string]scheduler.CancelFunc
}

// NewService creates the lifecycle controller.
func NewService(
	store game.Store,
	gw gateway.Gateway,
	gen Generator,
	sched scheduler.Scheduler,
	pollTimeout time.Duration,
	settleDelay time.Duration,
	logger zerolog.Logger,
) *Service {
	return &Service{
		store:       store,
		gw:          gw,
		gen:         gen,
		sched:       sched,
		pollTimeout: pollTimeout,
		settleDelay: settleDelay,
		startedAt:   time.Now().UTC(),
		logger:      logger.With().Str("service", "game").Logger(),
		chatMu:      make(map[string]*sync.Mutex),
		pending:     make(map[string]scheduler.CancelFunc),
	}
}

func (s *Service) chatLock(chatID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.chatMu[chatID]
	if !ok {
		m = &sync.Mutex{}
		s.chatMu[chatID] = m
	}
	return m
}

// arm replaces the chat's pending one-shot (close timer or settle delay),
// cancelling any previous one.
func (s *Service) arm(chatID string, deadline time.Time, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.pending[chatID]; ok {
		cancel()
	}
	s.pending[chatID] = s.sched.ScheduleOnce(deadline, fn)
}

func (s *Service) cancelPending(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.pending[chatID]; ok {
		cancel()
		delete(s.pending, chatID)
	}
}

// OpenPoll transitions a chat from IDLE to OPEN: proposes four candidate
// lines, publishes the poll, persists the record and schedules the timeout
// close. Returns game.ErrPollActive when a poll is already in flight.
func (s *Service) OpenPoll(ctx context.Context, chatID string) error {
	lock := s.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.store.GetSession(ctx, chatID)
	if err != nil {
		return err
	}
	if session.ActivePoll != nil {
		return game.ErrPollActive
	}

	options := s.gen.ProposeNextLines(ctx, session.History)
	question := fmt.Sprintf("Choose the next line of code (line #%d):", len(session.History)+1)

	handle, err := s.gw.PublishPoll(ctx, chatID, question, options)
	if err != nil {
		s.logger.Error().Err(err).Str("chat_id", chatID).Msg("failed to publish poll")
		return fmt.Errorf("publish poll: %w", err)
	}

	now := time.Now().UTC()
	record := game.NewPollRecord(handle.PollID, handle.MessageRef, options, now.Add(s.pollTimeout), now)
	if err := s.store.SetActivePoll(ctx, chatID, record); err != nil {
		return err
	}

	pollID := record.PollID
	s.arm(chatID, record.CloseDeadline, func() {
		if err := s.ClosePoll(context.Background(), chatID, pollID, game.CloseReasonTimeout); err != nil && !errors.Is(err, game.ErrStalePoll) {
			s.logger.Warn().Err(err).Str("chat_id", chatID).Str("poll_id", pollID).Msg("timeout close failed")
		}
	})

	s.logger.Info().
		Str("chat_id", chatID).
		Str("poll_id", record.PollID).
		Strs("options", options).
		Time("close_deadline", record.CloseDeadline).
		Msg("poll opened")
	return nil
}

// IngestVote applies one inbound ballot. Increments are at-least-once and
// commutative; votes for unknown or already-closed polls are dropped
// silently as the expected late-delivery race.
func (s *Service) IngestVote(ctx context.Context, ev gateway.VoteEvent) {
	for _, idx := range ev.OptionIndexes {
		chatID, ok, err := s.store.RecordVote(ctx, ev.PollID, idx)
		if err != nil {
			s.logger.Error().Err(err).Str("poll_id", ev.PollID).Msg("failed to record vote")
			continue
		}
		if !ok {
			s.logger.Debug().Str("poll_id", ev.PollID).Int("option", idx).Msg("dropped stale vote")
			continue
		}
		s.logger.Debug().
			Str("chat_id", chatID).
			Str("poll_id", ev.PollID).
			Str("voter_id", ev.VoterID).
			Int("option", idx).
			Msg("vote recorded")
	}
}

// ClosePoll transitions OPEN -> CLOSING -> IDLE. Idempotent: when no active
// poll with the given id exists it returns game.ErrStalePoll and performs no
// side effects. Unless the close was a stop request, the next poll is
// scheduled after the settle delay.
func (s *Service) ClosePoll(ctx context.Context, chatID, pollID string, reason game.CloseReason) error {
	lock := s.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.store.GetSession(ctx, chatID)
	if err != nil {
		return err
	}
	poll := session.ActivePoll
	if poll == nil || poll.PollID != pollID {
		return game.ErrStalePoll
	}

	s.cancelPending(chatID)

	// Vote collection is logically frozen once we are here; a failed stop
	// call downstream does not block winner selection.
	if err := s.gw.ClosePoll(ctx, chatID, poll.MessageRef); err != nil {
		s.logger.Warn().Err(err).Str("chat_id", chatID).Str("poll_id", pollID).Msg("failed to stop poll at gateway")
	}

	winnerIndex, winnerLine := poll.Winner()
	now := time.Now().UTC()
	result := &game.PollResult{
		ResultID:    uuid.New(),
		PollID:      poll.PollID,
		Options:     poll.Options,
		Votes:       poll.Votes,
		WinnerIndex: winnerIndex,
		WinnerLine:  winnerLine,
		ClosedAt:    now,
	}

	if err := s.store.AppendLine(ctx, chatID, winnerLine); err != nil {
		return err
	}
	if err := s.store.AppendResult(ctx, chatID, result); err != nil {
		return err
	}
	if err := s.store.SetActivePoll(ctx, chatID, nil); err != nil {
		return err
	}

	announcement := fmt.Sprintf("Poll finished!\n\nWinning line:\n```python\n%s\n```\n\nVotes: %d", winnerLine, poll.Votes[winnerIndex])
	if err := s.gw.SendMessage(ctx, chatID, announcement); err != nil {
		s.logger.Warn().Err(err).Str("chat_id", chatID).Msg("failed to announce result")
	}

	s.logger.Info().
		Str("chat_id", chatID).
		Str("poll_id", pollID).
		Str("reason", string(reason)).
		Int("winner_index", winnerIndex).
		Str("winner_line", winnerLine).
		Msg("poll closed")

	if reason != game.CloseReasonStop {
		s.arm(chatID, now.Add(s.settleDelay), func() {
			s.autoChain(chatID)
		})
	}
	return nil
}

// autoChain re-opens a poll after the settle delay, but only when the chat
// is still idle; a raced /sendnow or restart wins.
func (s *Service) autoChain(chatID string) {
	err := s.OpenPoll(context.Background(), chatID)
	switch {
	case err == nil:
	case errors.Is(err, game.ErrPollActive):
		s.logger.Debug().Str("chat_id", chatID).Msg("chat no longer idle, skipping auto-chain")
	default:
		s.logger.Warn().Err(err).Str("chat_id", chatID).Msg("auto-chain open failed")
	}
}

// ForceSend opens the next poll immediately. Only legal from IDLE; a chat
// with a poll in flight gets game.ErrPollActive back as a visible refusal
// and keeps its timeout close armed. A pending settle delay is superseded
// by the close timer armed on open.
func (s *Service) ForceSend(ctx context.Context, chatID string) error {
	return s.OpenPoll(ctx, chatID)
}

// Stop closes any open poll without chaining a new one, and cancels a
// pending auto-chain. Returns game.ErrStalePoll when nothing was running.
func (s *Service) Stop(ctx context.Context, chatID string) error {
	session, err := s.store.GetSession(ctx, chatID)
	if err != nil {
		return err
	}
	if session.ActivePoll == nil {
		s.cancelPending(chatID)
		return game.ErrStalePoll
	}
	return s.ClosePoll(ctx, chatID, session.ActivePoll.PollID, game.CloseReasonStop)
}

// Restart force-clears a chat to IDLE with empty history and opens the first
// poll. When the chat had committed lines, a best-effort completed
// transcript of the pre-clear history is returned for the caller to deliver.
func (s *Service) Restart(ctx context.Context, chatID string) (string, error) {
	s.cancelPending(chatID)

	lock := s.chatLock(chatID)
	lock.Lock()
	session, err := s.store.GetSession(ctx, chatID)
	if err != nil {
		lock.Unlock()
		return "", err
	}
	completed := ""
	if len(session.History) > 0 {
		completed = s.gen.CompleteTranscript(ctx, session.History)
	}
	if err := s.store.ClearSession(ctx, chatID); err != nil {
		lock.Unlock()
		return "", err
	}
	lock.Unlock()

	s.logger.Info().Str("chat_id", chatID).Msg("chat history cleared")
	if err := s.OpenPoll(ctx, chatID); err != nil {
		return completed, err
	}
	return completed, nil
}

// Status is a point-in-time snapshot of one chat plus process health.
type Status struct {
	ChatID          string        `json:"chatId"`
	Uptime          time.Duration `json:"-"`
	UptimeSeconds   int64         `json:"uptimeSeconds"`
	HistoryLength   int           `json:"historyLength"`
	PollsCompleted  int           `json:"pollsCompleted"`
	PollActive      bool          `json:"pollActive"`
	SecondsToClose  int64         `json:"secondsToClose,omitempty"`
	ChatsInStore    int           `json:"chatsInStore"`
}

// Status reports chat and process health for the /health command and the
// ops API.
func (s *Service) Status(ctx context.Context, chatID string) (*Status, error) {
	session, err := s.store.GetSession(ctx, chatID)
	if err != nil {
		return nil, err
	}
	chats, err := s.store.ListChatIDs(ctx)
	if err != nil {
		return nil, err
	}

	uptime := time.Since(s.startedAt)
	st := &Status{
		ChatID:         chatID,
		Uptime:         uptime,
		UptimeSeconds:  int64(uptime.Seconds()),
		HistoryLength:  len(session.History),
		PollsCompleted: len(session.Results),
		PollActive:     session.ActivePoll != nil,
		ChatsInStore:   len(chats),
	}
	if session.ActivePoll != nil {
		left := time.Until(session.ActivePoll.CloseDeadline)
		if left > 0 {
			st.SecondsToClose = int64(left.Seconds())
		}
	}
	return st, nil
}

// Transcript returns the committed line history of a chat.
func (s *Service) Transcript(ctx context.Context, chatID string) ([]string, error) {
	session, err := s.store.GetSession(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return session.History, nil
}

// CompletedTranscript returns a best-effort syntactically closed rendition
// of the chat's history.
func (s *Service) CompletedTranscript(ctx context.Context, chatID string) (string, error) {
	session, err := s.store.GetSession(ctx, chatID)
	if err != nil {
		return "", err
	}
	if len(session.History) == 0 {
		return "", nil
	}
	return s.gen.CompleteTranscript(ctx, session.History), nil
}

// ListChats returns all known chat ids.
func (s *Service) ListChats(ctx context.Context) ([]string, error) {
	return s.store.ListChatIDs(ctx)
}

// FormatTranscript renders history lines as one text block.
func FormatTranscript(history []string) string {
	return strings.Join(history, "\n")
}
