package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/linepoll/linepoll/internal/domain/game"
)

const (
	chatKeyPrefix = "linepoll:chat:"
	pollIndexKey  = "linepoll:pollindex"
)

// Store implements game.Store on Redis: one JSON document per chat plus a
// hash mapping open poll ids to their owning chat. The controller is the
// sole writer, so read-modify-write under a process-local mutex is enough.
type Store struct {
	rdb    *redis.Client
	logger zerolog.Logger
	mu     sync.Mutex
}

// New wraps an existing Redis client.
func New(rdb *redis.Client, logger zerolog.Logger) *Store {
	return &Store{
		rdb:    rdb,
		logger: logger.With().Str("store", "redis").Logger(),
	}
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func chatKey(chatID string) string {
	return chatKeyPrefix + chatID
}

func (s *Store) read(ctx context.Context, chatID string) (*game.ChatSession, error) {
	data, err := s.rdb.Get(ctx, chatKey(chatID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read chat %s: %w", chatID, err)
	}
	var session game.ChatSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode chat %s: %w", chatID, err)
	}
	return &session, nil
}

func (s *Store) write(ctx context.Context, session *game.ChatSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode chat %s: %w", session.ChatID, err)
	}
	if err := s.rdb.Set(ctx, chatKey(session.ChatID), data, 0).Err(); err != nil {
		return fmt.Errorf("write chat %s: %w", session.ChatID, err)
	}
	return nil
}

func (s *Store) getOrCreate(ctx context.Context, chatID string) (*game.ChatSession, error) {
	session, err := s.read(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		session = game.NewChatSession(chatID, time.Now().UTC())
		if err := s.write(ctx, session); err != nil {
			return nil, err
		}
	}
	return session, nil
}

func (s *Store) GetSession(ctx context.Context, chatID string) (*game.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreate(ctx, chatID)
}

func (s *Store) ClearSession(ctx context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, err := s.read(ctx, chatID)
	if err != nil {
		return err
	}
	if prev != nil && prev.ActivePoll != nil {
		if err := s.rdb.HDel(ctx, pollIndexKey, prev.ActivePoll.PollID).Err(); err != nil {
			s.logger.Warn().Err(err).Str("chat_id", chatID).Msg("failed to drop poll index entry")
		}
	}
	return s.write(ctx, game.NewChatSession(chatID, time.Now().UTC()))
}

func (s *Store) AppendLine(ctx context.Context, chatID, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.getOrCreate(ctx, chatID)
	if err != nil {
		return err
	}
	session.History = append(session.History, line)
	session.UpdatedAt = time.Now().UTC()
	return s.write(ctx, session)
}

func (s *Store) SetActivePoll(ctx context.Context, chatID string, poll *game.PollRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.getOrCreate(ctx, chatID)
	if err != nil {
		return err
	}
	if session.ActivePoll != nil {
		if err := s.rdb.HDel(ctx, pollIndexKey, session.ActivePoll.PollID).Err(); err != nil {
			s.logger.Warn().Err(err).Str("chat_id", chatID).Msg("failed to drop poll index entry")
		}
	}
	session.ActivePoll = poll
	session.UpdatedAt = time.Now().UTC()
	if err := s.write(ctx, session); err != nil {
		return err
	}
	if poll != nil {
		if err := s.rdb.HSet(ctx, pollIndexKey, poll.PollID, chatID).Err(); err != nil {
			return fmt.Errorf("index poll %s: %w", poll.PollID, err)
		}
	}
	return nil
}

func (s *Store) AppendResult(ctx context.Context, chatID string, result *game.PollResult) error {
	if result == nil {
		return fmt.Errorf("result is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.getOrCreate(ctx, chatID)
	if err != nil {
		return err
	}
	session.Results = append(session.Results, *result)
	session.UpdatedAt = time.Now().UTC()
	return s.write(ctx, session)
}

func (s *Store) RecordVote(ctx context.Context, pollID string, optionIndex int) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chatID, err := s.rdb.HGet(ctx, pollIndexKey, pollID).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup poll %s: %w", pollID, err)
	}
	session, err := s.read(ctx, chatID)
	if err != nil {
		return "", false, err
	}
	if session == nil || session.ActivePoll == nil || session.ActivePoll.PollID != pollID {
		return "", false, nil
	}
	if _, valid := session.ActivePoll.Votes[optionIndex]; !valid {
		return "", false, nil
	}
	session.ActivePoll.Votes[optionIndex]++
	session.UpdatedAt = time.Now().UTC()
	if err := s.write(ctx, session); err != nil {
		return "", false, err
	}
	return chatID, true, nil
}

func (s *Store) ListChatIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		cursor uint64
		ids    []string
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, chatKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan chats: %w", err)
		}
		for _, key := range keys {
			ids = append(ids, strings.TrimPrefix(key, chatKeyPrefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(ids)
	return ids, nil
}
