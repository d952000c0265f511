package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/linepoll/linepoll/internal/domain/game"
)

// document is the on-disk layout: one JSON object holding every chat.
type document struct {
	Chats map[string]*game.ChatSession `json:"chats"`
}

// Store implements game.Store on a single JSON file. State lives in memory
// and every mutation is flushed to disk before returning; flush failures are
// logged and degrade durability without losing the in-memory mutation.
type Store struct {
	path   string
	logger zerolog.Logger

	mu        sync.Mutex
	chats     map[string]*game.ChatSession
	pollIndex map[string]string // pollID -> chatID
}

// New loads the store from path, starting empty when the file is absent or
// unreadable.
func New(path string, logger zerolog.Logger) *Store {
	s := &Store{
		path:      path,
		logger:    logger.With().Str("store", "file").Logger(),
		chats:     make(map[string]*game.ChatSession),
		pollIndex: make(map[string]string),
	}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error().Err(err).Str("path", s.path).Msg("failed to read storage file")
		}
		return
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("failed to parse storage file")
		return
	}
	if doc.Chats != nil {
		s.chats = doc.Chats
	}
	for chatID, session := range s.chats {
		if session.ActivePoll != nil {
			s.pollIndex[session.ActivePoll.PollID] = chatID
		}
	}
}

// flush writes the whole document through a temp file and rename so a crash
// mid-write leaves the previous file intact.
func (s *Store) flush() {
	doc := document{Chats: s.chats}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode storage document")
		return
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil && filepath.Dir(s.path) != "." {
		s.logger.Error().Err(err).Msg("failed to create storage directory")
		return
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.logger.Error().Err(err).Str("path", tmp).Msg("failed to write storage file")
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("failed to replace storage file")
	}
}

func (s *Store) session(chatID string) *game.ChatSession {
	session, ok := s.chats[chatID]
	if !ok {
		session = game.NewChatSession(chatID, time.Now().UTC())
		s.chats[chatID] = session
		s.flush()
	}
	return session
}

// GetSession returns a deep copy so callers cannot mutate shared state.
func (s *Store) GetSession(ctx context.Context, chatID string) (*game.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySession(s.session(chatID)), nil
}

func (s *Store) ClearSession(ctx context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.chats[chatID]; ok && prev.ActivePoll != nil {
		delete(s.pollIndex, prev.ActivePoll.PollID)
	}
	s.chats[chatID] = game.NewChatSession(chatID, time.Now().UTC())
	s.flush()
	return nil
}

func (s *Store) AppendLine(ctx context.Context, chatID, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := s.session(chatID)
	session.History = append(session.History, line)
	session.UpdatedAt = time.Now().UTC()
	s.flush()
	return nil
}

func (s *Store) SetActivePoll(ctx context.Context, chatID string, poll *game.PollRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := s.session(chatID)
	if session.ActivePoll != nil {
		delete(s.pollIndex, session.ActivePoll.PollID)
	}
	if poll != nil {
		session.ActivePoll = copyPoll(poll)
		s.pollIndex[poll.PollID] = chatID
	} else {
		session.ActivePoll = nil
	}
	session.UpdatedAt = time.Now().UTC()
	s.flush()
	return nil
}

func (s *Store) AppendResult(ctx context.Context, chatID string, result *game.PollResult) error {
	if result == nil {
		return fmt.Errorf("result is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session := s.session(chatID)
	session.Results = append(session.Results, *result)
	session.UpdatedAt = time.Now().UTC()
	s.flush()
	return nil
}

func (s *Store) RecordVote(ctx context.Context, pollID string, optionIndex int) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chatID, ok := s.pollIndex[pollID]
	if !ok {
		return "", false, nil
	}
	session := s.chats[chatID]
	if session == nil || session.ActivePoll == nil || session.ActivePoll.PollID != pollID {
		return "", false, nil
	}
	if _, valid := session.ActivePoll.Votes[optionIndex]; !valid {
		return "", false, nil
	}
	session.ActivePoll.Votes[optionIndex]++
	session.UpdatedAt = time.Now().UTC()
	s.flush()
	return chatID, true, nil
}

func (s *Store) ListChatIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.chats))
	for id := range s.chats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func copySession(in *game.ChatSession) *game.ChatSession {
	out := *in
	out.History = append([]string(nil), in.History...)
	out.Results = append([]game.PollResult(nil), in.Results...)
	if in.ActivePoll != nil {
		out.ActivePoll = copyPoll(in.ActivePoll)
	}
	return &out
}

func copyPoll(in *game.PollRecord) *game.PollRecord {
	out := *in
	out.Options = append([]string(nil), in.Options...)
	out.Votes = make(map[int]int, len(in.Votes))
	for k, v := range in.Votes {
		out.Votes[k] = v
	}
	return &out
}
