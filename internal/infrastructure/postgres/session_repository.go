package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linepoll/linepoll/internal/domain/game"
)

// SessionRepository implements game.Store on Postgres. Each chat session is
// one JSONB document; an index table maps open poll ids to their chat.
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) load(ctx context.Context, chatID string) (*game.ChatSession, error) {
	row := r.pool.QueryRow(ctx, `SELECT document FROM chat_sessions WHERE chat_id=$1`, chatID)
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	var session game.ChatSession
	if err := json.Unmarshal(doc, &session); err != nil {
		return nil, fmt.Errorf("decode chat %s: %w", chatID, err)
	}
	return &session, nil
}

func (r *SessionRepository) save(ctx context.Context, session *game.ChatSession) error {
	doc, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode chat %s: %w", session.ChatID, err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO chat_sessions (chat_id, document, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (chat_id) DO UPDATE SET document=$2, updated_at=$3
	`, session.ChatID, doc, time.Now().UTC())
	return err
}

func (r *SessionRepository) getOrCreate(ctx context.Context, chatID string) (*game.ChatSession, error) {
	session, err := r.load(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		session = game.NewChatSession(chatID, time.Now().UTC())
		if err := r.save(ctx, session); err != nil {
			return nil, err
		}
	}
	return session, nil
}

func (r *SessionRepository) GetSession(ctx context.Context, chatID string) (*game.ChatSession, error) {
	return r.getOrCreate(ctx, chatID)
}

func (r *SessionRepository) ClearSession(ctx context.Context, chatID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM poll_index WHERE chat_id=$1`, chatID); err != nil {
		return err
	}
	return r.save(ctx, game.NewChatSession(chatID, time.Now().UTC()))
}

func (r *SessionRepository) AppendLine(ctx context.Context, chatID, line string) error {
	session, err := r.getOrCreate(ctx, chatID)
	if err != nil {
		return err
	}
	session.History = append(session.History, line)
	session.UpdatedAt = time.Now().UTC()
	return r.save(ctx, session)
}

func (r *SessionRepository) SetActivePoll(ctx context.Context, chatID string, poll *game.PollRecord) error {
	session, err := r.getOrCreate(ctx, chatID)
	if err != nil {
		return err
	}
	if session.ActivePoll != nil {
		if _, err := r.pool.Exec(ctx, `DELETE FROM poll_index WHERE poll_id=$1`, session.ActivePoll.PollID); err != nil {
			return err
		}
	}
	session.ActivePoll = poll
	session.UpdatedAt = time.Now().UTC()
	if err := r.save(ctx, session); err != nil {
		return err
	}
	if poll != nil {
		_, err = r.pool.Exec(ctx, `
			INSERT INTO poll_index (poll_id, chat_id) VALUES ($1, $2)
			ON CONFLICT (poll_id) DO UPDATE SET chat_id=$2
		`, poll.PollID, chatID)
		return err
	}
	return nil
}

func (r *SessionRepository) AppendResult(ctx context.Context, chatID string, result *game.PollResult) error {
	if result == nil {
		return fmt.Errorf("result is required")
	}
	session, err := r.getOrCreate(ctx, chatID)
	if err != nil {
		return err
	}
	session.Results = append(session.Results, *result)
	session.UpdatedAt = time.Now().UTC()
	return r.save(ctx, session)
}

func (r *SessionRepository) RecordVote(ctx context.Context, pollID string, optionIndex int) (string, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT chat_id FROM poll_index WHERE poll_id=$1`, pollID)
	var chatID string
	if err := row.Scan(&chatID); err != nil {
		if err == pgx.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	session, err := r.load(ctx, chatID)
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
	if err := r.save(ctx, session); err != nil {
		return "", false, err
	}
	return chatID, true, nil
}

func (r *SessionRepository) ListChatIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT chat_id FROM chat_sessions ORDER BY chat_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
