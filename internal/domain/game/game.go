package game

import (
	"time"

	"github.com/google/uuid"
)

// NumOptions is the fixed number of candidate lines offered per poll.
const NumOptions = 4

// MaxLineLength bounds a single candidate line of code.
const MaxLineLength = 95

// CloseReason describes what triggered a poll close.
type CloseReason string

const (
	CloseReasonTimeout CloseReason = "TIMEOUT"
	CloseReasonManual  CloseReason = "MANUAL"
	CloseReasonStop    CloseReason = "STOP"
)

// ChatSession is the per-chat game state: the committed line history,
// the archive of finished polls and the at-most-one poll in flight.
type ChatSession struct {
	ChatID     string       `json:"chatId"`
	History    []string     `json:"history"`
	ActivePoll *PollRecord  `json:"activePoll,omitempty"`
	Results    []PollResult `json:"results"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// NewChatSession creates an empty session for a chat.
func NewChatSession(chatID string, now time.Time) *ChatSession {
	return &ChatSession{
		ChatID:    chatID,
		History:   []string{},
		Results:   []PollResult{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// PollRecord is the single in-flight poll of a chat. Options are immutable
// once set; Votes carries a count for every option index.
type PollRecord struct {
	PollID        string      `json:"pollId"`
	MessageRef    string      `json:"messageRef"`
	Options       []string    `json:"options"`
	Votes         map[int]int `json:"votes"`
	CloseDeadline time.Time   `json:"closeDeadline"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// NewPollRecord builds a fresh record with zeroed vote counts for
// every option index.
func NewPollRecord(pollID, messageRef string, options []string, closeDeadline, createdAt time.Time) *PollRecord {
	votes := make(map[int]int, NumOptions)
	for i := 0; i < NumOptions; i++ {
		votes[i] = 0
	}
	return &PollRecord{
		PollID:        pollID,
		MessageRef:    messageRef,
		Options:       options,
		Votes:         votes,
		CloseDeadline: closeDeadline,
		CreatedAt:     createdAt,
	}
}

// Winner returns the option index with the highest vote count and its line.
// Ties break toward the lowest index.
func (p *PollRecord) Winner() (int, string) {
	winner := 0
	best := p.Votes[0]
	for i := 1; i < len(p.Options); i++ {
		if p.Votes[i] > best {
			winner = i
			best = p.Votes[i]
		}
	}
	return winner, p.Options[winner]
}

// PollResult is the archived outcome of a closed poll.
type PollResult struct {
	ResultID    uuid.UUID   `json:"resultId"`
	PollID      string      `json:"pollId"`
	Options     []string    `json:"options"`
	Votes       map[int]int `json:"votes"`
	WinnerIndex int         `json:"winnerIndex"`
	WinnerLine  string      `json:"winnerLine"`
	ClosedAt    time.Time   `json:"closedAt"`
}
