package game

import "context"

// Store defines durable persistence for chat sessions. Every mutating call
// flushes to the backing medium before returning; flush failures degrade
// durability but never lose the in-memory mutation. The lifecycle controller
// is the sole writer.
type Store interface {
	// GetSession returns the session for a chat, lazily creating an empty
	// one. Creation is idempotent.
	GetSession(ctx context.Context, chatID string) (*ChatSession, error)

	// ClearSession resets a chat to empty history with no active poll.
	ClearSession(ctx context.Context, chatID string) error

	// AppendLine atomically appends a committed line to the chat history.
	AppendLine(ctx context.Context, chatID, line string) error

	// SetActivePoll atomically replaces the in-flight poll; nil clears it.
	SetActivePoll(ctx context.Context, chatID string, poll *PollRecord) error

	// AppendResult archives a finished poll outcome.
	AppendResult(ctx context.Context, chatID string, result *PollResult) error

	// RecordVote increments the vote count for one option of the poll with
	// the given id, wherever it lives. Returns the owning chat id and true
	// when a count was incremented; unknown poll ids, already-closed polls
	// and out-of-range option indices are silent no-ops.
	RecordVote(ctx context.Context, pollID string, optionIndex int) (string, bool, error)

	// ListChatIDs returns the ids of all known chats.
	ListChatIDs(ctx context.Context) ([]string, error)
}
