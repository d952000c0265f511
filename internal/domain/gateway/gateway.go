package gateway

import "context"

// PollHandle identifies a published poll: the gateway-issued poll id voters
// reference, and the message ref needed to stop it later.
type PollHandle struct {
	PollID     string
	MessageRef string
}

// VoteEvent is one inbound ballot from the messaging transport. Delivery is
// at-least-once; a voter changing their choice arrives as another event.
type VoteEvent struct {
	PollID        string
	VoterID       string
	OptionIndexes []int
}

// CommandEvent is one inbound user command scoped to a chat.
type CommandEvent struct {
	ChatID  string
	UserID  string
	Command string
	Args    []string
}

// Gateway is the messaging transport boundary. Publish failures are fatal to
// the attempted lifecycle step only; ClosePoll, SendMessage and SendDocument
// are best-effort notifications.
type Gateway interface {
	PublishPoll(ctx context.Context, chatID, question string, options []string) (PollHandle, error)
	ClosePoll(ctx context.Context, chatID, messageRef string) error
	SendMessage(ctx context.Context, chatID, text string) error
	SendDocument(ctx context.Context, chatID string, data []byte, filename, caption string) error
}
