package game

import "errors"

var (
	// ErrPollActive rejects operations that require an idle chat.
	ErrPollActive = errors.New("a poll is already active for this chat")

	// ErrStalePoll marks a close or vote for a poll that is no longer
	// active. Expected race, callers drop it silently.
	ErrStalePoll = errors.New("poll is no longer active")

	// ErrUnauthorized rejects admin-only commands for regular users.
	ErrUnauthorized = errors.New("command is restricted to administrators")

	// ErrInvalidArgs rejects malformed command arguments.
	ErrInvalidArgs = errors.New("invalid command arguments")
)
