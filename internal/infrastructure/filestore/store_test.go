package filestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linepoll/linepoll/internal/domain/game"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storage.json")
	return New(path, zerolog.Nop()), path
}

func TestGetSessionLazyCreateIsIdempotent(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	first, err := s.GetSession(ctx, "42")
	require.NoError(t, err)
	assert.Empty(t, first.History)
	assert.Nil(t, first.ActivePoll)

	require.NoError(t, s.AppendLine(ctx, "42", "import sys"))
	again, err := s.GetSession(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"import sys"}, again.History)
}

func TestAppendLineAndClear(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendLine(ctx, "42", "a"))
	require.NoError(t, s.AppendLine(ctx, "42", "b"))
	require.NoError(t, s.SetActivePoll(ctx, "42", game.NewPollRecord("p1", "m1", []string{"w", "x", "y", "z"}, time.Now(), time.Now())))

	require.NoError(t, s.ClearSession(ctx, "42"))
	session, err := s.GetSession(ctx, "42")
	require.NoError(t, err)
	assert.Empty(t, session.History)
	assert.Nil(t, session.ActivePoll)

	// poll index entry must be gone too
	_, ok, err := s.RecordVote(ctx, "p1", 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordVote(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetActivePoll(ctx, "42", game.NewPollRecord("p1", "m1", []string{"w", "x", "y", "z"}, time.Now(), time.Now())))

	chatID, ok, err := s.RecordVote(ctx, "p1", 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", chatID)

	session, err := s.GetSession(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 1, session.ActivePoll.Votes[2])
}

func TestRecordVoteUnknownPollIsNoOp(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetActivePoll(ctx, "42", game.NewPollRecord("p1", "m1", []string{"w", "x", "y", "z"}, time.Now(), time.Now())))
	before, err := s.GetSession(ctx, "42")
	require.NoError(t, err)

	_, ok, err := s.RecordVote(ctx, "nope", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	after, err := s.GetSession(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, before.ActivePoll.Votes, after.ActivePoll.Votes)
}

func TestRecordVoteInvalidIndexIsNoOp(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetActivePoll(ctx, "42", game.NewPollRecord("p1", "m1", []string{"w", "x", "y", "z"}, time.Now(), time.Now())))

	_, ok, err := s.RecordVote(ctx, "p1", 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordVoteAfterCloseIsNoOp(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetActivePoll(ctx, "42", game.NewPollRecord("p1", "m1", []string{"w", "x", "y", "z"}, time.Now(), time.Now())))
	require.NoError(t, s.SetActivePoll(ctx, "42", nil))

	_, ok, err := s.RecordVote(ctx, "p1", 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDurabilityAcrossReload(t *testing.T) {
	s, path := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendLine(ctx, "42", "import sys"))
	poll := game.NewPollRecord("p1", "m1", []string{"w", "x", "y", "z"}, time.Now().UTC().Truncate(time.Second), time.Now().UTC().Truncate(time.Second))
	require.NoError(t, s.SetActivePoll(ctx, "42", poll))
	_, _, err := s.RecordVote(ctx, "p1", 1)
	require.NoError(t, err)
	require.NoError(t, s.AppendResult(ctx, "42", &game.PollResult{
		PollID:      "p0",
		Options:     []string{"a", "b", "c", "d"},
		Votes:       map[int]int{0: 1, 1: 0, 2: 0, 3: 0},
		WinnerIndex: 0,
		WinnerLine:  "a",
		ClosedAt:    time.Now().UTC().Truncate(time.Second),
	}))

	reloaded := New(path, zerolog.Nop())
	session, err := reloaded.GetSession(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"import sys"}, session.History)
	require.NotNil(t, session.ActivePoll)
	assert.Equal(t, "p1", session.ActivePoll.PollID)
	assert.Equal(t, 1, session.ActivePoll.Votes[1])
	require.Len(t, session.Results, 1)
	assert.Equal(t, "a", session.Results[0].WinnerLine)

	// the poll index is rebuilt on load
	chatID, ok, err := reloaded.RecordVote(ctx, "p1", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", chatID)
}

func TestListChatIDs(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	_, err := s.GetSession(ctx, "b")
	require.NoError(t, err)
	_, err = s.GetSession(ctx, "a")
	require.NoError(t, err)

	ids, err := s.ListChatIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}
