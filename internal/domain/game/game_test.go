package game

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWinnerTieBreaksToLowestIndex(t *testing.T) {
	p := NewPollRecord("p1", "m1", []string{"a", "b", "c", "d"}, time.Now(), time.Now())
	p.Votes[0] = 3
	p.Votes[1] = 3
	p.Votes[2] = 1
	p.Votes[3] = 0

	idx, line := p.Winner()
	assert.Equal(t, 0, idx)
	assert.Equal(t, "a", line)
}

func TestWinnerSoleMax(t *testing.T) {
	p := NewPollRecord("p1", "m1", []string{"a", "b", "c", "d"}, time.Now(), time.Now())
	p.Votes[2] = 2
	p.Votes[1] = 1

	idx, line := p.Winner()
	assert.Equal(t, 2, idx)
	assert.Equal(t, "c", line)
}

func TestWinnerNoVotesDefaultsToFirstOption(t *testing.T) {
	p := NewPollRecord("p1", "m1", []string{"a", "b", "c", "d"}, time.Now(), time.Now())
	idx, line := p.Winner()
	assert.Equal(t, 0, idx)
	assert.Equal(t, "a", line)
}

func TestNewPollRecordInitializesAllVoteKeys(t *testing.T) {
	p := NewPollRecord("p1", "m1", []string{"a", "b", "c", "d"}, time.Now(), time.Now())
	require.Len(t, p.Votes, NumOptions)
	for i := 0; i < NumOptions; i++ {
		assert.Equal(t, 0, p.Votes[i])
	}
}

func TestChatSessionRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewChatSession("42", now)
	s.History = []string{"import sys", "def main():"}
	s.ActivePoll = NewPollRecord("p9", "777", []string{"    pass", "    return", "    print()", "    x = 1"}, now.Add(5*time.Minute), now)
	s.ActivePoll.Votes[1] = 2
	s.Results = []PollResult{{
		PollID:      "p8",
		Options:     []string{"a", "b", "c", "d"},
		Votes:       map[int]int{0: 1, 1: 0, 2: 0, 3: 0},
		WinnerIndex: 0,
		WinnerLine:  "a",
		ClosedAt:    now,
	}}

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var back ChatSession
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, *s.ActivePoll, *back.ActivePoll)
	back.ActivePoll = nil
	s.ActivePoll = nil
	assert.Equal(t, *s, back)
}
