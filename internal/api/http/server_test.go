package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appGame "github.com/linepoll/linepoll/internal/application/game"
	"github.com/linepoll/linepoll/internal/application/scheduler"
	"github.com/linepoll/linepoll/internal/domain/gateway"
	"github.com/linepoll/linepoll/internal/infrastructure/filestore"
)

type fakeGateway struct {
	mu  sync.Mutex
	seq int
}

func (f *fakeGateway) PublishPoll(ctx context.Context, chatID, question string, options []string) (gateway.PollHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return gateway.PollHandle{
		PollID:     fmt.Sprintf("poll-%d", f.seq),
		MessageRef: fmt.Sprintf("msg-%d", f.seq),
	}, nil
}

func (f *fakeGateway) ClosePoll(ctx context.Context, chatID, messageRef string) error   { return nil }
func (f *fakeGateway) SendMessage(ctx context.Context, chatID, text string) error       { return nil }
func (f *fakeGateway) SendDocument(ctx context.Context, chatID string, data []byte, filename, caption string) error {
	return nil
}

type stubGenerator struct{}

func (stubGenerator) ProposeNextLines(ctx context.Context, history []string) []string {
	return []string{"opt1", "opt2", "opt3", "opt4"}
}

func (stubGenerator) CompleteTranscript(ctx context.Context, history []string) string { return "" }

func newTestServer(t *testing.T) (*httptest.Server, *appGame.Service, *scheduler.Fake) {
	t.Helper()
	logger := zerolog.Nop()
	store := filestore.New(filepath.Join(t.TempDir(), "state.json"), logger)
	sched := scheduler.NewFake()
	gameSvc := appGame.NewService(store, &fakeGateway{}, stubGenerator{}, sched, 0, 0, logger)
	srv := httptest.NewServer(NewServer(gameSvc).Router())
	t.Cleanup(srv.Close)
	return srv, gameSvc, sched
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	var body map[string]interface{}
	code := getJSON(t, srv.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestListChats(t *testing.T) {
	srv, gameSvc, _ := newTestServer(t)
	require.NoError(t, gameSvc.OpenPoll(context.Background(), "42"))

	var body struct {
		Chats []string `json:"chats"`
	}
	code := getJSON(t, srv.URL+"/v1/chats", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"42"}, body.Chats)
}

func TestChatStatus(t *testing.T) {
	srv, gameSvc, _ := newTestServer(t)
	require.NoError(t, gameSvc.OpenPoll(context.Background(), "42"))

	var body struct {
		ChatID     string `json:"chatId"`
		PollActive bool   `json:"pollActive"`
	}
	code := getJSON(t, srv.URL+"/v1/chats/42/status", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "42", body.ChatID)
	assert.True(t, body.PollActive)
}

func TestChatStatusRejectsMalformedID(t *testing.T) {
	srv, _, _ := newTestServer(t)
	var body map[string]interface{}
	code := getJSON(t, srv.URL+"/v1/chats/not-a-number/status", &body)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_PARAM", body["error"])
}

func TestChatCode(t *testing.T) {
	srv, gameSvc, sched := newTestServer(t)
	require.NoError(t, gameSvc.OpenPoll(context.Background(), "42"))
	sched.FireNext() // timeout close commits the winner

	var body struct {
		Lines int    `json:"lines"`
		Code  string `json:"code"`
	}
	code := getJSON(t, srv.URL+"/v1/chats/42/code", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, body.Lines)
	assert.Contains(t, body.Code, "opt1")
}

func TestSendNow(t *testing.T) {
	srv, _, _ := newTestServer(t)
	var body map[string]interface{}
	code := postJSON(t, srv.URL+"/v1/chats/42/sendnow", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "POLL_OPENED", body["status"])
}

func TestSendNowConflictsWhilePollOpen(t *testing.T) {
	srv, gameSvc, _ := newTestServer(t)
	require.NoError(t, gameSvc.OpenPoll(context.Background(), "42"))

	var body map[string]interface{}
	code := postJSON(t, srv.URL+"/v1/chats/42/sendnow", &body)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "POLL_ACTIVE", body["error"])
}

func TestStopWithoutActivePoll(t *testing.T) {
	srv, _, _ := newTestServer(t)
	var body map[string]interface{}
	code := postJSON(t, srv.URL+"/v1/chats/42/stop", &body)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "NO_ACTIVE_POLL", body["error"])
}

func TestStopClosesOpenPoll(t *testing.T) {
	srv, gameSvc, _ := newTestServer(t)
	require.NoError(t, gameSvc.OpenPoll(context.Background(), "42"))

	var body map[string]interface{}
	code := postJSON(t, srv.URL+"/v1/chats/42/stop", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "POLL_CLOSED", body["status"])
}
