package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/botbyte/botbyte-go/internal/ai"
	"github.com/botbyte/botbyte-go/internal/store"
)

// fakeChat scripts the provider adapter for handler tests.
type fakeChat struct {
	chunks []string
	err    error
	// errAfter, when >= 0, makes SendMessage fail after that many chunks.
	errAfter int
	// hook runs after streaming chunks, before returning.
	hook func(ctx context.Context)

	gotHistory []ai.Message
}

func newFakeChat(chunks ...string) *fakeChat {
	return &fakeChat{chunks: chunks, errAfter: -1}
}

func (f *fakeChat) SendMessage(ctx context.Context, history []ai.Message, opts ai.SendOptions) (*ai.Result, error) {
	f.gotHistory = history
	content := ""
	for i, c := range f.chunks {
		if f.errAfter >= 0 && i == f.errAfter {
			return nil, f.err
		}
		if opts.OnChunk != nil {
			opts.OnChunk(c)
		}
		content += c
	}
	if f.errAfter >= 0 && f.errAfter >= len(f.chunks) {
		return nil, f.err
	}
	if f.hook != nil {
		f.hook(ctx)
	}
	return &ai.Result{Content: content, FinishReason: "stop"}, nil
}

type fixture struct {
	store  *store.Store
	chat   *fakeChat
	server *Server
	ts     *httptest.Server
}

func newFixture(t *testing.T, chat *fakeChat) *fixture {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	srv := New(st, chat)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &fixture{store: st, chat: chat, server: srv, ts: ts}
}

func (f *fixture) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.ts.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	defer resp.Body.Close()
	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func TestHealth(t *testing.T) {
	f := newFixture(t, newFakeChat())
	resp, err := http.Get(f.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
}

func TestCreateAndListConversations(t *testing.T) {
	f := newFixture(t, newFakeChat())

	resp := f.postJSON(t, "/api/chat/conversations", map[string]string{
		"userId": "u1", "mode": "chat", "title": "New conversation",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	require.True(t, env.Success)

	data, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var conv store.Conversation
	require.NoError(t, json.Unmarshal(data, &conv))
	require.NotEmpty(t, conv.ID)
	require.Equal(t, "u1", conv.UserID)

	listResp, err := http.Get(f.ts.URL + "/api/chat/conversations/u1")
	require.NoError(t, err)
	listEnv := decodeEnvelope(t, listResp)
	require.True(t, listEnv.Success)
	require.Len(t, listEnv.Data, 1)
}

func TestCreateConversation_MissingUser(t *testing.T) {
	f := newFixture(t, newFakeChat())
	resp := f.postJSON(t, "/api/chat/conversations", map[string]string{"mode": "chat"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	require.False(t, env.Success)
	require.NotEmpty(t, env.Error)
}

func TestDeleteConversation(t *testing.T) {
	f := newFixture(t, newFakeChat())
	conv, err := f.store.CreateConversation(context.Background(), "u1", "chat", "t")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodDelete, f.ts.URL+"/api/chat/conversations/"+conv.ID,
		bytes.NewReader([]byte(`{"userId":"u1"}`)))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Deleted conversations disappear from the user's list.
	list, err := f.store.ListConversations(context.Background(), "u1")
	require.NoError(t, err)
	require.Empty(t, list)

	// The second delete reports not found.
	req2, err := http.NewRequest(http.MethodDelete, f.ts.URL+"/api/chat/conversations/"+conv.ID,
		bytes.NewReader([]byte(`{"userId":"u1"}`)))
	require.NoError(t, err)
	resp2, err := http.DefaultClient.Do(req2)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp2.StatusCode)
	resp2.Body.Close()
}

func TestListMessages(t *testing.T) {
	f := newFixture(t, newFakeChat())
	ctx := context.Background()
	conv, err := f.store.CreateConversation(ctx, "u1", "chat", "t")
	require.NoError(t, err)
	_, err = f.store.AppendMessage(ctx, conv.ID, store.RoleUser, "hello")
	require.NoError(t, err)
	_, err = f.store.AppendMessage(ctx, conv.ID, store.RoleAssistant, "hi!")
	require.NoError(t, err)

	resp, err := http.Get(f.ts.URL + "/api/chat/conversations/" + conv.ID + "/messages")
	require.NoError(t, err)
	env := decodeEnvelope(t, resp)
	require.True(t, env.Success)
	require.Len(t, env.Data, 2)

	missing, err := http.Get(f.ts.URL + "/api/chat/conversations/nope/messages")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, missing.StatusCode)
	missing.Body.Close()
}
