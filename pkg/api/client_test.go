package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL + "/")
	require.NoError(t, err)
	return c
}

func TestChatTranscodesBothDirections(t *testing.T) {
	var received map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		b, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(b, &received))

		_, _ = w.Write([]byte(`{"response":"Hi there","conversation_id":"c1"}`))
	})

	resp, err := c.Chat(context.Background(), ChatRequest{Message: "Hello", PersonalityID: "teacher"})
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{
		"message":         "Hello",
		"personality_id":  "teacher",
		"conversation_id": nil,
	}, received)
	assert.Equal(t, "Hi there", resp.Response)
	assert.Equal(t, "c1", resp.ConversationID)
}

func TestSendReturnsInternalTree(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"outer_key":[{"inner_key":1}]}`))
	})

	tree, err := c.Send(context.Background(), http.MethodGet, "/anything", nil)
	require.NoError(t, err)

	m := tree.(map[string]interface{})
	items := m["outerKey"].([]interface{})
	assert.Equal(t, json.Number("1"), items[0].(map[string]interface{})["innerKey"])
}

func TestBackendErrorUsesDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Invalid personality selected"}`))
	})

	_, err := c.Chat(context.Background(), ChatRequest{Message: "Hello", PersonalityID: "nope"})
	require.Error(t, err)

	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusBadRequest, be.StatusCode)
	assert.Equal(t, "Invalid personality selected", be.Message)
	assert.True(t, errors.Is(err, ErrBackend))
	assert.False(t, errors.Is(err, ErrTransport))
}

func TestBackendErrorMessageVariants(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"error string", `{"error":"Backend error"}`, "Backend error"},
		{"error object", `{"error":{"type":"x","message":"nested"}}`, "nested"},
		{"message", `{"message":"plain"}`, "plain"},
		{"validation list", `{"detail":[{"loc":["body","message"],"msg":"field required"}]}`, "field required"},
		{"not json", `<html>oops</html>`, "HTTP error! status: 500"},
		{"empty", ``, "HTTP error! status: 500"},
		{"blank detail", `{"detail":"  "}`, "HTTP error! status: 500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorMessage([]byte(tt.body), http.StatusInternalServerError))
		})
	}
}

func TestTransportErrorOnUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := NewClient(url)
	require.NoError(t, err)

	_, err = c.ListPersonalities(context.Background())
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.True(t, errors.Is(err, ErrTransport))
	assert.False(t, errors.Is(err, ErrBackend))
}

func TestTransportErrorOnMalformedSuccessBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"personalities": [`))
	})

	_, err := c.ListPersonalities(context.Background())
	require.True(t, errors.Is(err, ErrTransport))
}

func TestChatRejectsSuccessBodyWithoutResponse(t *testing.T) {
	for _, body := range []string{`null`, `{}`, `{"conversation_id":"c1"}`, `[1,2]`, `{"response":3}`} {
		t.Run(body, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})

			resp, err := c.Chat(context.Background(), ChatRequest{Message: "x", PersonalityID: "p"})
			assert.Nil(t, resp)
			var te *TransportError
			require.True(t, errors.As(err, &te))

			resp, err = c.RandomPrompt(context.Background(), "p")
			assert.Nil(t, resp)
			require.True(t, errors.Is(err, ErrTransport))
		})
	}
}

func TestChatAcceptsResponseWithoutConversationID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"Hi"}`))
	})

	resp, err := c.Chat(context.Background(), ChatRequest{Message: "x", PersonalityID: "p"})
	require.NoError(t, err)
	assert.Equal(t, "Hi", resp.Response)
	assert.Equal(t, "", resp.ConversationID)
}

func TestNullBodyIsTransportErrorWhenDecoding(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`null`))
	})

	conv, err := c.GetConversation(context.Background(), "c1")
	assert.Nil(t, conv)
	require.True(t, errors.Is(err, ErrTransport))

	var out map[string]interface{}
	require.True(t, errors.Is(c.Do(context.Background(), http.MethodGet, "/x", nil, &out), ErrTransport))
	require.NoError(t, c.Do(context.Background(), http.MethodGet, "/x", nil, nil))
}

func TestWithTimeoutLeavesSharedClientAlone(t *testing.T) {
	shared := &http.Client{}

	c, err := NewClient("http://localhost:8000", WithTimeout(3*time.Second), WithHTTPClient(shared))
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, c.httpClient.Timeout)
	assert.Equal(t, time.Duration(0), shared.Timeout)

	c, err = NewClient("http://localhost:8000", WithHTTPClient(shared), WithTimeout(time.Second))
	require.NoError(t, err)
	assert.Equal(t, time.Second, c.httpClient.Timeout)
	assert.Equal(t, time.Duration(0), shared.Timeout)

	c, err = NewClient("http://localhost:8000", WithHTTPClient(shared))
	require.NoError(t, err)
	assert.Same(t, shared, c.httpClient)
}

func TestGetConversationNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations/missing", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Conversation not found"}`))
	})

	_, err := c.GetConversation(context.Background(), "missing")
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "conversation", nf.Resource)
	assert.Equal(t, "missing", nf.ID)
}

func TestGetConversationDecodesMessages(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": "c1",
			"personality_id": "teacher",
			"created_at": "2024-05-01T10:00:00.123456",
			"messages": [
				{"id": "m1", "role": "user", "content": "A", "created_at": "2024-05-01T10:00:01"},
				{"id": "m2", "role": "assistant", "content": "B", "created_at": "2024-05-01T10:00:02"}
			]
		}`))
	})

	conv, err := c.GetConversation(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "teacher", conv.PersonalityID)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "B", conv.Messages[1].Content)
	require.NotNil(t, conv.Messages[1].CreatedAt)
	assert.Equal(t, 2, conv.Messages[1].CreatedAt.Second())
}

func TestListConversationsQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "5", r.URL.Query().Get("page_size"))
		assert.Equal(t, "personality", r.URL.Query().Get("sort_by"))
		assert.Equal(t, "asc", r.URL.Query().Get("sort_order"))
		_, _ = w.Write([]byte(`{"conversations":[{"id":"c1","personality_id":"p","created_at":"2024-05-01T10:00:00"}],"total":6,"page":2,"page_size":5}`))
	})

	page, err := c.ListConversations(context.Background(), ListOptions{Page: 2, PageSize: 5, SortBy: SortByPersonality, SortOrder: SortOrderAsc})
	require.NoError(t, err)
	assert.Equal(t, 6, page.Total)
	assert.Equal(t, 5, page.PageSize)
	require.Len(t, page.Conversations, 1)
	assert.Equal(t, "p", page.Conversations[0].PersonalityID)
}

func TestListConversationsRejectsBadOptionsLocally(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := c.ListConversations(context.Background(), ListOptions{SortBy: "title"})
	require.True(t, errors.Is(err, ErrValidation))
	assert.False(t, called)
}

func TestDeletePersonalityEmptyBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/personalities/p%201", r.URL.EscapedPath())
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.DeletePersonality(context.Background(), "p 1"))
}

func TestCancelledContextIsTransportError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Chat(ctx, ChatRequest{Message: "x", PersonalityID: "p"})
	require.True(t, errors.Is(err, ErrTransport))
	require.True(t, errors.Is(err, context.Canceled))
}

func TestParseBaseURL(t *testing.T) {
	u, err := ParseBaseURL("http://localhost:8000/api/", BaseURLOptions{})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/api", u.String())

	_, err = ParseBaseURL("ftp://example.com", BaseURLOptions{})
	require.Error(t, err)

	_, err = ParseBaseURL("http://example.com", BaseURLOptions{DenyHTTP: true})
	require.Error(t, err)

	_, err = ParseBaseURL("https://127.0.0.1", BaseURLOptions{DenyLocalNetworks: true})
	require.Error(t, err)

	_, err = ParseBaseURL("https:///nohost", BaseURLOptions{})
	require.Error(t, err)
}
