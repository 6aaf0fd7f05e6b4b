package conversation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/iguit0/ai-chatbot-personality/pkg/api"
	"github.com/iguit0/ai-chatbot-personality/pkg/events"
	"github.com/iguit0/ai-chatbot-personality/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu            sync.Mutex
	requests      []api.ChatRequest
	chat          func(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error)
	load          func(ctx context.Context, id string) (*types.Conversation, error)
	conversations map[string]*types.Conversation
}

func (f *fakeBackend) Chat(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	chat := f.chat
	f.mu.Unlock()
	return chat(ctx, req)
}

func (f *fakeBackend) GetConversation(ctx context.Context, id string) (*types.Conversation, error) {
	f.mu.Lock()
	load := f.load
	f.mu.Unlock()
	if load != nil {
		return load(ctx, id)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return nil, &api.NotFoundError{Resource: "conversation", ID: id}
	}
	return c, nil
}

func (f *fakeBackend) Requests() []api.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.ChatRequest(nil), f.requests...)
}

func replying(response string, conversationID string) func(context.Context, api.ChatRequest) (*api.ChatResponse, error) {
	return func(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error) {
		return &api.ChatResponse{Response: response, ConversationID: conversationID}, nil
	}
}

// blockingChat holds every request until release is closed or the request
// context is cancelled.
func blockingChat(release <-chan struct{}, resp *api.ChatResponse) func(context.Context, api.ChatRequest) (*api.ChatResponse, error) {
	return func(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error) {
		select {
		case <-release:
			return resp, nil
		case <-ctx.Done():
			return nil, &api.TransportError{Op: "POST", URL: "/chat", Err: ctx.Err()}
		}
	}
}

// slowLoad serves conversation "slow" only once release is closed, ignoring
// cancellation, and every other id at once. started is closed when the slow
// fetch begins.
func slowLoad(started chan<- struct{}, release <-chan struct{}) func(context.Context, string) (*types.Conversation, error) {
	return func(ctx context.Context, id string) (*types.Conversation, error) {
		if id == "slow" {
			close(started)
			<-release
		}
		return &types.Conversation{
			ID:       id,
			Messages: []types.Message{{Role: types.RoleUser, Content: id}},
		}, nil
	}
}

type published struct {
	topic   string
	payload interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (r *recordingPublisher) Publish(topic string, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{topic: topic, payload: payload})
	return nil
}

func (r *recordingPublisher) Topic(topic string) []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ret []interface{}
	for _, e := range r.events {
		if e.topic == topic {
			ret = append(ret, e.payload)
		}
	}
	return ret
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("m%d", n)
	}
}

func roles(messages []types.Message) []types.Role {
	ret := make([]types.Role, len(messages))
	for i, m := range messages {
		ret[i] = m.Role
	}
	return ret
}

func contents(messages []types.Message) []string {
	ret := make([]string, len(messages))
	for i, m := range messages {
		ret[i] = m.Content
	}
	return ret
}

func TestSubmitFirstMessageAdoptsConversationID(t *testing.T) {
	backend := &fakeBackend{chat: replying("Hi there", "c1")}
	bus := &recordingPublisher{}
	s := NewStore(backend, WithBus(bus), WithIDGenerator(sequentialIDs()))

	require.Equal(t, StateEmpty, s.State())
	require.NoError(t, s.SubmitMessage(context.Background(), "teacher", "Hello"))

	msgs := s.Messages()
	assert.Equal(t, []types.Role{types.RoleUser, types.RoleAssistant}, roles(msgs))
	assert.Equal(t, []string{"Hello", "Hi there"}, contents(msgs))
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m2", msgs[1].ID)
	assert.Equal(t, "c1", s.ConversationID())
	assert.Equal(t, StateLoaded, s.State())
	assert.False(t, s.Pending())

	reqs := backend.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Hello", reqs[0].Message)
	assert.Equal(t, "teacher", reqs[0].PersonalityID)
	assert.Nil(t, reqs[0].ConversationID)

	created := bus.Topic(events.TopicConversationCreated)
	require.Len(t, created, 1)
	assert.Equal(t, events.ConversationCreated{ConversationID: "c1", PersonalityID: "teacher"}, created[0])
}

func TestSubmitSendsConversationIDOnceKnown(t *testing.T) {
	backend := &fakeBackend{chat: replying("ok", "c1")}
	s := NewStore(backend)

	require.NoError(t, s.SubmitMessage(context.Background(), "teacher", "one"))
	require.NoError(t, s.SubmitMessage(context.Background(), "teacher", "two"))

	reqs := backend.Requests()
	require.Len(t, reqs, 2)
	require.NotNil(t, reqs[1].ConversationID)
	assert.Equal(t, "c1", *reqs[1].ConversationID)

	assert.Equal(t, []string{"one", "ok", "two", "ok"}, contents(s.Messages()))
}

func TestSubmitKeepsExistingConversationID(t *testing.T) {
	backend := &fakeBackend{chat: replying("ok", "other")}
	bus := &recordingPublisher{}
	s := NewStore(backend, WithBus(bus), WithConversationID("c1"))

	require.NoError(t, s.SubmitMessage(context.Background(), "teacher", "hi"))
	assert.Equal(t, "c1", s.ConversationID())
	assert.Empty(t, bus.Topic(events.TopicConversationCreated))
}

func TestSubmitTrimsText(t *testing.T) {
	backend := &fakeBackend{chat: replying("ok", "c1")}
	s := NewStore(backend)

	require.NoError(t, s.SubmitMessage(context.Background(), "teacher", "  Hello \n"))
	assert.Equal(t, "Hello", s.Messages()[0].Content)
	assert.Equal(t, "Hello", backend.Requests()[0].Message)
}

func TestSubmitRejectsBlankTextAndMissingPersonality(t *testing.T) {
	backend := &fakeBackend{chat: replying("ok", "c1")}
	s := NewStore(backend)

	err := s.SubmitMessage(context.Background(), "teacher", "   ")
	assert.True(t, errors.Is(err, api.ErrValidation))

	err = s.SubmitMessage(context.Background(), "", "Hello")
	assert.True(t, errors.Is(err, api.ErrValidation))

	assert.Empty(t, s.Messages())
	assert.Empty(t, backend.Requests())
}

func TestSubmitBackendFailureAppendsApology(t *testing.T) {
	backend := &fakeBackend{chat: func(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error) {
		return nil, &api.BackendError{StatusCode: 500, Message: "Backend error"}
	}}
	s := NewStore(backend, WithConversationID("c1"))

	require.NoError(t, s.SubmitMessage(context.Background(), "teacher", "Hello"))

	msgs := s.Messages()
	assert.Equal(t, []types.Role{types.RoleUser, types.RoleAssistant}, roles(msgs))
	assert.Equal(t, ApologyMessage, msgs[1].Content)
	assert.Equal(t, "c1", s.ConversationID())
	assert.False(t, s.Pending())
}

func TestSubmitTransportFailureAppendsApology(t *testing.T) {
	backend := &fakeBackend{chat: func(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error) {
		return nil, &api.TransportError{Op: "POST", URL: "/chat", Err: errors.New("connection refused")}
	}}
	s := NewStore(backend)

	require.NoError(t, s.SubmitMessage(context.Background(), "teacher", "Hello"))
	assert.Equal(t, []string{"Hello", ApologyMessage}, contents(s.Messages()))
	assert.Equal(t, StateEmpty, s.State())
}

func TestSubmitEmptySuccessBodyAppendsApology(t *testing.T) {
	for _, body := range []string{`{}`, `null`} {
		t.Run(body, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			t.Cleanup(srv.Close)
			client, err := api.NewClient(srv.URL)
			require.NoError(t, err)
			s := NewStore(client)

			require.NoError(t, s.SubmitMessage(context.Background(), "teacher", "Hello"))
			assert.Equal(t, []string{"Hello", ApologyMessage}, contents(s.Messages()))
			assert.Equal(t, StateEmpty, s.State())
		})
	}
}

func TestOnlyOneRequestInFlight(t *testing.T) {
	release := make(chan struct{})
	backend := &fakeBackend{chat: blockingChat(release, &api.ChatResponse{Response: "first", ConversationID: "c1"})}
	s := NewStore(backend)

	done := make(chan error, 1)
	go func() {
		done <- s.SubmitMessage(context.Background(), "teacher", "one")
	}()
	require.Eventually(t, s.Pending, 2*time.Second, 5*time.Millisecond)

	before := s.Messages()
	assert.ErrorIs(t, s.SubmitMessage(context.Background(), "teacher", "two"), ErrRequestPending)
	assert.ErrorIs(t, s.Regenerate(context.Background(), "teacher"), ErrRequestPending)
	assert.Equal(t, before, s.Messages())

	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"one", "first"}, contents(s.Messages()))
	assert.Len(t, backend.Requests(), 1)
}

func TestRegenerateReplacesTrailingAssistant(t *testing.T) {
	backend := &fakeBackend{
		chat: replying("B'", "c1"),
		conversations: map[string]*types.Conversation{
			"c1": {
				ID:            "c1",
				PersonalityID: "teacher",
				Messages: []types.Message{
					{ID: "1", Role: types.RoleUser, Content: "A"},
					{ID: "2", Role: types.RoleAssistant, Content: "B"},
				},
			},
		},
	}
	s := NewStore(backend)
	require.NoError(t, s.LoadConversation(context.Background(), "c1"))
	require.NoError(t, s.Regenerate(context.Background(), "teacher"))

	msgs := s.Messages()
	assert.Equal(t, []string{"A", "B'"}, contents(msgs))
	assert.Equal(t, "1", msgs[0].ID)

	reqs := backend.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "A", reqs[0].Message)
	require.NotNil(t, reqs[0].ConversationID)
	assert.Equal(t, "c1", *reqs[0].ConversationID)
}

func TestRegenerateAfterTrailingUser(t *testing.T) {
	backend := &fakeBackend{
		chat: replying("B", "c1"),
		conversations: map[string]*types.Conversation{
			"c1": {ID: "c1", Messages: []types.Message{{ID: "1", Role: types.RoleUser, Content: "A"}}},
		},
	}
	s := NewStore(backend)
	require.NoError(t, s.LoadConversation(context.Background(), "c1"))
	require.NoError(t, s.Regenerate(context.Background(), "teacher"))

	assert.Equal(t, []string{"A", "B"}, contents(s.Messages()))
}

func TestRegenerateFailureKeepsPrefixAndApologizes(t *testing.T) {
	backend := &fakeBackend{
		chat: replying("first", "c1"),
	}
	s := NewStore(backend)
	require.NoError(t, s.SubmitMessage(context.Background(), "teacher", "A"))

	backend.mu.Lock()
	backend.chat = func(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error) {
		return nil, &api.BackendError{StatusCode: 502, Message: "bad gateway"}
	}
	backend.mu.Unlock()

	require.NoError(t, s.Regenerate(context.Background(), "teacher"))
	assert.Equal(t, []string{"A", ApologyMessage}, contents(s.Messages()))
}

func TestRegenerateWithNothingToRegenerate(t *testing.T) {
	backend := &fakeBackend{
		chat: replying("x", "c1"),
		conversations: map[string]*types.Conversation{
			"greeting": {ID: "greeting", Messages: []types.Message{{ID: "1", Role: types.RoleAssistant, Content: "Welcome"}}},
		},
	}
	s := NewStore(backend)

	assert.ErrorIs(t, s.Regenerate(context.Background(), "teacher"), ErrNothingToRegenerate)

	require.NoError(t, s.LoadConversation(context.Background(), "greeting"))
	assert.ErrorIs(t, s.Regenerate(context.Background(), "teacher"), ErrNothingToRegenerate)
	assert.Equal(t, []string{"Welcome"}, contents(s.Messages()))
	assert.Empty(t, backend.Requests())

	assert.True(t, errors.Is(s.Regenerate(context.Background(), ""), api.ErrValidation))
}

func TestLoadConversationReplacesSequence(t *testing.T) {
	backend := &fakeBackend{
		chat: replying("local", "c0"),
		conversations: map[string]*types.Conversation{
			"c1": {
				ID:            "c1",
				PersonalityID: "teacher",
				Messages: []types.Message{
					{ID: "1", Role: types.RoleUser, Content: "A"},
					{Role: types.RoleAssistant, Content: "B"},
				},
			},
		},
	}
	bus := &recordingPublisher{}
	s := NewStore(backend, WithBus(bus), WithIDGenerator(sequentialIDs()))
	require.NoError(t, s.SubmitMessage(context.Background(), "teacher", "draft"))

	require.NoError(t, s.LoadConversation(context.Background(), "c1"))

	msgs := s.Messages()
	assert.Equal(t, []string{"A", "B"}, contents(msgs))
	assert.NotEmpty(t, msgs[1].ID)
	assert.Equal(t, "c1", s.ConversationID())

	changed := bus.Topic(events.TopicConversationChanged)
	last := changed[len(changed)-1].(events.ConversationChanged)
	assert.Equal(t, "c1", last.ConversationID)
	assert.Len(t, last.Messages, 2)
}

func TestLoadConversationNotFoundLeavesStoreUnchanged(t *testing.T) {
	backend := &fakeBackend{chat: replying("Hi", "c1")}
	s := NewStore(backend)
	require.NoError(t, s.SubmitMessage(context.Background(), "teacher", "Hello"))
	before := s.Messages()

	err := s.LoadConversation(context.Background(), "missing")
	var nf *api.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "missing", nf.ID)

	assert.Equal(t, before, s.Messages())
	assert.Equal(t, "c1", s.ConversationID())
}

func TestResetDiscardsInFlightResponse(t *testing.T) {
	release := make(chan struct{})
	backend := &fakeBackend{chat: blockingChat(release, &api.ChatResponse{Response: "late", ConversationID: "c1"})}
	bus := &recordingPublisher{}
	s := NewStore(backend, WithBus(bus))

	done := make(chan error, 1)
	go func() {
		done <- s.SubmitMessage(context.Background(), "teacher", "Hello")
	}()
	require.Eventually(t, s.Pending, 2*time.Second, 5*time.Millisecond)

	s.Reset()
	assert.False(t, s.Pending())
	require.NoError(t, <-done)

	assert.Empty(t, s.Messages())
	assert.Equal(t, "", s.ConversationID())
	assert.Empty(t, bus.Topic(events.TopicConversationCreated))
}

func TestLoadDiscardsInFlightResponse(t *testing.T) {
	release := make(chan struct{})
	backend := &fakeBackend{
		chat: blockingChat(release, &api.ChatResponse{Response: "late", ConversationID: "c0"}),
		conversations: map[string]*types.Conversation{
			"c1": {ID: "c1", Messages: []types.Message{{ID: "1", Role: types.RoleUser, Content: "A"}}},
		},
	}
	s := NewStore(backend)

	done := make(chan error, 1)
	go func() {
		done <- s.SubmitMessage(context.Background(), "teacher", "Hello")
	}()
	require.Eventually(t, s.Pending, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.LoadConversation(context.Background(), "c1"))
	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"A"}, contents(s.Messages()))
	assert.Equal(t, "c1", s.ConversationID())
	assert.False(t, s.Pending())
}

func TestSlowLoadDoesNotOverrideLaterLoad(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	backend := &fakeBackend{load: slowLoad(started, release)}
	s := NewStore(backend)

	done := make(chan error, 1)
	go func() {
		done <- s.LoadConversation(context.Background(), "slow")
	}()
	<-started

	require.NoError(t, s.LoadConversation(context.Background(), "fast"))
	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, "fast", s.ConversationID())
	assert.Equal(t, []string{"fast"}, contents(s.Messages()))
}

func TestSlowLoadDoesNotOverrideReset(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	backend := &fakeBackend{load: slowLoad(started, release)}
	s := NewStore(backend)

	done := make(chan error, 1)
	go func() {
		done <- s.LoadConversation(context.Background(), "slow")
	}()
	<-started

	s.Reset()
	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, StateEmpty, s.State())
	assert.Equal(t, "", s.ConversationID())
	assert.Empty(t, s.Messages())
}

func TestSupersededLoadIsCancelled(t *testing.T) {
	cancelled := make(chan struct{})
	backend := &fakeBackend{load: func(ctx context.Context, id string) (*types.Conversation, error) {
		if id == "slow" {
			<-ctx.Done()
			close(cancelled)
			return nil, &api.TransportError{Op: "GET", URL: "/conversations/slow", Err: ctx.Err()}
		}
		return &types.Conversation{ID: id}, nil
	}}
	s := NewStore(backend)

	done := make(chan error, 1)
	go func() {
		done <- s.LoadConversation(context.Background(), "slow")
	}()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.cancelLoad != nil
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.LoadConversation(context.Background(), "fast"))
	<-cancelled
	require.NoError(t, <-done)
	assert.Equal(t, "fast", s.ConversationID())
}

func TestLoadAssignsMissingIDsFromGenerator(t *testing.T) {
	backend := &fakeBackend{conversations: map[string]*types.Conversation{
		"c1": {ID: "c1", Messages: []types.Message{
			{Role: types.RoleUser, Content: "A"},
			{ID: "kept", Role: types.RoleAssistant, Content: "B"},
		}},
	}}
	s := NewStore(backend, WithIDGenerator(sequentialIDs()))

	require.NoError(t, s.LoadConversation(context.Background(), "c1"))
	msgs := s.Messages()
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "kept", msgs[1].ID)
}

func TestSnapshotsCarryIncreasingVersions(t *testing.T) {
	backend := &fakeBackend{chat: replying("ok", "c1")}
	bus := &recordingPublisher{}
	s := NewStore(backend, WithBus(bus))

	require.NoError(t, s.SubmitMessage(context.Background(), "teacher", "one"))
	s.Reset()

	changed := bus.Topic(events.TopicConversationChanged)
	require.Len(t, changed, 3)

	first := changed[0].(events.ConversationChanged)
	assert.True(t, first.Pending)
	assert.Equal(t, []string{"one"}, contents(first.Messages))

	var last uint64
	for _, c := range changed {
		v := c.(events.ConversationChanged).Version
		assert.Greater(t, v, last)
		last = v
	}
}

func TestMessagesReturnsCopy(t *testing.T) {
	backend := &fakeBackend{chat: replying("ok", "c1")}
	s := NewStore(backend)
	require.NoError(t, s.SubmitMessage(context.Background(), "teacher", "one"))

	msgs := s.Messages()
	msgs[0].Content = "changed"
	assert.Equal(t, "one", s.Messages()[0].Content)
}

func TestClockStampsLocalMessages(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	backend := &fakeBackend{chat: replying("ok", "c1")}
	s := NewStore(backend, WithClock(func() time.Time { return at }))
	require.NoError(t, s.SubmitMessage(context.Background(), "teacher", "one"))

	for _, m := range s.Messages() {
		require.NotNil(t, m.CreatedAt)
		assert.True(t, m.CreatedAt.Equal(at))
	}
}
