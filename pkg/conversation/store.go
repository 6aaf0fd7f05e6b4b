// Package conversation keeps the client's view of the active conversation and
// the listing of past ones.
//
// The Store owns the ordered message sequence of one conversation at a time.
// User messages are appended optimistically, the backend is asked for a reply,
// and the reply (or an apology when the backend fails) is appended once it
// arrives. At most one chat request is outstanding per store. Switching to
// another conversation, or resetting, invalidates whatever request is still in
// flight: its result is dropped instead of being appended to the wrong
// conversation. The same holds for conversation loads: only the most recent
// one may replace the sequence.
//
// Every state change is published as an events.ConversationChanged snapshot
// when a bus is configured.
package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iguit0/ai-chatbot-personality/pkg/api"
	"github.com/iguit0/ai-chatbot-personality/pkg/events"
	"github.com/iguit0/ai-chatbot-personality/pkg/types"
	"github.com/rs/zerolog/log"
)

// ApologyMessage is appended as the assistant turn when the backend could not
// produce a reply.
const ApologyMessage = "I'm sorry, I couldn't process your request. Please try again."

var (
	ErrRequestPending      = errors.New("a chat request is already pending")
	ErrNothingToRegenerate = errors.New("no user message to regenerate a reply for")
)

// ChatBackend is the part of the gateway the store talks to.
type ChatBackend interface {
	Chat(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error)
	GetConversation(ctx context.Context, id string) (*types.Conversation, error)
}

var _ ChatBackend = (*api.Client)(nil)

type State string

const (
	StateEmpty  State = "empty"
	StateLoaded State = "loaded"
)

type Store struct {
	backend ChatBackend
	bus     events.Publisher
	newID   func() string
	now     func() time.Time

	mu             sync.Mutex
	conversationID string
	messages       []types.Message
	pending        bool
	generation     uint64
	cancelInFlight context.CancelFunc
	loadGeneration uint64
	cancelLoad     context.CancelFunc
	version        uint64
}

type StoreOption func(*Store)

// WithBus publishes a snapshot after every mutation.
func WithBus(bus events.Publisher) StoreOption {
	return func(s *Store) {
		s.bus = bus
	}
}

func WithIDGenerator(f func() string) StoreOption {
	return func(s *Store) {
		s.newID = f
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithConversationID starts the store as attached to an existing conversation
// without fetching its messages.
func WithConversationID(id string) StoreOption {
	return func(s *Store) {
		s.conversationID = id
	}
}

func NewStore(backend ChatBackend, options ...StoreOption) *Store {
	ret := &Store{
		backend: backend,
		newID:   uuid.NewString,
		now:     time.Now,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (s *Store) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Messages returns a copy of the current sequence.
func (s *Store) Messages() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMessages(s.messages)
}

func (s *Store) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversationID == "" {
		return StateEmpty
	}
	return StateLoaded
}

// SubmitMessage appends text as a user message and asks the backend for a
// reply under personalityID. Backend failures are not returned: they end up as
// an apology message in the sequence.
func (s *Store) SubmitMessage(ctx context.Context, personalityID string, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return &api.ValidationError{Field: "message", Reason: "must not be blank"}
	}
	if personalityID == "" {
		return &api.ValidationError{Field: "personalityId", Reason: "no personality selected"}
	}

	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return ErrRequestPending
	}
	s.messages = append(s.messages, s.newMessageLocked(types.RoleUser, text))
	req := api.ChatRequest{
		Message:       text,
		PersonalityID: personalityID,
	}
	if s.conversationID != "" {
		id := s.conversationID
		req.ConversationID = &id
	}
	reqCtx, gen := s.beginLocked(ctx)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(events.TopicConversationChanged, snapshot)

	log.Debug().
		Str("conversation_id", snapshot.ConversationID).
		Str("personality_id", personalityID).
		Uint64("generation", gen).
		Msg("submitting chat message")

	resp, err := s.backend.Chat(reqCtx, req)
	s.complete(gen, personalityID, resp, err)
	return nil
}

// Regenerate drops the trailing assistant message, if any, and asks the
// backend again for a reply to the trailing user message.
func (s *Store) Regenerate(ctx context.Context, personalityID string) error {
	if personalityID == "" {
		return &api.ValidationError{Field: "personalityId", Reason: "no personality selected"}
	}

	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return ErrRequestPending
	}
	base := s.messages
	if n := len(base); n > 0 && base[n-1].Role == types.RoleAssistant {
		base = base[:n-1]
	}
	if len(base) == 0 || base[len(base)-1].Role != types.RoleUser {
		s.mu.Unlock()
		return ErrNothingToRegenerate
	}
	s.messages = copyMessages(base)
	req := api.ChatRequest{
		Message:       base[len(base)-1].Content,
		PersonalityID: personalityID,
	}
	if s.conversationID != "" {
		id := s.conversationID
		req.ConversationID = &id
	}
	reqCtx, gen := s.beginLocked(ctx)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(events.TopicConversationChanged, snapshot)

	log.Debug().
		Str("conversation_id", snapshot.ConversationID).
		Str("personality_id", personalityID).
		Uint64("generation", gen).
		Msg("regenerating reply")

	resp, err := s.backend.Chat(reqCtx, req)
	s.complete(gen, personalityID, resp, err)
	return nil
}

// LoadConversation replaces the sequence with the backend record of id. On
// error the store is left as it was. A load that is overtaken by a later load
// or by Reset is dropped and returns nil.
func (s *Store) LoadConversation(ctx context.Context, id string) error {
	if id == "" {
		return &api.ValidationError{Field: "id", Reason: "is required"}
	}

	s.mu.Lock()
	loadCtx, gen := s.beginLoadLocked(ctx)
	s.mu.Unlock()

	conv, err := s.backend.GetConversation(loadCtx, id)

	s.mu.Lock()
	if gen != s.loadGeneration {
		s.mu.Unlock()
		log.Debug().Str("conversation_id", id).Uint64("load", gen).Msg("discarding stale conversation load")
		return nil
	}
	s.cancelLoad()
	s.cancelLoad = nil
	if err != nil {
		s.mu.Unlock()
		log.Warn().Err(err).Str("conversation_id", id).Msg("could not load conversation")
		return err
	}

	messages := make([]types.Message, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		if m.ID == "" {
			m.ID = s.newID()
		}
		messages = append(messages, m)
	}

	s.invalidateLocked()
	s.conversationID = id
	if conv.ID != "" {
		s.conversationID = conv.ID
	}
	s.messages = messages
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	log.Debug().
		Str("conversation_id", snapshot.ConversationID).
		Int("messages", len(messages)).
		Msg("loaded conversation")

	s.publish(events.TopicConversationChanged, snapshot)
	return nil
}

// Reset detaches the store from any conversation.
func (s *Store) Reset() {
	s.mu.Lock()
	s.invalidateLocked()
	s.dropLoadLocked()
	s.conversationID = ""
	s.messages = nil
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(events.TopicConversationChanged, snapshot)
}

// beginLoadLocked supersedes any load still in flight and returns the context
// and generation of the new one.
func (s *Store) beginLoadLocked(ctx context.Context) (context.Context, uint64) {
	s.dropLoadLocked()
	loadCtx, cancel := context.WithCancel(ctx)
	s.cancelLoad = cancel
	return loadCtx, s.loadGeneration
}

func (s *Store) dropLoadLocked() {
	s.loadGeneration++
	if s.cancelLoad != nil {
		s.cancelLoad()
		s.cancelLoad = nil
	}
}

// beginLocked marks the store pending and derives the request context that a
// later switch can cancel.
func (s *Store) beginLocked(ctx context.Context) (context.Context, uint64) {
	reqCtx, cancel := context.WithCancel(ctx)
	s.pending = true
	s.cancelInFlight = cancel
	return reqCtx, s.generation
}

// invalidateLocked drops any in-flight request.
func (s *Store) invalidateLocked() {
	s.generation++
	if s.cancelInFlight != nil {
		s.cancelInFlight()
		s.cancelInFlight = nil
	}
	s.pending = false
}

func (s *Store) complete(gen uint64, personalityID string, resp *api.ChatResponse, err error) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		log.Debug().Uint64("generation", gen).Msg("discarding stale chat response")
		return
	}

	if s.cancelInFlight != nil {
		s.cancelInFlight()
		s.cancelInFlight = nil
	}
	s.pending = false

	var created *events.ConversationCreated
	if err != nil {
		log.Error().Err(err).
			Str("conversation_id", s.conversationID).
			Str("personality_id", personalityID).
			Msg("chat request failed")
		s.messages = append(s.messages, s.newMessageLocked(types.RoleAssistant, ApologyMessage))
	} else {
		s.messages = append(s.messages, s.newMessageLocked(types.RoleAssistant, resp.Response))
		if s.conversationID == "" && resp.ConversationID != "" {
			s.conversationID = resp.ConversationID
			created = &events.ConversationCreated{
				ConversationID: resp.ConversationID,
				PersonalityID:  personalityID,
			}
		}
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(events.TopicConversationChanged, snapshot)
	if created != nil {
		s.publish(events.TopicConversationCreated, *created)
	}
}

func (s *Store) newMessageLocked(role types.Role, content string) types.Message {
	ts := types.NewTimestamp(s.now())
	return types.Message{
		ID:        s.newID(),
		Role:      role,
		Content:   content,
		CreatedAt: &ts,
	}
}

func (s *Store) snapshotLocked() events.ConversationChanged {
	s.version++
	return events.ConversationChanged{
		ConversationID: s.conversationID,
		Messages:       copyMessages(s.messages),
		Pending:        s.pending,
		Version:        s.version,
	}
}

func (s *Store) publish(topic string, payload interface{}) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(topic, payload); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("could not publish conversation event")
	}
}

func copyMessages(messages []types.Message) []types.Message {
	if messages == nil {
		return nil
	}
	ret := make([]types.Message, len(messages))
	copy(ret, messages)
	return ret
}
