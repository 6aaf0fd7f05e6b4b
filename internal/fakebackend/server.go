// Package fakebackend is an in-memory implementation of the chat backend's
// HTTP surface. It answers with canned replies instead of calling a model and
// keeps conversations and personalities in process memory. It is used by the
// integration tests and by `persona-chat fake-backend`.
package fakebackend

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/iguit0/ai-chatbot-personality/pkg/personality"
	"github.com/iguit0/ai-chatbot-personality/pkg/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ReplyFunc produces the assistant reply for message. prompt is the full
// effective prompt built from the personality and the conversation history.
type ReplyFunc func(ctx context.Context, p types.Personality, prompt string, message string) (string, error)

// EchoReply answers with the personality name and the user message.
func EchoReply(_ context.Context, p types.Personality, _ string, message string) (string, error) {
	return fmt.Sprintf("[%s] %s", p.Name, message), nil
}

var defaultPrompts = []types.ChatbotPrompt{
	{ID: "p-1", Prompt: "What makes a good first programming language?", Category: "education"},
	{ID: "p-2", Prompt: "Explain recursion with an everyday example.", Category: "programming"},
	{ID: "p-3", Prompt: "How should I plan a two week trip on a small budget?", Category: "planning"},
	{ID: "p-4", Prompt: "Write a short poem about the ocean at night.", Category: "creative"},
	{ID: "p-5", Prompt: "What are the trade-offs between renting and buying a home?", Category: "finance"},
}

type Server struct {
	mu            sync.Mutex
	personalities []types.Personality
	conversations map[string]*types.Conversation
	order         []string
	prompts       []types.ChatbotPrompt

	reply ReplyFunc
	now   func() time.Time
	newID func() string
	pick  func(n int) int
}

type Option func(*Server)

// WithPersonalities replaces the stock catalog.
func WithPersonalities(items ...types.Personality) Option {
	return func(s *Server) {
		s.personalities = append([]types.Personality{}, items...)
	}
}

func WithReply(reply ReplyFunc) Option {
	return func(s *Server) {
		s.reply = reply
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Server) {
		s.newID = newID
	}
}

func WithPrompts(prompts ...types.ChatbotPrompt) Option {
	return func(s *Server) {
		s.prompts = append([]types.ChatbotPrompt{}, prompts...)
	}
}

// WithPromptPicker chooses which prompt a random-prompt request uses. pick
// receives the number of prompts and returns an index.
func WithPromptPicker(pick func(n int) int) Option {
	return func(s *Server) {
		s.pick = pick
	}
}

func NewServer(options ...Option) (*Server, error) {
	defaults, err := personality.DefaultPersonalities()
	if err != nil {
		return nil, errors.Wrap(err, "could not load stock personalities")
	}

	s := &Server{
		personalities: defaults,
		conversations: map[string]*types.Conversation{},
		prompts:       append([]types.ChatbotPrompt{}, defaultPrompts...),
		reply:         EchoReply,
		now:           time.Now,
		newID:         uuid.NewString,
		pick:          rand.Intn,
	}
	for _, option := range options {
		option(s)
	}
	return s, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:3000"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Post("/chat", s.handleChat)
	r.Post("/chat/random-prompt/{personalityID}", s.handleRandomPrompt)

	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", s.handleListConversations)
		r.Get("/{conversationID}", s.handleGetConversation)
	})

	r.Route("/personalities", func(r chi.Router) {
		r.Get("/", s.handleListPersonalities)
		r.Post("/", s.handleCreatePersonality)
		r.Post("/{personalityID}", s.handleUpsertPersonality)
		r.Delete("/{personalityID}", s.handleDeletePersonality)
	})

	r.Get("/prompts/chatbot-development", s.handleListPrompts)

	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("fake backend listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "fake backend forced to shut down")
	}
	log.Info().Msg("fake backend stopped")
	return nil
}

func (s *Server) personalityLocked(id string) (types.Personality, int, bool) {
	for i, p := range s.personalities {
		if p.ID == id {
			return p, i, true
		}
	}
	return types.Personality{}, -1, false
}

// converse runs one chat turn. An empty conversationID starts a new
// conversation. The user message is stored before the reply is requested and
// stays stored when the reply fails.
func (s *Server) converse(ctx context.Context, personalityID string, conversationID string, message string) (string, string, error) {
	if strings.TrimSpace(message) == "" {
		return "", "", &httpError{Status: http.StatusBadRequest, Detail: "Message cannot be empty"}
	}

	s.mu.Lock()
	p, _, ok := s.personalityLocked(personalityID)
	if !ok {
		s.mu.Unlock()
		return "", "", &httpError{Status: http.StatusBadRequest, Detail: "Invalid personality selected"}
	}

	var conv *types.Conversation
	if conversationID == "" {
		conv = &types.Conversation{
			ID:            s.newID(),
			PersonalityID: personalityID,
			CreatedAt:     types.NewTimestamp(s.now()),
		}
		s.conversations[conv.ID] = conv
		s.order = append(s.order, conv.ID)
	} else {
		conv, ok = s.conversations[conversationID]
		if !ok {
			s.mu.Unlock()
			return "", "", &httpError{Status: http.StatusNotFound, Detail: "Conversation not found"}
		}
	}

	s.appendLocked(conv, types.RoleUser, message)
	history := append([]types.Message{}, conv.Messages...)
	s.mu.Unlock()

	prompt, err := personality.EffectivePrompt(p, history)
	if err != nil {
		return "", "", &httpError{Status: http.StatusInternalServerError, Detail: "Server error: " + err.Error()}
	}

	reply, err := s.reply(ctx, p, prompt, message)
	if err != nil {
		return "", "", &httpError{Status: http.StatusInternalServerError, Detail: "Server error: " + err.Error()}
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", "", &httpError{Status: http.StatusInternalServerError, Detail: "Server error: empty response from model"}
	}

	s.mu.Lock()
	s.appendLocked(conv, types.RoleAssistant, reply)
	s.mu.Unlock()

	return reply, conv.ID, nil
}

func (s *Server) appendLocked(conv *types.Conversation, role types.Role, content string) {
	at := types.NewTimestamp(s.now())
	conv.Messages = append(conv.Messages, types.Message{
		ID:        s.newID(),
		Role:      role,
		Content:   content,
		CreatedAt: &at,
	})
}

// Conversation returns a copy of a stored conversation.
func (s *Server) Conversation(id string) (types.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return types.Conversation{}, false
	}
	c := *conv
	c.Messages = append([]types.Message{}, conv.Messages...)
	return c, true
}
