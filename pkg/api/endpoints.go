package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/iguit0/ai-chatbot-personality/pkg/casing"
	"github.com/iguit0/ai-chatbot-personality/pkg/types"
	"github.com/pkg/errors"
)

// ChatRequest is the body of POST /chat. ConversationID is nil for the first
// turn of a fresh conversation and is sent as null.
type ChatRequest struct {
	Message        string  `json:"message"`
	PersonalityID  string  `json:"personalityId"`
	ConversationID *string `json:"conversationId"`
}

// ChatResponse is returned by POST /chat and POST /chat/random-prompt/{id}.
type ChatResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversationId"`
}

type personalitiesEnvelope struct {
	Personalities []types.Personality `json:"personalities"`
}

type promptsEnvelope struct {
	Prompts []types.ChatbotPrompt `json:"prompts"`
}

// ListOptions controls pagination and ordering of the conversation listing.
// Zero values are left out of the query so the backend defaults apply.
type ListOptions struct {
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

const (
	SortByCreatedAt   = "created_at"
	SortByPersonality = "personality"
	SortOrderAsc      = "asc"
	SortOrderDesc     = "desc"
)

// Validate mirrors the checks the backend performs on the listing parameters.
func (o ListOptions) Validate() error {
	if o.Page < 0 {
		return &ValidationError{Field: "page", Reason: "must be >= 1"}
	}
	if o.PageSize < 0 {
		return &ValidationError{Field: "pageSize", Reason: "must be >= 1"}
	}
	switch o.SortBy {
	case "", SortByCreatedAt, SortByPersonality:
	default:
		return &ValidationError{Field: "sortBy", Reason: fmt.Sprintf("unsupported sort field %q", o.SortBy)}
	}
	switch o.SortOrder {
	case "", SortOrderAsc, SortOrderDesc:
	default:
		return &ValidationError{Field: "sortOrder", Reason: fmt.Sprintf("unsupported sort order %q", o.SortOrder)}
	}
	return nil
}

func (o ListOptions) query() string {
	q := url.Values{}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(o.PageSize))
	}
	if o.SortBy != "" {
		q.Set("sort_by", o.SortBy)
	}
	if o.SortOrder != "" {
		q.Set("sort_order", o.SortOrder)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return c.chat(ctx, "/chat", req)
}

// RandomPrompt asks the backend to start a new conversation from a prompt of
// its choosing.
func (c *Client) RandomPrompt(ctx context.Context, personalityID string) (*ChatResponse, error) {
	if personalityID == "" {
		return nil, &ValidationError{Field: "personalityId", Reason: "is required"}
	}
	return c.chat(ctx, "/chat/random-prompt/"+url.PathEscape(personalityID), nil)
}

// chat posts to a chat endpoint. A success body without a string response
// field is a *TransportError.
func (c *Client) chat(ctx context.Context, path string, body interface{}) (*ChatResponse, error) {
	tree, err := c.Send(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	m, ok := tree.(map[string]interface{})
	if !ok {
		return nil, &TransportError{Op: "decode response", URL: c.resolve(path), Err: errors.Errorf("chat response is %T, not an object", tree)}
	}
	if _, ok := m["response"].(string); !ok {
		return nil, &TransportError{Op: "decode response", URL: c.resolve(path), Err: errors.New("chat response has no response field")}
	}

	resp := &ChatResponse{}
	if err := casing.Into(m, resp); err != nil {
		return nil, &TransportError{Op: "decode response", URL: c.resolve(path), Err: err}
	}
	return resp, nil
}

// GetConversation fetches a conversation record. An unknown id is reported as
// *NotFoundError.
func (c *Client) GetConversation(ctx context.Context, id string) (*types.Conversation, error) {
	if id == "" {
		return nil, &ValidationError{Field: "id", Reason: "is required"}
	}
	conv := &types.Conversation{}
	err := c.Do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(id), nil, conv)
	if err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return nil, &NotFoundError{Resource: "conversation", ID: id}
		}
		return nil, err
	}
	return conv, nil
}

func (c *Client) ListConversations(ctx context.Context, opts ListOptions) (*types.ConversationPage, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	page := &types.ConversationPage{}
	if err := c.Do(ctx, http.MethodGet, "/conversations"+opts.query(), nil, page); err != nil {
		return nil, err
	}
	return page, nil
}

func (c *Client) ListPersonalities(ctx context.Context) ([]types.Personality, error) {
	env := &personalitiesEnvelope{}
	if err := c.Do(ctx, http.MethodGet, "/personalities", nil, env); err != nil {
		return nil, err
	}
	return env.Personalities, nil
}

func (c *Client) CreatePersonality(ctx context.Context, p types.Personality) error {
	return c.Do(ctx, http.MethodPost, "/personalities", p, nil)
}

// UpsertPersonality creates or replaces the personality stored under id.
func (c *Client) UpsertPersonality(ctx context.Context, id string, p types.Personality) error {
	if id == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	err := c.Do(ctx, http.MethodPost, "/personalities/"+url.PathEscape(id), p, nil)
	return err
}

func (c *Client) DeletePersonality(ctx context.Context, id string) error {
	if id == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	err := c.Do(ctx, http.MethodDelete, "/personalities/"+url.PathEscape(id), nil, nil)
	if IsStatus(err, http.StatusNotFound) {
		return &NotFoundError{Resource: "personality", ID: id}
	}
	return err
}

func (c *Client) ListChatbotPrompts(ctx context.Context) ([]types.ChatbotPrompt, error) {
	env := &promptsEnvelope{}
	if err := c.Do(ctx, http.MethodGet, "/prompts/chatbot-development", nil, env); err != nil {
		return nil, err
	}
	return env.Prompts, nil
}
