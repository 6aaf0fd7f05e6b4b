package fakebackend

import (
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/iguit0/ai-chatbot-personality/pkg/api"
	"github.com/iguit0/ai-chatbot-personality/pkg/casing"
	"github.com/iguit0/ai-chatbot-personality/pkg/personality"
	"github.com/iguit0/ai-chatbot-personality/pkg/types"
)

type personalitiesResponse struct {
	Personalities []types.Personality `json:"personalities"`
}

type promptsResponse struct {
	Prompts []types.ChatbotPrompt `json:"prompts"`
}

func decodeBody(r *http.Request, out interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return &httpError{Status: http.StatusBadRequest, Detail: "could not read request body"}
	}
	if err := casing.UnmarshalInternal(body, out); err != nil {
		return &httpError{Status: http.StatusUnprocessableEntity, Detail: "invalid request body: " + err.Error()}
	}
	return nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	conversationID := ""
	if req.ConversationID != nil {
		conversationID = *req.ConversationID
	}

	reply, id, err := s.converse(r.Context(), req.PersonalityID, conversationID, req.Message)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, api.ChatResponse{Response: reply, ConversationID: id})
}

func (s *Server) handleRandomPrompt(w http.ResponseWriter, r *http.Request) {
	personalityID := chi.URLParam(r, "personalityID")

	s.mu.Lock()
	_, _, ok := s.personalityLocked(personalityID)
	var prompt types.ChatbotPrompt
	if ok && len(s.prompts) > 0 {
		prompt = s.prompts[s.pick(len(s.prompts))]
	}
	n := len(s.prompts)
	s.mu.Unlock()

	if !ok {
		respondError(w, &httpError{Status: http.StatusBadRequest, Detail: "Invalid personality selected"})
		return
	}
	if n == 0 {
		respondError(w, &httpError{Status: http.StatusInternalServerError, Detail: "No prompts available"})
		return
	}

	reply, id, err := s.converse(r.Context(), personalityID, "", prompt.Prompt)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, api.ChatResponse{Response: reply, ConversationID: id})
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &httpError{Status: http.StatusUnprocessableEntity, Detail: "Invalid integer for " + name}
	}
	return v, nil
}

func queryString(r *http.Request, name string, fallback string) string {
	if v := r.URL.Query().Get(name); v != "" {
		return v
	}
	return fallback
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		respondError(w, err)
		return
	}
	pageSize, err := queryInt(r, "page_size", 10)
	if err != nil {
		respondError(w, err)
		return
	}
	sortBy := queryString(r, "sort_by", api.SortByCreatedAt)
	sortOrder := queryString(r, "sort_order", api.SortOrderDesc)

	if page < 1 || pageSize < 1 {
		respondError(w, &httpError{Status: http.StatusBadRequest, Detail: "Invalid pagination parameters"})
		return
	}
	if sortBy != api.SortByCreatedAt && sortBy != api.SortByPersonality {
		respondError(w, &httpError{Status: http.StatusBadRequest, Detail: "Invalid sort field"})
		return
	}
	if sortOrder != api.SortOrderAsc && sortOrder != api.SortOrderDesc {
		respondError(w, &httpError{Status: http.StatusBadRequest, Detail: "Invalid sort order"})
		return
	}

	s.mu.Lock()
	all := make([]types.ConversationSummary, 0, len(s.order))
	for _, id := range s.order {
		c := s.conversations[id]
		all = append(all, types.ConversationSummary{ID: c.ID, PersonalityID: c.PersonalityID, CreatedAt: c.CreatedAt})
	}
	s.mu.Unlock()

	less := func(a, b types.ConversationSummary) bool {
		if sortBy == api.SortByPersonality {
			return a.PersonalityID < b.PersonalityID
		}
		return a.CreatedAt.Before(b.CreatedAt.Time)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if sortOrder == api.SortOrderDesc {
			return less(all[j], all[i])
		}
		return less(all[i], all[j])
	})

	offset := (page - 1) * pageSize
	items := []types.ConversationSummary{}
	if offset < len(all) {
		end := offset + pageSize
		if end > len(all) {
			end = len(all)
		}
		items = all[offset:end]
	}

	respondJSON(w, http.StatusOK, types.ConversationPage{
		Conversations: items,
		Total:         len(all),
		Page:          page,
		PageSize:      pageSize,
	})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.Conversation(chi.URLParam(r, "conversationID"))
	if !ok {
		respondError(w, &httpError{Status: http.StatusNotFound, Detail: "Conversation not found"})
		return
	}
	if conv.Messages == nil {
		conv.Messages = []types.Message{}
	}
	respondJSON(w, http.StatusOK, conv)
}

func (s *Server) handleListPersonalities(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	items := append([]types.Personality{}, s.personalities...)
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, personalitiesResponse{Personalities: items})
}

func decodePersonality(r *http.Request) (types.Personality, error) {
	var p types.Personality
	if err := decodeBody(r, &p); err != nil {
		return p, err
	}
	if err := personality.Validate(p); err != nil {
		return p, &httpError{Status: http.StatusUnprocessableEntity, Detail: err.Error()}
	}
	return p, nil
}

func (s *Server) handleCreatePersonality(w http.ResponseWriter, r *http.Request) {
	p, err := decodePersonality(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if p.ID == "" {
		respondError(w, &httpError{Status: http.StatusUnprocessableEntity, Detail: "id is required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, _, exists := s.personalityLocked(p.ID); exists {
		respondError(w, &httpError{Status: http.StatusConflict, Detail: "Personality already exists"})
		return
	}
	s.personalities = append(s.personalities, p)
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleUpsertPersonality(w http.ResponseWriter, r *http.Request) {
	p, err := decodePersonality(r)
	if err != nil {
		respondError(w, err)
		return
	}
	p.ID = chi.URLParam(r, "personalityID")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, i, exists := s.personalityLocked(p.ID); exists {
		s.personalities[i] = p
	} else {
		s.personalities = append(s.personalities, p)
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePersonality(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "personalityID")

	s.mu.Lock()
	defer s.mu.Unlock()
	_, i, exists := s.personalityLocked(id)
	if !exists {
		respondError(w, &httpError{Status: http.StatusNotFound, Detail: "Personality not found"})
		return
	}
	s.personalities = append(s.personalities[:i], s.personalities[i+1:]...)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPrompts(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	prompts := append([]types.ChatbotPrompt{}, s.prompts...)
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, promptsResponse{Prompts: prompts})
}
