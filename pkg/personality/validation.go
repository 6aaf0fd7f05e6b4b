package personality

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/iguit0/ai-chatbot-personality/pkg/api"
	"github.com/iguit0/ai-chatbot-personality/pkg/types"
)

const (
	MaxDescriptionLength  = 200
	MaxSystemPromptLength = 500
	MinTrait              = 1
	MaxTrait              = 10
)

// Validate checks p against the limits the backend enforces.
func Validate(p types.Personality) error {
	if strings.TrimSpace(p.Name) == "" {
		return &api.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if n := utf8.RuneCountInString(p.Description); n > MaxDescriptionLength {
		return &api.ValidationError{Field: "description", Reason: fmt.Sprintf("is %d characters, at most %d allowed", n, MaxDescriptionLength)}
	}
	if n := utf8.RuneCountInString(p.SystemPrompt); n > MaxSystemPromptLength {
		return &api.ValidationError{Field: "systemPrompt", Reason: fmt.Sprintf("is %d characters, at most %d allowed", n, MaxSystemPromptLength)}
	}
	traits := []struct {
		field string
		value int
	}{
		{"tone", p.Tone},
		{"verbosity", p.Verbosity},
		{"creativity", p.Creativity},
		{"formality", p.Formality},
	}
	for _, t := range traits {
		if t.value < MinTrait || t.value > MaxTrait {
			return &api.ValidationError{Field: t.field, Reason: fmt.Sprintf("must be between %d and %d, got %d", MinTrait, MaxTrait, t.value)}
		}
	}
	return nil
}
