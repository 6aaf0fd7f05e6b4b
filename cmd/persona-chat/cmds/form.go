package cmds

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/iguit0/ai-chatbot-personality/pkg/personality"
	"github.com/iguit0/ai-chatbot-personality/pkg/types"
	"github.com/tcnksm/go-input"
)

// askPersonality walks through every field of a personality, offering the
// values of base as defaults.
func askPersonality(ui *input.UI, base types.Personality) (types.Personality, error) {
	p := base
	var err error

	p.Name, err = ui.Ask("Name", &input.Options{
		Default:   base.Name,
		Required:  true,
		Loop:      true,
		HideOrder: true,
		ValidateFunc: func(answer string) error {
			if strings.TrimSpace(answer) == "" {
				return fmt.Errorf("name must not be blank")
			}
			return nil
		},
	})
	if err != nil {
		return p, err
	}

	p.Description, err = ui.Ask("Description", &input.Options{
		Default:      base.Description,
		Loop:         true,
		HideOrder:    true,
		ValidateFunc: maxRunes(personality.MaxDescriptionLength),
	})
	if err != nil {
		return p, err
	}

	p.SystemPrompt, err = ui.Ask("System prompt", &input.Options{
		Default:      base.SystemPrompt,
		Required:     true,
		Loop:         true,
		HideOrder:    true,
		ValidateFunc: maxRunes(personality.MaxSystemPromptLength),
	})
	if err != nil {
		return p, err
	}

	traits := []struct {
		query string
		value *int
	}{
		{"Tone, higher is more friendly", &p.Tone},
		{"Verbosity, higher is more detailed", &p.Verbosity},
		{"Creativity, higher is more creative", &p.Creativity},
		{"Formality, higher is more formal", &p.Formality},
	}
	for _, trait := range traits {
		v, err := askTrait(ui, trait.query, *trait.value)
		if err != nil {
			return p, err
		}
		*trait.value = v
	}

	return p, personality.Validate(p)
}

func askTrait(ui *input.UI, query string, current int) (int, error) {
	def := current
	if def < personality.MinTrait || def > personality.MaxTrait {
		def = 5
	}
	answer, err := ui.Ask(fmt.Sprintf("%s (%d-%d)", query, personality.MinTrait, personality.MaxTrait), &input.Options{
		Default:      strconv.Itoa(def),
		Required:     true,
		Loop:         true,
		HideOrder:    true,
		ValidateFunc: traitValue,
	})
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(answer))
}

func traitValue(answer string) error {
	v, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil {
		return fmt.Errorf("please enter a whole number")
	}
	if v < personality.MinTrait || v > personality.MaxTrait {
		return fmt.Errorf("please enter a value between %d and %d", personality.MinTrait, personality.MaxTrait)
	}
	return nil
}

func maxRunes(n int) input.ValidateFunc {
	return func(answer string) error {
		if len([]rune(answer)) > n {
			return fmt.Errorf("must be at most %d characters", n)
		}
		return nil
	}
}

// confirm asks a yes/no question, defaulting to no.
func confirm(ui *input.UI, query string) (bool, error) {
	answer, err := ui.Ask(query+" [y/n]", &input.Options{
		Default:   "n",
		Required:  true,
		Loop:      true,
		HideOrder: true,
		ValidateFunc: func(answer string) error {
			switch answer {
			case "y", "Y", "n", "N":
				return nil
			default:
				return fmt.Errorf("please enter 'y' or 'n'")
			}
		},
	})
	if err != nil {
		return false, err
	}
	return answer == "y" || answer == "Y", nil
}
