package personality

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/iguit0/ai-chatbot-personality/pkg/types"
	"github.com/pkg/errors"
)

const effectivePromptTemplate = `{{ .SystemPrompt | trim }}

Tone: {{ .Tone }}/10 (higher is more friendly)
Verbosity: {{ .Verbosity }}/10 (higher is more detailed)
Creativity: {{ .Creativity }}/10 (higher is more creative)
Formality: {{ .Formality }}/10 (higher is more formal)

Conversation History:
{{ range .History }}{{ if eq .Role "user" }}USER{{ else }}ASSISTANT{{ end }}: {{ .Content | trim }}
{{ end }}`

var effectivePrompt = template.Must(template.New("effectivePrompt").Funcs(sprig.TxtFuncMap()).Parse(effectivePromptTemplate))

// EffectivePrompt renders the system preamble a personality contributes to a
// model call, followed by the conversation history so far.
func EffectivePrompt(p types.Personality, history []types.Message) (string, error) {
	data := struct {
		types.Personality
		History []types.Message
	}{
		Personality: p,
		History:     history,
	}

	var buf bytes.Buffer
	if err := effectivePrompt.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "could not render prompt for personality %q", p.ID)
	}
	return strings.TrimRight(buf.String(), "\n") + "\n", nil
}
