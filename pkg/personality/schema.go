package personality

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iguit0/ai-chatbot-personality/pkg/api"
	"github.com/iguit0/ai-chatbot-personality/pkg/casing"
	"github.com/iguit0/ai-chatbot-personality/pkg/types"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Schema is the JSON schema of a single personality document.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
		AllowAdditionalProperties:  true,
	}
	schema := reflector.Reflect(&types.Personality{})
	// gojsonschema only knows drafts up to 7, keep the document self-contained
	schema.Version = ""
	schema.ID = ""
	if schema.Type == "" {
		schema.Type = "object"
	}
	return schema
}

func SchemaJSON() ([]byte, error) {
	return json.MarshalIndent(Schema(), "", "  ")
}

// ValidateDocument parses a YAML or JSON document holding one personality, a
// list of personalities, or a {personalities: [...]} envelope, checks every
// entry against Schema and returns the decoded personalities. Keys in the wire
// convention (system_prompt) are accepted as well.
func ValidateDocument(raw []byte) ([]types.Personality, error) {
	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, &api.ValidationError{Field: "document", Reason: err.Error()}
	}
	doc = casing.ToInternal(doc)

	var entries []interface{}
	switch v := doc.(type) {
	case []interface{}:
		entries = v
	case map[string]interface{}:
		if list, ok := v["personalities"].([]interface{}); ok {
			entries = list
		} else {
			entries = []interface{}{v}
		}
	default:
		return nil, &api.ValidationError{Field: "document", Reason: "expected a personality or a list of personalities"}
	}
	if len(entries) == 0 {
		return nil, &api.ValidationError{Field: "document", Reason: "no personality found"}
	}

	schemaJSON, err := SchemaJSON()
	if err != nil {
		return nil, errors.Wrap(err, "could not build personality schema")
	}
	schemaLoader := gojsonschema.NewBytesLoader(schemaJSON)

	out := make([]types.Personality, 0, len(entries))
	for i, entry := range entries {
		result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(entry))
		if err != nil {
			return nil, errors.Wrapf(err, "could not validate personality %d", i)
		}
		if !result.Valid() {
			var descriptions []string
			for _, desc := range result.Errors() {
				descriptions = append(descriptions, desc.String())
			}
			return nil, &api.ValidationError{
				Field:  fmt.Sprintf("personalities[%d]", i),
				Reason: strings.Join(descriptions, "; "),
			}
		}

		b, err := json.Marshal(entry)
		if err != nil {
			return nil, err
		}
		var p types.Personality
		if err := json.Unmarshal(b, &p); err != nil {
			return nil, &api.ValidationError{Field: fmt.Sprintf("personalities[%d]", i), Reason: err.Error()}
		}
		out = append(out, p)
	}
	return out, nil
}
