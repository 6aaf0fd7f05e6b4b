// Package settings holds the client configuration shared by the CLI commands
// and knows how to turn it into a gateway client and a personality repository.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/huandu/go-clone"
	"github.com/iguit0/ai-chatbot-personality/pkg/api"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	StoreRemote = "remote"
	StoreMemory = "memory"
	StoreBolt   = "bolt"
	StoreSQLite = "sqlite"
)

const DefaultBaseURL = "http://localhost:8000"

type RenderSettings struct {
	// Markdown is one of auto, always, never. auto renders when stdout is a
	// terminal.
	Markdown string `yaml:"markdown" mapstructure:"markdown"`
	Style    string `yaml:"style" mapstructure:"style"`
	WordWrap int    `yaml:"word-wrap" mapstructure:"word-wrap"`
}

type ClientSettings struct {
	BaseURL   string        `yaml:"base-url" mapstructure:"base-url"`
	Timeout   time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
	UserAgent string        `yaml:"user-agent,omitempty" mapstructure:"user-agent"`
	DenyHTTP  bool          `yaml:"deny-http,omitempty" mapstructure:"deny-http"`

	PersonalityStore string `yaml:"personality-store" mapstructure:"personality-store"`
	StorePath        string `yaml:"store-path,omitempty" mapstructure:"store-path"`
	// Personality is selected on startup when the catalog contains it.
	Personality string `yaml:"personality,omitempty" mapstructure:"personality"`

	Render RenderSettings `yaml:"render" mapstructure:"render"`
}

func NewClientSettings() *ClientSettings {
	return &ClientSettings{
		BaseURL:          DefaultBaseURL,
		PersonalityStore: StoreRemote,
		Render: RenderSettings{
			Markdown: "auto",
			Style:    "dark",
			WordWrap: 100,
		},
	}
}

func (s *ClientSettings) Clone() *ClientSettings {
	return clone.Clone(s).(*ClientSettings)
}

// SetDefaults registers the defaults of NewClientSettings on v.
func SetDefaults(v *viper.Viper) {
	d := NewClientSettings()
	v.SetDefault("base-url", d.BaseURL)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("personality-store", d.PersonalityStore)
	v.SetDefault("render.markdown", d.Render.Markdown)
	v.SetDefault("render.style", d.Render.Style)
	v.SetDefault("render.word-wrap", d.Render.WordWrap)
}

// Load decodes the settings held by v on top of the defaults.
func Load(v *viper.Viper) (*ClientSettings, error) {
	s := NewClientSettings()
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "could not decode settings")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ClientSettings) Validate() error {
	if s.BaseURL == "" {
		return &api.ValidationError{Field: "base-url", Reason: "is required"}
	}
	if s.Timeout < 0 {
		return &api.ValidationError{Field: "timeout", Reason: "must not be negative"}
	}
	switch s.PersonalityStore {
	case StoreRemote, StoreMemory, StoreBolt, StoreSQLite:
	default:
		return &api.ValidationError{
			Field:  "personality-store",
			Reason: fmt.Sprintf("unknown store %q, expected one of remote, memory, bolt, sqlite", s.PersonalityStore),
		}
	}
	switch s.Render.Markdown {
	case "auto", "always", "never":
	default:
		return &api.ValidationError{Field: "render.markdown", Reason: fmt.Sprintf("unknown mode %q", s.Render.Markdown)}
	}
	return nil
}

// ResolvedStorePath is StorePath, or a file under the user config directory
// for the local persistent stores.
func (s *ClientSettings) ResolvedStorePath() (string, error) {
	if s.StorePath != "" {
		return s.StorePath, nil
	}
	var name string
	switch s.PersonalityStore {
	case StoreBolt:
		name = "personalities.bolt"
	case StoreSQLite:
		name = "personalities.db"
	default:
		return "", nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ConfigDir is the per-user directory of the client.
func ConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "could not determine user config directory")
	}
	return filepath.Join(dir, "persona-chat"), nil
}

// NewAPIClient builds the gateway client described by s.
func (s *ClientSettings) NewAPIClient() (*api.Client, error) {
	options := []api.ClientOption{
		api.WithTimeout(s.Timeout),
		api.WithBaseURLOptions(api.BaseURLOptions{DenyHTTP: s.DenyHTTP}),
	}
	if s.UserAgent != "" {
		options = append(options, api.WithUserAgent(s.UserAgent))
	}
	return api.NewClient(s.BaseURL, options...)
}
