package cmds

import (
	"fmt"
	"io"
	"os"

	"github.com/iguit0/ai-chatbot-personality/pkg/api"
	"github.com/iguit0/ai-chatbot-personality/pkg/personality"
	"github.com/iguit0/ai-chatbot-personality/pkg/settings"
	"github.com/iguit0/ai-chatbot-personality/pkg/types"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tcnksm/go-input"
)

func NewPersonalitiesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "personalities",
		Aliases: []string{"personality", "p"},
		Short:   "Manage the personality catalog",
	}

	cmd.AddCommand(newPersonalitiesListCommand())
	cmd.AddCommand(newPersonalitiesShowCommand())
	cmd.AddCommand(newPersonalitiesSelectCommand())
	cmd.AddCommand(newPersonalitiesCreateCommand())
	cmd.AddCommand(newPersonalitiesUpdateCommand())
	cmd.AddCommand(newPersonalitiesDeleteCommand())
	cmd.AddCommand(newPersonalitiesSchemaCommand())
	cmd.AddCommand(newPersonalitiesImportCommand())
	return cmd
}

// withDirectory opens the app, loads the catalog and runs f.
func withDirectory(cmd *cobra.Command, f func(a *app) error) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close()
	}()
	if _, err := a.directory.List(cmd.Context()); err != nil {
		return err
	}
	return f(a)
}

func formUI(cmd *cobra.Command) *input.UI {
	return &input.UI{
		Writer: cmd.OutOrStdout(),
		Reader: cmd.InOrStdin(),
	}
}

func newPersonalitiesListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List personalities; the selected one is marked with *",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDirectory(cmd, func(a *app) error {
				items, err := a.directory.List(cmd.Context())
				if err != nil {
					return err
				}
				output, _ := cmd.Flags().GetString("output")
				if output != "text" {
					return writeStructured(cmd.OutOrStdout(), output, items)
				}
				r, err := a.renderer(cmd.OutOrStdout())
				if err != nil {
					return err
				}
				return r.Personalities(items, a.directory.SelectedID())
			})
		},
	}
	cmd.Flags().StringP("output", "o", "text", "Output format (text, yaml, json)")
	return cmd
}

func newPersonalitiesShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a personality",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDirectory(cmd, func(a *app) error {
				p, ok := a.directory.Get(args[0])
				if !ok {
					return &api.NotFoundError{Resource: "personality", ID: args[0]}
				}
				if showPrompt, _ := cmd.Flags().GetBool("prompt"); showPrompt {
					prompt, err := personality.EffectivePrompt(p, nil)
					if err != nil {
						return err
					}
					_, err = io.WriteString(cmd.OutOrStdout(), prompt)
					return err
				}
				return writeStructured(cmd.OutOrStdout(), "yaml", p)
			})
		},
	}
	cmd.Flags().Bool("prompt", false, "Print the effective system prompt instead")
	return cmd
}

func newPersonalitiesSelectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "select <id>",
		Short: "Make a personality the default for chat and send",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDirectory(cmd, func(a *app) error {
				if err := a.directory.Select(args[0]); err != nil {
					return err
				}

				configFile := viper.ConfigFileUsed()
				if configFile == "" {
					var err error
					configFile, err = settings.DefaultConfigFile()
					if err != nil {
						return err
					}
				}
				if err := settings.SetConfigValue(configFile, "personality", args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Selected %s (saved to %s).\n", args[0], configFile)
				return err
			})
		},
	}
}

func addPersonalityFlags(flags *pflag.FlagSet) {
	flags.String("name", "", "Display name")
	flags.String("description", "", "Short description")
	flags.String("system-prompt", "", "System prompt")
	flags.Int("tone", 5, "Tone, 1 to 10")
	flags.Int("verbosity", 5, "Verbosity, 1 to 10")
	flags.Int("creativity", 5, "Creativity, 1 to 10")
	flags.Int("formality", 5, "Formality, 1 to 10")
}

// personalityFromFlags applies the flags the user set on top of base and
// reports whether any was set. Traits that are unset on both sides take the
// flag default.
func personalityFromFlags(flags *pflag.FlagSet, base types.Personality) (types.Personality, bool) {
	p := base
	changed := false

	texts := map[string]*string{
		"name":          &p.Name,
		"description":   &p.Description,
		"system-prompt": &p.SystemPrompt,
	}
	for name, dst := range texts {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
			changed = true
		}
	}

	traits := map[string]*int{
		"tone":       &p.Tone,
		"verbosity":  &p.Verbosity,
		"creativity": &p.Creativity,
		"formality":  &p.Formality,
	}
	for name, dst := range traits {
		if flags.Changed(name) {
			changed = true
		}
		if flags.Changed(name) || *dst == 0 {
			*dst, _ = flags.GetInt(name)
		}
	}
	return p, changed
}

func newPersonalitiesCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a personality from flags, or interactively when none are given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDirectory(cmd, func(a *app) error {
				p, changed := personalityFromFlags(cmd.Flags(), types.Personality{})
				if !changed {
					var err error
					p, err = askPersonality(formUI(cmd), p)
					if err != nil {
						return err
					}
				}
				p.ID, _ = cmd.Flags().GetString("id")

				created, err := a.directory.Create(cmd.Context(), p)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Created personality %s.\n", created.ID)
				return err
			})
		},
	}
	addPersonalityFlags(cmd.Flags())
	cmd.Flags().String("id", "", "Id of the new personality (derived from the name when empty)")
	return cmd
}

func newPersonalitiesUpdateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a personality from flags, or interactively when none are given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDirectory(cmd, func(a *app) error {
				current, ok := a.directory.Get(args[0])
				if !ok {
					return &api.NotFoundError{Resource: "personality", ID: args[0]}
				}

				p, changed := personalityFromFlags(cmd.Flags(), current)
				if !changed {
					var err error
					p, err = askPersonality(formUI(cmd), current)
					if err != nil {
						return err
					}
				}

				if err := a.directory.Update(cmd.Context(), args[0], p); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Updated personality %s.\n", args[0])
				return err
			})
		},
	}
	addPersonalityFlags(cmd.Flags())
	return cmd
}

func newPersonalitiesDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a personality",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDirectory(cmd, func(a *app) error {
				if _, ok := a.directory.Get(args[0]); !ok {
					return &api.NotFoundError{Resource: "personality", ID: args[0]}
				}
				if yes, _ := cmd.Flags().GetBool("yes"); !yes {
					ok, err := confirm(formUI(cmd), fmt.Sprintf("Delete personality %s?", args[0]))
					if err != nil {
						return err
					}
					if !ok {
						return nil
					}
				}
				if err := a.directory.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted personality %s.\n", args[0])
				return err
			})
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newPersonalitiesSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of personality documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := personality.SchemaJSON()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
}

func newPersonalitiesImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Create or update personalities from a YAML or JSON document (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw []byte
			var err error
			if args[0] == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			items, err := personality.ValidateDocument(raw)
			if err != nil {
				return err
			}

			return withDirectory(cmd, func(a *app) error {
				return importPersonalities(cmd, a.directory, items)
			})
		},
	}
}

func importPersonalities(cmd *cobra.Command, d *personality.Directory, items []types.Personality) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	for _, p := range items {
		if p.ID != "" {
			if _, ok := d.Get(p.ID); ok {
				if err := d.Update(ctx, p.ID, p); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(out, "Updated %s.\n", p.ID)
				continue
			}
		}
		created, err := d.Create(ctx, p)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Created %s.\n", created.ID)
	}
	return nil
}
