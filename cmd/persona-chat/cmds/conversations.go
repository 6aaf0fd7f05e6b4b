package cmds

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/iguit0/ai-chatbot-personality/pkg/api"
	"github.com/iguit0/ai-chatbot-personality/pkg/conversation"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewConversationsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "Browse past conversations",
	}
	cmd.PersistentFlags().StringP("output", "o", "text", "Output format (text, yaml, json)")

	cmd.AddCommand(newConversationsListCommand())
	cmd.AddCommand(newConversationsShowCommand())
	return cmd
}

func newConversationsListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List past conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() {
				_ = a.Close()
			}()

			opts := api.ListOptions{}
			opts.Page, _ = cmd.Flags().GetInt("page")
			opts.PageSize, _ = cmd.Flags().GetInt("page-size")
			opts.SortBy, _ = cmd.Flags().GetString("sort-by")
			opts.SortOrder, _ = cmd.Flags().GetString("sort-order")

			index := conversation.NewIndex(a.client, conversation.WithListOptions(opts))
			items, err := index.Refresh(ctx)
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
			return r.Summaries(items, index.Total())
		},
	}
	cmd.Flags().Int("page", 0, "Page number, starting at 1")
	cmd.Flags().Int("page-size", 0, "Conversations per page")
	cmd.Flags().String("sort-by", "", "Sort field (created_at, personality)")
	cmd.Flags().String("sort-order", "", "Sort order (asc, desc)")
	return cmd
}

func newConversationsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() {
				_ = a.Close()
			}()

			conv, err := a.client.GetConversation(ctx, args[0])
			if err != nil {
				return err
			}

			output, _ := cmd.Flags().GetString("output")
			if output != "text" {
				return writeStructured(cmd.OutOrStdout(), output, conv)
			}
			r, err := a.renderer(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if _, err := a.directory.List(ctx); err == nil {
				if p, ok := a.directory.Get(conv.PersonalityID); ok {
					r.SetAssistantName(p.Name)
				}
			}
			return r.Conversation(conv)
		},
	}
}

func writeStructured(out io.Writer, format string, v interface{}) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
