package cmds

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewPromptsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "List the prompts offered for starting a conversation",
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

			prompts, err := a.client.ListChatbotPrompts(ctx)
			if err != nil {
				return err
			}

			output, _ := cmd.Flags().GetString("output")
			if output != "text" {
				return writeStructured(cmd.OutOrStdout(), output, prompts)
			}
			for _, p := range prompts {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-14s %s\n", p.ID, p.Category, p.Prompt); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "text", "Output format (text, yaml, json)")
	return cmd
}
