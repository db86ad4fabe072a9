package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/park285/cheese-analyzer/internal/dispatch"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the command tool schema as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		tools, err := dispatch.Tools()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(tools)
	},
}

