package commands

import (
	"encoding/json"
	"fmt"
	goruntime "runtime"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-bridge/cmd/pebble-bridge/output"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			return json.NewEncoder(output.Out).Encode(map[string]string{
				"version": Version,
				"go":      goruntime.Version(),
			})
		}
		_, err := fmt.Fprintf(output.Out, "pebble-bridge %s (%s)\n", Version, goruntime.Version())
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
