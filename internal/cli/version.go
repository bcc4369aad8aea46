package cli

import (
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the supportbot version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("supportbot version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
