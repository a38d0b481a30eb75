package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spigell/nexhire/internal/ai"
)

// Actual version can be specified in build command.
var version = "unknown"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("%s version: %s (%s)\n", app, version, runtime.Version())
		fmt.Printf("default models: %s\n", strings.Join(ai.DefaultModels, ", "))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
