package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "cvextract",
	Short: "Upload resumes, OCR them and extract candidate data with an LLM",
	Long: `cvextract runs the document extraction backend and talks to it.

Local commands (serve, mcp, prompts seed, config) use the configuration of
this machine. The other commands call a running server at client.api_url.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(ocrCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(documentsCmd)
	rootCmd.AddCommand(promptsCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
