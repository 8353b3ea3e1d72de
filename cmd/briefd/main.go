package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "briefd",
	Short: "Retrieval-augmented briefing assistant for wealth management",
	Long: `briefd answers advisor questions from a curated knowledge base of
financial data, trust documents, and company policies. It retrieves and
reranks supporting passages, reasons over them with a tool-calling model,
and cites its sources.

Run "briefd start" to launch the daemon, then "briefd chat" to talk to it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the briefd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("briefd version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
