// Package cmd wires configuration, storage, providers and the HTTP server
// into runnable commands.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"chatllm/internal/log"
)

var (
	debugFlag   bool
	jsonLogFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "chatllm",
	Short: "Retrieval-augmented conversational assistant backend",
	Long: `chatllm serves a REST API for conversations with an LLM, grounded in
documents the caller uploads. Uploaded files are chunked, embedded and stored
in PostgreSQL with pgvector; completions can pull in the nearest chunks as
context. Provider endpoint and credentials are chosen per request.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogFlag, "json-logs", false, "write logs as JSON")
}

// newLogger builds the process logger from the global flags.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if debugFlag {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: jsonLogFlag})
}
