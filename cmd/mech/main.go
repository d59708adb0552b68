// Package main provides the CLI entry point for the MECH orchestration
// core: a standalone driver for the streaming, tool-aware agent loop
// described by the Overseer/MECH architecture.
//
// # Basic Usage
//
// Run a single task to completion:
//
//	mech run --input "summarize today's notes"
//
// Run continuously, looping until task_complete/task_fatal_error fires:
//
//	mech run --input "monitor the inbox" --loop
//
// List the tools a fresh agent would be given:
//
//	mech tools list
//
// # Environment Variables
//
//   - AI_NAME: display name of the Overseer
//   - YOUR_NAME: display name of the human
//   - PROCESS_ID: task identifier
//   - OPENAI_API_KEY, ANTHROPIC_API_KEY, GOOGLE_API_KEY, BRAVE_API_KEY, OPENROUTER_API_KEY
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "mech",
		Short:   "MECH orchestration core: a streaming, tool-aware agent loop",
		Version: fmt.Sprintf("%s (%s)", version, commit),
	}
	cmd.AddCommand(
		buildRunCmd(),
		buildToolsCmd(),
		buildHistoryCmd(),
	)
	return cmd
}
