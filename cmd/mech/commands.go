// commands.go contains the cobra command definitions and their flag
// configurations. Each command builder function creates a command and
// wires it to its run function.
package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Run Command
// =============================================================================

func buildRunCmd() *cobra.Command {
	var (
		configPath string
		input      string
		loop       bool
		fixedModel string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the MECH driver on a single input",
		Long: `Run the MECH driver loop:

1. Load configuration (file + environment).
2. Build an Agent with the built-in memory tools.
3. Drive runMECH to completion, printing each streaming event as it arrives.

With --loop, the driver keeps iterating after each turn until task_complete
or task_fatal_error fires, instead of stopping after one iteration.`,
		Example: `  # Run a single task to completion
  mech run --input "summarize today's notes"

  # Run continuously with a pinned model
  mech run --input "monitor the inbox" --loop --model gpt-4o`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, configPath, input, loop, fixedModel, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVarP(&input, "input", "i", "", "Initial user input for the run")
	cmd.Flags().BoolVarP(&loop, "loop", "l", false, "Keep iterating until the task signals completion")
	cmd.Flags().StringVarP(&fixedModel, "model", "m", "", "Pin a specific model id instead of letting the runner rotate")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

// =============================================================================
// Tools Command
// =============================================================================

func buildToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect the built-in tool set",
	}
	cmd.AddCommand(buildToolsListCmd())
	return cmd
}

func buildToolsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tool descriptors a fresh agent would carry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToolsList(cmd)
		},
	}
	return cmd
}

// =============================================================================
// History Command
// =============================================================================

func buildHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and repair a saved conversation history file",
	}
	cmd.AddCommand(buildHistoryRepairCmd())
	return cmd
}

func buildHistoryRepairCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Run the tool-call/tool-result pairing repair pass over a history JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryRepair(cmd, path)
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "Path to a JSON array of history items")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
