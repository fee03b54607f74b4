package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version set via ldflags during build
var version = "dev"

var rootFlags struct {
	repo string
}

var rootCmd = &cobra.Command{
	Use:   "autocoder",
	Short: "Autonomous coding agent with plan approval, step mode and rollback",
	Long: `autocoder drives a language model through a tool-calling loop against one
repository. Edits beyond a small file budget wait for an approved plan, runs can
be paused or single-stepped, and an abort rolls file changes back.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.repo, "repo", "", "Path to repository root (default: current directory)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(plansCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "autocoder: %v\n", err)
		os.Exit(1)
	}
}
