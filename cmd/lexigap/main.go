package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"codeberg.org/snonux/lexigap/internal/cli"
	"codeberg.org/snonux/lexigap/internal/models"
	"codeberg.org/snonux/lexigap/internal/processor"
)

func main() {
	// Create flags instance
	flags := cli.NewFlags()

	// Create root command
	rootCmd := cli.CreateRootCommand(flags)

	// Set up command initialization
	cobra.OnInitialize(func() {
		cli.InitConfig(flags.CfgFile)
	})

	// Set the run function
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd, args, flags)
	}

	// Execute command
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCommand(cmd *cobra.Command, args []string, flags *cli.Flags) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Config-file and environment values reach the pipeline through the
	// flags struct; explicit flags keep precedence via the bindings.
	cli.ApplyConfig(flags)

	// Handle --list-models flag
	if flags.ListModels {
		lister := models.NewLister(cli.GetOpenAIKey())
		return lister.ListAvailableModels(ctx, os.Stdout)
	}

	proc, err := processor.NewProcessor(ctx, flags)
	if err != nil {
		return err
	}
	defer proc.Close()

	if flags.ClearCache {
		proc.ClearCache(os.Stdout)
		return nil
	}
	if flags.Stats {
		proc.ShowStats(os.Stdout)
		return nil
	}
	if flags.Quiz {
		return proc.RunQuiz(ctx, os.Stdin, os.Stdout)
	}
	if flags.Serve {
		return proc.RunServe(ctx)
	}

	// A positional argument is shorthand for --document.
	document := flags.Document
	if document == "" && len(args) > 0 {
		document = args[0]
	}
	if document != "" {
		return proc.RunDocument(ctx, document, os.Stdout)
	}

	return cmd.Help()
}
