// Package main implements the docflow CLI: trigger ingestion runs and
// inspect the vector store.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/docflow/internal/bootstrap"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli carries flags shared by every subcommand.
type cli struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "docflow",
		Short: "Document ingestion pipeline on Temporal",
		Long: `docflow fetches documents, splits them into chunks, embeds the chunks,
and stores them in a vector store. Runs execute as durable Temporal workflows
on a docflow-worker.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a YAML or TOML config file")

	root.AddCommand(
		c.ingestCmd(),
		c.statusCmd(),
		c.ensureSchemaCmd(),
		c.describeCmd(),
		c.queryCmd(),
		versionCmd(),
	)
	return root
}

// runtime loads configuration and logging for one command invocation. The
// returned func flushes them.
func (c *cli) runtime(ctx context.Context) (*bootstrap.Runtime, func(), error) {
	rt, err := bootstrap.Setup(ctx, c.configPath, version)
	if err != nil {
		return nil, nil, err
	}
	return rt, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rt.Close(shutdownCtx)
	}, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "docflow by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}
