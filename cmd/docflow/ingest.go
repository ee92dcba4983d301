package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/docflow/internal/workflows"
)

func (c *cli) ingestCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "ingest <document_id> <source_url>",
		Short: "Start an ingestion run",
		Long: `Start an ingestion run for one document.

Examples:
  # Start a run and return immediately
  docflow ingest 2501.08266 https://arxiv.org/pdf/2501.08266

  # Start a run and wait for its summary
  docflow ingest --wait notes https://example.com/notes.md`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, done, err := c.runtime(ctx)
			if err != nil {
				return err
			}
			defer done()

			tc, err := rt.DialTemporal()
			if err != nil {
				return err
			}
			defer tc.Close()

			trigger := rt.NewTrigger(tc)
			h, err := trigger.Start(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Started workflow %s (run %s)\n", h.WorkflowID, h.RunID)
			if !wait {
				return nil
			}

			summary, err := trigger.Await(ctx, h)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, summary.Message)
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the run finishes and print its summary")
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "status <workflow_id>",
		Short: "Show the state of an ingestion run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, done, err := c.runtime(ctx)
			if err != nil {
				return err
			}
			defer done()

			tc, err := rt.DialTemporal()
			if err != nil {
				return err
			}
			defer tc.Close()

			st, err := rt.NewTrigger(tc).State(ctx, workflows.RunHandle{WorkflowID: args[0], RunID: runID})
			if err != nil {
				return err
			}
			printState(cmd, st)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "specific run (default latest)")
	return cmd
}

func printState(cmd *cobra.Command, st *workflows.RunState) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "State: %s\n", st.State)
	if st.Stage != "" {
		fmt.Fprintf(out, "Stage: %s\n", st.Stage)
	}
	if st.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", st.Error)
	}
}
