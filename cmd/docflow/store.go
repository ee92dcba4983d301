package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/docflow/internal/config"
	"github.com/fyrsmithlabs/docflow/internal/embeddings"
	"github.com/fyrsmithlabs/docflow/internal/vectorstore"
)

// previewValues is how many embedding values query prints per chunk.
const previewValues = 5

func (c *cli) ensureSchemaCmd() *cobra.Command {
	var dimension int
	cmd := &cobra.Command{
		Use:   "ensure-schema",
		Short: "Provision the collection for a given embedding dimension",
		Long: `Provision the configured collection up front. Without --dimension the
dimension of the configured embedding model is used when it is known.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, done, err := c.runtime(ctx)
			if err != nil {
				return err
			}
			defer done()

			if dimension == 0 {
				dim, model := configuredDimension(rt.Config.Embeddings)
				if dim == 0 {
					return fmt.Errorf("unknown dimension for model %q; pass --dimension", model)
				}
				dimension = dim
			}

			store, err := rt.NewStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.EnsureSchema(ctx, dimension); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Collection '%s' ready on %s (dimension %d)\n",
				rt.Config.Store.Collection, store.Backend(), dimension)
			return nil
		},
	}
	cmd.Flags().IntVar(&dimension, "dimension", 0, "embedding dimension")
	return cmd
}

func (c *cli) describeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe",
		Short: "Show the collection schema and record count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, done, err := c.runtime(ctx)
			if err != nil {
				return err
			}
			defer done()

			store, err := rt.NewStore()
			if err != nil {
				return err
			}
			defer store.Close()

			info, err := store.Describe(ctx)
			if errors.Is(err, vectorstore.ErrCollectionNotFound) {
				fmt.Fprintf(cmd.OutOrStdout(), "Collection '%s' does not exist on %s\n", rt.Config.Store.Collection, store.Backend())
				return nil
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Collection: %s\n", info.Name)
			fmt.Fprintf(out, "Backend:    %s\n", info.Backend)
			fmt.Fprintf(out, "Dimension:  %d\n", info.Dimension)
			fmt.Fprintf(out, "Metric:     %s\n", info.Metric)
			fmt.Fprintf(out, "Records:    %d\n", info.RecordCount)
			return nil
		},
	}
}

func (c *cli) queryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <document_id>",
		Short: "Print the stored chunks of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, done, err := c.runtime(ctx)
			if err != nil {
				return err
			}
			defer done()

			store, err := rt.NewStore()
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			records, err := store.QueryByDocument(ctx, args[0])
			if errors.Is(err, vectorstore.ErrCollectionNotFound) {
				fmt.Fprintf(out, "Collection '%s' does not exist on %s\n", rt.Config.Store.Collection, store.Backend())
				return nil
			}
			if err != nil {
				return err
			}

			if len(records) == 0 {
				fmt.Fprintf(out, "No chunks stored for File ID '%s'\n", args[0])
				return nil
			}
			fmt.Fprintf(out, "Chunks stored for File ID '%s':\n", args[0])
			for i, r := range records {
				preview := r.Embedding
				if len(preview) > previewValues {
					preview = preview[:previewValues]
				}
				fmt.Fprintf(out, "%d. Chunk Index: %d\n", i+1, r.ChunkIndex)
				fmt.Fprintf(out, "   Text: %s\n", r.ChunkText)
				fmt.Fprintf(out, "   Embedding (first %d values): %v\n", len(preview), preview)
			}
			return nil
		},
	}
}

// configuredDimension returns the dimension of the configured provider's
// model, or 0 with the model name when it is not known.
func configuredDimension(cfg config.EmbeddingsConfig) (int, string) {
	var model string
	switch cfg.Provider {
	case config.ProviderTEI:
		if cfg.TEI.Dimension > 0 {
			return cfg.TEI.Dimension, cfg.TEI.Model
		}
		model = cfg.TEI.Model
	case config.ProviderOpenAI:
		if cfg.OpenAI.Dimension > 0 {
			return cfg.OpenAI.Dimension, cfg.OpenAI.Model
		}
		model = cfg.OpenAI.Model
	default:
		model = cfg.FastEmbed.Model
	}
	dim, _ := embeddings.ModelDimension(model)
	return dim, model
}
