package workflows

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/docflow/internal/embeddings"
	"github.com/fyrsmithlabs/docflow/internal/fetcher"
	"github.com/fyrsmithlabs/docflow/internal/logging"
	"github.com/fyrsmithlabs/docflow/internal/parser"
	"github.com/fyrsmithlabs/docflow/internal/vectorstore"
)

// fnvProvider embeds each text as a fixed-size vector seeded by its FNV hash.
type fnvProvider struct{ dim int }

func (p fnvProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		h := fnv.New32a()
		_, _ = h.Write([]byte(t))
		seed := h.Sum32()
		v := make([]float32, p.dim)
		for j := range v {
			v[j] = float32((seed>>uint(j%32))&0xff) / 255
		}
		out[i] = v
	}
	return out, nil
}

func (p fnvProvider) Dimension() int { return p.dim }
func (p fnvProvider) Close() error   { return nil }

type pipeline struct {
	acts   *Activities
	store  *vectorstore.SQLiteStore
	server *httptest.Server
	logs   *logging.TestLogger
}

func newPipeline(t *testing.T, docs map[string]string, opts ...ActivityOption) *pipeline {
	t.Helper()

	mux := http.NewServeMux()
	for path, body := range docs {
		body := body
		mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte(body))
		})
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	logs := logging.NewTestLogger()
	store, err := vectorstore.NewSQLiteStore(vectorstore.SQLiteConfig{
		Path:       filepath.Join(t.TempDir(), "docflow.db"),
		Collection: "doc_chunks",
	}, logs.Logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	acts, err := NewActivities(
		fetcher.New(fetcher.Config{}, logs.Logger),
		parser.New(parser.Config{TempDir: t.TempDir()}, logs.Logger),
		embeddings.NewEmbedder(fnvProvider{dim: 8}, embeddings.EmbedderConfig{Name: "fnv"}, logs.Logger),
		store,
		logs.Logger,
		opts...,
	)
	require.NoError(t, err)

	return &pipeline{acts: acts, store: store, server: server, logs: logs}
}

func (p *pipeline) run(documentID, path string) *testsuite.TestWorkflowEnvironment {
	return p.runWith(documentID, path, nil)
}

func (p *pipeline) runWith(documentID, path string, opts *PipelineOptions) *testsuite.TestWorkflowEnvironment {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(IngestionWorkflow)
	env.RegisterActivity(p.acts)
	env.ExecuteWorkflow(IngestionWorkflow, IngestionInput{
		DocumentID: documentID,
		SourceURL:  p.server.URL + path,
		Options:    opts,
	})
	return env
}

const threeParagraphs = `Durable workflows survive worker restarts.

Each stage retries on its own.

Chunks are stored in order.`

func TestPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()

	t.Run("three paragraphs become three records", func(t *testing.T) {
		p := newPipeline(t, map[string]string{"/docs/notes.txt": threeParagraphs})

		env := p.run("notes-1", "/docs/notes.txt")
		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())

		var summary RunSummary
		require.NoError(t, env.GetWorkflowResult(&summary))
		assert.Equal(t, 3, summary.ChunkCount)
		assert.Equal(t, "sqlite", summary.Backend)
		assert.Equal(t, "File ID: notes-1, processed 3 chunks with embeddings and stored in sqlite.", summary.Message)

		records, err := p.store.QueryByDocument(ctx, "notes-1")
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "Durable workflows survive worker restarts.", records[0].ChunkText)
		assert.Equal(t, "Each stage retries on its own.", records[1].ChunkText)
		assert.Equal(t, "Chunks are stored in order.", records[2].ChunkText)
		for i, r := range records {
			assert.Equal(t, i, r.ChunkIndex)
			assert.Len(t, r.Embedding, 8)
		}

		info, err := p.store.Describe(ctx)
		require.NoError(t, err)
		assert.Equal(t, 8, info.Dimension)
		assert.Equal(t, 3, info.RecordCount)

		p.logs.AssertLogged(t, zapcore.InfoLevel, "stage completed")
	})

	t.Run("missing document fails with a fetch error", func(t *testing.T) {
		p := newPipeline(t, map[string]string{})

		env := p.run("missing-1", "/docs/absent.txt")
		require.True(t, env.IsWorkflowCompleted())
		err := env.GetWorkflowError()
		require.Error(t, err)
		assert.Equal(t, ErrTypeFetch, ErrorType(err))
		assert.Contains(t, err.Error(), "404")

		_, err = p.store.QueryByDocument(ctx, "missing-1")
		assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
	})

	t.Run("empty document fails the store precondition", func(t *testing.T) {
		p := newPipeline(t, map[string]string{"/docs/blank.txt": "  \n\n \t\n"})

		env := p.run("blank-1", "/docs/blank.txt")
		require.True(t, env.IsWorkflowCompleted())
		err := env.GetWorkflowError()
		require.Error(t, err)
		assert.Equal(t, ErrTypePrecondition, ErrorType(err))

		_, err = p.store.QueryByDocument(ctx, "blank-1")
		assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
	})

	t.Run("ingesting twice appends", func(t *testing.T) {
		p := newPipeline(t, map[string]string{"/docs/notes.txt": threeParagraphs})

		for i := 0; i < 2; i++ {
			env := p.run("notes-2", "/docs/notes.txt")
			require.NoError(t, env.GetWorkflowError())
		}

		records, err := p.store.QueryByDocument(ctx, "notes-2")
		require.NoError(t, err)
		require.Len(t, records, 6)
		assert.Equal(t, []int{0, 0, 1, 1, 2, 2}, []int{
			records[0].ChunkIndex, records[1].ChunkIndex, records[2].ChunkIndex,
			records[3].ChunkIndex, records[4].ChunkIndex, records[5].ChunkIndex,
		})
	})

	t.Run("unsupported format is not retried", func(t *testing.T) {
		p := newPipeline(t, map[string]string{"/docs/image.png": "\x89PNG\r\n\x1a\n\x00\x00"})

		env := p.runWith("image-1", "/docs/image.png", &PipelineOptions{Retry: RetryOptions{MaxAttempts: 5}})
		err := env.GetWorkflowError()
		require.Error(t, err)
		assert.Equal(t, ErrTypeUnsupportedFormat, ErrorType(err))

		failures := p.logs.FilterMessage("stage failed").FilterField(zap.String("stage", string(StageParse)))
		assert.Equal(t, 1, failures.Len())
	})

	t.Run("oversized payload fails before embedding", func(t *testing.T) {
		paras := make([]string, 200)
		for i := range paras {
			paras[i] = fmt.Sprintf("Paragraph %d of a long report.", i)
		}
		p := newPipeline(t, map[string]string{"/docs/report.txt": strings.Join(paras, "\n\n")},
			WithMaxPayloadBytes(16<<10))

		env := p.runWith("report-1", "/docs/report.txt", &PipelineOptions{Retry: RetryOptions{MaxAttempts: 5}})
		require.True(t, env.IsWorkflowCompleted())
		err := env.GetWorkflowError()
		require.Error(t, err)
		assert.Equal(t, ErrTypePayloadTooLarge, ErrorType(err))
		assert.Contains(t, err.Error(), "16384-byte payload limit")

		assert.Equal(t, 1, p.logs.FilterMessage("stage failed").Len())
		embedded := p.logs.FilterMessage("stage started").FilterField(zap.String("stage", string(StageEmbed)))
		assert.Equal(t, 0, embedded.Len())

		_, err = p.store.QueryByDocument(ctx, "report-1")
		assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
	})
}
