package vectorstore

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateInsert(t *testing.T) {
	vec := []float32{0.1, 0.2, 0.3}

	tests := []struct {
		name       string
		documentID string
		chunks     []string
		embeddings [][]float32
		wantErr    string
		wantDim    int
	}{
		{
			name:       "valid",
			documentID: "doc-1",
			chunks:     []string{"a", "b"},
			embeddings: [][]float32{vec, vec},
			wantDim:    3,
		},
		{
			name:       "empty document id",
			chunks:     []string{"a"},
			embeddings: [][]float32{vec},
			wantErr:    "document_id is empty",
		},
		{
			name:       "document id too long",
			documentID: strings.Repeat("x", MaxDocumentIDLen+1),
			chunks:     []string{"a"},
			embeddings: [][]float32{vec},
			wantErr:    "257 characters",
		},
		{
			name:       "document id at limit counts runes",
			documentID: strings.Repeat("é", MaxDocumentIDLen),
			chunks:     []string{"a"},
			embeddings: [][]float32{vec},
			wantDim:    3,
		},
		{
			name:       "no chunks",
			documentID: "doc-1",
			wantErr:    "nothing to insert",
		},
		{
			name:       "count mismatch",
			documentID: "doc-1",
			chunks:     []string{"a", "b", "c"},
			embeddings: [][]float32{vec, vec},
			wantErr:    "3 chunks, 2 embeddings",
		},
		{
			name:       "inconsistent dimension",
			documentID: "doc-1",
			chunks:     []string{"a", "b"},
			embeddings: [][]float32{vec, {1}},
			wantErr:    "embedding 1 has dimension 1",
		},
		{
			name:       "empty embedding",
			documentID: "doc-1",
			chunks:     []string{"a"},
			embeddings: [][]float32{{}},
			wantErr:    "embedding 0 is empty",
		},
		{
			name:       "chunk too large",
			documentID: "doc-1",
			chunks:     []string{"ok", strings.Repeat("x", MaxChunkBytes+1)},
			embeddings: [][]float32{vec, vec},
			wantErr:    "chunk 1 is 65536 bytes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dim, err := validateInsert(tt.documentID, tt.chunks, tt.embeddings)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.wantDim, dim)
				return
			}
			var pe *PreconditionError
			require.True(t, errors.As(err, &pe), "want PreconditionError, got %v", err)
			assert.Contains(t, pe.Reason, tt.wantErr)
		})
	}
}

func TestValidateCollectionName(t *testing.T) {
	for _, ok := range []string{"doc_chunks", "_tmp", "a1"} {
		assert.NoError(t, ValidateCollectionName(ok), ok)
	}
	for _, bad := range []string{"", "Doc", "1abc", "doc-chunks", "x; DROP TABLE y", strings.Repeat("a", 65)} {
		assert.ErrorIs(t, ValidateCollectionName(bad), ErrInvalidCollectionName, bad)
	}
}

func TestFloat32Blob(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3.4028235e38}
	blob := float32SliceToBytes(in)
	require.Len(t, blob, 16)
	assert.Equal(t, in, bytesToFloat32Slice(blob))

	// little-endian 1.5 = 0x3FC00000
	assert.Equal(t, []byte{0x00, 0x00, 0xC0, 0x3F}, blob[4:8])
	assert.Nil(t, bytesToFloat32Slice([]byte{1, 2, 3}))
}

func TestErrorMessages(t *testing.T) {
	err := &SchemaMismatchError{Collection: "doc_chunks", Existing: 384, Requested: 768}
	assert.Equal(t, "collection doc_chunks has dimension 384, requested 768", err.Error())

	pe := &PreconditionError{Reason: "nothing to insert"}
	assert.Equal(t, "store precondition failed: nothing to insert", pe.Error())
}

func TestValidateInsert_EmptyInputSentinel(t *testing.T) {
	_, err := validateInsert("doc-1", nil, nil)
	require.ErrorIs(t, err, ErrEmptyInput)
	assert.Equal(t, "store precondition failed: nothing to insert: 0 chunks, 0 embeddings", err.Error())

	_, err = validateInsert("doc-1", []string{"a", "b"}, [][]float32{{1}})
	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.NotErrorIs(t, err, ErrEmptyInput)
}
