// Package parser turns raw document bytes into ordered text chunks.
//
// The strategy is chosen from the name hint's extension (text, markdown,
// HTML, PDF, DOCX) with a content-sniffing fallback for hints that carry
// none. Output is deterministic: the same bytes and hint always yield the
// same chunks in reading order, with empty fragments dropped.
package parser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/docflow/internal/logging"
	"go.uber.org/zap"
)

// DefaultMaxChunkBytes matches the chunk_text limit of the vector store.
const DefaultMaxChunkBytes = 65535

// Config configures a Parser.
type Config struct {
	// TempDir hosts PDF staging dirs. Empty means os.TempDir().
	TempDir string

	// MaxChunkBytes splits longer paragraphs at word boundaries.
	MaxChunkBytes int
}

// Parser is safe for concurrent use.
type Parser struct {
	tempDir  string
	maxChunk int
	logger   *logging.Logger
}

// New creates a Parser. A nil logger disables logging.
func New(cfg Config, logger *logging.Logger) *Parser {
	if cfg.MaxChunkBytes <= 0 {
		cfg.MaxChunkBytes = DefaultMaxChunkBytes
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Parser{
		tempDir:  cfg.TempDir,
		maxChunk: cfg.MaxChunkBytes,
		logger:   logger.Named("parser"),
	}
}

// Parse extracts chunks from content. It returns *UnsupportedFormatError
// when no strategy applies and *ParseError when extraction fails. A document
// with no text yields an empty slice and no error.
func (p *Parser) Parse(ctx context.Context, content []byte, nameHint string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	format, err := DetectFormat(content, nameHint)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	chunks, err := p.extract(ctx, format, content)
	result := "success"
	if err != nil {
		result = "error"
	}
	parseDuration.WithLabelValues(string(format), result).Observe(time.Since(start).Seconds())

	if err != nil {
		var pe *ParseError
		if !errors.As(err, &pe) && ctx.Err() == nil {
			err = &ParseError{Format: format, Err: err}
		}
		p.logger.Warn(ctx, "parse failed", zap.String("format", string(format)), zap.Error(err))
		return nil, err
	}

	chunks = splitLong(chunks, p.maxChunk)
	parseChunks.WithLabelValues(string(format)).Observe(float64(len(chunks)))
	p.logger.Debug(ctx, "document parsed",
		zap.String("format", string(format)),
		zap.Int("bytes", len(content)),
		zap.Int("chunks", len(chunks)),
	)
	return chunks, nil
}

func (p *Parser) extract(ctx context.Context, format Format, content []byte) ([]string, error) {
	switch format {
	case FormatText:
		return extractText(content), nil
	case FormatMarkdown:
		return extractMarkdown(content), nil
	case FormatHTML:
		return extractHTML(content)
	case FormatDOCX:
		return extractDOCX(content)
	case FormatPDF:
		return p.extractPDF(ctx, content)
	default:
		return nil, fmt.Errorf("no extractor for format %q", format)
	}
}
