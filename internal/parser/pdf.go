package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

func init() {
	// pdfcpu otherwise creates a config dir under the user's home.
	api.DisableConfigDir()
}

// Layout thresholds, in multiples of the font size.
const (
	lineTolerance = 0.5
	paragraphGap  = 1.5
	wordGap       = 0.2
)

// extractPDF normalizes the document with pdfcpu into a staging dir, then
// reads each page's text through its font encodings and ToUnicode maps.
// The staging dir is removed on every path.
func (p *Parser) extractPDF(ctx context.Context, content []byte) ([]string, error) {
	dir, err := os.MkdirTemp(p.tempDir, "docflow-pdf-*")
	if err != nil {
		return nil, &ParseError{Format: FormatPDF, Err: fmt.Errorf("creating staging dir: %w", err), Transient: true}
	}
	defer os.RemoveAll(dir)

	staged := filepath.Join(dir, "document.pdf")
	if err := normalizePDF(content, staged); err != nil {
		var pathErr *os.PathError
		return nil, &ParseError{Format: FormatPDF, Err: err, Transient: errors.As(err, &pathErr)}
	}

	f, r, err := openPDF(staged)
	if f != nil {
		defer f.Close()
	}
	if err != nil {
		return nil, &ParseError{Format: FormatPDF, Err: err}
	}

	var chunks []string
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		texts, err := pageText(page)
		if err != nil {
			return nil, &ParseError{Format: FormatPDF, Err: fmt.Errorf("page %d: %w", i, err)}
		}
		chunks = append(chunks, paragraphs(texts)...)
	}
	return chunks, nil
}

// normalizePDF rewrites content as an unencrypted file at path with one
// content stream per page. Malformed input can panic inside the reader;
// that is reported as an ordinary error.
func normalizePDF(content []byte, path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false

	pctx, err := api.ReadAndValidate(bytes.NewReader(content), conf)
	if err != nil {
		return fmt.Errorf("reading pdf: %w", err)
	}
	if err := pctx.EnsurePageCount(); err != nil {
		return fmt.Errorf("reading page tree: %w", err)
	}
	for i := 1; i <= pctx.PageCount; i++ {
		if err := mergePageContent(pctx, i); err != nil {
			return err
		}
	}

	// Write the staged copy without encryption.
	pctx.Cmd = model.DECRYPT

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := api.WriteContext(pctx, out); err != nil {
		out.Close()
		return fmt.Errorf("writing normalized pdf: %w", err)
	}
	return out.Close()
}

// mergePageContent replaces a page's content stream array with a single
// stream. Parts are joined with a newline so tokens cannot fuse across them.
func mergePageContent(pctx *model.Context, pageNr int) error {
	d, _, _, err := pctx.PageDict(pageNr, false)
	if err != nil {
		return fmt.Errorf("page %d: %w", pageNr, err)
	}
	if d == nil {
		return nil
	}
	o, found := d.Find("Contents")
	if !found {
		return nil
	}
	o, err = pctx.Dereference(o)
	if err != nil {
		return fmt.Errorf("page %d contents: %w", pageNr, err)
	}
	parts, ok := o.(types.Array)
	if !ok {
		return nil
	}

	var buf []byte
	for _, part := range parts {
		sd, _, err := pctx.DereferenceStreamDict(part)
		if err != nil {
			return fmt.Errorf("page %d content: %w", pageNr, err)
		}
		if sd == nil {
			continue
		}
		if err := sd.Decode(); err != nil {
			return fmt.Errorf("page %d content: %w", pageNr, err)
		}
		buf = append(buf, sd.Content...)
		buf = append(buf, '\n')
	}

	merged, err := pctx.NewStreamDictForBuf(buf)
	if err != nil {
		return err
	}
	if err := merged.Encode(); err != nil {
		return fmt.Errorf("page %d: encoding merged content: %w", pageNr, err)
	}
	ref, err := pctx.IndRefForNewObject(*merged)
	if err != nil {
		return err
	}
	d.Update("Contents", *ref)
	return nil
}

func openPDF(path string) (f *os.File, r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pdf reader panic: %v", rec)
		}
	}()
	return pdf.Open(path)
}

// pageText returns the page's positioned glyphs in content-stream order.
func pageText(page pdf.Page) (texts []pdf.Text, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("interpreting content: %v", r)
		}
	}()
	return page.Content().Text, nil
}

// paragraphs groups glyphs into lines by baseline and lines into paragraphs
// by vertical gap. A horizontal jump wider than wordGap becomes a space.
func paragraphs(texts []pdf.Text) []string {
	var (
		paras   []string
		para    strings.Builder
		line    strings.Builder
		started bool
		lineY   float64
		lastEnd float64
		space   bool
	)

	endLine := func() {
		s := strings.TrimSpace(line.String())
		line.Reset()
		if s == "" {
			return
		}
		if para.Len() > 0 {
			para.WriteByte(' ')
		}
		para.WriteString(s)
	}
	endPara := func() {
		endLine()
		if s := collapseSpace(para.String()); s != "" {
			paras = append(paras, s)
		}
		para.Reset()
	}

	for _, t := range texts {
		size := t.FontSize
		if size <= 0 {
			size = 12
		}
		if strings.TrimSpace(t.S) == "" {
			space = true
			continue
		}

		if started && math.Abs(t.Y-lineY) > lineTolerance*size {
			gap := lineY - t.Y
			endLine()
			if gap > paragraphGap*size || gap < 0 {
				endPara()
			}
		} else if started && (space || t.X-lastEnd > wordGap*size) {
			line.WriteByte(' ')
		}

		line.WriteString(t.S)
		space = false
		started = true
		lineY = t.Y
		lastEnd = t.X + t.W
	}
	endPara()
	return paras
}
