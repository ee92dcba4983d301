package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"testing"
)

// buildPDF writes a minimal uncompressed PDF with one content stream per
// page in Helvetica.
func buildPDF(t *testing.T, pages ...string) []byte {
	t.Helper()

	split := make([][]string, len(pages))
	for i, p := range pages {
		split[i] = []string{p}
	}
	return buildPDFWithFont(t, helveticaFont, split...)
}

// buildPDFWithFont writes a PDF whose pages share the font objects returned
// by font. A page with several streams gets a /Contents array. Xref offsets
// are computed so strict readers accept the file.
func buildPDFWithFont(t *testing.T, font func(first int) []string, pages ...[]string) []byte {
	t.Helper()

	next := 3
	pageObjs := make([]int, len(pages))
	streamObjs := make([][]int, len(pages))
	for i, streams := range pages {
		pageObjs[i] = next
		next++
		for range streams {
			streamObjs[i] = append(streamObjs[i], next)
			next++
		}
	}
	fontObj := next

	objs := map[int]string{1: "<< /Type /Catalog /Pages 2 0 R >>"}
	kids := ""
	for _, n := range pageObjs {
		kids += fmt.Sprintf("%d 0 R ", n)
	}
	objs[2] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pages))

	for i, streams := range pages {
		contents := fmt.Sprintf("%d 0 R", streamObjs[i][0])
		if len(streams) > 1 {
			contents = "["
			for _, n := range streamObjs[i] {
				contents += fmt.Sprintf("%d 0 R ", n)
			}
			contents += "]"
		}
		objs[pageObjs[i]] = fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %s /Resources << /Font << /F1 %d 0 R >> >> >>", contents, fontObj)
		for j, content := range streams {
			objs[streamObjs[i][j]] = pdfStream(content)
		}
	}
	for i, o := range font(fontObj) {
		objs[fontObj+i] = o
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs)+1)
	for n := 1; n <= len(objs); n++ {
		offsets[n] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", n, objs[n])
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for n := 1; n <= len(objs); n++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[n])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func pdfStream(content string) string {
	return fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content)+1, content)
}

func helveticaFont(int) []string {
	return []string{"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>"}
}

// ligatureFont remaps code 12 to the "fi" glyph the way pdflatex does.
func ligatureFont(int) []string {
	return []string{"<< /Type /Font /Subtype /Type1 /BaseFont /Times-Roman /Encoding << /Type /Encoding /Differences [12 /fi] >> >>"}
}

// identityHFont is a Type0 font whose strings are two-byte glyph ids. Only
// the ToUnicode map turns <002B 0048 004F 004F 0052> into "Hello".
func identityHFont(first int) []string {
	toUnicode := strings.Join([]string{
		"1 begincodespacerange",
		"<0000> <FFFF>",
		"endcodespacerange",
		"4 beginbfrange",
		"<002B> <002B> <0048>",
		"<0048> <0048> <0065>",
		"<004F> <004F> <006C>",
		"<0052> <0052> <006F>",
		"endbfrange",
	}, "\n")
	return []string{
		fmt.Sprintf("<< /Type /Font /Subtype /Type0 /BaseFont /AAAAAA+NotoSans /Encoding /Identity-H /DescendantFonts [%d 0 R] /ToUnicode %d 0 R >>", first+1, first+3),
		fmt.Sprintf("<< /Type /Font /Subtype /CIDFontType2 /BaseFont /AAAAAA+NotoSans /CIDSystemInfo << /Registry (Adobe) /Ordering (Identity) /Supplement 0 >> /FontDescriptor %d 0 R /DW 1000 >>", first+2),
		"<< /Type /FontDescriptor /FontName /AAAAAA+NotoSans /Flags 4 /FontBBox [0 -200 1000 900] /ItalicAngle 0 /Ascent 900 /Descent -200 /CapHeight 700 /StemV 80 >>",
		pdfStream(toUnicode),
	}
}

// buildDOCX writes a zip containing only word/document.xml.
func buildDOCX(t *testing.T, paragraphs ...string) []byte {
	t.Helper()

	var body bytes.Buffer
	body.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	body.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		fmt.Fprintf(&body, `<w:p><w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p>`, p)
	}
	body.WriteString(`</w:body></w:document>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(body.Bytes()); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
