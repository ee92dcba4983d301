package parser

import (
	"bytes"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Format is a supported document format.
type Format string

// Supported formats.
const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
)

var extensions = map[string]Format{
	".txt":      FormatText,
	".text":     FormatText,
	".log":      FormatText,
	".csv":      FormatText,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".xhtml":    FormatHTML,
	".pdf":      FormatPDF,
	".docx":     FormatDOCX,
}

// DetectFormat picks the extraction strategy for content. The extension of
// nameHint (a URL or file name) wins; hints without a usable extension fall
// back to sniffing the bytes.
func DetectFormat(content []byte, nameHint string) (Format, error) {
	ext := hintExtension(nameHint)
	if ext != "" {
		if f, ok := extensions[ext]; ok {
			return f, nil
		}
		if !isNumeric(ext[1:]) {
			return "", &UnsupportedFormatError{Hint: nameHint, Extension: ext}
		}
		// arXiv-style ids (2501.08266) look like extensions but are not.
	}

	if f, ok := sniff(content); ok {
		return f, nil
	}
	return "", &UnsupportedFormatError{Hint: nameHint, Extension: ext}
}

// hintExtension returns the lowercased extension of the hint's path,
// ignoring any query string or fragment.
func hintExtension(hint string) string {
	p := hint
	if u, err := url.Parse(hint); err == nil && u.Path != "" {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func sniff(content []byte) (Format, bool) {
	if len(bytes.TrimSpace(content)) == 0 {
		return FormatText, true
	}
	if bytes.HasPrefix(content, []byte("%PDF-")) {
		return FormatPDF, true
	}
	if bytes.HasPrefix(content, []byte("PK\x03\x04")) && isDOCX(content) {
		return FormatDOCX, true
	}

	ct := http.DetectContentType(content)
	switch {
	case strings.HasPrefix(ct, "text/html"):
		return FormatHTML, true
	case strings.HasPrefix(ct, "text/plain"):
		return FormatText, true
	case strings.HasPrefix(ct, "application/pdf"):
		return FormatPDF, true
	}
	return "", false
}
