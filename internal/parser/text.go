package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var blankLine = regexp.MustCompile(`\n[ \t]*\n`)

// extractText splits plain text into paragraphs on blank lines. Lines inside
// a paragraph are joined with single spaces.
func extractText(content []byte) []string {
	text := normalizeNewlines(toValidUTF8(content))
	var out []string
	for _, para := range blankLine.Split(text, -1) {
		if p := collapseSpace(para); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var (
	mdHeading   = regexp.MustCompile(`^\s{0,3}#{1,6}\s+`)
	mdFence     = regexp.MustCompile("^\\s{0,3}(```|~~~)")
	mdRule      = regexp.MustCompile(`^\s{0,3}([-*_]\s*){3,}$`)
	mdQuote     = regexp.MustCompile(`^\s{0,3}>\s?`)
	mdListItem  = regexp.MustCompile(`^\s*([-*+]|\d+[.)])\s+`)
	mdImage     = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	mdLink      = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	mdStars     = regexp.MustCompile(`(\*{1,3}|~~)(\S(?:[^*~]*?\S)?)(\*{1,3}|~~)`)
	mdUnders    = regexp.MustCompile(`(^|\W)_{1,2}(\S(?:[^_]*?\S)?)_{1,2}(\W|$)`)
	mdCode      = regexp.MustCompile("`([^`]*)`")
	mdHTMLTag   = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	mdTableRule = regexp.MustCompile(`^\s*\|?\s*:?-+:?\s*(\|\s*:?-+:?\s*)*\|?\s*$`)
)

// extractMarkdown splits on blank lines and headings and strips inline
// markup. Fenced code is kept as its own block.
func extractMarkdown(content []byte) []string {
	lines := strings.Split(normalizeNewlines(toValidUTF8(content)), "\n")

	var (
		out     []string
		block   []string
		inFence bool
	)
	flush := func() {
		if p := collapseSpace(strings.Join(block, " ")); p != "" {
			out = append(out, p)
		}
		block = block[:0]
	}

	for _, line := range lines {
		if mdFence.MatchString(line) {
			flush()
			inFence = !inFence
			continue
		}
		if inFence {
			block = append(block, line)
			continue
		}
		if strings.TrimSpace(line) == "" || mdRule.MatchString(line) || mdTableRule.MatchString(line) {
			flush()
			continue
		}
		if mdHeading.MatchString(line) {
			flush()
			block = append(block, stripInline(mdHeading.ReplaceAllString(line, "")))
			flush()
			continue
		}
		line = mdQuote.ReplaceAllString(line, "")
		line = mdListItem.ReplaceAllString(line, "")
		line = strings.ReplaceAll(line, "|", " ")
		block = append(block, stripInline(line))
	}
	flush()
	return out
}

func stripInline(s string) string {
	s = mdImage.ReplaceAllString(s, "$1")
	s = mdLink.ReplaceAllString(s, "$1")
	s = mdCode.ReplaceAllString(s, "$1")
	s = mdHTMLTag.ReplaceAllString(s, "")
	s = mdStars.ReplaceAllString(s, "$2")
	s = mdUnders.ReplaceAllString(s, "${1}${2}${3}")
	return strings.TrimRight(s, "# ")
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// collapseSpace trims s and folds every whitespace run into one space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// toValidUTF8 returns content as a string, decoding it as Latin-1 when it
// is not valid UTF-8. A leading BOM is dropped.
func toValidUTF8(content []byte) string {
	if utf8.Valid(content) {
		return strings.TrimPrefix(string(content), "\uFEFF")
	}
	var b strings.Builder
	b.Grow(len(content))
	for _, c := range content {
		b.WriteRune(rune(c))
	}
	return b.String()
}

// splitLong breaks chunks longer than limit bytes at the last space before
// the limit, or mid-rune-safe when no space exists.
func splitLong(chunks []string, limit int) []string {
	if limit <= 0 {
		return chunks
	}
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		for len(c) > limit {
			cut := strings.LastIndexByte(c[:limit], ' ')
			if cut <= 0 {
				cut = limit
				for cut > 0 && !utf8.RuneStart(c[cut]) {
					cut--
				}
			}
			if head := strings.TrimSpace(c[:cut]); head != "" {
				out = append(out, head)
			}
			c = strings.TrimSpace(c[cut:])
		}
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}
