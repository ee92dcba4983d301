package parser

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var htmlBlocks = map[atom.Atom]bool{
	atom.P: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Li: true, atom.Pre: true,
	atom.Blockquote: true, atom.Td: true, atom.Th: true, atom.Title: true,
	atom.Div: true, atom.Section: true, atom.Article: true, atom.Header: true,
	atom.Footer: true, atom.Tr: true, atom.Ul: true, atom.Ol: true,
	atom.Table: true, atom.Dt: true, atom.Dd: true, atom.Figcaption: true,
	atom.Caption: true, atom.Br: true, atom.Hr: true, atom.Body: true,
}

var htmlSkipped = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true,
	atom.Template: true, atom.Iframe: true, atom.Svg: true,
}

// extractHTML returns the text of block-level elements in document order.
// Text directly inside a container (a div with no inner p) becomes its own
// chunk at the container's boundaries.
func extractHTML(content []byte) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	w := &htmlWalker{}
	w.walk(doc)
	w.flush()
	return w.out, nil
}

type htmlWalker struct {
	buf strings.Builder
	out []string
}

func (w *htmlWalker) flush() {
	if p := collapseSpace(w.buf.String()); p != "" {
		w.out = append(w.out, p)
	}
	w.buf.Reset()
}

func (w *htmlWalker) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.buf.WriteString(n.Data)
		w.buf.WriteByte(' ')
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if htmlSkipped[n.DataAtom] {
			return
		}
		if n.DataAtom == atom.Img {
			if alt := attr(n, "alt"); alt != "" {
				w.buf.WriteString(alt)
				w.buf.WriteByte(' ')
			}
			return
		}
	}

	block := n.Type == html.ElementNode && htmlBlocks[n.DataAtom]
	if block {
		w.flush()
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
	if block {
		w.flush()
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
