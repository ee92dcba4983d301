package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	docxBody  = "word/document.xml"
	wordMLNS  = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	maxDocXML = 64 << 20
)

func isDOCX(content []byte) bool {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if f.Name == docxBody {
			return true
		}
	}
	return false
}

// extractDOCX returns the text of each w:p paragraph in word/document.xml.
func extractDOCX(content []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("opening docx archive: %w", err)
	}

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBody {
			body = f
			break
		}
	}
	if body == nil {
		return nil, fmt.Errorf("docx archive has no %s", docxBody)
	}

	rc, err := body.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", docxBody, err)
	}
	defer rc.Close()

	dec := xml.NewDecoder(io.LimitReader(rc, maxDocXML))
	var (
		out    []string
		para   strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", docxBody, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordMLNS {
				continue
			}
			switch t.Name.Local {
			case "p":
				para.Reset()
			case "t":
				inText = true
			case "tab":
				para.WriteByte(' ')
			case "br", "cr":
				para.WriteByte(' ')
			}
		case xml.EndElement:
			if t.Name.Space != wordMLNS {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if p := collapseSpace(para.String()); p != "" {
					out = append(out, p)
				}
				para.Reset()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	return out, nil
}
