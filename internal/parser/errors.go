package parser

import "fmt"

// UnsupportedFormatError is returned when the name hint names a format the
// parser cannot extract. It is never retried.
type UnsupportedFormatError struct {
	Hint      string
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported document format %q (hint %q)", e.Extension, e.Hint)
}

// ParseError reports an extraction failure. Transient marks failures of the
// local environment (temp dir, disk) rather than of the content.
type ParseError struct {
	Format    Format
	Err       error
	Transient bool
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
