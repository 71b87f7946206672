package parser

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyMessage       = errors.New("empty message")
	ErrNoSeparator        = errors.New("no blank line between headers and body")
	ErrMalformedHeader    = errors.New("malformed header")
	ErrMalformedMultipart = errors.New("malformed multipart boundary")
	ErrTruncated          = errors.New("truncated multipart body")
)

// ParseError reports a message that could not be read or whose structure is
// broken beyond recovery. The file it came from should be skipped.
type ParseError struct {
	Op   string // "read" or "parse"
	Path string // empty when parsing from memory
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// WarningKind classifies a DecodeWarning.
type WarningKind string

const (
	WarnCharset          WarningKind = "charset"
	WarnTransferEncoding WarningKind = "transfer-encoding"
	WarnContentType      WarningKind = "content-type"
	WarnHeader           WarningKind = "header"
)

// DecodeWarning records a part that could only be decoded on a best-effort
// basis, or a header line that was skipped. It never aborts a parse.
type DecodeWarning struct {
	Part   string
	Kind   WarningKind
	Detail string
}

func (w DecodeWarning) Error() string {
	part := w.Part
	if part == "" {
		part = "root"
	}
	return fmt.Sprintf("part %s: %s: %s", part, w.Kind, w.Detail)
}
