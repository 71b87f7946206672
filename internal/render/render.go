// Package render turns a parsed message into the plain text document and
// extracts its attachments.
package render

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/felo/eml-to-txt/internal/parser"
)

const (
	HTMLOnlyNote = "[HTML CONTENT AVAILABLE BUT NOT DISPLAYED]"
	NoBodyNote   = "[NO BODY CONTENT]"
)

var (
	banner  = strings.Repeat("=", 80)
	divider = strings.Repeat("-", 80)

	// Headers shown in the header block, in this order.
	preferredHeaders = []string{"From", "To", "Cc", "Subject", "Date"}
)

// Options controls a single Render call.
type Options struct {
	// SourceName is the file name of the input, e.g. "example.eml".
	SourceName string
	// SourcePath identifies the input in the NameTable. Defaults to
	// SourceName.
	SourcePath string

	ExtractAttachments bool
	AttachmentsDir     string
}

// Result is the rendered document plus what happened to each attachment.
// Warnings are the parser's decode warnings for the message.
type Result struct {
	Text        string
	Attachments []Attachment
	Warnings    []parser.DecodeWarning
	HTMLOnly    bool
}

// Extracted returns the number of attachments written to disk.
func (r *Result) Extracted() int {
	n := 0
	for _, a := range r.Attachments {
		if a.Saved() {
			n++
		}
	}
	return n
}

// WriteErrors returns the attachment write failures.
func (r *Result) WriteErrors() []error {
	var errs []error
	for _, a := range r.Attachments {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// Render formats msg as text. With ExtractAttachments set, every
// attachment-eligible part is written to AttachmentsDir under a name
// reserved in names; write failures are kept on the Attachment and do not
// stop rendering.
func Render(msg *parser.Message, opts Options, names *NameTable) (*Result, error) {
	if msg == nil || msg.Root == nil {
		return nil, errors.New("render: nil message")
	}
	if opts.ExtractAttachments {
		if opts.AttachmentsDir == "" {
			return nil, errors.New("render: attachments directory required for extraction")
		}
		if names == nil {
			names = NewNameTable()
		}
	}
	if opts.SourcePath == "" {
		opts.SourcePath = opts.SourceName
	}

	res := &Result{Warnings: msg.Warnings}
	lines := []string{
		banner,
		"EMAIL: " + opts.SourceName,
		banner,
		"",
	}

	for _, name := range preferredHeaders {
		if msg.Header.Has(name) {
			lines = append(lines, fmt.Sprintf("%s: %s", name, msg.Header.Get(name)))
		}
	}

	lines = append(lines, "", divider, "", "BODY:", "")
	text, html := msg.Body()
	switch {
	case text != nil:
		lines = append(lines, strings.ReplaceAll(text.Text, "\r\n", "\n"))
	case html != nil:
		res.HTMLOnly = true
		lines = append(lines, HTMLOnlyNote)
	default:
		lines = append(lines, NoBodyNote)
	}
	lines = append(lines, "", divider)

	res.Attachments = collectAttachments(msg, opts, names)
	if len(res.Attachments) > 0 {
		lines = append(lines, "ATTACHMENTS:")
		for _, a := range res.Attachments {
			lines = append(lines, a.Line())
		}
	}

	res.Text = strings.Join(lines, "\n") + "\n"
	return res, nil
}

func collectAttachments(msg *parser.Message, opts Options, names *NameTable) []Attachment {
	parts := msg.Attachments()
	if len(parts) == 0 {
		return nil
	}

	prefix := strings.TrimSuffix(opts.SourceName, filepath.Ext(opts.SourceName))
	attachments := make([]Attachment, 0, len(parts))
	unnamed := 0
	for _, part := range parts {
		name := part.Filename
		if name == "" {
			unnamed++
			name = fmt.Sprintf("attachment_%d.bin", unnamed)
		}

		a := Attachment{
			Name:        name,
			ContentType: part.ContentType,
			Size:        len(part.Body),
		}
		if opts.ExtractAttachments {
			a.SavedName = names.Claim(opts.AttachmentsDir, prefix+"_"+sanitizeFilename(name), opts.SourcePath)
			a.Path = filepath.Join(opts.AttachmentsDir, a.SavedName)
			if err := writeAttachment(a.Path, part.Body); err != nil {
				a.Err = &AttachmentWriteError{Name: name, Path: a.Path, Err: err}
			}
		}
		attachments = append(attachments, a)
	}
	return attachments
}
