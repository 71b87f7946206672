package parser

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/emersion/go-message"
)

// ParseEMLFile reads and parses an .eml file
func ParseEMLFile(filePath string) (*Message, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, &ParseError{Op: "read", Path: filePath, Err: err}
	}
	defer f.Close()

	msg, err := ParseEML(f)
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			pe.Path = filePath
		}
		return nil, err
	}
	return msg, nil
}

// ParseEML parses an email from a reader
func ParseEML(r io.Reader) (*Message, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, &ParseError{Op: "read", Err: err}
	}
	return Parse(raw)
}

// Parse decodes a raw RFC 5322 message into its header and content tree.
// Structural damage yields a *ParseError; undecodable charsets or transfer
// encodings and stray header lines only add DecodeWarnings to the result.
func Parse(raw []byte) (*Message, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &ParseError{Op: "parse", Err: ErrEmptyMessage}
	}

	// mbox exports often keep the envelope line.
	if isEnvelopeLine(raw) {
		_, next := nextLine(raw, 0)
		raw = raw[next:]
	}

	raw, warnings, err := repairHeaders(raw)
	if err != nil {
		return nil, &ParseError{Op: "parse", Err: err}
	}

	p := &parser{warnings: warnings}
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !p.entityWarning("", err) {
		return nil, &ParseError{Op: "parse", Err: fmt.Errorf("%v: %w", err, ErrMalformedHeader)}
	}

	root, err := p.parseEntity(entity, "")
	if err != nil {
		return nil, &ParseError{Op: "parse", Err: err}
	}

	return &Message{
		Header:   root.Header,
		Root:     root,
		Warnings: p.warnings,
	}, nil
}

type parser struct {
	warnings []DecodeWarning
}

func (p *parser) warn(part string, kind WarningKind, format string, args ...any) {
	p.warnings = append(p.warnings, DecodeWarning{
		Part:   part,
		Kind:   kind,
		Detail: fmt.Sprintf(format, args...),
	})
}

// entityWarning records the non-fatal errors go-message returns alongside a
// readable entity. It reports false for any other error.
func (p *parser) entityWarning(id string, err error) bool {
	switch {
	case message.IsUnknownEncoding(err):
		p.warn(id, WarnTransferEncoding, "%v, payload kept as-is", err)
	case message.IsUnknownCharset(err):
		p.warn(id, WarnCharset, "%v, decoded as %s", err, DefaultCharset)
	default:
		return false
	}
	return true
}

func (p *parser) parseEntity(e *message.Entity, id string) (*Part, error) {
	part := &Part{ID: id, Header: readHeader(&e.Header)}
	params, parsed := p.applyContentType(part, &e.Header)

	if strings.HasPrefix(part.ContentType, "multipart/") {
		switch {
		case params["boundary"] == "":
			p.warn(id, WarnContentType, "%s without boundary, treated as a leaf", part.ContentType)
		case !parsed:
			p.warn(id, WarnContentType, "unparsable %s header, treated as a leaf", part.ContentType)
		default:
			return p.parseMultipart(part, e)
		}
	}

	p.applyDisposition(part, &e.Header, params)
	part.TransferEncoding = strings.ToLower(strings.TrimSpace(e.Header.Get("Content-Transfer-Encoding")))
	part.Body = p.readPayload(part, e.Body)
	if part.IsText() {
		part.Text = p.decodeText(part, parsed)
	}
	return part, nil
}

// parseMultipart reads every child of a multipart entity. A body that never
// reaches a part is malformed; one that breaks off after a part is truncated.
func (p *parser) parseMultipart(part *Part, e *message.Entity) (*Part, error) {
	mr := e.MultipartReader()
	part.Children = []*Part{}

	for {
		childID := partID(part.ID, len(part.Children)+1)
		child, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !p.entityWarning(childID, err) {
			if len(part.Children) == 0 {
				return nil, fmt.Errorf("%v: %w", err, ErrMalformedMultipart)
			}
			return nil, fmt.Errorf("after part %s: %v: %w", partID(part.ID, len(part.Children)), err, ErrTruncated)
		}

		c, err := p.parseEntity(child, childID)
		if err != nil {
			return nil, fmt.Errorf("part %s: %w", childID, err)
		}
		part.Children = append(part.Children, c)
	}

	if len(part.Children) == 0 {
		return nil, fmt.Errorf("closing delimiter before any part: %w", ErrMalformedMultipart)
	}
	return part, nil
}

// applyContentType fills ContentType and Charset and returns the media type
// parameters. parsed is false when the header needed the lenient fallback,
// in which case go-message has not applied the charset.
func (p *parser) applyContentType(part *Part, h *message.Header) (params map[string]string, parsed bool) {
	raw := strings.TrimSpace(h.Get("Content-Type"))
	mediaType, params, err := h.ContentType()
	switch {
	case raw == "":
		params = map[string]string{}
	case err != nil:
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(raw, ";", 2)[0]))
		params = lenientParams(raw, "boundary", "charset", "name")
		if !strings.Contains(mediaType, "/") {
			p.warn(part.ID, WarnContentType, "unparsable content type %q, using text/plain", raw)
			mediaType = "text/plain"
		}
	}

	part.ContentType = mediaType
	part.Charset = strings.ToLower(strings.TrimSpace(params["charset"]))
	return params, err == nil
}

func (p *parser) applyDisposition(part *Part, h *message.Header, ctParams map[string]string) {
	raw := strings.TrimSpace(h.Get("Content-Disposition"))

	var dispType string
	var params map[string]string
	if raw != "" {
		var err error
		dispType, params, err = h.ContentDisposition()
		if err != nil {
			dispType = strings.ToLower(strings.TrimSpace(strings.SplitN(raw, ";", 2)[0]))
			params = lenientParams(raw, "filename")
		}
	}

	filename := params["filename"]
	if filename == "" {
		filename = ctParams["name"]
	}
	part.Filename = strings.TrimSpace(decodeHeaderValue(filename))

	switch {
	case dispType == string(DispositionInline):
		part.Disposition = DispositionInline
	case dispType != "":
		// RFC 2183: unknown types are handled as attachments.
		part.Disposition = DispositionAttachment
	case part.Filename != "":
		part.Disposition = DispositionAttachment
	default:
		part.Disposition = DispositionInline
	}
}
