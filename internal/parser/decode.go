package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/charmap"
)

func init() {
	// Register additional charsets that are commonly used in emails
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// readPayload drains a leaf body that go-message has already transfer
// decoded. A read error keeps whatever arrived before it.
func (p *parser) readPayload(part *Part, body io.Reader) []byte {
	out, err := io.ReadAll(body)
	if err == nil {
		return out
	}

	kind := WarnTransferEncoding
	switch part.TransferEncoding {
	case "", "7bit", "8bit", "binary":
		if part.IsText() && part.Charset != "" {
			kind = WarnCharset
		}
	}
	p.warn(part.ID, kind, "payload cut short after %d bytes: %v", len(out), err)
	return out
}

// decodeText returns the payload as valid UTF-8. go-message converts text
// parts with a well-formed charset parameter; converted is false when the
// Content-Type needed the lenient fallback and the charset is applied here.
func (p *parser) decodeText(part *Part, converted bool) string {
	if converted {
		return strings.ToValidUTF8(string(part.Body), "\uFFFD")
	}
	switch part.Charset {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
		return strings.ToValidUTF8(string(part.Body), "\uFFFD")
	}

	r, err := charset.Reader(part.Charset, bytes.NewReader(part.Body))
	if err == nil {
		var out []byte
		if out, err = io.ReadAll(r); err == nil {
			return strings.ToValidUTF8(string(out), "\uFFFD")
		}
	}
	p.warn(part.ID, WarnCharset, "%s: %v, decoded as %s", part.Charset, err, DefaultCharset)
	return strings.ToValidUTF8(string(part.Body), "\uFFFD")
}
