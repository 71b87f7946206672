package parser

import (
	"mime"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
)

var (
	wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

	// encodedWord matches a single RFC 2047 encoded word.
	encodedWord = regexp.MustCompile(`=\?[^?\s]+\?[bBqQ]\?[^?\s]*\?=`)
)

// readHeader copies the fields of h in their original order, duplicates
// included.
func readHeader(h *message.Header) Header {
	fields := h.Fields()
	header := make(Header, 0, fields.Len())
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = decodeHeaderValue(fields.Value())
		}
		header = append(header, Field{
			Name:  fields.Key(),
			Value: strings.ToValidUTF8(value, "\uFFFD"),
			Raw:   fields.Value(),
		})
	}
	return header
}

// decodeHeaderValue decodes RFC 2047 encoded words. When the value as a
// whole cannot be decoded, each word is tried separately and words that
// still fail are kept literally.
func decodeHeaderValue(s string) string {
	if !strings.Contains(s, "=?") {
		return strings.ToValidUTF8(s, "\uFFFD")
	}
	if decoded, err := wordDecoder.DecodeHeader(s); err == nil {
		return strings.ToValidUTF8(decoded, "\uFFFD")
	}
	decoded := encodedWord.ReplaceAllStringFunc(s, func(word string) string {
		if w, err := wordDecoder.Decode(word); err == nil {
			return w
		}
		return word
	})
	return strings.ToValidUTF8(decoded, "\uFFFD")
}

// lenientParams pulls named parameters out of a header value that
// mime.ParseMediaType rejected, e.g. an unquoted filename containing spaces.
func lenientParams(raw string, names ...string) map[string]string {
	params := make(map[string]string)
	segments := strings.Split(raw, ";")
	for _, seg := range segments[1:] {
		key, value, found := strings.Cut(seg, "=")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		for _, name := range names {
			if key == name {
				params[name] = strings.Trim(strings.TrimSpace(value), `"`)
			}
		}
	}
	return params
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
