package parser

import "strings"

// DefaultCharset is assumed for text parts that declare no charset or an
// unrecognized one.
const DefaultCharset = "utf-8"

// Disposition tells whether a part is meant to be shown inline or saved.
type Disposition string

const (
	DispositionInline     Disposition = "inline"
	DispositionAttachment Disposition = "attachment"
)

// Field is a single header line after unfolding.
type Field struct {
	Name  string
	Value string // decoded from encoded-word syntax
	Raw   string // unfolded, undecoded
}

// Header keeps header fields in the order they appeared, duplicates included.
type Header []Field

// Get returns the decoded value of the first field named name.
func (h Header) Get(name string) string {
	if f, ok := h.field(name); ok {
		return f.Value
	}
	return ""
}

// Raw returns the undecoded value of the first field named name.
func (h Header) Raw(name string) string {
	if f, ok := h.field(name); ok {
		return f.Raw
	}
	return ""
}

// Has reports whether at least one field named name exists.
func (h Header) Has(name string) bool {
	_, ok := h.field(name)
	return ok
}

// Values returns the decoded values of every field named name, in order.
func (h Header) Values(name string) []string {
	var values []string
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			values = append(values, f.Value)
		}
	}
	return values
}

func (h Header) field(name string) (Field, bool) {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}

// Part is a node of the MIME content tree. A multipart node owns its
// children; a leaf carries the decoded payload.
type Part struct {
	// ID is the dotted position of the part in the tree ("" for the root,
	// "1", "2.1", ...).
	ID               string
	Header           Header
	ContentType      string
	Charset          string
	TransferEncoding string
	Disposition      Disposition
	Filename         string

	// Body holds the payload after transfer decoding.
	Body []byte
	// Text holds Body decoded to UTF-8; set for text/* leaves only.
	Text string

	Children []*Part
}

// IsMultipart reports whether the part is an internal node of the tree.
func (p *Part) IsMultipart() bool {
	return p.Children != nil
}

// IsText reports whether the part has a text/* content type.
func (p *Part) IsText() bool {
	return strings.HasPrefix(p.ContentType, "text/")
}

// IsAttachment reports whether the part should be listed and extracted as an
// attachment rather than considered for the message body.
func (p *Part) IsAttachment() bool {
	if p.IsMultipart() {
		return false
	}
	if p.Disposition == DispositionAttachment {
		return true
	}
	return !p.IsText() && !strings.HasPrefix(p.ContentType, "multipart/")
}

// Leaves returns every leaf below p (p itself if it is a leaf) in tree order.
func (p *Part) Leaves() []*Part {
	if !p.IsMultipart() {
		return []*Part{p}
	}
	var leaves []*Part
	for _, c := range p.Children {
		leaves = append(leaves, c.Leaves()...)
	}
	return leaves
}

// Message is a parsed email: its top-level header and content tree.
type Message struct {
	Header   Header
	Root     *Part
	Warnings []DecodeWarning
}

// Body selects the part to render as the message body. text is the first
// inline text/plain leaf; when there is none, html is the first inline
// text/html leaf. Both are nil for a message without a usable body.
func (m *Message) Body() (text, html *Part) {
	for _, leaf := range m.Root.Leaves() {
		if leaf.IsAttachment() {
			continue
		}
		switch leaf.ContentType {
		case "text/plain":
			return leaf, nil
		case "text/html":
			if html == nil {
				html = leaf
			}
		}
	}
	return nil, html
}

// Attachments returns every attachment-eligible leaf in tree order.
func (m *Message) Attachments() []*Part {
	var parts []*Part
	for _, leaf := range m.Root.Leaves() {
		if leaf.IsAttachment() {
			parts = append(parts, leaf)
		}
	}
	return parts
}
