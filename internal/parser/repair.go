package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/textproto"
)

// boundaryFrame is a multipart body that has been opened but not closed yet.
type boundaryFrame struct {
	boundary string
	id       string
	children int
}

// headerRepair rewrites the header blocks of a raw message so the MIME reader
// accepts them. Lines that are not header fields are dropped with a warning,
// and a part header that runs straight into the next delimiter gets the empty
// line it is missing. Bodies pass through untouched.
type headerRepair struct {
	out      bytes.Buffer
	warnings []DecodeWarning
	open     []boundaryFrame

	inHeader bool
	headerID string
	block    bytes.Buffer // kept lines of the current header block
	dropping bool         // the last field line was dropped
	topDone  bool
	lineNo   int
}

// repairHeaders returns ErrNoSeparator when the message header is never
// followed by an empty line. Every other header defect is recoverable.
func repairHeaders(raw []byte) ([]byte, []DecodeWarning, error) {
	r := &headerRepair{inHeader: true}
	r.out.Grow(len(raw) + 16)

	for off := 0; off < len(raw); {
		var line []byte
		line, off = nextLine(raw, off)
		r.lineNo++
		if r.inHeader {
			r.headerLine(line)
		} else {
			r.bodyLine(line)
		}
	}

	if !r.topDone {
		return nil, nil, ErrNoSeparator
	}
	return r.out.Bytes(), r.warnings, nil
}

func (r *headerRepair) headerLine(line []byte) {
	content := trimLineEnd(line)
	if _, _, ok := r.delimiter(content); ok {
		r.warn("part header ends without an empty line, body left empty")
		eol := line[len(content):]
		if len(eol) == 0 {
			eol = []byte("\n")
		}
		r.out.Write(eol)
		r.endHeader()
		r.bodyLine(line)
		return
	}

	switch {
	case len(content) == 0:
		r.out.Write(line)
		r.endHeader()
	case content[0] == ' ' || content[0] == '\t':
		if r.dropping {
			return
		}
		if r.block.Len() == 0 {
			r.dropping = true
			r.warn("continuation line %q before any field, skipped", truncate(string(bytes.TrimSpace(content)), 40))
			return
		}
		r.keep(line, content)
	case !isHeaderField(content):
		r.dropping = true
		r.warn("%q is not a header field, skipped", truncate(string(content), 40))
	default:
		r.dropping = false
		r.keep(line, content)
	}
}

func (r *headerRepair) keep(line, content []byte) {
	r.out.Write(line)
	r.block.Write(content)
	r.block.WriteString("\r\n")
}

// endHeader closes the current header block and opens a boundary frame when
// the block declares a multipart body.
func (r *headerRepair) endHeader() {
	r.inHeader = false
	r.topDone = true
	r.dropping = false

	r.block.WriteString("\r\n")
	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(r.block.Bytes())))
	r.block.Reset()
	if err != nil {
		return
	}
	mh := message.Header{Header: h}
	mediaType, params, err := mh.ContentType()
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return
	}
	r.open = append(r.open, boundaryFrame{boundary: params["boundary"], id: r.headerID})
}

func (r *headerRepair) bodyLine(line []byte) {
	r.out.Write(line)

	i, closing, ok := r.delimiter(trimLineEnd(line))
	if !ok {
		return
	}
	if closing {
		r.open = r.open[:i]
		return
	}
	r.open = r.open[:i+1]
	r.open[i].children++
	r.headerID = partID(r.open[i].id, r.open[i].children)
	r.inHeader = true
}

// delimiter reports whether content is a delimiter line of an open multipart
// body, innermost first. i indexes the matching frame.
func (r *headerRepair) delimiter(content []byte) (i int, closing, ok bool) {
	content = bytes.TrimRight(content, " \t")
	for i = len(r.open) - 1; i >= 0; i-- {
		rest, found := bytes.CutPrefix(content, []byte("--"+r.open[i].boundary))
		if !found {
			continue
		}
		switch string(rest) {
		case "":
			return i, false, true
		case "--":
			return i, true, true
		}
	}
	return 0, false, false
}

func (r *headerRepair) warn(format string, args ...any) {
	r.warnings = append(r.warnings, DecodeWarning{
		Part:   r.headerID,
		Kind:   WarnHeader,
		Detail: fmt.Sprintf("line %d: ", r.lineNo) + fmt.Sprintf(format, args...),
	})
}

// isHeaderField reports whether line has a field name made of printable
// US-ASCII followed by a colon.
func isHeaderField(line []byte) bool {
	colon := bytes.IndexByte(line, ':')
	if colon < 0 {
		return false
	}
	for _, c := range bytes.Trim(line[:colon], " \t") {
		if c < '!' || c > '~' {
			return false
		}
	}
	return true
}

// isEnvelopeLine reports whether raw starts with an mbox "From " separator
// line rather than a From: field written with space before the colon.
func isEnvelopeLine(raw []byte) bool {
	rest, ok := bytes.CutPrefix(raw, []byte("From "))
	if !ok {
		return false
	}
	rest = bytes.TrimLeft(rest, " \t")
	return len(rest) > 0 && rest[0] != ':'
}

// nextLine returns the line starting at off, including its line break, and
// the offset of the following line.
func nextLine(b []byte, off int) (line []byte, next int) {
	if i := bytes.IndexByte(b[off:], '\n'); i >= 0 {
		return b[off : off+i+1], off + i + 1
	}
	return b[off:], len(b)
}

func trimLineEnd(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}

func partID(parent string, n int) string {
	if parent == "" {
		return fmt.Sprint(n)
	}
	return fmt.Sprintf("%s.%d", parent, n)
}
