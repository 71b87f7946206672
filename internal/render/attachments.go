package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const maxFilenameLen = 200

// Attachment describes one attachment-eligible part as listed in the text
// output.
type Attachment struct {
	Name        string // original file name, or the generated fallback
	ContentType string
	Size        int // decoded payload length in bytes

	// Set only when extraction was requested.
	SavedName string
	Path      string
	Err       error
}

// Saved reports whether the attachment bytes were written to disk.
func (a Attachment) Saved() bool {
	return a.SavedName != "" && a.Err == nil
}

// Line formats the attachment for the ATTACHMENTS section.
func (a Attachment) Line() string {
	line := fmt.Sprintf("[ATTACHMENT: %s (%s, ~%.1f KB)]", a.Name, a.ContentType, float64(a.Size)/1024)
	if a.Saved() {
		line += " - Saved as: " + a.SavedName
	}
	return line
}

// AttachmentWriteError reports an attachment that could not be written. It
// never aborts rendering.
type AttachmentWriteError struct {
	Name string
	Path string
	Err  error
}

func (e *AttachmentWriteError) Error() string {
	return fmt.Sprintf("write attachment %q to %s: %v", e.Name, e.Path, e.Err)
}

func (e *AttachmentWriteError) Unwrap() error { return e.Err }

// NameTable hands out attachment file names for one run of the converter.
// A path handed out once is never handed out again, and a path recorded as
// belonging to another source by an earlier run is skipped as well.
type NameTable struct {
	taken  map[string]bool
	owners map[string]string
}

// NewNameTable creates an empty table.
func NewNameTable() *NameTable {
	return &NameTable{
		taken:  make(map[string]bool),
		owners: make(map[string]string),
	}
}

// Seed records saved path -> source path pairs from earlier runs.
func (t *NameTable) Seed(owners map[string]string) {
	for path, source := range owners {
		t.owners[filepath.Clean(path)] = source
	}
}

// Claim reserves a file name in dir for an attachment of source. On
// collision it appends _1, _2, ... before the extension. The returned name,
// suffix included, never exceeds maxFilenameLen bytes.
func (t *NameTable) Claim(dir, name, source string) string {
	stem, ext := splitExt(name)

	for n := 0; ; n++ {
		tail := ext
		if n > 0 {
			tail = fmt.Sprintf("_%d%s", n, ext)
		}
		candidate := boundName(stem, tail)
		path := filepath.Clean(filepath.Join(dir, candidate))
		if t.taken[path] {
			continue
		}
		if owner, ok := t.owners[path]; ok && owner != source {
			continue
		}
		t.taken[path] = true
		return candidate
	}
}

// sanitizeFilename replaces characters that are not allowed in file names
// and bounds the length, keeping the extension.
func sanitizeFilename(filename string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r < 32 || r == 127 || strings.ContainsRune(`<>:"/\|?*`, r) {
			return '_'
		}
		return r
	}, filename)

	switch strings.TrimSpace(cleaned) {
	case "", ".", "..":
		cleaned = strings.Repeat("_", max(len(cleaned), 1))
	}

	stem, ext := splitExt(cleaned)
	return boundName(stem, ext)
}

// splitExt splits off the extension. Overlong extensions stay in the stem so
// that cutting the stem can still bound the name.
func splitExt(name string) (stem, ext string) {
	ext = filepath.Ext(name)
	if len(ext) > 16 {
		ext = ""
	}
	return strings.TrimSuffix(name, ext), ext
}

// boundName cuts stem so that stem+tail fits in maxFilenameLen bytes.
func boundName(stem, tail string) string {
	return truncateUTF8(stem, maxFilenameLen-len(tail)) + tail
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func writeAttachment(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}
