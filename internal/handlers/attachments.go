package handlers

import (
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// sanitizeFilename removes dangerous characters from attachment filenames
func sanitizeFilename(filename string) string {
	// Remove path separators
	filename = filepath.Base(filename)

	// Remove any control characters and quotes
	cleaned := strings.Map(func(r rune) rune {
		if r < 32 || r == 127 || r == '"' || r == '\'' {
			return -1
		}
		return r
	}, filename)

	if len(cleaned) > 255 {
		cleaned = cleaned[:255]
	}
	if cleaned == "" || cleaned == "." || cleaned == string(filepath.Separator) {
		cleaned = "download.bin"
	}

	return cleaned
}

// DownloadAttachment serves an extracted attachment file
func (h *Handlers) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		http.Error(w, "Invalid attachment ID", http.StatusBadRequest)
		return
	}

	att, err := h.db.GetAttachmentByID(id)
	if err != nil {
		serverError(w, r, "Failed to load attachment", err)
		return
	}
	if att == nil {
		http.Error(w, "Attachment not found", http.StatusNotFound)
		return
	}
	if !att.Saved() {
		http.Error(w, "Attachment was not extracted", http.StatusNotFound)
		return
	}

	data, err := os.ReadFile(att.SavedPath)
	if os.IsNotExist(err) {
		http.Error(w, "Attachment file no longer exists", http.StatusNotFound)
		return
	}
	if err != nil {
		serverError(w, r, "Failed to read attachment", err)
		return
	}

	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{
			"filename": sanitizeFilename(att.SavedName),
		}))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(int64(len(data)), 10))
	w.Header().Set("X-Content-Type-Options", "nosniff")

	w.Write(data)
}
