package handlers

import (
	"fmt"
	"net/http"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/felo/eml-to-txt/internal/db"
)

type summaryView struct {
	Conversions int     `json:"conversions"`
	Converted   int     `json:"converted"`
	Failed      int     `json:"failed"`
	LatestRun   *db.Run `json:"latest_run,omitempty"`
}

type conversionList struct {
	Total       int              `json:"total"`
	Limit       int              `json:"limit"`
	Offset      int              `json:"offset"`
	Conversions []*db.Conversion `json:"conversions"`
}

type attachmentView struct {
	*db.Attachment
	SizeHuman   string `json:"size_human"`
	DownloadURL string `json:"download_url,omitempty"`
}

type conversionView struct {
	*db.Conversion
	Attachments []attachmentView `json:"attachments"`
}

func newAttachmentView(att *db.Attachment) attachmentView {
	v := attachmentView{
		Attachment: att,
		SizeHuman:  humanize.Bytes(uint64(att.Size)),
	}
	if att.Saved() {
		v.DownloadURL = fmt.Sprintf("/attachments/%d/download", att.ID)
	}
	return v
}

// Summary reports ledger totals and the most recent run
func (h *Handlers) Summary(w http.ResponseWriter, r *http.Request) {
	var s summaryView
	var err error
	if s.Conversions, err = h.db.CountConversions(""); err != nil {
		serverError(w, r, "Failed to count conversions", err)
		return
	}
	if s.Failed, err = h.db.CountConversions(db.StatusFailed); err != nil {
		serverError(w, r, "Failed to count conversions", err)
		return
	}
	s.Converted = s.Conversions - s.Failed

	runs, err := h.db.ListRuns(1)
	if err != nil {
		serverError(w, r, "Failed to load runs", err)
		return
	}
	if len(runs) > 0 {
		s.LatestRun = runs[0]
	}

	renderJSON(w, r, s)
}

// ListRuns lists recent conversion runs
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := pageParams(r)
	runs, err := h.db.ListRuns(limit)
	if err != nil {
		serverError(w, r, "Failed to load runs", err)
		return
	}
	if runs == nil {
		runs = []*db.Run{}
	}
	renderJSON(w, r, runs)
}

// ViewRun shows a single run
func (h *Handlers) ViewRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.db.GetRun(chi.URLParam(r, "id"))
	if err != nil {
		serverError(w, r, "Failed to load run", err)
		return
	}
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	renderJSON(w, r, run)
}

// ListConversions lists conversions, optionally filtered by ?status=
func (h *Handlers) ListConversions(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", db.StatusConverted, db.StatusFailed:
	default:
		http.Error(w, "Invalid status", http.StatusBadRequest)
		return
	}
	limit, offset := pageParams(r)

	total, err := h.db.CountConversions(status)
	if err != nil {
		serverError(w, r, "Failed to count conversions", err)
		return
	}
	convs, err := h.db.ListConversions(status, limit, offset)
	if err != nil {
		serverError(w, r, "Failed to load conversions", err)
		return
	}
	if convs == nil {
		convs = []*db.Conversion{}
	}

	renderJSON(w, r, conversionList{
		Total:       total,
		Limit:       limit,
		Offset:      offset,
		Conversions: convs,
	})
}

// ViewConversion shows one conversion with its attachments
func (h *Handlers) ViewConversion(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.loadConversion(w, r)
	if !ok {
		return
	}

	atts, err := h.db.GetAttachmentsByConversionID(conv.ID)
	if err != nil {
		serverError(w, r, "Failed to load attachments", err)
		return
	}

	view := conversionView{Conversion: conv, Attachments: make([]attachmentView, 0, len(atts))}
	for _, att := range atts {
		view.Attachments = append(view.Attachments, newAttachmentView(att))
	}
	renderJSON(w, r, view)
}

// ConversionText serves the text file written for a conversion
func (h *Handlers) ConversionText(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.loadConversion(w, r)
	if !ok {
		return
	}
	if conv.Failed() || conv.OutputPath == "" {
		http.Error(w, "Conversion has no text output", http.StatusNotFound)
		return
	}

	f, err := os.Open(conv.OutputPath)
	if os.IsNotExist(err) {
		http.Error(w, "Text output no longer exists", http.StatusNotFound)
		return
	}
	if err != nil {
		serverError(w, r, "Failed to open text output", err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		serverError(w, r, "Failed to open text output", err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (h *Handlers) loadConversion(w http.ResponseWriter, r *http.Request) (*db.Conversion, bool) {
	id, ok := idParam(r)
	if !ok {
		http.Error(w, "Invalid conversion ID", http.StatusBadRequest)
		return nil, false
	}

	conv, err := h.db.GetConversionByID(id)
	if err != nil {
		serverError(w, r, "Failed to load conversion", err)
		return nil, false
	}
	if conv == nil {
		http.Error(w, "Conversion not found", http.StatusNotFound)
		return nil, false
	}
	return conv, true
}
