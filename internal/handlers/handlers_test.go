package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felo/eml-to-txt/internal/config"
	"github.com/felo/eml-to-txt/internal/db"
)

type fixture struct {
	router   http.Handler
	db       *db.DB
	runID    string
	convID   int64
	failedID int64
	savedID  int64
	brokenID int64
}

// setupTestHandlers creates handlers over a ledger holding one converted
// file with two attachments and one failed file.
func setupTestHandlers(t *testing.T) *fixture {
	t.Helper()

	database := db.SetupTestDB(t)
	t.Cleanup(func() { db.CleanupTestDB(t, database) })

	dir := t.TempDir()
	txtPath := filepath.Join(dir, "example.txt")
	pdfPath := filepath.Join(dir, "attachments", "example_notes.pdf")
	require.NoError(t, os.MkdirAll(filepath.Dir(pdfPath), 0o755))
	require.NoError(t, os.WriteFile(txtPath, []byte("EMAIL: example.eml\n"), 0o644))
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4"), 0o644))

	run := &db.Run{InputDir: dir, OutputDir: dir, Extract: true}
	require.NoError(t, database.StartRun(run))
	require.NoError(t, database.FinishRun(run.ID, 1, 1, 1))

	saved := &db.Attachment{Name: "notes.pdf", SavedName: "example_notes.pdf", SavedPath: pdfPath, ContentType: "application/pdf", Size: 2048}
	broken := &db.Attachment{Name: "data.bin", ContentType: "application/octet-stream", Size: 3, WriteError: "disk full"}
	convID, err := database.RecordConversion(&db.Conversion{
		RunID:      run.ID,
		SourcePath: filepath.Join(dir, "example.eml"),
		OutputPath: txtPath,
		Status:     db.StatusConverted,
		Subject:    "Notes",
	}, []*db.Attachment{saved, broken})
	require.NoError(t, err)

	failedID, err := database.RecordConversion(&db.Conversion{
		RunID:      run.ID,
		SourcePath: filepath.Join(dir, "broken.eml"),
		Status:     db.StatusFailed,
		Error:      "parse: no empty line between header and body",
	}, nil)
	require.NoError(t, err)

	return &fixture{
		router:   New(database, config.Default()).Router(),
		db:       database,
		runID:    run.ID,
		convID:   convID,
		failedID: failedID,
		savedID:  saved.ID,
		brokenID: broken.ID,
	}
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestSummary(t *testing.T) {
	f := setupTestHandlers(t)

	var got struct {
		Conversions int `json:"conversions"`
		Converted   int `json:"converted"`
		Failed      int `json:"failed"`
		LatestRun   struct {
			ID string `json:"id"`
		} `json:"latest_run"`
	}
	decode(t, f.get(t, "/"), &got)

	assert.Equal(t, 2, got.Conversions)
	assert.Equal(t, 1, got.Converted)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, f.runID, got.LatestRun.ID)
}

func TestRuns(t *testing.T) {
	f := setupTestHandlers(t)

	var runs []db.Run
	decode(t, f.get(t, "/runs"), &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Converted)

	var run db.Run
	decode(t, f.get(t, "/runs/"+f.runID), &run)
	assert.Equal(t, f.runID, run.ID)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/runs/unknown").Code)
}

func TestListConversions(t *testing.T) {
	f := setupTestHandlers(t)

	var list struct {
		Total       int `json:"total"`
		Limit       int `json:"limit"`
		Conversions []struct {
			ID     int64  `json:"id"`
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"conversions"`
	}
	decode(t, f.get(t, "/conversions"), &list)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, defaultLimit, list.Limit)
	assert.Len(t, list.Conversions, 2)

	decode(t, f.get(t, "/conversions?status=failed&limit=9999"), &list)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, maxLimit, list.Limit)
	require.Len(t, list.Conversions, 1)
	assert.Equal(t, f.failedID, list.Conversions[0].ID)
	assert.NotEmpty(t, list.Conversions[0].Error)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/conversions?status=bogus").Code)
}

func TestViewConversion(t *testing.T) {
	f := setupTestHandlers(t)

	var view struct {
		ID          int64  `json:"id"`
		Subject     string `json:"subject"`
		Attachments []struct {
			Name        string `json:"name"`
			SavedName   string `json:"saved_name"`
			SavedPath   string `json:"saved_path"`
			SizeHuman   string `json:"size_human"`
			DownloadURL string `json:"download_url"`
			WriteError  string `json:"write_error"`
		} `json:"attachments"`
	}
	decode(t, f.get(t, fmt.Sprintf("/conversions/%d", f.convID)), &view)

	assert.Equal(t, "Notes", view.Subject)
	require.Len(t, view.Attachments, 2)
	assert.Equal(t, "example_notes.pdf", view.Attachments[0].SavedName)
	assert.Empty(t, view.Attachments[0].SavedPath, "saved paths stay server-side")
	assert.Equal(t, "2.0 kB", view.Attachments[0].SizeHuman)
	assert.Equal(t, fmt.Sprintf("/attachments/%d/download", f.savedID), view.Attachments[0].DownloadURL)
	assert.Empty(t, view.Attachments[1].DownloadURL)
	assert.Equal(t, "disk full", view.Attachments[1].WriteError)
}

func TestViewConversionErrors(t *testing.T) {
	f := setupTestHandlers(t)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/conversions/abc").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/conversions/-1").Code)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/conversions/999").Code)
}

func TestConversionText(t *testing.T) {
	f := setupTestHandlers(t)

	rec := f.get(t, fmt.Sprintf("/conversions/%d/text", f.convID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "EMAIL: example.eml\n", rec.Body.String())

	rec = f.get(t, fmt.Sprintf("/conversions/%d/text", f.failedID))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadAttachment(t *testing.T) {
	f := setupTestHandlers(t)

	rec := f.get(t, fmt.Sprintf("/attachments/%d/download", f.savedID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.4", rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, `attachment; filename=example_notes.pdf`, rec.Header().Get("Content-Disposition"))

	assert.Equal(t, http.StatusNotFound, f.get(t, fmt.Sprintf("/attachments/%d/download", f.brokenID)).Code)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/attachments/999/download").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/attachments/x/download").Code)
}

func TestDownloadAttachmentMissingFile(t *testing.T) {
	f := setupTestHandlers(t)

	att, err := f.db.GetAttachmentByID(f.savedID)
	require.NoError(t, err)
	require.NoError(t, os.Remove(att.SavedPath))

	rec := f.get(t, fmt.Sprintf("/attachments/%d/download", f.savedID))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"normal", "report.pdf", "report.pdf"},
		{"path traversal", "../../etc/passwd", "passwd"},
		{"quotes", `my "file".txt`, "my file.txt"},
		{"control chars", "a\x00b\nc.txt", "abc.txt"},
		{"empty", "", "download.bin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeFilename(tt.input))
		})
	}
}
