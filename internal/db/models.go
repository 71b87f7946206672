package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Conversion statuses
const (
	StatusConverted = "converted"
	StatusFailed    = "failed"
)

// NullTime is a custom type that handles both string and time.Time from SQLite
type NullTime struct {
	Time  time.Time
	Valid bool
}

// NewNullTime returns a valid NullTime for t
func NewNullTime(t time.Time) NullTime {
	return NullTime{Time: t, Valid: true}
}

var timeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Scan implements sql.Scanner for NullTime
func (nt *NullTime) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		nt.Time, nt.Valid = time.Time{}, false
		return nil
	case time.Time:
		nt.Time, nt.Valid = v, true
		return nil
	case []byte:
		return nt.parse(string(v))
	case string:
		return nt.parse(v)
	default:
		return fmt.Errorf("unsupported Scan type for NullTime: %T", value)
	}
}

func (nt *NullTime) parse(s string) error {
	var err error
	for _, format := range timeFormats {
		var t time.Time
		if t, err = time.Parse(format, s); err == nil {
			nt.Time, nt.Valid = t, true
			return nil
		}
	}
	return fmt.Errorf("failed to parse time string %q: %w", s, err)
}

// Value implements driver.Valuer for NullTime
func (nt NullTime) Value() (driver.Value, error) {
	if !nt.Valid {
		return nil, nil
	}
	return nt.Time, nil
}

// MarshalJSON renders invalid times as null.
func (nt NullTime) MarshalJSON() ([]byte, error) {
	if !nt.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(nt.Time)
}

// UnmarshalJSON accepts null or an RFC 3339 time.
func (nt *NullTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		nt.Time, nt.Valid = time.Time{}, false
		return nil
	}
	if err := json.Unmarshal(b, &nt.Time); err != nil {
		return err
	}
	nt.Valid = true
	return nil
}

// Run is one invocation of the converter
type Run struct {
	ID             string   `db:"id" json:"id"`
	InputDir       string   `db:"input_dir" json:"input_dir"`
	OutputDir      string   `db:"output_dir" json:"output_dir"`
	AttachmentsDir string   `db:"attachments_dir" json:"attachments_dir,omitempty"`
	Extract        bool     `db:"extract" json:"extract"`
	Converted      int      `db:"converted" json:"converted"`
	Failed         int      `db:"failed" json:"failed"`
	Attachments    int      `db:"attachments" json:"attachments"`
	StartedAt      NullTime `db:"started_at" json:"started_at"`
	FinishedAt     NullTime `db:"finished_at" json:"finished_at"`
}

// Conversion is the latest outcome for one source file
type Conversion struct {
	ID              int64    `db:"id" json:"id"`
	RunID           string   `db:"run_id" json:"run_id"`
	SourcePath      string   `db:"source_path" json:"source_path"`
	OutputPath      string   `db:"output_path" json:"output_path,omitempty"`
	Status          string   `db:"status" json:"status"`
	Error           string   `db:"error_message" json:"error,omitempty"`
	Subject         string   `db:"subject" json:"subject,omitempty"`
	HTMLOnly        bool     `db:"html_only" json:"html_only"`
	WarningCount    int      `db:"warning_count" json:"warning_count"`
	AttachmentCount int      `db:"attachment_count" json:"attachment_count"`
	ConvertedAt     NullTime `db:"converted_at" json:"converted_at"`
}

// Failed reports whether the source could not be converted.
func (c *Conversion) Failed() bool {
	return c.Status == StatusFailed
}

// Attachment is one attachment listed in a conversion
type Attachment struct {
	ID           int64  `db:"id" json:"id"`
	ConversionID int64  `db:"conversion_id" json:"conversion_id"`
	Name         string `db:"name" json:"name"`
	SavedName    string `db:"saved_name" json:"saved_name,omitempty"`
	SavedPath    string `db:"saved_path" json:"-"`
	ContentType  string `db:"content_type" json:"content_type"`
	Size         int64  `db:"size" json:"size"`
	WriteError   string `db:"write_error" json:"write_error,omitempty"`
}

// Saved reports whether the attachment bytes are on disk.
func (a *Attachment) Saved() bool {
	return a.SavedPath != "" && a.WriteError == ""
}
