package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const conversionColumns = `
	id, run_id, source_path, output_path, status, error_message, subject,
	html_only, warning_count, attachment_count, converted_at`

const attachmentColumns = `
	id, conversion_id, name, saved_name, saved_path, content_type, size, write_error`

// RecordConversion stores the outcome for one source file together with its
// attachments. Rows from an earlier conversion of the same source are
// replaced.
func (db *DB) RecordConversion(conv *Conversion, attachments []*Attachment) (int64, error) {
	if !conv.ConvertedAt.Valid {
		conv.ConvertedAt = NewNullTime(time.Now().UTC())
	}
	conv.AttachmentCount = len(attachments)

	tx, err := db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var previous int64
	err = tx.Get(&previous, `SELECT id FROM conversions WHERE source_path = ?`, conv.SourcePath)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return 0, fmt.Errorf("failed to look up previous conversion: %w", err)
	default:
		if _, err := tx.Exec(`DELETE FROM attachments WHERE conversion_id = ?`, previous); err != nil {
			return 0, fmt.Errorf("failed to delete previous attachments: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM conversions WHERE id = ?`, previous); err != nil {
			return 0, fmt.Errorf("failed to delete previous conversion: %w", err)
		}
	}

	res, err := tx.NamedExec(`
		INSERT INTO conversions (
			run_id, source_path, output_path, status, error_message, subject,
			html_only, warning_count, attachment_count, converted_at
		) VALUES (
			:run_id, :source_path, :output_path, :status, :error_message, :subject,
			:html_only, :warning_count, :attachment_count, :converted_at
		)
	`, conv)
	if err != nil {
		return 0, fmt.Errorf("failed to insert conversion: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get conversion id: %w", err)
	}

	for _, att := range attachments {
		att.ConversionID = id
		res, err := tx.NamedExec(`
			INSERT INTO attachments (
				conversion_id, name, saved_name, saved_path, content_type, size, write_error
			) VALUES (
				:conversion_id, :name, :saved_name, :saved_path, :content_type, :size, :write_error
			)
		`, att)
		if err != nil {
			return 0, fmt.Errorf("failed to insert attachment %q: %w", att.Name, err)
		}
		if att.ID, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("failed to get attachment id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit conversion: %w", err)
	}
	conv.ID = id
	return id, nil
}

// GetConversionByID retrieves a conversion by ID
func (db *DB) GetConversionByID(id int64) (*Conversion, error) {
	conv := &Conversion{}
	err := db.Get(conv, `SELECT `+conversionColumns+` FROM conversions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversion: %w", err)
	}
	return conv, nil
}

// GetConversionBySource retrieves the conversion recorded for a source path
func (db *DB) GetConversionBySource(sourcePath string) (*Conversion, error) {
	conv := &Conversion{}
	err := db.Get(conv, `SELECT `+conversionColumns+` FROM conversions WHERE source_path = ?`, sourcePath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversion: %w", err)
	}
	return conv, nil
}

// ListConversions retrieves conversions with pagination, most recent first.
// An empty status lists every conversion.
func (db *DB) ListConversions(status string, limit, offset int) ([]*Conversion, error) {
	var convs []*Conversion
	err := db.Select(&convs, `
		SELECT `+conversionColumns+`
		FROM conversions
		WHERE (? = '' OR status = ?)
		ORDER BY converted_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, status, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversions: %w", err)
	}
	return convs, nil
}

// CountConversions returns the number of conversions with the given status,
// or all of them when status is empty.
func (db *DB) CountConversions(status string) (int, error) {
	var count int
	err := db.Get(&count, `SELECT COUNT(*) FROM conversions WHERE (? = '' OR status = ?)`, status, status)
	if err != nil {
		return 0, fmt.Errorf("failed to count conversions: %w", err)
	}
	return count, nil
}

// GetAttachmentsByConversionID retrieves all attachments of a conversion
func (db *DB) GetAttachmentsByConversionID(conversionID int64) ([]*Attachment, error) {
	var atts []*Attachment
	err := db.Select(&atts, `
		SELECT `+attachmentColumns+`
		FROM attachments WHERE conversion_id = ?
		ORDER BY id
	`, conversionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	return atts, nil
}

// GetAttachmentByID retrieves a single attachment by ID
func (db *DB) GetAttachmentByID(id int64) (*Attachment, error) {
	att := &Attachment{}
	err := db.Get(att, `SELECT `+attachmentColumns+` FROM attachments WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return att, nil
}

// SavedPathOwners maps every saved attachment path to the source file that
// produced it.
func (db *DB) SavedPathOwners() (map[string]string, error) {
	var rows []struct {
		SavedPath  string `db:"saved_path"`
		SourcePath string `db:"source_path"`
	}
	err := db.Select(&rows, `
		SELECT a.saved_path, c.source_path
		FROM attachments a
		JOIN conversions c ON c.id = a.conversion_id
		WHERE a.saved_path != '' AND a.write_error = ''
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load saved paths: %w", err)
	}

	owners := make(map[string]string, len(rows))
	for _, r := range rows {
		owners[r.SavedPath] = r.SourcePath
	}
	return owners, nil
}
