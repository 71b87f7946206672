package db

import (
	"fmt"
	"testing"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database
func CleanupTestDB(t *testing.T, db *DB) {
	t.Helper()

	if err := db.Close(); err != nil {
		t.Errorf("Failed to close test database: %v", err)
	}
}

// CreateTestConversion creates a converted record for /test/<name>.eml
func CreateTestConversion(runID, name string) *Conversion {
	return &Conversion{
		RunID:      runID,
		SourcePath: fmt.Sprintf("/test/%s.eml", name),
		OutputPath: fmt.Sprintf("/out/%s.txt", name),
		Status:     StatusConverted,
		Subject:    name,
	}
}

// CreateTestAttachment creates a saved attachment record for a source name
func CreateTestAttachment(source, name string, size int64) *Attachment {
	saved := source + "_" + name
	return &Attachment{
		Name:        name,
		SavedName:   saved,
		SavedPath:   "/out/attachments/" + saved,
		ContentType: "application/octet-stream",
		Size:        size,
	}
}
