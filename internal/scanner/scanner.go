package scanner

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// Scanner finds .eml files below a root directory
type Scanner struct {
	rootPath  string
	recursive bool
}

// NewScanner creates a new scanner for the given root path. Subdirectories
// are only visited when recursive is set.
func NewScanner(rootPath string, recursive bool) *Scanner {
	return &Scanner{
		rootPath:  rootPath,
		recursive: recursive,
	}
}

// GetRootPath returns the root path for resolving relative paths
func (s *Scanner) GetRootPath() string {
	return s.rootPath
}

// Scan returns the .eml files found, as paths relative to the root, in
// lexical order.
func (s *Scanner) Scan() ([]string, error) {
	var emlFiles []string

	absRoot, err := filepath.Abs(s.rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute root path: %w", err)
	}

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if d.IsDir() {
			if path != absRoot && !s.recursive {
				return filepath.SkipDir
			}
			return nil
		}

		if !IsEML(path) {
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %s: %w", path, err)
		}
		emlFiles = append(emlFiles, relPath)
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	return emlFiles, nil
}

// ScanWithCallback scans for .eml files and calls the callback for each file found
func (s *Scanner) ScanWithCallback(callback func(path string, index, total int) error) error {
	files, err := s.Scan()
	if err != nil {
		return err
	}

	total := len(files)
	for i, file := range files {
		if err := callback(file, i+1, total); err != nil {
			return fmt.Errorf("callback error for file %s: %w", file, err)
		}
	}

	return nil
}

// IsEML reports whether path has an .eml extension, ignoring case.
func IsEML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".eml")
}
