// Package converter drives the conversion of a folder of .eml files: it
// finds the files, renders each one to text, writes the output tree and
// records the outcome.
package converter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/felo/eml-to-txt/internal/config"
	"github.com/felo/eml-to-txt/internal/db"
	"github.com/felo/eml-to-txt/internal/parser"
	"github.com/felo/eml-to-txt/internal/render"
	"github.com/felo/eml-to-txt/internal/scanner"
)

// Status is the outcome of converting one file
type Status int

const (
	StatusConverted Status = iota
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusConverted:
		return db.StatusConverted
	case StatusFailed:
		return db.StatusFailed
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// FileResult is what happened to one input file
type FileResult struct {
	Path        string // absolute path of the .eml file
	RelPath     string // path relative to the input folder
	OutputPath  string
	Status      Status
	Err         error
	HTMLOnly    bool
	Subject     string
	Warnings    []parser.DecodeWarning
	Attachments []render.Attachment
}

// Result contains statistics about a conversion run
type Result struct {
	RunID                string
	TotalFound           int
	Converted            int
	Failed               int
	AttachmentsExtracted int
	AttachmentErrors     int
	BytesExtracted       int64
	FailedFiles          []string
	Files                []FileResult
}

// OK reports whether the run found files and converted all of them.
func (r *Result) OK() bool {
	return r.TotalFound > 0 && r.Failed == 0
}

func (r *Result) add(fr FileResult) {
	r.Files = append(r.Files, fr)
	if fr.Status == StatusFailed {
		r.Failed++
		r.FailedFiles = append(r.FailedFiles, fr.RelPath)
		return
	}
	r.Converted++
	for _, a := range fr.Attachments {
		switch {
		case a.Saved():
			r.AttachmentsExtracted++
			r.BytesExtracted += int64(a.Size)
		case a.Err != nil:
			r.AttachmentErrors++
		}
	}
}

// Converter converts every .eml file of a folder
type Converter struct {
	cfg      *config.Config
	scanner  *scanner.Scanner
	ledger   *db.DB
	names    *render.NameTable
	progress func(current, total int, path string)
	logger   zerolog.Logger
}

// NewConverter creates a converter for a resolved configuration. ledger may
// be nil.
func NewConverter(cfg *config.Config, ledger *db.DB) *Converter {
	return &Converter{
		cfg:     cfg,
		scanner: scanner.NewScanner(cfg.InputDir, cfg.Recursive),
		ledger:  ledger,
		names:   render.NewNameTable(),
		logger:  log.With().Str("module", "converter").Logger(),
	}
}

// WithProgress sets a callback invoked after each file
func (c *Converter) WithProgress(fn func(current, total int, path string)) *Converter {
	c.progress = fn
	return c
}

// ConvertAll converts every file found in the input folder, one at a time.
// A file that fails is recorded and skipped; the returned error is only set
// when the folder cannot be scanned, the ledger cannot be used or ctx is
// cancelled.
func (c *Converter) ConvertAll(ctx context.Context) (*Result, error) {
	result := &Result{}

	if c.ledger != nil {
		run := &db.Run{
			InputDir:       c.cfg.InputDir,
			OutputDir:      c.cfg.OutputDir,
			AttachmentsDir: c.cfg.AttachmentsDir,
			Extract:        c.cfg.Extract,
		}
		if err := c.ledger.StartRun(run); err != nil {
			return nil, err
		}
		result.RunID = run.ID

		owners, err := c.ledger.SavedPathOwners()
		if err != nil {
			return nil, err
		}
		c.names.Seed(owners)
	}

	err := c.scanner.ScanWithCallback(func(relPath string, index, total int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		result.TotalFound = total
		if index == 1 {
			c.logger.Info().Int("files", total).Str("input", c.cfg.InputDir).Msg("Converting emails")
		}

		fr := c.ConvertFile(relPath)
		result.add(fr)
		c.record(result.RunID, fr)

		if c.progress != nil {
			c.progress(index, total, relPath)
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("failed to convert %s: %w", c.cfg.InputDir, err)
	}

	if result.TotalFound == 0 {
		c.logger.Warn().Str("input", c.cfg.InputDir).Msg("No .eml files found")
	}
	if c.ledger != nil {
		if err := c.ledger.FinishRun(result.RunID, result.Converted, result.Failed, result.AttachmentsExtracted); err != nil {
			return result, err
		}
	}

	c.logger.Info().
		Int("converted", result.Converted).
		Int("failed", result.Failed).
		Int("attachments", result.AttachmentsExtracted).
		Str("extracted", humanize.Bytes(uint64(result.BytesExtracted))).
		Msg("Conversion complete")
	return result, nil
}

// ConvertFile converts one file given relative to the input folder. It
// never panics on bad input: every failure ends up in the FileResult.
func (c *Converter) ConvertFile(relPath string) FileResult {
	src := filepath.Join(c.scanner.GetRootPath(), relPath)
	fr := FileResult{Path: src, RelPath: relPath}
	logger := c.logger.With().Str("path", relPath).Logger()

	msg, err := parser.ParseEMLFile(src)
	if err != nil {
		fr.Status, fr.Err = StatusFailed, err
		logger.Error().Err(err).Msg("Failed to parse email")
		return fr
	}
	fr.Subject = msg.Header.Get("Subject")
	for _, w := range msg.Warnings {
		logger.Warn().Str("part", w.Part).Str("kind", string(w.Kind)).Msg(w.Detail)
	}

	// Subdirectories of the input are mirrored in both output trees.
	sub := filepath.Dir(relPath)
	outDir := filepath.Join(c.cfg.OutputDir, sub)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fr.Status, fr.Err = StatusFailed, fmt.Errorf("failed to create output directory: %w", err)
		logger.Error().Err(fr.Err).Msg("Failed to convert email")
		return fr
	}

	opts := render.Options{
		SourceName:         filepath.Base(src),
		SourcePath:         src,
		ExtractAttachments: c.cfg.Extract,
	}
	if c.cfg.Extract {
		opts.AttachmentsDir = filepath.Join(c.cfg.AttachmentsDir, sub)
		if err := os.MkdirAll(opts.AttachmentsDir, 0o755); err != nil {
			// Each attachment write will fail and be reported on its own.
			logger.Warn().Err(err).Str("dir", opts.AttachmentsDir).Msg("Failed to create attachments directory")
		}
	}

	res, err := render.Render(msg, opts, c.names)
	if err != nil {
		fr.Status, fr.Err = StatusFailed, err
		logger.Error().Err(err).Msg("Failed to render email")
		return fr
	}
	fr.HTMLOnly = res.HTMLOnly
	fr.Warnings = res.Warnings
	fr.Attachments = res.Attachments
	for _, werr := range res.WriteErrors() {
		logger.Error().Err(werr).Msg("Failed to save attachment")
	}

	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	fr.OutputPath = filepath.Join(outDir, base+".txt")
	if err := os.WriteFile(fr.OutputPath, []byte(res.Text), 0o644); err != nil {
		fr.Status, fr.Err = StatusFailed, fmt.Errorf("failed to write %s: %w", fr.OutputPath, err)
		logger.Error().Err(fr.Err).Msg("Failed to convert email")
		return fr
	}

	fr.Status = StatusConverted
	logger.Debug().
		Str("output", fr.OutputPath).
		Int("attachments", len(res.Attachments)).
		Int("extracted", res.Extracted()).
		Bool("html_only", res.HTMLOnly).
		Msg("Converted email")
	return fr
}

// record stores fr in the ledger. Ledger failures are logged and do not
// change the file's outcome.
func (c *Converter) record(runID string, fr FileResult) {
	if c.ledger == nil {
		return
	}

	conv := &db.Conversion{
		RunID:        runID,
		SourcePath:   fr.Path,
		OutputPath:   fr.OutputPath,
		Status:       fr.Status.String(),
		Subject:      fr.Subject,
		HTMLOnly:     fr.HTMLOnly,
		WarningCount: len(fr.Warnings),
	}
	if fr.Err != nil {
		conv.Error = fr.Err.Error()
	}

	atts := make([]*db.Attachment, 0, len(fr.Attachments))
	for _, a := range fr.Attachments {
		att := &db.Attachment{
			Name:        a.Name,
			SavedName:   a.SavedName,
			SavedPath:   a.Path,
			ContentType: a.ContentType,
			Size:        int64(a.Size),
		}
		if a.Err != nil {
			att.WriteError = a.Err.Error()
		}
		atts = append(atts, att)
	}

	if _, err := c.ledger.RecordConversion(conv, atts); err != nil {
		c.logger.Error().Err(err).Str("path", fr.RelPath).Msg("Failed to record conversion")
	}
}
