// Package csvdir implements the CredentialSource port over a directory of
// access-key CSV exports as produced by the AWS console.
package csvdir

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ericfisherdev/iamkeycheck/internal/domain/model"
	"github.com/ericfisherdev/iamkeycheck/internal/domain/port/driven"
)

// Column names written by the upstream export tool. Matching is exact.
const (
	ColumnKeyID  = "Access key ID"
	ColumnSecret = "Secret access key"
)

var (
	// ErrMissingColumns is reported for a file whose header lacks a required column.
	ErrMissingColumns = errors.New("header is missing a required column")
	// ErrEmptyFile is reported for a file with no header row.
	ErrEmptyFile = errors.New("file is empty")
)

// Compile-time interface satisfaction check.
var _ driven.CredentialSource = (*Loader)(nil)

// Loader reads every *.csv file directly inside a directory.
type Loader struct {
	dir    string
	logger *slog.Logger
}

// NewLoader creates a Loader for dir. Subdirectories are never descended into.
func NewLoader(dir string, logger *slog.Logger) *Loader {
	return &Loader{dir: dir, logger: logger}
}

// Dir returns the directory the loader scans.
func (l *Loader) Dir() string {
	return l.dir
}

// FileResult is the outcome of parsing a single export file. Err is non-nil
// when the file contributed nothing because it could not be read or parsed.
type FileResult struct {
	Path    string
	Records []model.CredentialRecord
	Skipped int
	Err     error
}

// Report aggregates the outcome of one directory scan.
type Report struct {
	Dir    string
	DirErr error
	Files  []FileResult
}

// Records flattens all records in file order, then row order.
func (r Report) Records() []model.CredentialRecord {
	var out []model.CredentialRecord
	for _, f := range r.Files {
		out = append(out, f.Records...)
	}
	if out == nil {
		out = []model.CredentialRecord{}
	}
	return out
}

// Err combines every per-file error, or returns nil if all files parsed.
// The directory listing error is reported separately in DirErr.
func (r Report) Err() error {
	var err error
	for _, f := range r.Files {
		if f.Err != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", filepath.Base(f.Path), f.Err))
		}
	}
	return err
}

// LoadAll returns every valid credential record in the directory. It never
// fails on directory or file problems; those are logged and contribute no records.
func (l *Loader) LoadAll(ctx context.Context) ([]model.CredentialRecord, error) {
	report := l.Scan(ctx)

	if report.DirErr != nil {
		l.logger.Warn("credential directory unavailable", "dir", report.Dir, "error", report.DirErr)
	}
	if err := report.Err(); err != nil {
		for _, fileErr := range multierr.Errors(err) {
			l.logger.Warn("credential file skipped", "dir", report.Dir, "error", fileErr)
		}
	}

	records := report.Records()
	l.logger.Debug("credentials loaded",
		"dir", report.Dir,
		"files", len(report.Files),
		"records", len(records),
	)
	return records, nil
}

// Scan discovers and parses every export file in the directory, returning a
// per-file outcome. Files are visited in lexical order.
func (l *Loader) Scan(ctx context.Context) Report {
	report := Report{Dir: l.dir}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		report.DirErr = err
		return report
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		report.Files = append(report.Files, parseFile(filepath.Join(l.dir, entry.Name())))
	}

	return report
}

// parseFile opens and parses one export file.
func parseFile(path string) FileResult {
	result := FileResult{Path: path}

	f, err := os.Open(path)
	if err != nil {
		result.Err = err
		return result
	}
	defer f.Close()

	records, skipped, err := parseCSV(f)
	if err != nil {
		result.Err = err
		return result
	}

	result.Records = records
	result.Skipped = skipped
	return result
}

// parseCSV reads a header row and converts every following row into a
// credential record. Rows missing a required value are counted in skipped.
// Any parse error discards the whole file.
func parseCSV(r io.Reader) ([]model.CredentialRecord, int, error) {
	// Console exports start with a UTF-8 BOM that would otherwise be part of
	// the first column name.
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, 0, ErrEmptyFile
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}

	keyCol, secretCol := -1, -1
	for i, name := range header {
		switch name {
		case ColumnKeyID:
			keyCol = i
		case ColumnSecret:
			secretCol = i
		}
	}
	if keyCol < 0 || secretCol < 0 {
		return nil, 0, ErrMissingColumns
	}

	var (
		records []model.CredentialRecord
		skipped int
	)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read row: %w", err)
		}

		rec, err := model.NewCredentialRecord(field(row, keyCol), field(row, secretCol))
		if err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}

	return records, skipped, nil
}

// field returns row[i], or "" when the row is shorter than the header.
func field(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
