package csvdir

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/ericfisherdev/iamkeycheck/internal/domain/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeFile creates name inside dir with the given content.
func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadAll_SingleFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "test.csv", "Access key ID,Secret access key\nAKIAFAKE,abc123fakekey\n")

	records, err := NewLoader(dir, discardLogger()).LoadAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []model.CredentialRecord{{KeyID: "AKIAFAKE", Secret: "abc123fakekey"}}, records)
}

func TestLoadAll_SecretKeptVerbatim(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "test.csv", "Access key ID,Secret access key\n AKIAFAKE , abc+/123= \n")
	loader := NewLoader(dir, discardLogger())

	records, err := loader.LoadAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, dir, loader.Dir())
	assert.Equal(t, []model.CredentialRecord{{KeyID: "AKIAFAKE", Secret: " abc+/123= "}}, records)
}

func TestLoadAll_MultipleFilesCompleteness(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.csv", "Access key ID,Secret access key\nAKIA1,s1\nAKIA2,s2\n")
	writeFile(t, dir, "b.CSV", "User name,Secret access key,Access key ID,Console login link\nalice,s3,AKIA3,https://example\n")
	writeFile(t, dir, "c.csv", "Access key ID,Secret access key\nAKIA4,s4\n,orphan-secret\nAKIA5,\n")

	records, err := NewLoader(dir, discardLogger()).LoadAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []model.CredentialRecord{
		{KeyID: "AKIA1", Secret: "s1"},
		{KeyID: "AKIA2", Secret: "s2"},
		{KeyID: "AKIA3", Secret: "s3"},
		{KeyID: "AKIA4", Secret: "s4"},
	}, records)
}

func TestLoadAll_BadFilesDoNotAbortSiblings(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.csv", "")
	writeFile(t, dir, "wrong-columns.csv", "access key id,secret access key\nAKIALOWER,s\n")
	writeFile(t, dir, "header-only.csv", "Access key ID,Secret access key\n")
	writeFile(t, dir, "good.csv", "Access key ID,Secret access key\nAKIAGOOD,s\n")

	records, err := NewLoader(dir, discardLogger()).LoadAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []model.CredentialRecord{{KeyID: "AKIAGOOD", Secret: "s"}}, records)
}

func TestLoadAll_IgnoresOtherExtensionsAndSubdirectories(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.txt", "Access key ID,Secret access key\nAKIATXT,s\n")
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o700))
	writeFile(t, sub, "deep.csv", "Access key ID,Secret access key\nAKIADEEP,s\n")

	records, err := NewLoader(dir, discardLogger()).LoadAll(context.Background())

	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLoadAll_MissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does-not-exist")

	records, err := NewLoader(dir, discardLogger()).LoadAll(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestLoadAll_EmptyDirectory(t *testing.T) {
	records, err := NewLoader(t.TempDir(), discardLogger()).LoadAll(context.Background())

	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLoadAll_StableAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "z.csv", "Access key ID,Secret access key\nAKIAZ,s\n")
	writeFile(t, dir, "m.csv", "Access key ID,Secret access key\nAKIAM,s\n")
	writeFile(t, dir, "a.csv", "Access key ID,Secret access key\nAKIAA,s\n")
	loader := NewLoader(dir, discardLogger())

	first, err := loader.LoadAll(context.Background())
	require.NoError(t, err)
	second, err := loader.LoadAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "AKIAA", first[0].KeyID)
}

func TestScan_ReportsPerFileOutcome(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a-empty.csv", "")
	writeFile(t, dir, "b-columns.csv", "Key,Secret\nx,y\n")
	writeFile(t, dir, "c-good.csv", "Access key ID,Secret access key\nAKIA1,s1\n,\n")

	report := NewLoader(dir, discardLogger()).Scan(context.Background())

	require.NoError(t, report.DirErr)
	require.Len(t, report.Files, 3)
	assert.ErrorIs(t, report.Files[0].Err, ErrEmptyFile)
	assert.ErrorIs(t, report.Files[1].Err, ErrMissingColumns)
	assert.NoError(t, report.Files[2].Err)
	assert.Len(t, report.Files[2].Records, 1)
	assert.Equal(t, 1, report.Files[2].Skipped)

	errs := multierr.Errors(report.Err())
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "a-empty.csv")
	assert.Contains(t, errs[1].Error(), "b-columns.csv")
}

func TestScan_DirectoryError(t *testing.T) {
	report := NewLoader(filepath.Join(t.TempDir(), "missing"), discardLogger()).Scan(context.Background())

	require.Error(t, report.DirErr)
	assert.Empty(t, report.Files)
	assert.NoError(t, report.Err())
	assert.Empty(t, report.Records())
}

func TestParseCSV_StripsByteOrderMark(t *testing.T) {
	input := "\ufeffAccess key ID,Secret access key\nAKIABOM,s\n"

	records, skipped, err := parseCSV(strings.NewReader(input))

	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	assert.Equal(t, []model.CredentialRecord{{KeyID: "AKIABOM", Secret: "s"}}, records)
}

func TestParseCSV_ShortRowsAreSkipped(t *testing.T) {
	input := "User name,Access key ID,Secret access key\nalice,AKIASHORT\nbob,AKIAFULL,s\n"

	records, skipped, err := parseCSV(strings.NewReader(input))

	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, []model.CredentialRecord{{KeyID: "AKIAFULL", Secret: "s"}}, records)
}

func TestParseCSV_ColumnNamesAreCaseSensitive(t *testing.T) {
	_, _, err := parseCSV(strings.NewReader("Access Key ID,Secret Access Key\nAKIA,s\n"))

	assert.ErrorIs(t, err, ErrMissingColumns)
}
