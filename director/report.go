package director

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/tjobarow/okta-fastpass-deployment-toolkit/types"
)

var reportHeader = []string{
	"userId",
	"userName",
	"userFullName",
	"userEmail",
	"oktaVerifyExistingFactor",
	"appsInScope",
	"scannedAt",
}

// ReportFileName returns the dated path of the scan artifact inside dir
func ReportFileName(dir string, now time.Time) string {
	return filepath.Join(dir, now.Format("2006-01-02")+"_unique_okta_users_for_reenrollment.csv")
}

// VerificationFileName returns the dated path of the verification artifact
func VerificationFileName(dir string, now time.Time) string {
	return filepath.Join(dir, now.Format("2006-01-02")+"_enrollment_verification_results.csv")
}

// ReportWriter streams re-enrollment records to a CSV file, flushing after
// each row so a cancelled run still leaves the rows written so far on disk
type ReportWriter struct {
	file   *os.File
	writer *csv.Writer
	rows   int
}

// NewReportWriter creates path, truncating any previous artifact, and writes
// the header row
func NewReportWriter(path string) (*ReportWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "create report %s", path)
	}
	writer := csv.NewWriter(file)
	if err := writer.Write(reportHeader); err != nil {
		file.Close()
		return nil, errors.Wrap(err, "write report header")
	}
	writer.Flush()
	return &ReportWriter{file: file, writer: writer}, nil
}

// Write appends one record as a CSV row
func (w *ReportWriter) Write(record types.ReenrollmentRecord) error {
	row := []string{
		record.UserID,
		record.UserName,
		record.UserFullName,
		record.UserEmail,
		strconv.FormatBool(record.PushFactorPresent),
		strings.Join(record.AppsInScope, ";"),
		record.ScannedAt.UTC().Format(time.RFC3339),
	}
	if err := w.writer.Write(row); err != nil {
		return errors.Wrap(err, "write report row")
	}
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return errors.Wrap(err, "flush report row")
	}
	w.rows++
	return nil
}

// Rows returns the number of records written so far, header excluded
func (w *ReportWriter) Rows() int {
	return w.rows
}

// Close flushes and closes the underlying file
func (w *ReportWriter) Close() error {
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		w.file.Close()
		return errors.Wrap(err, "flush report")
	}
	return w.file.Close()
}

// ReadReport parses a scan artifact back into records. Column order is taken
// from the header row so hand-edited files still load, but userEmail must be
// present since every remediation step keys off it.
func ReadReport(path string) ([]types.ReenrollmentRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open report %s", path)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "parse report %s", path)
	}
	if len(rows) == 0 {
		return nil, errors.Errorf("report %s is empty", path)
	}

	columns := map[string]int{}
	for i, name := range rows[0] {
		columns[strings.TrimSpace(name)] = i
	}
	emailCol, ok := columns["userEmail"]
	if !ok {
		return nil, errors.Errorf("report %s has no userEmail column", path)
	}

	cell := func(row []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var records []types.ReenrollmentRecord
	for _, row := range rows[1:] {
		if emailCol >= len(row) || strings.TrimSpace(row[emailCol]) == "" {
			return nil, errors.Errorf("report %s has a row with no userEmail", path)
		}
		record := types.ReenrollmentRecord{
			UserID:       cell(row, "userId"),
			UserName:     cell(row, "userName"),
			UserFullName: cell(row, "userFullName"),
			UserEmail:    strings.TrimSpace(row[emailCol]),
		}
		record.PushFactorPresent, _ = strconv.ParseBool(cell(row, "oktaVerifyExistingFactor"))
		if apps := cell(row, "appsInScope"); apps != "" {
			record.AppsInScope = strings.Split(apps, ";")
		}
		if ts := cell(row, "scannedAt"); ts != "" {
			record.ScannedAt, _ = time.Parse(time.RFC3339, ts)
		}
		records = append(records, record)
	}
	return records, nil
}
