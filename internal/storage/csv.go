// Package storage provides the CSV-backed write-through stores for every
// domain entity plus the append-only audit file. File layout and quoting
// follow the fixed persistence contract: UTF-8, header row, comma separated,
// fields containing comma/quote/newline double-quoted with embedded quotes
// doubled, which is exactly what encoding/csv produces.
package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// readRecords loads all data rows of a CSV file, skipping the header.
// A missing file yields no rows and no error.
func readRecords(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) > 0 {
		records = records[1:] // header
	}
	return records, nil
}

// writeRecords rewrites the whole file with a header and the given rows.
func writeRecords(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// appendRecord appends a single row, creating the file with its header first
// if needed. Used by the audit store, which never rewrites.
func appendRecord(path string, header []string, row []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", path, err)
	}

	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s for append: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(header); err != nil {
			return err
		}
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
