package storage

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/smartmove/fleet/internal/audit"
)

var auditHeader = []string{"seqId", "timestamp", "eventType", "payload", "prevChecksum", "checksum"}

// AuditCSVStore is the append-only audit_log.csv backing for the audit log.
// It satisfies audit.Store: Append never rewrites existing lines.
type AuditCSVStore struct {
	path string
}

// NewAuditCSVStore points at data/audit_log.csv under dataDir.
func NewAuditCSVStore(dataDir string) *AuditCSVStore {
	return &AuditCSVStore{path: filepath.Join(dataDir, "audit_log.csv")}
}

// Append persists one entry at the end of the file.
func (s *AuditCSVStore) Append(e audit.Entry) error {
	return appendRecord(s.path, auditHeader, []string{
		strconv.FormatUint(e.SeqID, 10),
		e.Timestamp,
		e.EventType,
		e.Payload,
		e.PrevChecksum,
		e.Checksum,
	})
}

// LoadAll reads the committed entries back in file order.
func (s *AuditCSVStore) LoadAll() ([]audit.Entry, error) {
	records, err := readRecords(s.path)
	if err != nil {
		return nil, err
	}
	entries := make([]audit.Entry, 0, len(records))
	for _, rec := range records {
		if len(rec) < 6 {
			return nil, fmt.Errorf("audit row has %d fields", len(rec))
		}
		seq, err := strconv.ParseUint(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("audit seqId: %w", err)
		}
		entries = append(entries, audit.Entry{
			SeqID:        seq,
			Timestamp:    rec[1],
			EventType:    rec[2],
			Payload:      rec[3],
			PrevChecksum: rec[4],
			Checksum:     rec[5],
		})
	}
	return entries, nil
}
