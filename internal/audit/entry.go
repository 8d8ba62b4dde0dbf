// Package audit implements the tamper-evident audit trail: checksum-chained
// entries persisted write-ahead, with full chain verification. The checksum
// is a deterministic djb2 variant and is part of the public contract: it
// must stay reproducible by external verifiers.
package audit

import (
	"fmt"
	"strconv"
)

// GenesisChecksum is the prev_checksum sentinel of the first entry.
const GenesisChecksum = "0000000000000000"

// Entry is one committed audit record. Entries are immutable once appended.
type Entry struct {
	SeqID        uint64
	Timestamp    string
	EventType    string
	Payload      string
	PrevChecksum string
	Checksum     string
}

// Checksum folds the five fields with the djb2 variant: serialize as
// "seqId|timestamp|eventType|payload|prevChecksum", fold each byte with
// h = h*33 + b starting from 5381, take the absolute value and format as
// lower-case hex.
func Checksum(seqID uint64, timestamp, eventType, payload, prevChecksum string) string {
	data := fmt.Sprintf("%d|%s|%s|%s|%s", seqID, timestamp, eventType, payload, prevChecksum)
	var hash int64 = 5381
	for i := 0; i < len(data); i++ {
		hash = ((hash << 5) + hash) + int64(data[i])
	}
	if hash < 0 {
		hash = -hash
	}
	return strconv.FormatInt(hash, 16)
}

// NewEntry builds an entry and computes its checksum.
func NewEntry(seqID uint64, timestamp, eventType, payload, prevChecksum string) Entry {
	return Entry{
		SeqID:        seqID,
		Timestamp:    timestamp,
		EventType:    eventType,
		Payload:      payload,
		PrevChecksum: prevChecksum,
		Checksum:     Checksum(seqID, timestamp, eventType, payload, prevChecksum),
	}
}

// VerifyIntegrity checks that the entry links to the expected predecessor
// checksum and that its own checksum recomputes.
func (e Entry) VerifyIntegrity(expectedPrevChecksum string) bool {
	if e.PrevChecksum != expectedPrevChecksum {
		return false
	}
	return e.Checksum == Checksum(e.SeqID, e.Timestamp, e.EventType, e.Payload, e.PrevChecksum)
}

func (e Entry) String() string {
	return fmt.Sprintf("AuditEntry[seq=%d, type=%s, checksum=%s]", e.SeqID, e.EventType, e.Checksum)
}
