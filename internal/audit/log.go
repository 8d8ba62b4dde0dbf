package audit

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Store is the append-only persistence the log writes ahead of its in-memory
// list. The CSV-backed implementation lives in internal/storage.
type Store interface {
	Append(e Entry) error
	LoadAll() ([]Entry, error)
}

// Mirror receives a best-effort copy of every committed entry (e.g. the
// Postgres archive). Mirror failures never fail an append.
type Mirror interface {
	Append(e Entry) error
}

// WriteError signals that the underlying store refused the append. The
// in-memory log is unchanged when it is returned.
type WriteError struct {
	SeqID uint64
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to persist audit entry seq=%d: %v (in-memory state not updated)", e.SeqID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Log is the checksum-chained audit trail. The mutex guards the sequence
// counter, the persistence write and the in-memory append as one atomic
// triple; it is never held across a vehicle-mutex acquisition.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	seq     uint64 // last committed sequence id
	store   Store
	mirror  Mirror
}

// NewLog loads any existing entries from the store and resumes the sequence
// counter from the highest committed id.
func NewLog(store Store) (*Log, error) {
	entries, err := store.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load audit log: %w", err)
	}
	l := &Log{store: store, entries: entries}
	for _, e := range entries {
		if e.SeqID > l.seq {
			l.seq = e.SeqID
		}
	}
	if len(entries) > 0 {
		log.Printf("[AuditLog] Loaded %d entries from store", len(entries))
	}
	return l, nil
}

// SetMirror attaches a best-effort archive mirror.
func (l *Log) SetMirror(m Mirror) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mirror = m
}

// Record creates and appends an entry in one atomic step: persist first,
// then commit to memory. The sequence counter only advances on success, so
// committed seq ids are gap-free.
func (l *Log) Record(eventType, payload string) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := GenesisChecksum
	if n := len(l.entries); n > 0 {
		prev = l.entries[n-1].Checksum
	}
	entry := NewEntry(l.seq+1, time.Now().UTC().Format(time.RFC3339Nano), eventType, payload, prev)

	if err := l.store.Append(entry); err != nil {
		return Entry{}, &WriteError{SeqID: entry.SeqID, Err: err}
	}
	l.entries = append(l.entries, entry)
	l.seq = entry.SeqID

	if l.mirror != nil {
		if err := l.mirror.Append(entry); err != nil {
			log.Printf("[AuditLog] Mirror append failed for seq=%d: %v", entry.SeqID, err)
		}
	}
	return entry, nil
}

// VerifyChain re-walks the committed entries and reports whether every link
// and every recomputed checksum agrees with what is stored.
func (l *Log) VerifyChain() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := GenesisChecksum
	for _, entry := range l.entries {
		if !entry.VerifyIntegrity(prev) {
			log.Printf("[AuditLog] INTEGRITY VIOLATION at seq=%d", entry.SeqID)
			return false
		}
		prev = entry.Checksum
	}
	return true
}

// LastSeq returns the highest committed sequence id (0 when empty).
func (l *Log) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// Entries returns a copy of the committed entries.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of committed entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
