// =============================================================================
// PARTITION LOG - THE APPEND-ONLY SUBSTRATE UNDER EACH SHARD
// =============================================================================
//
// WHAT: An in-memory, append-only log of encoded record frames, one per
// coordinator partition. The shard's recovery story is the replay of this
// log; the log's own contract is ordering and batch atomicity:
//
//   - a batch appends contiguously or not at all
//   - concurrent appenders never interleave within a batch
//   - a reader sees a prefix of the log, never a torn batch
//
// Entries are stored as encoded frames (CRC and all) so every read-back
// exercises the same integrity checks a durable implementation would.
//
// =============================================================================

package storage

import (
	"sync"

	"github.com/jimbogithub/kafka/internal/coordinator"
)

// PartitionLog is one partition's record log. Safe for concurrent use.
type PartitionLog struct {
	mu     sync.RWMutex
	frames [][]byte
}

// NewPartitionLog returns an empty log.
func NewPartitionLog() *PartitionLog {
	return &PartitionLog{}
}

// Append encodes and appends a batch of records as one contiguous unit.
// Encoding happens before the lock is taken, so a record that cannot be
// encoded fails the whole batch with nothing appended. Returns the log
// length after the append.
func (l *PartitionLog) Append(records []coordinator.Record) (int, error) {
	encoded := make([][]byte, len(records))
	for i, rec := range records {
		frame, err := rec.EncodeFrame()
		if err != nil {
			return 0, err
		}
		encoded[i] = frame
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, encoded...)
	return len(l.frames), nil
}

// AppendFrame appends one pre-encoded frame verbatim, without validation.
// This is the path a remote replica's raw fetch would take, and the
// corruption-injection door for recovery tests.
func (l *PartitionLog) AppendFrame(frame []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, append([]byte(nil), frame...))
}

// ReadAll decodes every frame in log order. A frame that fails its integrity
// check fails the whole read: a partial history must never be mistaken for
// the full one.
func (l *PartitionLog) ReadAll() ([]coordinator.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	records := make([]coordinator.Record, 0, len(l.frames))
	for _, frame := range l.frames {
		rec, err := coordinator.DecodeFrame(frame)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Len reports the number of records in the log.
func (l *PartitionLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.frames)
}

// Truncate discards the whole log.
func (l *PartitionLog) Truncate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = nil
}
