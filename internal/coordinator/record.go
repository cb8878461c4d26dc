// =============================================================================
// COORDINATOR RECORDS - VERSIONED ENTRIES IN THE SHARD'S COMMIT LOG
// =============================================================================
//
// WHAT: The record model for the coordinator's internal commit log.
//
// Every state change a shard makes is expressed as a Record: a mandatory,
// schema-versioned key plus an optional, schema-versioned value. A record
// with a value is an upsert; a record without one is a tombstone that deletes
// the entity named by the key. A shard never mutates state directly - it
// proposes records, the caller appends them to the log, and the shard (or any
// replica) converges by replaying them in log order.
//
// WIRE FORMAT (one record frame):
//
//   ┌─────────┬─────────┬─────────────────────────────────────────────────┐
//   │ Magic   │ Flags   │                  CRC32 (body)                   │
//   │  (1B)   │  (1B)   │                    (4B)                         │
//   ├─────────┴─────────┴─────────────────────────────────────────────────┤
//   │ KeySchema (2B) │ KeyVersion (2B) │ KeyLen (4B) │ Key (var)          │
//   ├─────────────────────────────────────────────────────────────────────┤
//   │ ValSchema (2B) │ ValVersion (2B) │ ValLen (4B) │ Value (var)        │
//   │ (absent when the tombstone flag is set)                             │
//   └─────────────────────────────────────────────────────────────────────┘
//
// The CRC covers everything after the CRC field. A failed CRC means the log
// substrate handed us corrupt bytes, which is unrecoverable for the shard.
//
// =============================================================================

package coordinator

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// SchemaID identifies the kind of a record. The key's schema id alone
// determines which collaborator owns replay of the record.
type SchemaID int16

const (
	// SchemaOffsetCommitV0 is the legacy offset commit key. Same layout and
	// owner as SchemaOffsetCommit; retained so old log segments replay.
	SchemaOffsetCommitV0 SchemaID = 0

	// SchemaOffsetCommit is an offset commit for one group/topic/partition.
	SchemaOffsetCommit SchemaID = 1

	// SchemaGroupMetadata is classic (pre-incremental) group metadata.
	SchemaGroupMetadata SchemaID = 2

	// SchemaConsumerGroupMetadata carries the group epoch.
	SchemaConsumerGroupMetadata SchemaID = 3

	// SchemaConsumerGroupPartitionMetadata carries the partition counts of
	// the topics a group subscribes to.
	SchemaConsumerGroupPartitionMetadata SchemaID = 4

	// SchemaConsumerGroupMemberMetadata carries one member's static metadata.
	SchemaConsumerGroupMemberMetadata SchemaID = 5

	// SchemaConsumerGroupTargetAssignmentMetadata carries the assignment epoch.
	SchemaConsumerGroupTargetAssignmentMetadata SchemaID = 6

	// SchemaConsumerGroupTargetAssignmentMember carries one member's target
	// partition assignment.
	SchemaConsumerGroupTargetAssignmentMember SchemaID = 7

	// SchemaConsumerGroupCurrentMemberAssignment carries one member's current
	// epoch and assignment.
	SchemaConsumerGroupCurrentMemberAssignment SchemaID = 8
)

// Payload is one half of a record: a schema-versioned encoded message.
// Schema identifies the message kind, Version selects its binary layout.
type Payload struct {
	Schema  SchemaID
	Version int16
	Data    []byte
}

// Record is a single entry in the coordinator commit log. Key is mandatory;
// a nil Value marks a tombstone.
type Record struct {
	Key   *Payload
	Value *Payload
}

// IsTombstone reports whether the record deletes the entity named by its key.
func (r Record) IsTombstone() bool {
	return r.Value == nil
}

// =============================================================================
// FRAME ENCODING
// =============================================================================

const (
	frameMagic byte = 1

	// frameFlagTombstone marks a frame with no value section.
	frameFlagTombstone byte = 1 << 0

	frameHeaderSize   = 1 + 1 + 4 // magic + flags + crc
	framePayloadHdr   = 2 + 2 + 4 // schema + version + length
	frameMinTotalSize = frameHeaderSize + framePayloadHdr
)

// EncodeFrame serializes the record for the log substrate. A record without
// a key cannot be encoded; that is a contract violation by the caller.
func (r Record) EncodeFrame() ([]byte, error) {
	if r.Key == nil {
		return nil, &InvariantViolationError{Reason: "record key must be present"}
	}

	size := frameHeaderSize + framePayloadHdr + len(r.Key.Data)
	flags := byte(0)
	if r.Value == nil {
		flags |= frameFlagTombstone
	} else {
		size += framePayloadHdr + len(r.Value.Data)
	}

	buf := make([]byte, size)
	buf[0] = frameMagic
	buf[1] = flags

	off := frameHeaderSize
	off = encodePayload(buf, off, r.Key)
	if r.Value != nil {
		encodePayload(buf, off, r.Value)
	}

	binary.BigEndian.PutUint32(buf[2:], crc32.ChecksumIEEE(buf[frameHeaderSize:]))
	return buf, nil
}

func encodePayload(buf []byte, off int, p *Payload) int {
	binary.BigEndian.PutUint16(buf[off:], uint16(p.Schema))
	off += 2
	binary.BigEndian.PutUint16(buf[off:], uint16(p.Version))
	off += 2
	binary.BigEndian.PutUint32(buf[off:], uint32(len(p.Data)))
	off += 4
	copy(buf[off:], p.Data)
	return off + len(p.Data)
}

// DecodeFrame deserializes one record frame. Corrupt frames fail with an
// invariant violation: the log substrate guarantees integrity, so a bad
// frame means the shard cannot trust its input.
func DecodeFrame(data []byte) (Record, error) {
	if len(data) < frameMinTotalSize {
		return Record{}, &InvariantViolationError{Reason: "record frame too short"}
	}
	if data[0] != frameMagic {
		return Record{}, &InvariantViolationError{
			Reason: fmt.Sprintf("unknown record frame magic %d", data[0]),
		}
	}

	crc := binary.BigEndian.Uint32(data[2:])
	if crc != crc32.ChecksumIEEE(data[frameHeaderSize:]) {
		return Record{}, &InvariantViolationError{Reason: "record frame crc mismatch"}
	}

	key, off, err := decodePayload(data, frameHeaderSize)
	if err != nil {
		return Record{}, err
	}

	rec := Record{Key: key}
	if data[1]&frameFlagTombstone == 0 {
		value, end, err := decodePayload(data, off)
		if err != nil {
			return Record{}, err
		}
		if end != len(data) {
			return Record{}, &InvariantViolationError{Reason: "trailing bytes in record frame"}
		}
		rec.Value = value
	} else if off != len(data) {
		return Record{}, &InvariantViolationError{Reason: "trailing bytes in tombstone frame"}
	}

	return rec, nil
}

func decodePayload(data []byte, off int) (*Payload, int, error) {
	if off+framePayloadHdr > len(data) {
		return nil, 0, &InvariantViolationError{Reason: "record frame truncated at payload header"}
	}
	p := &Payload{
		Schema:  SchemaID(binary.BigEndian.Uint16(data[off:])),
		Version: int16(binary.BigEndian.Uint16(data[off+2:])),
	}
	n := int(binary.BigEndian.Uint32(data[off+4:]))
	off += framePayloadHdr
	if off+n > len(data) {
		return nil, 0, &InvariantViolationError{Reason: "record frame truncated at payload body"}
	}
	p.Data = data[off : off+n]
	return p, off + n, nil
}
