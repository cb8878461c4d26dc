// =============================================================================
// SCHEMA MESSAGES - TYPED KEYS AND VALUES FOR EVERY RECORD KIND
// =============================================================================
//
// WHAT: One typed key struct (and, for upserts, one typed value struct) per
// record kind, each with a versioned binary codec.
//
// ENCODING DISCIPLINE:
//   - big-endian integers
//   - strings and byte slices are uint16/uint32 length-prefixed
//   - lists carry a uint32 element count
//
// The key's schema id is the identity of the record kind. The version picks
// the layout; key and value versions evolve independently. Decoders take the
// version explicitly so the router can reject versions outside the supported
// range before any bytes are interpreted.
//
// =============================================================================

package coordinator

import (
	"encoding/binary"
	"fmt"
)

// Message is a decoded schema message: a typed key or value. The schema id
// ties it back to the dispatch table.
type Message interface {
	Schema() SchemaID
}

// =============================================================================
// ENCODING HELPERS
// =============================================================================

type byteWriter struct {
	buf []byte
}

func (w *byteWriter) writeInt32(v int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
}

func (w *byteWriter) writeInt64(v int64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v))
}

func (w *byteWriter) writeString(s string) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *byteWriter) writeBytes(b []byte) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *byteWriter) writeCount(n int) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(n))
}

// byteReader is a sticky-error cursor: after the first short read every
// accessor returns a zero value, and the error surfaces once at the end.
type byteReader struct {
	data []byte
	off  int
	err  error
}

func (r *byteReader) fail() {
	if r.err == nil {
		r.err = fmt.Errorf("truncated message at offset %d", r.off)
	}
}

func (r *byteReader) int32() int32 {
	if r.err != nil || r.off+4 > len(r.data) {
		r.fail()
		return 0
	}
	v := int32(binary.BigEndian.Uint32(r.data[r.off:]))
	r.off += 4
	return v
}

func (r *byteReader) int64() int64 {
	if r.err != nil || r.off+8 > len(r.data) {
		r.fail()
		return 0
	}
	v := int64(binary.BigEndian.Uint64(r.data[r.off:]))
	r.off += 8
	return v
}

func (r *byteReader) string() string {
	if r.err != nil || r.off+2 > len(r.data) {
		r.fail()
		return ""
	}
	n := int(binary.BigEndian.Uint16(r.data[r.off:]))
	r.off += 2
	if r.off+n > len(r.data) {
		r.fail()
		return ""
	}
	s := string(r.data[r.off : r.off+n])
	r.off += n
	return s
}

func (r *byteReader) bytes() []byte {
	n := int(r.int32())
	if r.err != nil || n < 0 || r.off+n > len(r.data) {
		r.fail()
		return nil
	}
	b := make([]byte, n)
	copy(b, r.data[r.off:])
	r.off += n
	return b
}

func (r *byteReader) count() int {
	n := int(r.int32())
	if n < 0 {
		r.fail()
		return 0
	}
	return n
}

func (r *byteReader) done() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.data) {
		return fmt.Errorf("trailing bytes after offset %d", r.off)
	}
	return nil
}

// =============================================================================
// OFFSET COMMIT (schema 0/1)
// =============================================================================

// OffsetCommitKey addresses one committed offset. One record per
// group/topic/partition, so compaction keeps only the latest commit.
type OffsetCommitKey struct {
	Group     string
	Topic     string
	Partition int32
}

func (k *OffsetCommitKey) Schema() SchemaID { return SchemaOffsetCommit }

func (k *OffsetCommitKey) Encode() []byte {
	var w byteWriter
	w.writeString(k.Group)
	w.writeString(k.Topic)
	w.writeInt32(k.Partition)
	return w.buf
}

// Key layout is identical across versions 0 and 1.
func decodeOffsetCommitKey(_ int16, data []byte) (Message, error) {
	r := byteReader{data: data}
	k := &OffsetCommitKey{
		Group:     r.string(),
		Topic:     r.string(),
		Partition: r.int32(),
	}
	return k, r.done()
}

// OffsetCommitValue is the committed position plus bookkeeping.
// Version 0 predates leader epochs and expiry; version 1 carries both.
type OffsetCommitValue struct {
	Offset          int64
	LeaderEpoch     int32
	Metadata        string
	CommitTimestamp int64
	ExpireTimestamp int64
}

func (v *OffsetCommitValue) Schema() SchemaID { return SchemaOffsetCommit }

func (v *OffsetCommitValue) Encode() []byte {
	var w byteWriter
	w.writeInt64(v.Offset)
	w.writeInt32(v.LeaderEpoch)
	w.writeString(v.Metadata)
	w.writeInt64(v.CommitTimestamp)
	w.writeInt64(v.ExpireTimestamp)
	return w.buf
}

func decodeOffsetCommitValue(version int16, data []byte) (Message, error) {
	r := byteReader{data: data}
	v := &OffsetCommitValue{}
	v.Offset = r.int64()
	if version >= 1 {
		v.LeaderEpoch = r.int32()
	}
	v.Metadata = r.string()
	v.CommitTimestamp = r.int64()
	if version >= 1 {
		v.ExpireTimestamp = r.int64()
	}
	return v, r.done()
}

// =============================================================================
// CLASSIC GROUP METADATA (schema 2)
// =============================================================================

// GroupMetadataKey names one classic group.
type GroupMetadataKey struct {
	Group string
}

func (k *GroupMetadataKey) Schema() SchemaID { return SchemaGroupMetadata }

func (k *GroupMetadataKey) Encode() []byte {
	var w byteWriter
	w.writeString(k.Group)
	return w.buf
}

func decodeGroupMetadataKey(_ int16, data []byte) (Message, error) {
	r := byteReader{data: data}
	k := &GroupMetadataKey{Group: r.string()}
	return k, r.done()
}

// ClassicMember is one member inside a classic group metadata value.
type ClassicMember struct {
	MemberID           string
	ClientID           string
	ClientHost         string
	SessionTimeoutMs   int32
	RebalanceTimeoutMs int32
	Subscription       []byte
	Assignment         []byte
}

// GroupMetadataValue is the full classic group snapshot: protocol choice,
// leader, generation, and every member. Value versions 0 through 4 share
// this layout here.
type GroupMetadataValue struct {
	ProtocolType string
	Protocol     string
	Leader       string
	Generation   int32
	Members      []ClassicMember
}

func (v *GroupMetadataValue) Schema() SchemaID { return SchemaGroupMetadata }

func (v *GroupMetadataValue) Encode() []byte {
	var w byteWriter
	w.writeString(v.ProtocolType)
	w.writeString(v.Protocol)
	w.writeString(v.Leader)
	w.writeInt32(v.Generation)
	w.writeCount(len(v.Members))
	for _, m := range v.Members {
		w.writeString(m.MemberID)
		w.writeString(m.ClientID)
		w.writeString(m.ClientHost)
		w.writeInt32(m.SessionTimeoutMs)
		w.writeInt32(m.RebalanceTimeoutMs)
		w.writeBytes(m.Subscription)
		w.writeBytes(m.Assignment)
	}
	return w.buf
}

func decodeGroupMetadataValue(_ int16, data []byte) (Message, error) {
	r := byteReader{data: data}
	v := &GroupMetadataValue{
		ProtocolType: r.string(),
		Protocol:     r.string(),
		Leader:       r.string(),
		Generation:   r.int32(),
	}
	n := r.count()
	for i := 0; i < n && r.err == nil; i++ {
		v.Members = append(v.Members, ClassicMember{
			MemberID:           r.string(),
			ClientID:           r.string(),
			ClientHost:         r.string(),
			SessionTimeoutMs:   r.int32(),
			RebalanceTimeoutMs: r.int32(),
			Subscription:       r.bytes(),
			Assignment:         r.bytes(),
		})
	}
	return v, r.done()
}

// =============================================================================
// CONSUMER GROUP METADATA (schema 3)
// =============================================================================

// ConsumerGroupMetadataKey names one consumer group.
type ConsumerGroupMetadataKey struct {
	Group string
}

func (k *ConsumerGroupMetadataKey) Schema() SchemaID { return SchemaConsumerGroupMetadata }

func (k *ConsumerGroupMetadataKey) Encode() []byte {
	var w byteWriter
	w.writeString(k.Group)
	return w.buf
}

func decodeConsumerGroupMetadataKey(_ int16, data []byte) (Message, error) {
	r := byteReader{data: data}
	k := &ConsumerGroupMetadataKey{Group: r.string()}
	return k, r.done()
}

// ConsumerGroupMetadataValue carries the group epoch. The epoch increments
// on every membership or subscription change.
type ConsumerGroupMetadataValue struct {
	Epoch int32
}

func (v *ConsumerGroupMetadataValue) Schema() SchemaID { return SchemaConsumerGroupMetadata }

func (v *ConsumerGroupMetadataValue) Encode() []byte {
	var w byteWriter
	w.writeInt32(v.Epoch)
	return w.buf
}

func decodeConsumerGroupMetadataValue(_ int16, data []byte) (Message, error) {
	r := byteReader{data: data}
	v := &ConsumerGroupMetadataValue{Epoch: r.int32()}
	return v, r.done()
}

// =============================================================================
// CONSUMER GROUP PARTITION METADATA (schema 4)
// =============================================================================

type ConsumerGroupPartitionMetadataKey struct {
	Group string
}

func (k *ConsumerGroupPartitionMetadataKey) Schema() SchemaID {
	return SchemaConsumerGroupPartitionMetadata
}

func (k *ConsumerGroupPartitionMetadataKey) Encode() []byte {
	var w byteWriter
	w.writeString(k.Group)
	return w.buf
}

func decodeConsumerGroupPartitionMetadataKey(_ int16, data []byte) (Message, error) {
	r := byteReader{data: data}
	k := &ConsumerGroupPartitionMetadataKey{Group: r.string()}
	return k, r.done()
}

// TopicMetadata is the partition count of one subscribed topic.
type TopicMetadata struct {
	Name          string
	NumPartitions int32
}

// ConsumerGroupPartitionMetadataValue snapshots the partition counts of all
// topics the group subscribes to, so an epoch bump can be derived when
// topology changes.
type ConsumerGroupPartitionMetadataValue struct {
	Topics []TopicMetadata
}

func (v *ConsumerGroupPartitionMetadataValue) Schema() SchemaID {
	return SchemaConsumerGroupPartitionMetadata
}

func (v *ConsumerGroupPartitionMetadataValue) Encode() []byte {
	var w byteWriter
	w.writeCount(len(v.Topics))
	for _, t := range v.Topics {
		w.writeString(t.Name)
		w.writeInt32(t.NumPartitions)
	}
	return w.buf
}

func decodeConsumerGroupPartitionMetadataValue(_ int16, data []byte) (Message, error) {
	r := byteReader{data: data}
	v := &ConsumerGroupPartitionMetadataValue{}
	n := r.count()
	for i := 0; i < n && r.err == nil; i++ {
		v.Topics = append(v.Topics, TopicMetadata{
			Name:          r.string(),
			NumPartitions: r.int32(),
		})
	}
	return v, r.done()
}

// =============================================================================
// CONSUMER GROUP MEMBER METADATA (schema 5)
// =============================================================================

type ConsumerGroupMemberMetadataKey struct {
	Group    string
	MemberID string
}

func (k *ConsumerGroupMemberMetadataKey) Schema() SchemaID {
	return SchemaConsumerGroupMemberMetadata
}

func (k *ConsumerGroupMemberMetadataKey) Encode() []byte {
	var w byteWriter
	w.writeString(k.Group)
	w.writeString(k.MemberID)
	return w.buf
}

func decodeConsumerGroupMemberMetadataKey(_ int16, data []byte) (Message, error) {
	r := byteReader{data: data}
	k := &ConsumerGroupMemberMetadataKey{Group: r.string(), MemberID: r.string()}
	return k, r.done()
}

// ConsumerGroupMemberMetadataValue is a member's static metadata: who it is
// and what it subscribes to.
type ConsumerGroupMemberMetadataValue struct {
	ClientID           string
	ClientHost         string
	InstanceID         string
	RebalanceTimeoutMs int32
	SubscribedTopics   []string
}

func (v *ConsumerGroupMemberMetadataValue) Schema() SchemaID {
	return SchemaConsumerGroupMemberMetadata
}

func (v *ConsumerGroupMemberMetadataValue) Encode() []byte {
	var w byteWriter
	w.writeString(v.ClientID)
	w.writeString(v.ClientHost)
	w.writeString(v.InstanceID)
	w.writeInt32(v.RebalanceTimeoutMs)
	w.writeCount(len(v.SubscribedTopics))
	for _, t := range v.SubscribedTopics {
		w.writeString(t)
	}
	return w.buf
}

func decodeConsumerGroupMemberMetadataValue(_ int16, data []byte) (Message, error) {
	r := byteReader{data: data}
	v := &ConsumerGroupMemberMetadataValue{
		ClientID:           r.string(),
		ClientHost:         r.string(),
		InstanceID:         r.string(),
		RebalanceTimeoutMs: r.int32(),
	}
	n := r.count()
	for i := 0; i < n && r.err == nil; i++ {
		v.SubscribedTopics = append(v.SubscribedTopics, r.string())
	}
	return v, r.done()
}

// =============================================================================
// CONSUMER GROUP TARGET ASSIGNMENT (schemas 6 and 7)
// =============================================================================

type ConsumerGroupTargetAssignmentMetadataKey struct {
	Group string
}

func (k *ConsumerGroupTargetAssignmentMetadataKey) Schema() SchemaID {
	return SchemaConsumerGroupTargetAssignmentMetadata
}

func (k *ConsumerGroupTargetAssignmentMetadataKey) Encode() []byte {
	var w byteWriter
	w.writeString(k.Group)
	return w.buf
}

func decodeConsumerGroupTargetAssignmentMetadataKey(_ int16, data []byte) (Message, error) {
	r := byteReader{data: data}
	k := &ConsumerGroupTargetAssignmentMetadataKey{Group: r.string()}
	return k, r.done()
}

// ConsumerGroupTargetAssignmentMetadataValue carries the epoch the target
// assignment was computed for.
type ConsumerGroupTargetAssignmentMetadataValue struct {
	AssignmentEpoch int32
}

func (v *ConsumerGroupTargetAssignmentMetadataValue) Schema() SchemaID {
	return SchemaConsumerGroupTargetAssignmentMetadata
}

func (v *ConsumerGroupTargetAssignmentMetadataValue) Encode() []byte {
	var w byteWriter
	w.writeInt32(v.AssignmentEpoch)
	return w.buf
}

func decodeConsumerGroupTargetAssignmentMetadataValue(_ int16, data []byte) (Message, error) {
	r := byteReader{data: data}
	v := &ConsumerGroupTargetAssignmentMetadataValue{AssignmentEpoch: r.int32()}
	return v, r.done()
}

type ConsumerGroupTargetAssignmentMemberKey struct {
	Group    string
	MemberID string
}

func (k *ConsumerGroupTargetAssignmentMemberKey) Schema() SchemaID {
	return SchemaConsumerGroupTargetAssignmentMember
}

func (k *ConsumerGroupTargetAssignmentMemberKey) Encode() []byte {
	var w byteWriter
	w.writeString(k.Group)
	w.writeString(k.MemberID)
	return w.buf
}

func decodeConsumerGroupTargetAssignmentMemberKey(_ int16, data []byte) (Message, error) {
	r := byteReader{data: data}
	k := &ConsumerGroupTargetAssignmentMemberKey{Group: r.string(), MemberID: r.string()}
	return k, r.done()
}

// TopicPartitions is an assignment fragment: one topic and the partitions
// of it assigned to a member.
type TopicPartitions struct {
	Topic      string
	Partitions []int32
}

func encodeTopicPartitions(w *byteWriter, tps []TopicPartitions) {
	w.writeCount(len(tps))
	for _, tp := range tps {
		w.writeString(tp.Topic)
		w.writeCount(len(tp.Partitions))
		for _, p := range tp.Partitions {
			w.writeInt32(p)
		}
	}
}

func decodeTopicPartitions(r *byteReader) []TopicPartitions {
	n := r.count()
	var tps []TopicPartitions
	for i := 0; i < n && r.err == nil; i++ {
		tp := TopicPartitions{Topic: r.string()}
		m := r.count()
		for j := 0; j < m && r.err == nil; j++ {
			tp.Partitions = append(tp.Partitions, r.int32())
		}
		tps = append(tps, tp)
	}
	return tps
}

// ConsumerGroupTargetAssignmentMemberValue is one member's target assignment.
type ConsumerGroupTargetAssignmentMemberValue struct {
	Partitions []TopicPartitions
}

func (v *ConsumerGroupTargetAssignmentMemberValue) Schema() SchemaID {
	return SchemaConsumerGroupTargetAssignmentMember
}

func (v *ConsumerGroupTargetAssignmentMemberValue) Encode() []byte {
	var w byteWriter
	encodeTopicPartitions(&w, v.Partitions)
	return w.buf
}

func decodeConsumerGroupTargetAssignmentMemberValue(_ int16, data []byte) (Message, error) {
	r := byteReader{data: data}
	v := &ConsumerGroupTargetAssignmentMemberValue{Partitions: decodeTopicPartitions(&r)}
	return v, r.done()
}

// =============================================================================
// CONSUMER GROUP CURRENT MEMBER ASSIGNMENT (schema 8)
// =============================================================================

type ConsumerGroupCurrentMemberAssignmentKey struct {
	Group    string
	MemberID string
}

func (k *ConsumerGroupCurrentMemberAssignmentKey) Schema() SchemaID {
	return SchemaConsumerGroupCurrentMemberAssignment
}

func (k *ConsumerGroupCurrentMemberAssignmentKey) Encode() []byte {
	var w byteWriter
	w.writeString(k.Group)
	w.writeString(k.MemberID)
	return w.buf
}

func decodeConsumerGroupCurrentMemberAssignmentKey(_ int16, data []byte) (Message, error) {
	r := byteReader{data: data}
	k := &ConsumerGroupCurrentMemberAssignmentKey{Group: r.string(), MemberID: r.string()}
	return k, r.done()
}

// ConsumerGroupCurrentMemberAssignmentValue is what a member currently owns,
// plus the epoch it last acknowledged.
type ConsumerGroupCurrentMemberAssignmentValue struct {
	MemberEpoch int32
	Partitions  []TopicPartitions
}

func (v *ConsumerGroupCurrentMemberAssignmentValue) Schema() SchemaID {
	return SchemaConsumerGroupCurrentMemberAssignment
}

func (v *ConsumerGroupCurrentMemberAssignmentValue) Encode() []byte {
	var w byteWriter
	w.writeInt32(v.MemberEpoch)
	encodeTopicPartitions(&w, v.Partitions)
	return w.buf
}

func decodeConsumerGroupCurrentMemberAssignmentValue(_ int16, data []byte) (Message, error) {
	r := byteReader{data: data}
	v := &ConsumerGroupCurrentMemberAssignmentValue{MemberEpoch: r.int32()}
	v.Partitions = decodeTopicPartitions(&r)
	return v, r.done()
}
