// =============================================================================
// OFFSET STATE MANAGER - COMMITTED OFFSETS FOR ONE SHARD
// =============================================================================
//
// WHAT: The committed-offset cache behind a coordinator shard, keyed
// group -> topic -> partition. Same propose/apply contract as the group
// manager: CommitOffset produces records, the cache changes only in Replay.
//
// =============================================================================

package state

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jimbogithub/kafka/internal/coordinator"
)

// CommittedOffset is one stored position.
type CommittedOffset struct {
	Offset          int64
	LeaderEpoch     int32
	Metadata        string
	CommitTimestamp int64
	ExpireTimestamp int64
}

// commitFencer is the group manager's view the offset manager needs: whether
// a commit is legal under current membership.
type commitFencer interface {
	ValidateOffsetCommit(groupID, memberID string, generation int32) error
}

// OffsetManager owns all committed offsets for one shard. Not safe for
// concurrent use; the shard runtime serializes access.
type OffsetManager struct {
	logger  *slog.Logger
	fencer  commitFencer
	offsets map[string]map[string]map[int32]CommittedOffset

	// retention of a committed offset, stamped into ExpireTimestamp.
	retention time.Duration
	now       func() time.Time
}

// NewOffsetManager builds an empty manager. fencer may be nil, which
// disables membership fencing entirely.
func NewOffsetManager(logger *slog.Logger, fencer commitFencer, retention time.Duration) *OffsetManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &OffsetManager{
		logger:    logger.With("component", "offset-state"),
		fencer:    fencer,
		offsets:   make(map[string]map[string]map[int32]CommittedOffset),
		retention: retention,
		now:       time.Now,
	}
}

// =============================================================================
// COMMIT
// =============================================================================

// CommitOffset validates the commit against group membership, then proposes
// one record per topic-partition. Partition outcomes are independent: a
// negative offset fails its own slot without touching its siblings. The
// response mirrors the request's partition order.
func (m *OffsetManager) CommitOffset(_ context.Context, req *coordinator.OffsetCommitRequest) (*coordinator.Result[*coordinator.OffsetCommitResponse], error) {
	if req.GroupID == "" {
		return nil, coordinator.ErrInvalidGroupID
	}
	if m.fencer != nil {
		if err := m.fencer.ValidateOffsetCommit(req.GroupID, req.MemberID, req.GenerationID); err != nil {
			return nil, err
		}
	}

	nowMs := m.now().UnixMilli()
	expireMs := int64(0)
	if m.retention > 0 {
		expireMs = nowMs + m.retention.Milliseconds()
	}

	records := make([]coordinator.Record, 0, len(req.Offsets))
	resp := &coordinator.OffsetCommitResponse{
		Partitions: make([]coordinator.OffsetCommitPartitionResponse, len(req.Offsets)),
	}

	for i, p := range req.Offsets {
		resp.Partitions[i] = coordinator.OffsetCommitPartitionResponse{
			Topic:     p.Topic,
			Partition: p.Partition,
		}
		if p.Offset < 0 {
			resp.Partitions[i].ErrorCode = coordinator.CodeOffsetOutOfRange
			continue
		}
		records = append(records, coordinator.NewOffsetCommitRecord(req.GroupID, p.Topic, p.Partition, &coordinator.OffsetCommitValue{
			Offset:          p.Offset,
			LeaderEpoch:     p.LeaderEpoch,
			Metadata:        p.Metadata,
			CommitTimestamp: nowMs,
			ExpireTimestamp: expireMs,
		}))
	}

	return coordinator.NewResult(records, resp), nil
}

// =============================================================================
// FETCH
// =============================================================================

// Fetch returns the committed offset for one group/topic/partition.
func (m *OffsetManager) Fetch(groupID, topic string, partition int32) (CommittedOffset, bool) {
	offset, ok := m.offsets[groupID][topic][partition]
	return offset, ok
}

// FetchGroup returns every committed offset of a group, sorted by topic then
// partition.
func (m *OffsetManager) FetchGroup(groupID string) []GroupOffset {
	byTopic, ok := m.offsets[groupID]
	if !ok {
		return nil
	}
	var out []GroupOffset
	for _, topic := range sortedKeys(byTopic) {
		byPartition := byTopic[topic]
		for _, partition := range sortedPartitions(byPartition) {
			out = append(out, GroupOffset{
				Topic:     topic,
				Partition: partition,
				Committed: byPartition[partition],
			})
		}
	}
	return out
}

// GroupOffset is one committed offset with its coordinates.
type GroupOffset struct {
	Topic     string
	Partition int32
	Committed CommittedOffset
}

// =============================================================================
// DELETE
// =============================================================================

// DeleteAllOffsets appends one tombstone per committed offset of the group,
// in sorted topic/partition order, and returns how many it appended.
func (m *OffsetManager) DeleteAllOffsets(groupID string, records *[]coordinator.Record) (int, error) {
	byTopic, ok := m.offsets[groupID]
	if !ok {
		return 0, nil
	}
	count := 0
	for _, topic := range sortedKeys(byTopic) {
		for _, partition := range sortedPartitions(byTopic[topic]) {
			*records = append(*records, coordinator.NewOffsetCommitTombstone(groupID, topic, partition))
			count++
		}
	}
	return count, nil
}

// =============================================================================
// REPLAY
// =============================================================================

// Replay applies one offset commit record or tombstone. Idempotent.
func (m *OffsetManager) Replay(key, value coordinator.Message) error {
	k, ok := key.(*coordinator.OffsetCommitKey)
	if !ok {
		return &coordinator.InvariantViolationError{
			Reason: fmt.Sprintf("record of type %T not owned by offset state", key),
		}
	}

	if value == nil {
		m.remove(k)
		return nil
	}

	v, ok := value.(*coordinator.OffsetCommitValue)
	if !ok {
		return &coordinator.InvariantViolationError{Reason: "offset commit key paired with foreign value"}
	}

	byTopic, ok := m.offsets[k.Group]
	if !ok {
		byTopic = make(map[string]map[int32]CommittedOffset)
		m.offsets[k.Group] = byTopic
	}
	byPartition, ok := byTopic[k.Topic]
	if !ok {
		byPartition = make(map[int32]CommittedOffset)
		byTopic[k.Topic] = byPartition
	}
	byPartition[k.Partition] = CommittedOffset{
		Offset:          v.Offset,
		LeaderEpoch:     v.LeaderEpoch,
		Metadata:        v.Metadata,
		CommitTimestamp: v.CommitTimestamp,
		ExpireTimestamp: v.ExpireTimestamp,
	}
	return nil
}

// remove deletes one offset and prunes emptied maps so a fully tombstoned
// group leaves no trace, matching the state rebuilt by a fresh replay.
func (m *OffsetManager) remove(k *coordinator.OffsetCommitKey) {
	byTopic, ok := m.offsets[k.Group]
	if !ok {
		return
	}
	byPartition, ok := byTopic[k.Topic]
	if !ok {
		return
	}
	delete(byPartition, k.Partition)
	if len(byPartition) == 0 {
		delete(byTopic, k.Topic)
	}
	if len(byTopic) == 0 {
		delete(m.offsets, k.Group)
	}
}

// NumOffsets reports the number of committed offsets across all groups.
func (m *OffsetManager) NumOffsets() int {
	n := 0
	for _, byTopic := range m.offsets {
		for _, byPartition := range byTopic {
			n += len(byPartition)
		}
	}
	return n
}

func sortedKeys(m map[string]map[int32]CommittedOffset) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedPartitions(m map[int32]CommittedOffset) []int32 {
	parts := make([]int32, 0, len(m))
	for p := range m {
		parts = append(parts, p)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i] < parts[j] })
	return parts
}
