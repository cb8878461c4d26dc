// =============================================================================
// COLLABORATOR INTERFACES - THE TWO STATE MANAGERS A SHARD DELEGATES TO
// =============================================================================
//
// WHY INTERFACES?
// The shard owns no state of its own. Group state and offset state belong to
// two collaborators, injected at construction. Abstracting them as
// capability interfaces keeps the shard testable with hand-rolled fakes and
// lets the managers' internals evolve behind a fixed call-site contract.
//
// CONTRACT: command methods (heartbeat, commit, delete) only PRODUCE
// records; in-memory state changes only in Replay. This propose/apply split
// is what makes a follower replica converge identically to the leader that
// produced the records.
//
// =============================================================================

package coordinator

import "context"

// GroupStateManager owns group membership state for one shard.
type GroupStateManager interface {
	// ConsumerGroupHeartbeat handles one heartbeat request end to end.
	// The shard forwards the request untouched and returns the result
	// untouched.
	ConsumerGroupHeartbeat(ctx context.Context, req *HeartbeatRequest) (*Result[*HeartbeatResponse], error)

	// Replay applies one group-related record. value is nil for tombstones.
	// Must be idempotent per record.
	Replay(key Message, value Message) error

	// ValidateDeleteGroup reports whether the group may be deleted right
	// now. The not-found/invalid boundary is this manager's policy.
	ValidateDeleteGroup(groupID string) error

	// DeleteGroup appends the tombstone record(s) for the group's metadata
	// to records. It must not mutate state; deletion happens at replay.
	DeleteGroup(groupID string, records *[]Record) error

	// OnLoaded runs the post-recovery consistency pass, once, after the
	// shard has replayed its full log and before it serves commands.
	OnLoaded() error

	// OnNewMetadataImage installs a new topology snapshot and may append
	// reaction records (e.g. epoch bumps for groups touching deleted
	// topics) to records.
	OnNewMetadataImage(image *MetadataImage, records *[]Record)
}

// OffsetStateManager owns committed offsets for one shard.
type OffsetStateManager interface {
	// CommitOffset handles one offset commit request end to end.
	CommitOffset(ctx context.Context, req *OffsetCommitRequest) (*Result[*OffsetCommitResponse], error)

	// Replay applies one offset-related record. value is nil for
	// tombstones. Must be idempotent per record.
	Replay(key Message, value Message) error

	// DeleteAllOffsets appends one tombstone per committed offset of the
	// group to records and returns how many it appended.
	DeleteAllOffsets(groupID string, records *[]Record) (int, error)
}

// =============================================================================
// REQUEST / RESPONSE TYPES
// =============================================================================

// HeartbeatRequest is one consumer group heartbeat.
type HeartbeatRequest struct {
	GroupID  string
	MemberID string

	// MemberEpoch is the epoch the member last acknowledged. 0 means
	// joining; -1 means leaving.
	MemberEpoch int32

	// InstanceID is set for static members.
	InstanceID string

	RebalanceTimeoutMs int32
	SubscribedTopics   []string
	ClientID           string
	ClientHost         string
}

// HeartbeatResponse acknowledges a heartbeat.
type HeartbeatResponse struct {
	MemberID            string
	MemberEpoch         int32
	HeartbeatIntervalMs int32
	Assignment          []TopicPartitions
}

// OffsetCommitRequest commits offsets for one group, possibly many
// topic-partitions at once.
type OffsetCommitRequest struct {
	GroupID      string
	MemberID     string
	GenerationID int32
	Offsets      []OffsetCommitPartition
}

// OffsetCommitPartition is one topic-partition position inside a commit.
type OffsetCommitPartition struct {
	Topic       string
	Partition   int32
	Offset      int64
	LeaderEpoch int32
	Metadata    string
}

// OffsetCommitResponse carries a per-partition outcome, mirroring the
// request order.
type OffsetCommitResponse struct {
	Partitions []OffsetCommitPartitionResponse
}

// OffsetCommitPartitionResponse is the outcome for one topic-partition.
type OffsetCommitPartitionResponse struct {
	Topic     string
	Partition int32
	ErrorCode ErrorCode
}

// DeletableGroupResult is the outcome for one group in a batch delete.
// ErrorCode is CodeNone on success.
type DeletableGroupResult struct {
	GroupID   string
	ErrorCode ErrorCode
}
