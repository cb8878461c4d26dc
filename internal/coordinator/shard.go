// =============================================================================
// COORDINATOR SHARD - ONE PARTITION'S REPLICATED STATE MACHINE
// =============================================================================
//
// WHAT: The per-partition control unit of the group coordinator. A shard
// turns client commands into log records and rebuilds its entire state by
// replaying those records in order.
//
// TWO-PHASE DESIGN:
//
//   Command path:
//   ┌──────────────┐   ┌──────────────────┐   ┌───────────────────────┐
//   │ Client       │──►│ Shard pipeline   │──►│ Result{records,       │
//   │ command      │   │ (delegates to    │   │        response}      │
//   └──────────────┘   │  state managers) │   └───────────┬───────────┘
//                      └──────────────────┘               │ caller appends
//                                                         ▼ to the log
//   Apply path:                                 ┌───────────────────────┐
//   ┌──────────────┐   ┌──────────────────┐     │ Replay(record) per    │
//   │ Log record   │──►│ Schema router    │────►│ appended record, in   │
//   └──────────────┘   └──────────────────┘     │ log order             │
//                                               └───────────────────────┘
//
// The shard never mutates state inside a command: even records it proposed
// itself take effect only through Replay. Restart or failover therefore
// means: discard volatile state, replay the log from the start, converge.
//
// CONCURRENCY: a shard is a single logical state machine. Commands, replay,
// and the lifecycle hooks must be serialized by the caller; many shards run
// independently in parallel with no shared state.
//
// =============================================================================

package coordinator

import (
	"context"
	"log/slog"
)

// Shard is the per-partition coordinator core. It owns no state itself;
// everything lives in the two injected managers.
type Shard struct {
	logger  *slog.Logger
	group   GroupStateManager
	offsets OffsetStateManager
}

// NewShard wires a shard to its collaborators.
func NewShard(logger *slog.Logger, group GroupStateManager, offsets OffsetStateManager) *Shard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Shard{
		logger:  logger.With("component", "coordinator-shard"),
		group:   group,
		offsets: offsets,
	}
}

// =============================================================================
// COMMAND EXECUTION PIPELINE
// =============================================================================

// ConsumerGroupHeartbeat is a pure pass-through to the group state manager.
// The shard adds no business validation; it exists to give the service layer
// a stable call site while the manager's internals evolve.
func (s *Shard) ConsumerGroupHeartbeat(ctx context.Context, req *HeartbeatRequest) (*Result[*HeartbeatResponse], error) {
	return s.group.ConsumerGroupHeartbeat(ctx, req)
}

// CommitOffset is a pure pass-through to the offset state manager.
func (s *Shard) CommitOffset(ctx context.Context, req *OffsetCommitRequest) (*Result[*OffsetCommitResponse], error) {
	return s.offsets.CommitOffset(ctx, req)
}

// DeleteGroups deletes a batch of groups with per-group failure isolation.
//
// For each group id, in input order (duplicates preserved):
//  1. validate deletability; a failure claims that group's result slot and
//     produces no records, but never aborts the rest of the batch
//  2. tombstone every committed offset of the group
//  3. tombstone the group's metadata
//
// Offsets are tombstoned before metadata so a crash mid-recovery can never
// observe committed offsets whose group is already gone. The response
// mirrors the input order exactly, one entry per requested id.
func (s *Shard) DeleteGroups(ctx context.Context, groupIDs []string) (*Result[[]DeletableGroupResult], error) {
	records := make([]Record, 0, len(groupIDs)*2)

	errs := ApplyPerEntity(groupIDs, &records, func(groupID string, out *[]Record) error {
		if err := s.group.ValidateDeleteGroup(groupID); err != nil {
			return err
		}
		if _, err := s.offsets.DeleteAllOffsets(groupID, out); err != nil {
			return err
		}
		return s.group.DeleteGroup(groupID, out)
	})

	results := make([]DeletableGroupResult, len(groupIDs))
	for i, groupID := range groupIDs {
		results[i] = DeletableGroupResult{GroupID: groupID, ErrorCode: CodeFor(errs[i])}
		if errs[i] != nil {
			s.logger.Info("group not deleted", "group", groupID, "error", errs[i])
		}
	}

	return NewResult(records, results), nil
}

// =============================================================================
// REPLAY ENGINE
// =============================================================================

// Replay applies exactly one log record to the shard's state, routing it to
// the collaborator that owns its schema. A record either fully applies or
// the call fails; invariant and schema errors are fatal to the shard and
// the caller must stop serving it.
func (s *Shard) Replay(rec Record) error {
	owner, key, value, err := route(rec)
	if err != nil {
		return err
	}

	switch owner {
	case ownerGroup:
		return s.group.Replay(key, value)
	case ownerOffset:
		return s.offsets.Replay(key, value)
	default:
		return &InvariantViolationError{Reason: "record routed to unknown owner"}
	}
}

// =============================================================================
// LIFECYCLE HOOKS
// =============================================================================

// OnLoaded runs once, after the shard has replayed its full log history and
// before it serves commands. The group manager receives the current
// topology snapshot first, then its post-recovery pass. Records produced by
// the image delta are returned for the caller to append. The offset manager
// has no interest in topology and is not involved.
func (s *Shard) OnLoaded(image *MetadataImage) ([]Record, error) {
	var records []Record
	s.group.OnNewMetadataImage(image, &records)
	if err := s.group.OnLoaded(); err != nil {
		return nil, err
	}
	s.logger.Info("shard loaded", "image_version", image.Version, "reaction_records", len(records))
	return records, nil
}

// OnNewMetadataImage hands a new topology snapshot to the group manager.
// Reaction records accumulate in records for the caller to append. Must be
// serialized with command execution and replay, like everything else on a
// shard.
func (s *Shard) OnNewMetadataImage(image *MetadataImage, records *[]Record) {
	s.group.OnNewMetadataImage(image, records)
}
