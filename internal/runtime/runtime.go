// =============================================================================
// SHARD RUNTIME - PARTITION OWNERSHIP, SERIALIZATION, AND RECOVERY
// =============================================================================
//
// WHAT: The layer that turns many independent shards into one coordinator.
// It owns:
//
//   - ROUTING: a group id hashes to exactly one partition, so all state for
//     a group lives in one shard and one log
//   - SERIALIZATION: one mutex per partition; commands, replay, and
//     lifecycle hooks never run concurrently on the same shard
//   - THE APPEND CONTRACT: execute command -> append records to the log ->
//     replay them into state -> answer the client. State is never mutated
//     any other way, so replaying the log from empty state reproduces it.
//   - FENCING: a fatal replay error (corrupt frame, unknown schema) marks
//     the shard fenced; it stops serving rather than guess at its state
//
// Partitions run independently: a fenced or busy shard never blocks its
// neighbors.
//
// =============================================================================

package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/jimbogithub/kafka/internal/coordinator"
	"github.com/jimbogithub/kafka/internal/metrics"
	"github.com/jimbogithub/kafka/internal/state"
	"github.com/jimbogithub/kafka/internal/storage"
)

var (
	// ErrShardFenced means the shard hit a fatal replay error and stopped
	// serving. Recovery requires a reload from the log.
	ErrShardFenced = errors.New("shard is fenced")

	// ErrNotLoaded means the runtime has not finished its initial load.
	ErrNotLoaded = errors.New("shard is not loaded")
)

// Config sizes the runtime.
type Config struct {
	// Partitions is the number of shards. Fixed for the runtime's lifetime;
	// changing it rehashes group ownership.
	Partitions int

	// HeartbeatIntervalMs is handed to members in heartbeat responses.
	HeartbeatIntervalMs int32

	// OffsetRetention stamps the expiry of committed offsets.
	OffsetRetention time.Duration
}

// partition bundles one shard with its log and collaborators. mu serializes
// everything that touches the shard.
type partition struct {
	mu      sync.Mutex
	id      int32
	log     *storage.PartitionLog
	shard   *coordinator.Shard
	group   *state.GroupManager
	offsets *state.OffsetManager
	loaded  bool
	fenced  bool
}

// Runtime hosts every shard of the coordinator.
type Runtime struct {
	logger     *slog.Logger
	cfg        Config
	reg        *metrics.Registry
	partitions []*partition

	imageMu sync.Mutex
	image   *coordinator.MetadataImage
}

// New builds a runtime with empty shards. Call Load before serving.
// reg may be nil to run without metrics.
func New(logger *slog.Logger, cfg Config, reg *metrics.Registry) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Partitions <= 0 {
		cfg.Partitions = 1
	}
	logger = logger.With("component", "shard-runtime")

	r := &Runtime{
		logger:     logger,
		cfg:        cfg,
		reg:        reg,
		partitions: make([]*partition, cfg.Partitions),
		image:      coordinator.EmptyImage(),
	}
	for i := range r.partitions {
		r.partitions[i] = r.newPartition(int32(i), storage.NewPartitionLog())
	}
	return r
}

func (r *Runtime) newPartition(id int32, log *storage.PartitionLog) *partition {
	group := state.NewGroupManager(r.logger.With("partition", id), r.cfg.HeartbeatIntervalMs)
	offsets := state.NewOffsetManager(r.logger.With("partition", id), group, r.cfg.OffsetRetention)
	return &partition{
		id:      id,
		log:     log,
		shard:   coordinator.NewShard(r.logger.With("partition", id), group, offsets),
		group:   group,
		offsets: offsets,
	}
}

// partitionFor maps a group id to its owning partition.
func (r *Runtime) partitionFor(groupID string) *partition {
	idx := xxhash.Sum64String(groupID) % uint64(len(r.partitions))
	return r.partitions[idx]
}

// NumPartitions reports the shard count.
func (r *Runtime) NumPartitions() int {
	return len(r.partitions)
}

// =============================================================================
// LOAD AND RECOVERY
// =============================================================================

// Load replays every partition's log into fresh state and runs the
// post-recovery hooks with the given topology image. On a fresh runtime the
// logs are empty and this just primes the shards. Partitions whose log
// cannot be replayed come up fenced; Load reports the first such error but
// still loads the healthy partitions.
func (r *Runtime) Load(image *coordinator.MetadataImage) error {
	if image == nil {
		image = coordinator.EmptyImage()
	}
	r.imageMu.Lock()
	r.image = image
	r.imageMu.Unlock()

	var firstErr error
	loaded := 0
	for _, p := range r.partitions {
		if err := r.loadPartition(p, image); err != nil {
			r.logger.Error("partition failed to load", "partition", p.id, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("partition %d: %w", p.id, err)
			}
			continue
		}
		loaded++
	}

	if r.reg != nil && r.reg.Enabled() {
		r.reg.Coordinator.ShardsLoaded.Set(float64(loaded))
	}
	r.logger.Info("runtime loaded", "partitions", len(r.partitions), "serving", loaded)
	return firstErr
}

// Reload rebuilds one partition's state from its log, exactly the way a
// failover replica would. The log survives; the in-memory managers do not.
func (r *Runtime) Reload(partitionID int32) error {
	if int(partitionID) >= len(r.partitions) {
		return fmt.Errorf("no such partition %d", partitionID)
	}
	r.imageMu.Lock()
	image := r.image
	r.imageMu.Unlock()

	p := r.partitions[partitionID]
	return r.loadPartition(p, image)
}

func (r *Runtime) loadPartition(p *partition, image *coordinator.MetadataImage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Fresh collaborators every load: recovery is a rebuild, not a patch.
	fresh := r.newPartition(p.id, p.log)
	p.shard, p.group, p.offsets = fresh.shard, fresh.group, fresh.offsets
	p.loaded = false
	p.fenced = false

	records, err := p.log.ReadAll()
	if err != nil {
		p.fenced = true
		r.fencedMetric()
		return err
	}
	for _, rec := range records {
		if err := p.shard.Replay(rec); err != nil {
			p.fenced = true
			r.fencedMetric()
			return err
		}
		r.replayMetric()
	}

	reactions, err := p.shard.OnLoaded(image)
	if err != nil {
		p.fenced = true
		r.fencedMetric()
		return err
	}
	if err := r.appendAndReplayLocked(p, reactions); err != nil {
		return err
	}

	p.loaded = true
	return nil
}

// appendAndReplayLocked appends a command's records to the partition log and
// replays them into state. Caller holds p.mu. A fatal replay error fences
// the shard: the log and the in-memory state have diverged and only a
// reload can reconcile them.
func (r *Runtime) appendAndReplayLocked(p *partition, records []coordinator.Record) error {
	if len(records) == 0 {
		return nil
	}
	if _, err := p.log.Append(records); err != nil {
		return err
	}
	if r.reg != nil && r.reg.Enabled() {
		r.reg.Coordinator.RecordsAppendedTotal.Add(float64(len(records)))
	}

	for _, rec := range records {
		if err := p.shard.Replay(rec); err != nil {
			if coordinator.IsFatal(err) {
				p.fenced = true
				r.fencedMetric()
				r.logger.Error("shard fenced by fatal replay error",
					"partition", p.id, "error", err)
			}
			return err
		}
		r.replayMetric()
	}
	return nil
}

func (p *partition) serviceable() error {
	if p.fenced {
		return ErrShardFenced
	}
	if !p.loaded {
		return ErrNotLoaded
	}
	return nil
}

func (r *Runtime) fencedMetric() {
	if r.reg != nil && r.reg.Enabled() {
		r.reg.Coordinator.ShardsFenced.Inc()
	}
}

func (r *Runtime) replayMetric() {
	if r.reg != nil && r.reg.Enabled() {
		r.reg.Coordinator.ReplaysTotal.Inc()
	}
}

func (r *Runtime) commandMetric(op string, err error) {
	if r.reg == nil || !r.reg.Enabled() {
		return
	}
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	r.reg.Coordinator.CommandsTotal.WithLabelValues(op, result).Inc()
}

func (r *Runtime) commandTimer(op string) *metrics.Timer {
	if r.reg == nil || !r.reg.Enabled() {
		return metrics.NewTimer(nil)
	}
	return metrics.NewTimer(r.reg.Coordinator.CommandLatency.WithLabelValues(op))
}

// =============================================================================
// COMMANDS
// =============================================================================

// ConsumerGroupHeartbeat routes a heartbeat to its shard and runs the full
// command cycle: execute, append, replay, respond.
func (r *Runtime) ConsumerGroupHeartbeat(ctx context.Context, req *coordinator.HeartbeatRequest) (resp *coordinator.HeartbeatResponse, err error) {
	defer r.commandTimer("heartbeat").ObserveDuration()
	defer func() { r.commandMetric("heartbeat", err) }()

	p := r.partitionFor(req.GroupID)
	p.mu.Lock()
	defer p.mu.Unlock()

	if err = p.serviceable(); err != nil {
		return nil, err
	}
	result, err := p.shard.ConsumerGroupHeartbeat(ctx, req)
	if err != nil {
		return nil, err
	}
	if err = r.appendAndReplayLocked(p, result.Records); err != nil {
		return nil, err
	}
	return result.Response, nil
}

// CommitOffset routes an offset commit to its shard.
func (r *Runtime) CommitOffset(ctx context.Context, req *coordinator.OffsetCommitRequest) (resp *coordinator.OffsetCommitResponse, err error) {
	defer r.commandTimer("commit_offsets").ObserveDuration()
	defer func() { r.commandMetric("commit_offsets", err) }()

	p := r.partitionFor(req.GroupID)
	p.mu.Lock()
	defer p.mu.Unlock()

	if err = p.serviceable(); err != nil {
		return nil, err
	}
	result, err := p.shard.CommitOffset(ctx, req)
	if err != nil {
		return nil, err
	}
	if err = r.appendAndReplayLocked(p, result.Records); err != nil {
		return nil, err
	}
	return result.Response, nil
}

// FetchOffset reads one committed offset. Read-only, no records produced.
func (r *Runtime) FetchOffset(groupID, topic string, part int32) (state.CommittedOffset, bool, error) {
	p := r.partitionFor(groupID)
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.serviceable(); err != nil {
		return state.CommittedOffset{}, false, err
	}
	offset, ok := p.offsets.Fetch(groupID, topic, part)
	return offset, ok, nil
}

// FetchGroupOffsets reads every committed offset of a group.
func (r *Runtime) FetchGroupOffsets(groupID string) ([]state.GroupOffset, error) {
	p := r.partitionFor(groupID)
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.serviceable(); err != nil {
		return nil, err
	}
	return p.offsets.FetchGroup(groupID), nil
}

// DeleteGroups deletes groups that may live on different shards. Ids are
// bucketed per partition (preserving their relative order, duplicates and
// all), each shard runs its own batch, and the merged response mirrors the
// input order exactly. A fenced shard fails only its own ids.
func (r *Runtime) DeleteGroups(ctx context.Context, groupIDs []string) (results []coordinator.DeletableGroupResult, err error) {
	defer r.commandTimer("delete_groups").ObserveDuration()
	defer func() { r.commandMetric("delete_groups", err) }()

	type bucket struct {
		ids     []string
		indexes []int
	}
	buckets := make(map[*partition]*bucket)
	for i, id := range groupIDs {
		p := r.partitionFor(id)
		b, ok := buckets[p]
		if !ok {
			b = &bucket{}
			buckets[p] = b
		}
		b.ids = append(b.ids, id)
		b.indexes = append(b.indexes, i)
	}

	results = make([]coordinator.DeletableGroupResult, len(groupIDs))

	// Partition index order keeps execution deterministic.
	for _, p := range r.partitions {
		b, ok := buckets[p]
		if !ok {
			continue
		}
		shardResults, shardErr := r.deleteGroupsOnShard(ctx, p, b.ids)
		if shardErr != nil {
			for _, idx := range b.indexes {
				results[idx] = coordinator.DeletableGroupResult{
					GroupID:   groupIDs[idx],
					ErrorCode: coordinator.CodeUnknownServerError,
				}
			}
			continue
		}
		for j, idx := range b.indexes {
			results[idx] = shardResults[j]
		}
	}
	return results, nil
}

func (r *Runtime) deleteGroupsOnShard(ctx context.Context, p *partition, ids []string) ([]coordinator.DeletableGroupResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.serviceable(); err != nil {
		return nil, err
	}
	result, err := p.shard.DeleteGroups(ctx, ids)
	if err != nil {
		return nil, err
	}
	if err := r.appendAndReplayLocked(p, result.Records); err != nil {
		return nil, err
	}
	return result.Response, nil
}

// =============================================================================
// TOPOLOGY
// =============================================================================

// OnNewMetadataImage publishes a topology snapshot to every shard. Reaction
// records go through the same append-and-replay cycle as command records.
func (r *Runtime) OnNewMetadataImage(image *coordinator.MetadataImage) error {
	if image == nil {
		image = coordinator.EmptyImage()
	}
	r.imageMu.Lock()
	r.image = image
	r.imageMu.Unlock()

	var firstErr error
	for _, p := range r.partitions {
		p.mu.Lock()
		if err := p.serviceable(); err != nil {
			p.mu.Unlock()
			continue
		}
		var records []coordinator.Record
		p.shard.OnNewMetadataImage(image, &records)
		if err := r.appendAndReplayLocked(p, records); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("partition %d: %w", p.id, err)
		}
		p.mu.Unlock()
	}
	return firstErr
}

// =============================================================================
// INTROSPECTION
// =============================================================================

// PartitionStats is one shard's state sizes.
type PartitionStats struct {
	Partition int32 `json:"partition"`
	Records   int   `json:"records"`
	Groups    int   `json:"groups"`
	Offsets   int   `json:"offsets"`
	Loaded    bool  `json:"loaded"`
	Fenced    bool  `json:"fenced"`
}

// Stats snapshots every partition and refreshes the state-size gauges.
func (r *Runtime) Stats() []PartitionStats {
	stats := make([]PartitionStats, len(r.partitions))
	groups, offsets := 0, 0
	for i, p := range r.partitions {
		p.mu.Lock()
		stats[i] = PartitionStats{
			Partition: p.id,
			Records:   p.log.Len(),
			Groups:    p.group.NumGroups(),
			Offsets:   p.offsets.NumOffsets(),
			Loaded:    p.loaded,
			Fenced:    p.fenced,
		}
		p.mu.Unlock()
		groups += stats[i].Groups
		offsets += stats[i].Offsets
	}
	if r.reg != nil && r.reg.Enabled() {
		r.reg.Coordinator.GroupsTracked.Set(float64(groups))
		r.reg.Coordinator.OffsetsTracked.Set(float64(offsets))
	}
	return stats
}

// InjectFrame appends a raw frame to a partition's log, bypassing all
// validation. Recovery-test hook.
func (r *Runtime) InjectFrame(partitionID int32, frame []byte) error {
	if int(partitionID) >= len(r.partitions) {
		return fmt.Errorf("no such partition %d", partitionID)
	}
	r.partitions[partitionID].log.AppendFrame(frame)
	return nil
}

// PartitionOf exposes the routing decision for a group id.
func (r *Runtime) PartitionOf(groupID string) int32 {
	return r.partitionFor(groupID).id
}
