// =============================================================================
// GROUP STATE MANAGER - MEMBERSHIP AND EPOCHS FOR ONE SHARD
// =============================================================================
//
// WHAT: The in-memory group membership state behind a coordinator shard.
//
// PROPOSE/APPLY CONTRACT: command methods (heartbeat, delete) read current
// state and PROPOSE records; nothing in memory changes until those records
// come back through Replay. Replaying the full log from empty state rebuilds
// this manager exactly, which is the whole recovery story.
//
// Deliberately out of scope here: rebalance protocol rounds, partition
// assignment strategies, and session-timeout eviction. The bookkeeping they
// would drive (epochs, member metadata, assignments) is all present.
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

// memberState is one consumer group member as reconstructed from the log.
type memberState struct {
	metadata   *coordinator.ConsumerGroupMemberMetadataValue
	epoch      int32
	assignment []coordinator.TopicPartitions
}

// groupState is one consumer group as reconstructed from the log.
type groupState struct {
	epoch           int32
	assignmentEpoch int32
	members         map[string]*memberState
	targets         map[string][]coordinator.TopicPartitions

	// subscribedTopics is the partition-count snapshot recorded the last
	// time the group's subscription or the topology changed.
	subscribedTopics map[string]int32

	// classic is set for groups created through the classic protocol.
	classic *coordinator.GroupMetadataValue
}

func newGroupState() *groupState {
	return &groupState{
		members:          make(map[string]*memberState),
		targets:          make(map[string][]coordinator.TopicPartitions),
		subscribedTopics: make(map[string]int32),
	}
}

// empty reports whether nothing about the group survives in the log.
func (g *groupState) empty() bool {
	return len(g.members) == 0 && len(g.targets) == 0 &&
		len(g.subscribedTopics) == 0 && g.classic == nil &&
		g.epoch == 0 && g.assignmentEpoch == 0
}

// sortedMemberIDs gives deterministic iteration for record production.
func (g *groupState) sortedMemberIDs() []string {
	ids := make([]string, 0, len(g.members))
	for id := range g.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GroupManager owns all group state for one shard. Not safe for concurrent
// use; the shard runtime serializes access.
type GroupManager struct {
	logger              *slog.Logger
	heartbeatIntervalMs int32
	groups              map[string]*groupState
	image               *coordinator.MetadataImage

	// now is swappable so tests get stable member ids.
	now func() time.Time
}

// NewGroupManager builds an empty manager. State arrives through Replay.
func NewGroupManager(logger *slog.Logger, heartbeatIntervalMs int32) *GroupManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &GroupManager{
		logger:              logger.With("component", "group-state"),
		heartbeatIntervalMs: heartbeatIntervalMs,
		groups:              make(map[string]*groupState),
		image:               coordinator.EmptyImage(),
		now:                 time.Now,
	}
}

// =============================================================================
// HEARTBEAT
// =============================================================================

// ConsumerGroupHeartbeat handles one heartbeat: join (epoch 0), leave
// (epoch -1), or steady-state. It proposes records and answers from the
// state those records will produce; in-memory state is untouched until
// replay.
func (m *GroupManager) ConsumerGroupHeartbeat(_ context.Context, req *coordinator.HeartbeatRequest) (*coordinator.Result[*coordinator.HeartbeatResponse], error) {
	if req.GroupID == "" {
		return nil, coordinator.ErrInvalidGroupID
	}

	if req.MemberEpoch == -1 {
		return m.leave(req)
	}

	group := m.groups[req.GroupID]
	memberID := req.MemberID

	if req.MemberEpoch == 0 && memberID == "" {
		memberID = fmt.Sprintf("%s-%x", req.ClientID, m.now().UnixNano())
	}

	var member *memberState
	if group != nil {
		member = group.members[memberID]
	}
	if req.MemberEpoch > 0 {
		if member == nil {
			return nil, coordinator.ErrUnknownMember
		}
		if req.MemberEpoch != member.epoch {
			return nil, coordinator.ErrStaleMemberEpoch
		}
	}

	var records []coordinator.Record
	epoch := int32(0)
	if group != nil {
		epoch = group.epoch
	}

	metadata := &coordinator.ConsumerGroupMemberMetadataValue{
		ClientID:           req.ClientID,
		ClientHost:         req.ClientHost,
		InstanceID:         req.InstanceID,
		RebalanceTimeoutMs: req.RebalanceTimeoutMs,
		SubscribedTopics:   append([]string(nil), req.SubscribedTopics...),
	}
	sort.Strings(metadata.SubscribedTopics)

	if member == nil || !equalMemberMetadata(member.metadata, metadata) {
		// Membership or subscription changed: record the member, bump the
		// group epoch, and refresh the subscription topology snapshot.
		epoch++
		records = append(records,
			coordinator.NewConsumerGroupMemberMetadataRecord(req.GroupID, memberID, metadata),
			coordinator.NewConsumerGroupMetadataRecord(req.GroupID, epoch),
			coordinator.NewConsumerGroupPartitionMetadataRecord(req.GroupID, m.partitionSnapshot(group, metadata.SubscribedTopics)),
		)
	}

	assignment := m.targetFor(group, memberID)
	if member == nil || member.epoch != epoch || !equalAssignments(member.assignment, assignment) {
		records = append(records, coordinator.NewConsumerGroupCurrentMemberAssignmentRecord(
			req.GroupID, memberID,
			&coordinator.ConsumerGroupCurrentMemberAssignmentValue{MemberEpoch: epoch, Partitions: assignment},
		))
	}

	return coordinator.NewResult(records, &coordinator.HeartbeatResponse{
		MemberID:            memberID,
		MemberEpoch:         epoch,
		HeartbeatIntervalMs: m.heartbeatIntervalMs,
		Assignment:          assignment,
	}), nil
}

// leave removes a member: tombstones for everything recorded about it, plus
// an epoch bump so the remaining members observe the change.
func (m *GroupManager) leave(req *coordinator.HeartbeatRequest) (*coordinator.Result[*coordinator.HeartbeatResponse], error) {
	group := m.groups[req.GroupID]
	if group == nil {
		return nil, coordinator.ErrGroupNotFound
	}
	if _, ok := group.members[req.MemberID]; !ok {
		return nil, coordinator.ErrUnknownMember
	}

	records := []coordinator.Record{
		coordinator.NewConsumerGroupCurrentMemberAssignmentTombstone(req.GroupID, req.MemberID),
		coordinator.NewConsumerGroupTargetAssignmentMemberTombstone(req.GroupID, req.MemberID),
		coordinator.NewConsumerGroupMemberMetadataTombstone(req.GroupID, req.MemberID),
		coordinator.NewConsumerGroupMetadataRecord(req.GroupID, group.epoch+1),
	}

	return coordinator.NewResult(records, &coordinator.HeartbeatResponse{
		MemberID:    req.MemberID,
		MemberEpoch: -1,
	}), nil
}

// partitionSnapshot projects the current topology onto the union of the
// group's subscribed topics and the new member's.
func (m *GroupManager) partitionSnapshot(group *groupState, subscribed []string) *coordinator.ConsumerGroupPartitionMetadataValue {
	topics := map[string]struct{}{}
	if group != nil {
		for _, member := range group.members {
			for _, t := range member.metadata.SubscribedTopics {
				topics[t] = struct{}{}
			}
		}
	}
	for _, t := range subscribed {
		topics[t] = struct{}{}
	}

	names := make([]string, 0, len(topics))
	for t := range topics {
		names = append(names, t)
	}
	sort.Strings(names)

	value := &coordinator.ConsumerGroupPartitionMetadataValue{}
	for _, name := range names {
		if topic, ok := m.image.Topics[name]; ok {
			value.Topics = append(value.Topics, coordinator.TopicMetadata{
				Name:          name,
				NumPartitions: topic.Partitions,
			})
		}
	}
	return value
}

func (m *GroupManager) targetFor(group *groupState, memberID string) []coordinator.TopicPartitions {
	if group == nil {
		return nil
	}
	return group.targets[memberID]
}

func equalMemberMetadata(a, b *coordinator.ConsumerGroupMemberMetadataValue) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ClientID != b.ClientID || a.ClientHost != b.ClientHost ||
		a.InstanceID != b.InstanceID || a.RebalanceTimeoutMs != b.RebalanceTimeoutMs ||
		len(a.SubscribedTopics) != len(b.SubscribedTopics) {
		return false
	}
	for i := range a.SubscribedTopics {
		if a.SubscribedTopics[i] != b.SubscribedTopics[i] {
			return false
		}
	}
	return true
}

func equalAssignments(a, b []coordinator.TopicPartitions) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Topic != b[i].Topic || len(a[i].Partitions) != len(b[i].Partitions) {
			return false
		}
		for j := range a[i].Partitions {
			if a[i].Partitions[j] != b[i].Partitions[j] {
				return false
			}
		}
	}
	return true
}

// =============================================================================
// DELETE
// =============================================================================

// ValidateDeleteGroup is the deletability policy: malformed ids are invalid,
// groups with live members cannot be deleted, and deleting a group that does
// not exist is a no-op success (the tombstones are idempotent).
func (m *GroupManager) ValidateDeleteGroup(groupID string) error {
	if groupID == "" {
		return coordinator.ErrInvalidGroupID
	}
	group, ok := m.groups[groupID]
	if !ok {
		return nil
	}
	if len(group.members) > 0 {
		return coordinator.ErrNonEmptyGroup
	}
	return nil
}

// DeleteGroup appends the tombstones that erase the group from the log:
// per-member records first, then group-level metadata, the group epoch
// record last so replay never observes members of a group that is gone.
func (m *GroupManager) DeleteGroup(groupID string, records *[]coordinator.Record) error {
	group, ok := m.groups[groupID]
	if !ok {
		// Unknown here can still mean present in an older log segment.
		*records = append(*records, coordinator.NewConsumerGroupMetadataTombstone(groupID))
		return nil
	}

	if group.classic != nil {
		*records = append(*records, coordinator.NewGroupMetadataTombstone(groupID))
		return nil
	}

	for _, memberID := range group.sortedMemberIDs() {
		*records = append(*records,
			coordinator.NewConsumerGroupCurrentMemberAssignmentTombstone(groupID, memberID),
			coordinator.NewConsumerGroupTargetAssignmentMemberTombstone(groupID, memberID),
			coordinator.NewConsumerGroupMemberMetadataTombstone(groupID, memberID),
		)
	}
	*records = append(*records,
		coordinator.NewConsumerGroupTargetAssignmentMetadataTombstone(groupID),
		coordinator.NewConsumerGroupPartitionMetadataTombstone(groupID),
		coordinator.NewConsumerGroupMetadataTombstone(groupID),
	)
	return nil
}

// =============================================================================
// OFFSET COMMIT FENCING
// =============================================================================

// ValidateOffsetCommit fences an offset commit against group membership.
// Groups unknown to membership commit freely (plain offset storage without a
// subscription is legal). Classic groups check the generation; consumer
// groups check member identity and epoch.
func (m *GroupManager) ValidateOffsetCommit(groupID, memberID string, generation int32) error {
	group, ok := m.groups[groupID]
	if !ok {
		return nil
	}

	if group.classic != nil {
		if generation != group.classic.Generation {
			return coordinator.ErrIllegalGeneration
		}
		return nil
	}

	if memberID == "" && generation < 0 {
		// Admin-style commit against a consumer group, not fenced.
		return nil
	}
	member, ok := group.members[memberID]
	if !ok {
		return coordinator.ErrUnknownMember
	}
	if generation != member.epoch {
		return coordinator.ErrStaleMemberEpoch
	}
	return nil
}

// GroupExists reports whether the group is known to membership state.
func (m *GroupManager) GroupExists(groupID string) bool {
	_, ok := m.groups[groupID]
	return ok
}

// NumGroups reports how many groups membership state is tracking.
func (m *GroupManager) NumGroups() int {
	return len(m.groups)
}

// =============================================================================
// REPLAY
// =============================================================================

// Replay applies one group-owned record. Idempotent per record; a record the
// group owner does not understand is an invariant violation because the
// router already vetted the schema.
func (m *GroupManager) Replay(key, value coordinator.Message) error {
	switch k := key.(type) {
	case *coordinator.GroupMetadataKey:
		return m.replayClassicGroup(k, value)
	case *coordinator.ConsumerGroupMetadataKey:
		return m.replayGroupEpoch(k, value)
	case *coordinator.ConsumerGroupPartitionMetadataKey:
		return m.replayPartitionMetadata(k, value)
	case *coordinator.ConsumerGroupMemberMetadataKey:
		return m.replayMemberMetadata(k, value)
	case *coordinator.ConsumerGroupTargetAssignmentMetadataKey:
		return m.replayTargetMetadata(k, value)
	case *coordinator.ConsumerGroupTargetAssignmentMemberKey:
		return m.replayTargetMember(k, value)
	case *coordinator.ConsumerGroupCurrentMemberAssignmentKey:
		return m.replayCurrentAssignment(k, value)
	default:
		return &coordinator.InvariantViolationError{
			Reason: fmt.Sprintf("record of type %T not owned by group state", key),
		}
	}
}

func (m *GroupManager) ensure(groupID string) *groupState {
	group, ok := m.groups[groupID]
	if !ok {
		group = newGroupState()
		m.groups[groupID] = group
	}
	return group
}

// dropIfEmpty erases groups whose every trace has been tombstoned, so replay
// of a full delete converges back to "group does not exist".
func (m *GroupManager) dropIfEmpty(groupID string) {
	if group, ok := m.groups[groupID]; ok && group.empty() {
		delete(m.groups, groupID)
	}
}

func (m *GroupManager) replayClassicGroup(k *coordinator.GroupMetadataKey, value coordinator.Message) error {
	if value == nil {
		if group, ok := m.groups[k.Group]; ok {
			group.classic = nil
			m.dropIfEmpty(k.Group)
		}
		return nil
	}
	v, ok := value.(*coordinator.GroupMetadataValue)
	if !ok {
		return &coordinator.InvariantViolationError{Reason: "classic group key paired with foreign value"}
	}
	m.ensure(k.Group).classic = v
	return nil
}

func (m *GroupManager) replayGroupEpoch(k *coordinator.ConsumerGroupMetadataKey, value coordinator.Message) error {
	if value == nil {
		delete(m.groups, k.Group)
		return nil
	}
	v, ok := value.(*coordinator.ConsumerGroupMetadataValue)
	if !ok {
		return &coordinator.InvariantViolationError{Reason: "group epoch key paired with foreign value"}
	}
	m.ensure(k.Group).epoch = v.Epoch
	return nil
}

func (m *GroupManager) replayPartitionMetadata(k *coordinator.ConsumerGroupPartitionMetadataKey, value coordinator.Message) error {
	if value == nil {
		if group, ok := m.groups[k.Group]; ok {
			group.subscribedTopics = make(map[string]int32)
			m.dropIfEmpty(k.Group)
		}
		return nil
	}
	v, ok := value.(*coordinator.ConsumerGroupPartitionMetadataValue)
	if !ok {
		return &coordinator.InvariantViolationError{Reason: "partition metadata key paired with foreign value"}
	}
	group := m.ensure(k.Group)
	group.subscribedTopics = make(map[string]int32, len(v.Topics))
	for _, t := range v.Topics {
		group.subscribedTopics[t.Name] = t.NumPartitions
	}
	return nil
}

func (m *GroupManager) replayMemberMetadata(k *coordinator.ConsumerGroupMemberMetadataKey, value coordinator.Message) error {
	if value == nil {
		if group, ok := m.groups[k.Group]; ok {
			delete(group.members, k.MemberID)
			m.dropIfEmpty(k.Group)
		}
		return nil
	}
	v, ok := value.(*coordinator.ConsumerGroupMemberMetadataValue)
	if !ok {
		return &coordinator.InvariantViolationError{Reason: "member metadata key paired with foreign value"}
	}
	group := m.ensure(k.Group)
	member, ok := group.members[k.MemberID]
	if !ok {
		member = &memberState{}
		group.members[k.MemberID] = member
	}
	member.metadata = v
	return nil
}

func (m *GroupManager) replayTargetMetadata(k *coordinator.ConsumerGroupTargetAssignmentMetadataKey, value coordinator.Message) error {
	if value == nil {
		if group, ok := m.groups[k.Group]; ok {
			group.assignmentEpoch = 0
			m.dropIfEmpty(k.Group)
		}
		return nil
	}
	v, ok := value.(*coordinator.ConsumerGroupTargetAssignmentMetadataValue)
	if !ok {
		return &coordinator.InvariantViolationError{Reason: "target assignment metadata key paired with foreign value"}
	}
	m.ensure(k.Group).assignmentEpoch = v.AssignmentEpoch
	return nil
}

func (m *GroupManager) replayTargetMember(k *coordinator.ConsumerGroupTargetAssignmentMemberKey, value coordinator.Message) error {
	if value == nil {
		if group, ok := m.groups[k.Group]; ok {
			delete(group.targets, k.MemberID)
			m.dropIfEmpty(k.Group)
		}
		return nil
	}
	v, ok := value.(*coordinator.ConsumerGroupTargetAssignmentMemberValue)
	if !ok {
		return &coordinator.InvariantViolationError{Reason: "target assignment member key paired with foreign value"}
	}
	m.ensure(k.Group).targets[k.MemberID] = v.Partitions
	return nil
}

func (m *GroupManager) replayCurrentAssignment(k *coordinator.ConsumerGroupCurrentMemberAssignmentKey, value coordinator.Message) error {
	if value == nil {
		if group, ok := m.groups[k.Group]; ok {
			if member, ok := group.members[k.MemberID]; ok {
				member.epoch = 0
				member.assignment = nil
			}
		}
		return nil
	}
	v, ok := value.(*coordinator.ConsumerGroupCurrentMemberAssignmentValue)
	if !ok {
		return &coordinator.InvariantViolationError{Reason: "current assignment key paired with foreign value"}
	}
	group := m.ensure(k.Group)
	member, ok := group.members[k.MemberID]
	if !ok {
		member = &memberState{}
		group.members[k.MemberID] = member
	}
	member.epoch = v.MemberEpoch
	member.assignment = v.Partitions
	return nil
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// OnLoaded is the post-recovery consistency pass: verify that every member's
// epoch is bounded by its group epoch. A violation means the log itself is
// inconsistent, which the shard must not serve.
func (m *GroupManager) OnLoaded() error {
	groups, members := 0, 0
	for groupID, group := range m.groups {
		groups++
		for memberID, member := range group.members {
			members++
			if member.epoch > group.epoch {
				return &coordinator.InvariantViolationError{
					Reason: fmt.Sprintf("member %s of group %s has epoch %d beyond group epoch %d",
						memberID, groupID, member.epoch, group.epoch),
				}
			}
		}
	}
	m.logger.Info("group state loaded", "groups", groups, "members", members)
	return nil
}

// OnNewMetadataImage installs a topology snapshot. Groups whose recorded
// subscription snapshot disagrees with the image (topic deleted, partition
// count changed) get an epoch bump and a fresh snapshot record, which is
// what triggers their next reconciliation.
func (m *GroupManager) OnNewMetadataImage(image *coordinator.MetadataImage, records *[]coordinator.Record) {
	if image == nil {
		image = coordinator.EmptyImage()
	}
	m.image = image

	groupIDs := make([]string, 0, len(m.groups))
	for id := range m.groups {
		groupIDs = append(groupIDs, id)
	}
	sort.Strings(groupIDs)

	for _, groupID := range groupIDs {
		group := m.groups[groupID]
		if group.classic != nil || len(group.subscribedTopics) == 0 {
			continue
		}
		if !m.snapshotStale(group) {
			continue
		}

		snapshot := &coordinator.ConsumerGroupPartitionMetadataValue{}
		names := make([]string, 0, len(group.subscribedTopics))
		for name := range group.subscribedTopics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if topic, ok := image.Topics[name]; ok {
				snapshot.Topics = append(snapshot.Topics, coordinator.TopicMetadata{
					Name:          name,
					NumPartitions: topic.Partitions,
				})
			}
		}

		*records = append(*records,
			coordinator.NewConsumerGroupMetadataRecord(groupID, group.epoch+1),
			coordinator.NewConsumerGroupPartitionMetadataRecord(groupID, snapshot),
		)
		m.logger.Info("topology change bumps group epoch",
			"group", groupID, "epoch", group.epoch+1, "image_version", image.Version)
	}
}

func (m *GroupManager) snapshotStale(group *groupState) bool {
	for name, partitions := range group.subscribedTopics {
		topic, ok := m.image.Topics[name]
		if !ok || topic.Partitions != partitions {
			return true
		}
	}
	return false
}
