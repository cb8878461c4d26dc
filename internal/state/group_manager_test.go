package state

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/jimbogithub/kafka/internal/coordinator"
)

func testImage() *coordinator.MetadataImage {
	return &coordinator.MetadataImage{
		Version: 1,
		Topics: map[string]coordinator.TopicImage{
			"orders":   {Name: "orders", Partitions: 4},
			"payments": {Name: "payments", Partitions: 2},
		},
	}
}

// newLoadedGroupManager builds a manager with a topology installed and a
// deterministic clock for member id generation.
func newLoadedGroupManager(t *testing.T) *GroupManager {
	t.Helper()
	m := NewGroupManager(nil, 3000)
	m.now = func() time.Time { return time.UnixMilli(1700000000000) }

	var records []coordinator.Record
	m.OnNewMetadataImage(testImage(), &records)
	if len(records) != 0 {
		t.Fatalf("image install on an empty manager must produce no records, got %d", len(records))
	}
	return m
}

func replayAll(t *testing.T, m *GroupManager, records []coordinator.Record) {
	t.Helper()
	shard := coordinator.NewShard(nil, m, discardOffsets{})
	for i, rec := range records {
		if err := shard.Replay(rec); err != nil {
			t.Fatalf("replay of record %d failed: %v", i, err)
		}
	}
}

// discardOffsets satisfies the shard's offset side for group-only replays.
type discardOffsets struct{}

func (discardOffsets) CommitOffset(context.Context, *coordinator.OffsetCommitRequest) (*coordinator.Result[*coordinator.OffsetCommitResponse], error) {
	return nil, nil
}
func (discardOffsets) Replay(coordinator.Message, coordinator.Message) error { return nil }
func (discardOffsets) DeleteAllOffsets(string, *[]coordinator.Record) (int, error) {
	return 0, nil
}

func join(t *testing.T, m *GroupManager, group, member string, topics ...string) *coordinator.HeartbeatResponse {
	t.Helper()
	result, err := m.ConsumerGroupHeartbeat(context.Background(), &coordinator.HeartbeatRequest{
		GroupID:          group,
		MemberID:         member,
		MemberEpoch:      0,
		ClientID:         "client-1",
		SubscribedTopics: topics,
	})
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	replayAll(t, m, result.Records)
	return result.Response
}

func TestGroupManager_JoinProposesWithoutMutating(t *testing.T) {
	m := newLoadedGroupManager(t)

	result, err := m.ConsumerGroupHeartbeat(context.Background(), &coordinator.HeartbeatRequest{
		GroupID:          "g-1",
		MemberEpoch:      0,
		ClientID:         "client-1",
		SubscribedTopics: []string{"orders"},
	})
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}

	if m.GroupExists("g-1") {
		t.Fatal("state mutated before replay")
	}
	if result.Response.MemberID == "" {
		t.Error("a joining member without an id must get one assigned")
	}
	if result.Response.MemberEpoch != 1 {
		t.Errorf("first join epoch: got %d, want 1", result.Response.MemberEpoch)
	}
	if result.Response.HeartbeatIntervalMs != 3000 {
		t.Errorf("heartbeat interval: got %d", result.Response.HeartbeatIntervalMs)
	}
	if len(result.Records) == 0 {
		t.Fatal("join must propose records")
	}

	replayAll(t, m, result.Records)
	if !m.GroupExists("g-1") {
		t.Fatal("group absent after replaying the join's own records")
	}
	if m.NumGroups() != 1 {
		t.Errorf("group count: got %d, want 1", m.NumGroups())
	}
}

func TestGroupManager_SteadyStateHeartbeatIsQuiet(t *testing.T) {
	m := newLoadedGroupManager(t)
	resp := join(t, m, "g-1", "m-1", "orders")

	result, err := m.ConsumerGroupHeartbeat(context.Background(), &coordinator.HeartbeatRequest{
		GroupID:          "g-1",
		MemberID:         "m-1",
		MemberEpoch:      resp.MemberEpoch,
		ClientID:         "client-1",
		SubscribedTopics: []string{"orders"},
	})
	if err != nil {
		t.Fatalf("heartbeat failed: %v", err)
	}
	if len(result.Records) != 0 {
		t.Errorf("unchanged member must propose no records, got %d", len(result.Records))
	}
	if result.Response.MemberEpoch != resp.MemberEpoch {
		t.Errorf("epoch moved without a change: got %d", result.Response.MemberEpoch)
	}
}

func TestGroupManager_SubscriptionChangeBumpsEpoch(t *testing.T) {
	m := newLoadedGroupManager(t)
	resp := join(t, m, "g-1", "m-1", "orders")

	result, err := m.ConsumerGroupHeartbeat(context.Background(), &coordinator.HeartbeatRequest{
		GroupID:          "g-1",
		MemberID:         "m-1",
		MemberEpoch:      resp.MemberEpoch,
		ClientID:         "client-1",
		SubscribedTopics: []string{"orders", "payments"},
	})
	if err != nil {
		t.Fatalf("heartbeat failed: %v", err)
	}
	if result.Response.MemberEpoch != resp.MemberEpoch+1 {
		t.Errorf("subscription change must bump the epoch: got %d", result.Response.MemberEpoch)
	}
	if len(result.Records) == 0 {
		t.Fatal("subscription change must propose records")
	}
}

func TestGroupManager_HeartbeatFencing(t *testing.T) {
	m := newLoadedGroupManager(t)
	join(t, m, "g-1", "m-1", "orders")

	tests := []struct {
		name string
		req  *coordinator.HeartbeatRequest
		want error
	}{
		{
			name: "empty_group_id",
			req:  &coordinator.HeartbeatRequest{MemberID: "m-1", MemberEpoch: 1},
			want: coordinator.ErrInvalidGroupID,
		},
		{
			name: "unknown_member",
			req:  &coordinator.HeartbeatRequest{GroupID: "g-1", MemberID: "ghost", MemberEpoch: 1},
			want: coordinator.ErrUnknownMember,
		},
		{
			name: "stale_epoch",
			req:  &coordinator.HeartbeatRequest{GroupID: "g-1", MemberID: "m-1", MemberEpoch: 7},
			want: coordinator.ErrStaleMemberEpoch,
		},
		{
			name: "leave_unknown_group",
			req:  &coordinator.HeartbeatRequest{GroupID: "ghost", MemberID: "m-1", MemberEpoch: -1},
			want: coordinator.ErrGroupNotFound,
		},
		{
			name: "leave_unknown_member",
			req:  &coordinator.HeartbeatRequest{GroupID: "g-1", MemberID: "ghost", MemberEpoch: -1},
			want: coordinator.ErrUnknownMember,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ConsumerGroupHeartbeat(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGroupManager_Leave(t *testing.T) {
	m := newLoadedGroupManager(t)
	join(t, m, "g-1", "m-1", "orders")

	result, err := m.ConsumerGroupHeartbeat(context.Background(), &coordinator.HeartbeatRequest{
		GroupID:     "g-1",
		MemberID:    "m-1",
		MemberEpoch: -1,
	})
	if err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	if result.Response.MemberEpoch != -1 {
		t.Errorf("leave response epoch: got %d, want -1", result.Response.MemberEpoch)
	}
	// Three per-member tombstones plus the epoch bump.
	if len(result.Records) != 4 {
		t.Fatalf("leave records: got %d, want 4", len(result.Records))
	}

	replayAll(t, m, result.Records)

	if err := m.ValidateDeleteGroup("g-1"); err != nil {
		t.Errorf("memberless group must be deletable: %v", err)
	}
}

func TestGroupManager_ValidateDeleteGroup(t *testing.T) {
	m := newLoadedGroupManager(t)
	join(t, m, "g-1", "m-1", "orders")

	if err := m.ValidateDeleteGroup(""); !errors.Is(err, coordinator.ErrInvalidGroupID) {
		t.Errorf("empty id: got %v", err)
	}
	if err := m.ValidateDeleteGroup("unknown"); err != nil {
		t.Errorf("unknown group deletes as a no-op: got %v", err)
	}
	if err := m.ValidateDeleteGroup("g-1"); !errors.Is(err, coordinator.ErrNonEmptyGroup) {
		t.Errorf("live members must block deletion: got %v", err)
	}
}

func TestGroupManager_DeleteGroupConvergesToAbsent(t *testing.T) {
	m := newLoadedGroupManager(t)
	resp := join(t, m, "g-1", "m-1", "orders")

	leave, err := m.ConsumerGroupHeartbeat(context.Background(), &coordinator.HeartbeatRequest{
		GroupID: "g-1", MemberID: resp.MemberID, MemberEpoch: -1,
	})
	if err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	replayAll(t, m, leave.Records)

	var records []coordinator.Record
	if err := m.DeleteGroup("g-1", &records); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if len(records) == 0 {
		t.Fatal("delete must propose tombstones")
	}
	replayAll(t, m, records)

	if m.GroupExists("g-1") {
		t.Error("group must be gone after replaying its delete tombstones")
	}
	if m.NumGroups() != 0 {
		t.Errorf("group count: got %d, want 0", m.NumGroups())
	}
}

func TestGroupManager_ReplayIsIdempotent(t *testing.T) {
	m := newLoadedGroupManager(t)

	result, err := m.ConsumerGroupHeartbeat(context.Background(), &coordinator.HeartbeatRequest{
		GroupID: "g-1", MemberID: "m-1", MemberEpoch: 0,
		ClientID: "c-1", SubscribedTopics: []string{"orders"},
	})
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}

	replayAll(t, m, result.Records)
	replayAll(t, m, result.Records)

	if m.NumGroups() != 1 {
		t.Errorf("double replay must not duplicate state: %d groups", m.NumGroups())
	}
}

func TestGroupManager_ClassicGroup(t *testing.T) {
	m := newLoadedGroupManager(t)

	value := &coordinator.GroupMetadataValue{
		ProtocolType: "consumer",
		Protocol:     "range",
		Leader:       "m-1",
		Generation:   3,
	}
	replayAll(t, m, []coordinator.Record{coordinator.NewGroupMetadataRecord("legacy", value)})

	if !m.GroupExists("legacy") {
		t.Fatal("classic group not materialized")
	}
	if err := m.ValidateOffsetCommit("legacy", "m-1", 3); err != nil {
		t.Errorf("matching generation: got %v", err)
	}
	if err := m.ValidateOffsetCommit("legacy", "m-1", 2); !errors.Is(err, coordinator.ErrIllegalGeneration) {
		t.Errorf("generation mismatch: got %v", err)
	}

	var records []coordinator.Record
	if err := m.DeleteGroup("legacy", &records); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	want := []coordinator.Record{coordinator.NewGroupMetadataTombstone("legacy")}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("classic delete records: got %+v", records)
	}
	replayAll(t, m, records)
	if m.GroupExists("legacy") {
		t.Error("classic group must be gone after tombstone replay")
	}
}

func TestGroupManager_ValidateOffsetCommit(t *testing.T) {
	m := newLoadedGroupManager(t)
	resp := join(t, m, "g-1", "m-1", "orders")

	if err := m.ValidateOffsetCommit("untracked", "whoever", 0); err != nil {
		t.Errorf("untracked groups commit freely: got %v", err)
	}
	if err := m.ValidateOffsetCommit("g-1", "m-1", resp.MemberEpoch); err != nil {
		t.Errorf("current member: got %v", err)
	}
	if err := m.ValidateOffsetCommit("g-1", "ghost", resp.MemberEpoch); !errors.Is(err, coordinator.ErrUnknownMember) {
		t.Errorf("unknown member: got %v", err)
	}
	if err := m.ValidateOffsetCommit("g-1", "m-1", resp.MemberEpoch+5); !errors.Is(err, coordinator.ErrStaleMemberEpoch) {
		t.Errorf("stale epoch: got %v", err)
	}
	if err := m.ValidateOffsetCommit("g-1", "", -1); err != nil {
		t.Errorf("admin commit is not fenced: got %v", err)
	}
}

func TestGroupManager_NewMetadataImageBumpsAffectedGroups(t *testing.T) {
	m := newLoadedGroupManager(t)
	resp := join(t, m, "g-1", "m-1", "orders")
	join(t, m, "g-2", "m-2", "payments")

	// orders grows from 4 to 8 partitions; payments is untouched.
	grown := testImage()
	grown.Version = 2
	grown.Topics["orders"] = coordinator.TopicImage{Name: "orders", Partitions: 8}

	var records []coordinator.Record
	m.OnNewMetadataImage(grown, &records)

	// Only g-1 reacts: one epoch bump plus one refreshed snapshot.
	if len(records) != 2 {
		t.Fatalf("reaction records: got %d, want 2", len(records))
	}
	replayAll(t, m, records)

	// The member's next heartbeat reconciles it onto the bumped epoch.
	result, err := m.ConsumerGroupHeartbeat(context.Background(), &coordinator.HeartbeatRequest{
		GroupID: "g-1", MemberID: resp.MemberID, MemberEpoch: resp.MemberEpoch,
		ClientID: "client-1", SubscribedTopics: []string{"orders"},
	})
	if err != nil {
		t.Fatalf("reconciling heartbeat failed: %v", err)
	}
	if result.Response.MemberEpoch != resp.MemberEpoch+1 {
		t.Errorf("member must land on the bumped epoch: got %d, want %d",
			result.Response.MemberEpoch, resp.MemberEpoch+1)
	}
	if len(result.Records) == 0 {
		t.Error("reconciliation must record the member's new epoch")
	}
	replayAll(t, m, result.Records)

	// Re-publishing the same image is quiet.
	records = nil
	m.OnNewMetadataImage(grown, &records)
	if len(records) != 0 {
		t.Errorf("unchanged image must produce no records, got %d", len(records))
	}
}

func TestGroupManager_OnLoadedDetectsEpochInversion(t *testing.T) {
	m := newLoadedGroupManager(t)

	replayAll(t, m, []coordinator.Record{
		coordinator.NewConsumerGroupMetadataRecord("g-1", 1),
		coordinator.NewConsumerGroupMemberMetadataRecord("g-1", "m-1", &coordinator.ConsumerGroupMemberMetadataValue{ClientID: "c"}),
		coordinator.NewConsumerGroupCurrentMemberAssignmentRecord("g-1", "m-1", &coordinator.ConsumerGroupCurrentMemberAssignmentValue{MemberEpoch: 9}),
	})

	err := m.OnLoaded()
	if !coordinator.IsFatal(err) {
		t.Fatalf("a member epoch beyond its group epoch must fail the load: got %v", err)
	}
}

func TestGroupManager_OnLoadedHealthy(t *testing.T) {
	m := newLoadedGroupManager(t)
	join(t, m, "g-1", "m-1", "orders")

	if err := m.OnLoaded(); err != nil {
		t.Fatalf("healthy state must load: %v", err)
	}
}
