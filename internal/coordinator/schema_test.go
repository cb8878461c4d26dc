package coordinator

import (
	"reflect"
	"testing"
)

func TestOffsetCommitValueVersions(t *testing.T) {
	full := &OffsetCommitValue{
		Offset:          42,
		LeaderEpoch:     7,
		Metadata:        "m",
		CommitTimestamp: 1000,
		ExpireTimestamp: 2000,
	}

	decoded, err := decodeOffsetCommitValue(1, full.Encode())
	if err != nil {
		t.Fatalf("v1 decode failed: %v", err)
	}
	if !reflect.DeepEqual(decoded, full) {
		t.Errorf("v1 round trip mismatch: got %+v", decoded)
	}

	// v0 layout has no leader epoch and no expiry.
	var w byteWriter
	w.writeInt64(42)
	w.writeString("m")
	w.writeInt64(1000)

	decoded, err = decodeOffsetCommitValue(0, w.buf)
	if err != nil {
		t.Fatalf("v0 decode failed: %v", err)
	}
	want := &OffsetCommitValue{Offset: 42, Metadata: "m", CommitTimestamp: 1000}
	if !reflect.DeepEqual(decoded, want) {
		t.Errorf("v0 decode mismatch: got %+v, want %+v", decoded, want)
	}
}

func TestGroupMetadataValueRoundTrip(t *testing.T) {
	value := &GroupMetadataValue{
		ProtocolType: "consumer",
		Protocol:     "range",
		Leader:       "m-1",
		Generation:   12,
		Members: []ClassicMember{
			{
				MemberID:           "m-1",
				ClientID:           "c-1",
				ClientHost:         "10.0.0.1",
				SessionTimeoutMs:   30000,
				RebalanceTimeoutMs: 60000,
				Subscription:       []byte{1, 2},
				Assignment:         []byte{3},
			},
			{MemberID: "m-2", Subscription: []byte{}, Assignment: []byte{}},
		},
	}

	decoded, err := decodeGroupMetadataValue(groupMetadataValVersion, value.Encode())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !reflect.DeepEqual(decoded, value) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", decoded, value)
	}
}

func TestMemberMetadataValueRoundTrip(t *testing.T) {
	value := &ConsumerGroupMemberMetadataValue{
		ClientID:           "c-1",
		ClientHost:         "10.0.0.1",
		InstanceID:         "static-1",
		RebalanceTimeoutMs: 60000,
		SubscribedTopics:   []string{"orders", "payments"},
	}

	decoded, err := decodeConsumerGroupMemberMetadataValue(0, value.Encode())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !reflect.DeepEqual(decoded, value) {
		t.Errorf("round trip mismatch: got %+v", decoded)
	}
}

func TestCurrentMemberAssignmentValueRoundTrip(t *testing.T) {
	value := &ConsumerGroupCurrentMemberAssignmentValue{
		MemberEpoch: 5,
		Partitions: []TopicPartitions{
			{Topic: "orders", Partitions: []int32{0, 1, 2}},
			{Topic: "payments", Partitions: []int32{4}},
		},
	}

	decoded, err := decodeConsumerGroupCurrentMemberAssignmentValue(0, value.Encode())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !reflect.DeepEqual(decoded, value) {
		t.Errorf("round trip mismatch: got %+v", decoded)
	}
}

func TestPartitionMetadataValueRoundTrip(t *testing.T) {
	value := &ConsumerGroupPartitionMetadataValue{
		Topics: []TopicMetadata{{Name: "orders", NumPartitions: 16}},
	}

	decoded, err := decodeConsumerGroupPartitionMetadataValue(0, value.Encode())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !reflect.DeepEqual(decoded, value) {
		t.Errorf("round trip mismatch: got %+v", decoded)
	}
}

func TestDecodeTruncatedMessages(t *testing.T) {
	key := &ConsumerGroupMemberMetadataKey{Group: "g", MemberID: "m"}
	encoded := key.Encode()

	for cut := 0; cut < len(encoded); cut++ {
		if _, err := decodeConsumerGroupMemberMetadataKey(0, encoded[:cut]); err == nil {
			t.Errorf("decode of %d/%d bytes must fail", cut, len(encoded))
		}
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	key := &ConsumerGroupMetadataKey{Group: "g"}
	data := append(key.Encode(), 0xAB)

	if _, err := decodeConsumerGroupMetadataKey(0, data); err == nil {
		t.Error("trailing bytes must fail the decode")
	}
}
