// =============================================================================
// RECORD BUILDERS - THE ONLY WAY RECORDS ARE CONSTRUCTED
// =============================================================================
//
// One constructor per record shape keeps schema ids, versions, and codecs in
// a single place. Tombstone builders produce a record with the encoded key
// and no value.
//
// =============================================================================

package coordinator

const (
	offsetCommitKeyVersion   int16 = 1
	offsetCommitValueVersion int16 = 1
	groupMetadataKeyVersion  int16 = 0
	consumerGroupKeyVersion  int16 = 0
	consumerGroupValVersion  int16 = 0
	groupMetadataValVersion  int16 = 4
)

func keyPayload(schema SchemaID, version int16, data []byte) *Payload {
	return &Payload{Schema: schema, Version: version, Data: data}
}

// NewOffsetCommitRecord upserts one committed offset.
func NewOffsetCommitRecord(group, topic string, partition int32, value *OffsetCommitValue) Record {
	k := &OffsetCommitKey{Group: group, Topic: topic, Partition: partition}
	return Record{
		Key:   keyPayload(SchemaOffsetCommit, offsetCommitKeyVersion, k.Encode()),
		Value: keyPayload(SchemaOffsetCommit, offsetCommitValueVersion, value.Encode()),
	}
}

// NewOffsetCommitTombstone deletes one committed offset.
func NewOffsetCommitTombstone(group, topic string, partition int32) Record {
	k := &OffsetCommitKey{Group: group, Topic: topic, Partition: partition}
	return Record{Key: keyPayload(SchemaOffsetCommit, offsetCommitKeyVersion, k.Encode())}
}

// NewGroupMetadataRecord upserts a classic group snapshot.
func NewGroupMetadataRecord(group string, value *GroupMetadataValue) Record {
	k := &GroupMetadataKey{Group: group}
	return Record{
		Key:   keyPayload(SchemaGroupMetadata, groupMetadataKeyVersion, k.Encode()),
		Value: keyPayload(SchemaGroupMetadata, groupMetadataValVersion, value.Encode()),
	}
}

// NewGroupMetadataTombstone deletes a classic group.
func NewGroupMetadataTombstone(group string) Record {
	k := &GroupMetadataKey{Group: group}
	return Record{Key: keyPayload(SchemaGroupMetadata, groupMetadataKeyVersion, k.Encode())}
}

// NewConsumerGroupMetadataRecord upserts the group epoch.
func NewConsumerGroupMetadataRecord(group string, epoch int32) Record {
	k := &ConsumerGroupMetadataKey{Group: group}
	v := &ConsumerGroupMetadataValue{Epoch: epoch}
	return Record{
		Key:   keyPayload(SchemaConsumerGroupMetadata, consumerGroupKeyVersion, k.Encode()),
		Value: keyPayload(SchemaConsumerGroupMetadata, consumerGroupValVersion, v.Encode()),
	}
}

// NewConsumerGroupMetadataTombstone deletes a consumer group.
func NewConsumerGroupMetadataTombstone(group string) Record {
	k := &ConsumerGroupMetadataKey{Group: group}
	return Record{Key: keyPayload(SchemaConsumerGroupMetadata, consumerGroupKeyVersion, k.Encode())}
}

// NewConsumerGroupPartitionMetadataRecord upserts the group's subscribed
// topic topology snapshot.
func NewConsumerGroupPartitionMetadataRecord(group string, value *ConsumerGroupPartitionMetadataValue) Record {
	k := &ConsumerGroupPartitionMetadataKey{Group: group}
	return Record{
		Key:   keyPayload(SchemaConsumerGroupPartitionMetadata, consumerGroupKeyVersion, k.Encode()),
		Value: keyPayload(SchemaConsumerGroupPartitionMetadata, consumerGroupValVersion, value.Encode()),
	}
}

// NewConsumerGroupPartitionMetadataTombstone deletes that snapshot.
func NewConsumerGroupPartitionMetadataTombstone(group string) Record {
	k := &ConsumerGroupPartitionMetadataKey{Group: group}
	return Record{Key: keyPayload(SchemaConsumerGroupPartitionMetadata, consumerGroupKeyVersion, k.Encode())}
}

// NewConsumerGroupMemberMetadataRecord upserts one member's metadata.
func NewConsumerGroupMemberMetadataRecord(group, memberID string, value *ConsumerGroupMemberMetadataValue) Record {
	k := &ConsumerGroupMemberMetadataKey{Group: group, MemberID: memberID}
	return Record{
		Key:   keyPayload(SchemaConsumerGroupMemberMetadata, consumerGroupKeyVersion, k.Encode()),
		Value: keyPayload(SchemaConsumerGroupMemberMetadata, consumerGroupValVersion, value.Encode()),
	}
}

// NewConsumerGroupMemberMetadataTombstone removes one member.
func NewConsumerGroupMemberMetadataTombstone(group, memberID string) Record {
	k := &ConsumerGroupMemberMetadataKey{Group: group, MemberID: memberID}
	return Record{Key: keyPayload(SchemaConsumerGroupMemberMetadata, consumerGroupKeyVersion, k.Encode())}
}

// NewConsumerGroupTargetAssignmentMetadataRecord upserts the assignment epoch.
func NewConsumerGroupTargetAssignmentMetadataRecord(group string, assignmentEpoch int32) Record {
	k := &ConsumerGroupTargetAssignmentMetadataKey{Group: group}
	v := &ConsumerGroupTargetAssignmentMetadataValue{AssignmentEpoch: assignmentEpoch}
	return Record{
		Key:   keyPayload(SchemaConsumerGroupTargetAssignmentMetadata, consumerGroupKeyVersion, k.Encode()),
		Value: keyPayload(SchemaConsumerGroupTargetAssignmentMetadata, consumerGroupValVersion, v.Encode()),
	}
}

// NewConsumerGroupTargetAssignmentMetadataTombstone deletes the assignment epoch.
func NewConsumerGroupTargetAssignmentMetadataTombstone(group string) Record {
	k := &ConsumerGroupTargetAssignmentMetadataKey{Group: group}
	return Record{Key: keyPayload(SchemaConsumerGroupTargetAssignmentMetadata, consumerGroupKeyVersion, k.Encode())}
}

// NewConsumerGroupTargetAssignmentMemberRecord upserts one member's target
// assignment.
func NewConsumerGroupTargetAssignmentMemberRecord(group, memberID string, value *ConsumerGroupTargetAssignmentMemberValue) Record {
	k := &ConsumerGroupTargetAssignmentMemberKey{Group: group, MemberID: memberID}
	return Record{
		Key:   keyPayload(SchemaConsumerGroupTargetAssignmentMember, consumerGroupKeyVersion, k.Encode()),
		Value: keyPayload(SchemaConsumerGroupTargetAssignmentMember, consumerGroupValVersion, value.Encode()),
	}
}

// NewConsumerGroupTargetAssignmentMemberTombstone deletes one member's target
// assignment.
func NewConsumerGroupTargetAssignmentMemberTombstone(group, memberID string) Record {
	k := &ConsumerGroupTargetAssignmentMemberKey{Group: group, MemberID: memberID}
	return Record{Key: keyPayload(SchemaConsumerGroupTargetAssignmentMember, consumerGroupKeyVersion, k.Encode())}
}

// NewConsumerGroupCurrentMemberAssignmentRecord upserts one member's current
// epoch and owned partitions.
func NewConsumerGroupCurrentMemberAssignmentRecord(group, memberID string, value *ConsumerGroupCurrentMemberAssignmentValue) Record {
	k := &ConsumerGroupCurrentMemberAssignmentKey{Group: group, MemberID: memberID}
	return Record{
		Key:   keyPayload(SchemaConsumerGroupCurrentMemberAssignment, consumerGroupKeyVersion, k.Encode()),
		Value: keyPayload(SchemaConsumerGroupCurrentMemberAssignment, consumerGroupValVersion, value.Encode()),
	}
}

// NewConsumerGroupCurrentMemberAssignmentTombstone clears one member's
// current assignment.
func NewConsumerGroupCurrentMemberAssignmentTombstone(group, memberID string) Record {
	k := &ConsumerGroupCurrentMemberAssignmentKey{Group: group, MemberID: memberID}
	return Record{Key: keyPayload(SchemaConsumerGroupCurrentMemberAssignment, consumerGroupKeyVersion, k.Encode())}
}
