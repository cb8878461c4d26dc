// =============================================================================
// SCHEMA ROUTER - ONE TABLE FROM SCHEMA ID TO OWNER AND DECODERS
// =============================================================================
//
// WHAT: Given a record, decide which collaborator's Replay gets it, and
// validate/decode the record before dispatch.
//
// The mapping is table-driven: one row per schema id, naming the owning
// collaborator, the supported key/value version ranges, and the decoders.
// Adding a record kind means adding a row, nothing else.
//
// FAILURE MODES (both shard-fatal):
//   - absent key                     → InvariantViolationError (caller bug)
//   - unknown id / version too new   → UnsupportedSchemaError (this build
//     cannot reconstruct state faithfully, so the shard must stop serving)
//
// =============================================================================

package coordinator

import "fmt"

// routeOwner names the collaborator that owns replay of a record kind.
type routeOwner int

const (
	ownerGroup routeOwner = iota
	ownerOffset
)

type versionRange struct {
	min, max int16
}

func (r versionRange) contains(v int16) bool {
	return v >= r.min && v <= r.max
}

type schemaRoute struct {
	owner         routeOwner
	keyVersions   versionRange
	valueVersions versionRange
	decodeKey     func(version int16, data []byte) (Message, error)
	decodeValue   func(version int16, data []byte) (Message, error)
}

// schemaRoutes is the complete dispatch table. Schema ids partition the
// record-kind space disjointly; ids 0 and 1 are the two offset commit key
// generations and share one owner.
var schemaRoutes = map[SchemaID]schemaRoute{
	SchemaOffsetCommitV0: {
		owner:         ownerOffset,
		keyVersions:   versionRange{0, 0},
		valueVersions: versionRange{0, 1},
		decodeKey:     decodeOffsetCommitKey,
		decodeValue:   decodeOffsetCommitValue,
	},
	SchemaOffsetCommit: {
		owner:         ownerOffset,
		keyVersions:   versionRange{0, 1},
		valueVersions: versionRange{0, 1},
		decodeKey:     decodeOffsetCommitKey,
		decodeValue:   decodeOffsetCommitValue,
	},
	SchemaGroupMetadata: {
		owner:         ownerGroup,
		keyVersions:   versionRange{0, 0},
		valueVersions: versionRange{0, 4},
		decodeKey:     decodeGroupMetadataKey,
		decodeValue:   decodeGroupMetadataValue,
	},
	SchemaConsumerGroupMetadata: {
		owner:         ownerGroup,
		keyVersions:   versionRange{0, 0},
		valueVersions: versionRange{0, 0},
		decodeKey:     decodeConsumerGroupMetadataKey,
		decodeValue:   decodeConsumerGroupMetadataValue,
	},
	SchemaConsumerGroupPartitionMetadata: {
		owner:         ownerGroup,
		keyVersions:   versionRange{0, 0},
		valueVersions: versionRange{0, 0},
		decodeKey:     decodeConsumerGroupPartitionMetadataKey,
		decodeValue:   decodeConsumerGroupPartitionMetadataValue,
	},
	SchemaConsumerGroupMemberMetadata: {
		owner:         ownerGroup,
		keyVersions:   versionRange{0, 0},
		valueVersions: versionRange{0, 0},
		decodeKey:     decodeConsumerGroupMemberMetadataKey,
		decodeValue:   decodeConsumerGroupMemberMetadataValue,
	},
	SchemaConsumerGroupTargetAssignmentMetadata: {
		owner:         ownerGroup,
		keyVersions:   versionRange{0, 0},
		valueVersions: versionRange{0, 0},
		decodeKey:     decodeConsumerGroupTargetAssignmentMetadataKey,
		decodeValue:   decodeConsumerGroupTargetAssignmentMetadataValue,
	},
	SchemaConsumerGroupTargetAssignmentMember: {
		owner:         ownerGroup,
		keyVersions:   versionRange{0, 0},
		valueVersions: versionRange{0, 0},
		decodeKey:     decodeConsumerGroupTargetAssignmentMemberKey,
		decodeValue:   decodeConsumerGroupTargetAssignmentMemberValue,
	},
	SchemaConsumerGroupCurrentMemberAssignment: {
		owner:         ownerGroup,
		keyVersions:   versionRange{0, 0},
		valueVersions: versionRange{0, 0},
		decodeKey:     decodeConsumerGroupCurrentMemberAssignmentKey,
		decodeValue:   decodeConsumerGroupCurrentMemberAssignmentValue,
	},
}

// route validates rec against the table, decodes key and value, and returns
// the owning collaborator. A nil record value stays nil through dispatch:
// tombstones are never substituted with a default.
func route(rec Record) (routeOwner, Message, Message, error) {
	if rec.Key == nil {
		return 0, nil, nil, &InvariantViolationError{Reason: "record key must be present"}
	}

	r, ok := schemaRoutes[rec.Key.Schema]
	if !ok {
		return 0, nil, nil, &UnsupportedSchemaError{Schema: rec.Key.Schema, Version: rec.Key.Version}
	}
	if !r.keyVersions.contains(rec.Key.Version) {
		return 0, nil, nil, &UnsupportedSchemaError{Schema: rec.Key.Schema, Version: rec.Key.Version}
	}

	key, err := r.decodeKey(rec.Key.Version, rec.Key.Data)
	if err != nil {
		return 0, nil, nil, &InvariantViolationError{
			Reason: fmt.Sprintf("malformed key for schema %d v%d: %v", rec.Key.Schema, rec.Key.Version, err),
		}
	}

	var value Message
	if rec.Value != nil {
		if !r.valueVersions.contains(rec.Value.Version) {
			return 0, nil, nil, &UnsupportedSchemaError{Schema: rec.Key.Schema, Version: rec.Value.Version}
		}
		value, err = r.decodeValue(rec.Value.Version, rec.Value.Data)
		if err != nil {
			return 0, nil, nil, &InvariantViolationError{
				Reason: fmt.Sprintf("malformed value for schema %d v%d: %v", rec.Key.Schema, rec.Value.Version, err),
			}
		}
	}

	return r.owner, key, value, nil
}
