// =============================================================================
// ERROR TAXONOMY - WHAT IS FATAL AND WHAT IS PER-ENTITY
// =============================================================================
//
// Three tiers, matching how the caller must react:
//
//   1. InvariantViolationError - a caller or substrate bug (absent key,
//      corrupt frame). Fatal to the call and to the shard.
//   2. UnsupportedSchemaError - the log contains a record this build cannot
//      interpret. Fatal to the shard: it must stop serving rather than
//      continue with a state it cannot reconstruct faithfully.
//   3. Entity-level business errors - one group in a batch failed validation.
//      Recoverable: surfaced as a numeric code in that entity's result slot,
//      never as an error from the pipeline call itself.
//
// =============================================================================

package coordinator

import (
	"errors"
	"fmt"
)

// InvariantViolationError signals a broken contract between the shard and
// its caller or log substrate. Not a user-facing error.
type InvariantViolationError struct {
	Reason string
}

func (e *InvariantViolationError) Error() string {
	return "invariant violation: " + e.Reason
}

// UnsupportedSchemaError signals a record whose schema id or version is
// outside the range this build understands.
type UnsupportedSchemaError struct {
	Schema  SchemaID
	Version int16
}

func (e *UnsupportedSchemaError) Error() string {
	return fmt.Sprintf("unsupported record schema: id=%d version=%d", e.Schema, e.Version)
}

// IsFatal reports whether err requires the shard to stop serving. The caller
// must fence the shard and reload it; retrying in place is not safe.
func IsFatal(err error) bool {
	var inv *InvariantViolationError
	var sch *UnsupportedSchemaError
	return errors.As(err, &inv) || errors.As(err, &sch)
}

// =============================================================================
// ENTITY-LEVEL ERRORS
// =============================================================================

var (
	// ErrInvalidGroupID means the group identifier itself is malformed.
	ErrInvalidGroupID = errors.New("invalid group id")

	// ErrGroupNotFound means no such group exists on this shard.
	ErrGroupNotFound = errors.New("group id not found")

	// ErrNonEmptyGroup means the group still has live members.
	ErrNonEmptyGroup = errors.New("non-empty group")

	// ErrUnknownMember means the member id is not part of the group.
	ErrUnknownMember = errors.New("unknown member id")

	// ErrIllegalGeneration means a classic-protocol request carried a
	// generation that does not match the group's current one.
	ErrIllegalGeneration = errors.New("illegal generation")

	// ErrStaleMemberEpoch means the request carried an out-of-date epoch.
	ErrStaleMemberEpoch = errors.New("stale member epoch")

	// ErrOffsetOutOfRange means a committed offset is negative.
	ErrOffsetOutOfRange = errors.New("offset out of range")
)

// ErrorCode is the wire-level numeric code for an entity-level outcome.
// The values follow the Kafka protocol error table so clients built against
// it interpret responses correctly.
type ErrorCode int16

const (
	CodeUnknownServerError ErrorCode = -1
	CodeNone               ErrorCode = 0
	CodeOffsetOutOfRange   ErrorCode = 1
	CodeIllegalGeneration  ErrorCode = 22
	CodeInvalidGroupID     ErrorCode = 24
	CodeUnknownMemberID    ErrorCode = 25
	CodeNonEmptyGroup      ErrorCode = 68
	CodeGroupIDNotFound    ErrorCode = 69
	CodeStaleMemberEpoch   ErrorCode = 113
)

// CodeFor maps an entity-level error to its wire code. A nil error is
// CodeNone; an error the table does not know is CodeUnknownServerError so
// collaborator-thrown domain errors still land in the entity's result slot
// instead of aborting the batch.
func CodeFor(err error) ErrorCode {
	switch {
	case err == nil:
		return CodeNone
	case errors.Is(err, ErrOffsetOutOfRange):
		return CodeOffsetOutOfRange
	case errors.Is(err, ErrInvalidGroupID):
		return CodeInvalidGroupID
	case errors.Is(err, ErrGroupNotFound):
		return CodeGroupIDNotFound
	case errors.Is(err, ErrNonEmptyGroup):
		return CodeNonEmptyGroup
	case errors.Is(err, ErrUnknownMember):
		return CodeUnknownMemberID
	case errors.Is(err, ErrIllegalGeneration):
		return CodeIllegalGeneration
	case errors.Is(err, ErrStaleMemberEpoch):
		return CodeStaleMemberEpoch
	default:
		return CodeUnknownServerError
	}
}
