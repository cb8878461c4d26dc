// =============================================================================
// COMMAND RESULTS AND PER-ENTITY AGGREGATION
// =============================================================================

package coordinator

// Result pairs the records a command must append to the log with the
// response the client receives once the append succeeds. Record order is
// significant: it is the sequence of mutations the command performs, and the
// log substrate appends the whole slice as one contiguous batch.
type Result[T any] struct {
	Records  []Record
	Response T
}

// NewResult builds a Result. A nil records slice means the command mutates
// nothing.
func NewResult[T any](records []Record, response T) *Result[T] {
	return &Result[T]{Records: records, Response: response}
}

// ApplyPerEntity runs step once per entity, independently. Records produced
// by a step land in out only when the step succeeds; a failed entity
// contributes zero records and its error is returned in that entity's slot.
// One entity failing never aborts or rolls back its siblings - this is the
// best-effort batch fold used by every batch command.
func ApplyPerEntity[E any](entities []E, out *[]Record, step func(entity E, records *[]Record) error) []error {
	errs := make([]error, len(entities))
	for i, entity := range entities {
		var scratch []Record
		if err := step(entity, &scratch); err != nil {
			errs[i] = err
			continue
		}
		*out = append(*out, scratch...)
	}
	return errs
}
