package schema

import (
	"fmt"
	"time"
)

// Deadlines are optional everywhere. The canonical absence value is a nil
// *time.Time; a wire-side null or missing field both normalize to nil, and
// present values round-trip through RFC 3339 without losing wall-clock
// precision.

// DeadlineToWire formats an optional deadline for an insert/update payload.
func DeadlineToWire(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

// DeadlineFromWire parses an optional wire deadline back into a time.
func DeadlineFromWire(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, fmt.Errorf("parse deadline %q: %w", *s, err)
	}
	return &t, nil
}
