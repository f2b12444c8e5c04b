package tailz

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// TraceID is the fixed-width identifier shared by every span of one trace.
type TraceID [16]byte

// SpanID identifies a single span within its trace.
type SpanID [8]byte

// NewTraceID returns a random trace identifier.
func NewTraceID() TraceID {
	return TraceID(uuid.New())
}

// NewSpanID returns a random span identifier.
func NewSpanID() SpanID {
	var id SpanID
	if _, err := rand.Read(id[:]); err != nil {
		// Fall back to a uuid-derived value; never return the empty id.
		u := uuid.New()
		copy(id[:], u[8:])
	}
	if id.IsEmpty() {
		id[7] = 1
	}
	return id
}

// String returns the lowercase hex form of the id.
func (t TraceID) String() string {
	return hex.EncodeToString(t[:])
}

// IsEmpty reports whether every byte of the id is zero.
func (t TraceID) IsEmpty() bool {
	return t == TraceID{}
}

// String returns the lowercase hex form of the id.
func (s SpanID) String() string {
	return hex.EncodeToString(s[:])
}

// IsEmpty reports whether every byte of the id is zero.
func (s SpanID) IsEmpty() bool {
	return s == SpanID{}
}

