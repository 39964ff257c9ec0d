package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ExecutionTrace is the canonical record of one release run's job graph.
//
// It captures logical transitions only (which jobs succeeded, failed or were
// skipped and why), never timestamps or error strings, so two runs that made
// the same decisions produce byte-identical traces regardless of timing.
//
// GraphHash is a string to avoid coupling this package to the graph implementation.
// Events are put into canonical order by Canonicalize; CanonicalJSON fixes the
// field order and omits absent optional fields.
type ExecutionTrace struct {
	GraphHash string
	Events    []TraceEvent
}

// TraceEventKind is the stable discriminator for TraceEvent.
// The string values are part of the trace's canonical bytes; do not rename.
type TraceEventKind string

const (
	EventJobSucceeded TraceEventKind = "JobSucceeded"
	EventJobFailed    TraceEventKind = "JobFailed"
	EventJobSkipped   TraceEventKind = "JobSkipped"
)

// TraceEvent is a single terminal job transition.
type TraceEvent struct {
	Kind TraceEventKind

	// JobID identifies the job this event refers to. Required.
	JobID string

	// Reason is a stable reason code for skips (e.g. "guard", "upstream-failed").
	Reason string

	// CauseJobID records the upstream job whose failure or skip caused this one.
	CauseJobID string
}

// Validate checks basic invariants and returns a descriptive error.
func (t *ExecutionTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.GraphHash == "" {
		return errors.New("graphHash is required")
	}
	for i := range t.Events {
		e := t.Events[i]
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		if e.JobID == "" {
			return fmt.Errorf("events[%d].jobId is required for kind %q", i, e.Kind)
		}
		if e.Kind != EventJobSkipped && (e.Reason != "" || e.CauseJobID != "") {
			return fmt.Errorf("events[%d]: reason and cause are only valid on %q", i, EventJobSkipped)
		}
	}
	return nil
}

// Canonicalize sorts the trace into its canonical form: a total order by
// (jobId, kind order, reason, causeJobId), independent of execution timing.
func (t *ExecutionTrace) Canonicalize() {
	if t == nil {
		return
	}
	sort.SliceStable(t.Events, func(i, j int) bool {
		a := t.Events[i]
		b := t.Events[j]

		if a.JobID != b.JobID {
			return a.JobID < b.JobID
		}
		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		if a.Reason != b.Reason {
			return a.Reason < b.Reason
		}
		return a.CauseJobID < b.CauseJobID
	})
}

func kindOrder(k TraceEventKind) int {
	switch k {
	case EventJobSucceeded:
		return 10
	case EventJobFailed:
		return 20
	case EventJobSkipped:
		return 30
	default:
		return 1000
	}
}

// CanonicalJSON returns the canonical JSON encoding of the trace.
// It canonicalizes a copy of the trace to avoid mutating the caller's slices.
func (t ExecutionTrace) CanonicalJSON() ([]byte, error) {
	copyTrace := ExecutionTrace{GraphHash: t.GraphHash}
	copyTrace.Events = make([]TraceEvent, len(t.Events))
	copy(copyTrace.Events, t.Events)
	copyTrace.Canonicalize()
	if err := copyTrace.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(&copyTrace)
}

// Hash returns the deterministic trace hash (sha256 hex) of the canonical JSON bytes.
func (t ExecutionTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return ComputeTraceHash(b), nil
}

// MarshalJSON ensures canonical field ordering and omission rules.
func (t ExecutionTrace) MarshalJSON() ([]byte, error) {
	// Canonicalization is the responsibility of CanonicalJSON(), but MarshalJSON should still be stable.
	// We do not sort here to avoid surprising mutation; field ordering is deterministic regardless.
	if t.GraphHash == "" {
		return nil, errors.New("graphHash is required")
	}
	var buf bytes.Buffer
	buf.WriteByte('{')

	// graphHash
	buf.WriteString("\"graphHash\":")
	gh, _ := json.Marshal(t.GraphHash)
	buf.Write(gh)
	buf.WriteByte(',')

	// events
	buf.WriteString("\"events\":[")
	for i := range t.Events {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := json.Marshal(t.Events[i])
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteByte(']')

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON ensures canonical field ordering and omission of empty optional fields.
func (e TraceEvent) MarshalJSON() ([]byte, error) {
	if e.Kind == "" {
		return nil, errors.New("kind is required")
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	writeField := func(name, value string, first bool) {
		if !first {
			buf.WriteByte(',')
		}
		buf.WriteString(`"` + name + `":`)
		b, _ := json.Marshal(value)
		buf.Write(b)
	}

	writeField("kind", string(e.Kind), true)
	if e.JobID != "" {
		writeField("jobId", e.JobID, false)
	}
	if e.Reason != "" {
		writeField("reason", e.Reason, false)
	}
	if e.CauseJobID != "" {
		writeField("causeJobId", e.CauseJobID, false)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
