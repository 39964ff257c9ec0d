package trace

import (
	"bytes"
	"sync"
	"testing"
)

func TestCanonicalTraceStability_ByteForByte(t *testing.T) {
	trace1 := ExecutionTrace{
		GraphHash: "graph-abc",
		Events: []TraceEvent{
			{Kind: EventJobFailed, JobID: "publish-package"},
			{Kind: EventJobSucceeded, JobID: "determine-tag"},
			{Kind: EventJobSkipped, JobID: "announce", Reason: "upstream-failed", CauseJobID: "publish-package"},
		},
	}

	trace2 := ExecutionTrace{
		GraphHash: "graph-abc",
		Events: []TraceEvent{
			{Kind: EventJobSkipped, JobID: "announce", CauseJobID: "publish-package", Reason: "upstream-failed"},
			{Kind: EventJobSucceeded, JobID: "determine-tag"},
			{Kind: EventJobFailed, JobID: "publish-package"},
		},
	}

	b1, err := trace1.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical json (1): %v", err)
	}
	b2, err := trace2.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical json (2): %v", err)
	}

	if !bytes.Equal(b1, b2) {
		t.Fatalf("expected identical bytes\n1=%s\n2=%s", string(b1), string(b2))
	}
}

func TestCanonicalOrdering_SortsByJobID(t *testing.T) {
	tr := ExecutionTrace{
		GraphHash: "graph-abc",
		Events: []TraceEvent{
			{Kind: EventJobSucceeded, JobID: "b"},
			{Kind: EventJobSucceeded, JobID: "a"},
		},
	}
	b, err := tr.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical json: %v", err)
	}
	expected := `{"graphHash":"graph-abc","events":[{"kind":"JobSucceeded","jobId":"a"},{"kind":"JobSucceeded","jobId":"b"}]}`
	if string(b) != expected {
		t.Fatalf("unexpected canonical bytes\nexpected=%s\nactual  =%s", expected, string(b))
	}
}

func TestCanonicalJSON_DoesNotMutateCaller(t *testing.T) {
	tr := ExecutionTrace{
		GraphHash: "g",
		Events: []TraceEvent{
			{Kind: EventJobSucceeded, JobID: "b"},
			{Kind: EventJobSucceeded, JobID: "a"},
		},
	}
	if _, err := tr.CanonicalJSON(); err != nil {
		t.Fatalf("canonical json: %v", err)
	}
	if tr.Events[0].JobID != "b" {
		t.Fatalf("expected caller's events untouched, got %v", tr.Events)
	}
}

func TestSkippedEvent_IncludesReasonAndCause(t *testing.T) {
	tr := ExecutionTrace{
		GraphHash: "g",
		Events: []TraceEvent{
			{Kind: EventJobSkipped, JobID: "announce", Reason: "guard"},
		},
	}
	b, err := tr.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical json: %v", err)
	}
	expected := `{"graphHash":"g","events":[{"kind":"JobSkipped","jobId":"announce","reason":"guard"}]}`
	if string(b) != expected {
		t.Fatalf("unexpected canonical bytes\nexpected=%s\nactual  =%s", expected, string(b))
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]ExecutionTrace{
		"missing graph hash": {Events: []TraceEvent{{Kind: EventJobSucceeded, JobID: "a"}}},
		"missing kind":       {GraphHash: "g", Events: []TraceEvent{{JobID: "a"}}},
		"missing job id":     {GraphHash: "g", Events: []TraceEvent{{Kind: EventJobFailed}}},
		"reason on success":  {GraphHash: "g", Events: []TraceEvent{{Kind: EventJobSucceeded, JobID: "a", Reason: "guard"}}},
	}
	for name, tr := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := tr.CanonicalJSON(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestHash_Deterministic(t *testing.T) {
	tr1 := ExecutionTrace{GraphHash: "g", Events: []TraceEvent{{Kind: EventJobSucceeded, JobID: "a"}}}
	tr2 := ExecutionTrace{GraphHash: "g", Events: []TraceEvent{{Kind: EventJobSucceeded, JobID: "a"}}}

	h1, err := tr1.Hash()
	if err != nil {
		t.Fatalf("hash (1): %v", err)
	}
	h2, err := tr2.Hash()
	if err != nil {
		t.Fatalf("hash (2): %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected identical hash, got %q != %q", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("expected sha256 hex, got %q", h1)
	}
}

func TestHash_IgnoresInsertionOrder_WhenSemanticallyEquivalent(t *testing.T) {
	tr1 := ExecutionTrace{
		GraphHash: "g",
		Events: []TraceEvent{
			{Kind: EventJobSkipped, JobID: "b", Reason: "guard"},
			{Kind: EventJobSucceeded, JobID: "a"},
		},
	}
	tr2 := ExecutionTrace{
		GraphHash: "g",
		Events: []TraceEvent{
			{Kind: EventJobSucceeded, JobID: "a"},
			{Kind: EventJobSkipped, JobID: "b", Reason: "guard"},
		},
	}

	h1, err := tr1.Hash()
	if err != nil {
		t.Fatalf("hash (1): %v", err)
	}
	h2, err := tr2.Hash()
	if err != nil {
		t.Fatalf("hash (2): %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected equal hash for semantically equivalent traces, got %q != %q", h1, h2)
	}
}

func TestHash_DiffersWhenOutcomeDiffers(t *testing.T) {
	ok := ExecutionTrace{GraphHash: "g", Events: []TraceEvent{{Kind: EventJobSucceeded, JobID: "a"}}}
	failed := ExecutionTrace{GraphHash: "g", Events: []TraceEvent{{Kind: EventJobFailed, JobID: "a"}}}

	h1, _ := ok.Hash()
	h2, _ := failed.Hash()
	if h1 == h2 {
		t.Fatalf("expected different hashes, both %q", h1)
	}
}

type panickingSink struct{}

func (panickingSink) Record(TraceEvent) { panic("boom") }

func TestSafeRecord_SwallowsPanics(t *testing.T) {
	SafeRecord(panickingSink{}, TraceEvent{Kind: EventJobSucceeded, JobID: "a"})
	SafeRecord(nil, TraceEvent{Kind: EventJobSucceeded, JobID: "a"})
}

func TestRecorder_ConcurrentRecordAndTrace(t *testing.T) {
	r := NewRecorder("g")
	var wg sync.WaitGroup
	for _, id := range []string{"d", "c", "b", "a"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			r.Record(TraceEvent{Kind: EventJobSucceeded, JobID: id})
		}(id)
	}
	wg.Wait()

	tr := r.Trace()
	if tr.GraphHash != "g" {
		t.Fatalf("graph hash %q", tr.GraphHash)
	}
	if len(tr.Events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(tr.Events))
	}
	for i, want := range []string{"a", "b", "c", "d"} {
		if tr.Events[i].JobID != want {
			t.Fatalf("events[%d] = %q, want %q", i, tr.Events[i].JobID, want)
		}
	}
}

type collectingSink struct{ events []TraceEvent }

func (c *collectingSink) Record(e TraceEvent) { c.events = append(c.events, e) }

func TestRecorder_OneTerminalEventPerJob(t *testing.T) {
	fwd := &collectingSink{}
	r := NewRecorder("g", fwd, panickingSink{})

	r.Record(TraceEvent{Kind: EventJobFailed, JobID: "publish-package"})
	r.Record(TraceEvent{Kind: EventJobSucceeded, JobID: "publish-package"})
	r.Record(TraceEvent{Kind: EventJobSkipped, JobID: "announce", Reason: "upstream-failed", CauseJobID: "publish-package"})
	r.Record(TraceEvent{Kind: EventJobSucceeded})
	r.Record(TraceEvent{JobID: "determine-tag"})

	if got := r.Dropped(); got != 3 {
		t.Fatalf("dropped %d, want 3", got)
	}
	tr := r.Trace()
	if len(tr.Events) != 2 {
		t.Fatalf("expected 2 events, got %v", tr.Events)
	}
	if tr.Events[1].JobID != "publish-package" || tr.Events[1].Kind != EventJobFailed {
		t.Fatalf("first terminal event must win, got %+v", tr.Events[1])
	}
	if len(fwd.events) != 2 {
		t.Fatalf("only accepted events are forwarded, got %v", fwd.events)
	}
	if _, err := tr.CanonicalJSON(); err != nil {
		t.Fatalf("canonical json: %v", err)
	}
}

func TestRecorder_TraceIsACopy(t *testing.T) {
	r := NewRecorder("g")
	r.Record(TraceEvent{Kind: EventJobSucceeded, JobID: "a"})
	tr := r.Trace()
	tr.Events[0].JobID = "mutated"
	if got := r.Trace().Events[0].JobID; got != "a" {
		t.Fatalf("recorder state changed through a trace: %q", got)
	}
}
