package trace

import "testing"

func TestSimulationTrace_RecordPush_AppendsRecord(t *testing.T) {
	// GIVEN a trace configured for pushes
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelPushes})

	// WHEN a push record is added
	st.RecordPush(PushRecord{Step: 1, Clock: 0, Label: "grow", Target: "current", DueTick: 1, Origin: 3, Resolved: true})

	// THEN it is stored in order
	if len(st.Pushes) != 1 {
		t.Fatalf("expected 1 push record, got %d", len(st.Pushes))
	}
	if st.Pushes[0].Label != "grow" || st.Pushes[0].Origin != 3 {
		t.Errorf("unexpected record %+v", st.Pushes[0])
	}
}

func TestSimulationTrace_MaxRecords_CountsDropped(t *testing.T) {
	// GIVEN a trace capped at 2 records
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelPushes, MaxRecords: 2})

	// WHEN 5 records are added
	for i := 0; i < 5; i++ {
		st.RecordPush(PushRecord{Step: i, Label: "p"})
	}

	// THEN only the first 2 are kept and the rest are counted
	if len(st.Pushes) != 2 {
		t.Errorf("expected 2 records kept, got %d", len(st.Pushes))
	}
	if st.Dropped != 3 {
		t.Errorf("expected 3 dropped, got %d", st.Dropped)
	}
	if st.Pushes[1].Step != 1 {
		t.Errorf("expected the earliest records kept, got step %d", st.Pushes[1].Step)
	}
}

func TestSimulationTrace_Enabled(t *testing.T) {
	var nilTrace *SimulationTrace
	if nilTrace.Enabled() {
		t.Error("nil trace must be disabled")
	}
	if NewSimulationTrace(TraceConfig{Level: TraceLevelNone}).Enabled() {
		t.Error("level none must be disabled")
	}
	if !NewSimulationTrace(TraceConfig{Level: TraceLevelPushes}).Enabled() {
		t.Error("level pushes must be enabled")
	}
}

func TestIsValidTraceLevel(t *testing.T) {
	for _, level := range []string{"", "none", "pushes"} {
		if !IsValidTraceLevel(level) {
			t.Errorf("IsValidTraceLevel(%q) = false, want true", level)
		}
	}
	if IsValidTraceLevel("decisions") {
		t.Error(`IsValidTraceLevel("decisions") = true, want false`)
	}
}
