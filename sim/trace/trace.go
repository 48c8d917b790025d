package trace

// TraceLevel controls the verbosity of push tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelPushes captures every drained push.
	TraceLevelPushes TraceLevel = "pushes"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:   true,
	TraceLevelPushes: true,
	"":               true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level      TraceLevel
	MaxRecords int // 0 = unbounded; further records are counted but dropped
}

// SimulationTrace collects push records during a run.
// It is written by the coordinator only.
type SimulationTrace struct {
	Config  TraceConfig
	Pushes  []PushRecord
	Dropped int
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config: config,
		Pushes: make([]PushRecord, 0),
	}
}

// Enabled reports whether records are collected at all.
func (st *SimulationTrace) Enabled() bool {
	return st != nil && st.Config.Level == TraceLevelPushes
}

// RecordPush appends a push record, or counts it as dropped once
// MaxRecords is reached.
func (st *SimulationTrace) RecordPush(record PushRecord) {
	if st.Config.MaxRecords > 0 && len(st.Pushes) >= st.Config.MaxRecords {
		st.Dropped++
		return
	}
	st.Pushes = append(st.Pushes, record)
}
