package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalPushes        int            `json:"total_pushes"`
	Unresolved         int            `json:"unresolved"`
	Dropped            int            `json:"dropped"`
	UniqueLabels       int            `json:"unique_labels"`
	LabelDistribution  map[string]int `json:"label_distribution"`
	TargetDistribution map[string]int `json:"target_distribution"`
	MeanLead           float64        `json:"mean_lead_ticks"` // mean of DueTick - Clock
	MaxLead            int64          `json:"max_lead_ticks"`
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		LabelDistribution:  make(map[string]int),
		TargetDistribution: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalPushes = len(st.Pushes)
	summary.Dropped = st.Dropped
	if len(st.Pushes) > 0 {
		var totalLead int64
		for _, p := range st.Pushes {
			summary.LabelDistribution[p.Label]++
			summary.TargetDistribution[p.Target]++
			if !p.Resolved {
				summary.Unresolved++
			}
			lead := p.DueTick - p.Clock
			totalLead += lead
			if lead > summary.MaxLead {
				summary.MaxLead = lead
			}
		}
		summary.MeanLead = float64(totalLead) / float64(len(st.Pushes))
	}

	summary.UniqueLabels = len(summary.LabelDistribution)

	return summary
}
