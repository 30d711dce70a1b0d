package process

import (
	"sort"
	"strings"
)

// Statistics is the get_statistics result shape.
type Statistics struct {
	Total          int
	ByStatus       map[string]int
	ByType         map[string]int
	AvgDurationMs  float64
	TotalDurationMs int64
}

// GetStatistics aggregates over every process matching f.
func (t *Tracker) GetStatistics(f Filters) (Statistics, error) {
	procs, err := t.Query(Filters{ProcessType: f.ProcessType, Kernel: f.Kernel, Status: f.Status, StartAfter: f.StartAfter, StartBefore: f.StartBefore, Limit: 10000})
	if err != nil {
		return Statistics{}, err
	}
	stats := Statistics{ByStatus: map[string]int{}, ByType: map[string]int{}}
	var totalDuration int64
	var withDuration int
	for _, p := range procs {
		stats.Total++
		stats.ByStatus[p.Status]++
		stats.ByType[p.Type]++
		if p.TemporalRegion.DurationMs != nil {
			totalDuration += *p.TemporalRegion.DurationMs
			withDuration++
		}
	}
	stats.TotalDurationMs = totalDuration
	if withDuration > 0 {
		stats.AvgDurationMs = float64(totalDuration) / float64(withDuration)
	}
	return stats, nil
}

// GetProvenanceChain returns processes whose participants.outputInstance
// equals instanceUrn, ascending by start time.
func (t *Tracker) GetProvenanceChain(instanceUrn string) ([]Process, error) {
	procs, err := t.loadAll("")
	if err != nil {
		return nil, err
	}
	var chain []Process
	for _, p := range procs {
		if out, ok := p.Participants["outputInstance"]; ok {
			if s, ok := out.(string); ok && s == instanceUrn {
				chain = append(chain, p)
			}
		}
	}
	sort.Slice(chain, func(i, j int) bool {
		return chain[i].TemporalRegion.Start < chain[j].TemporalRegion.Start
	})
	return chain, nil
}

// CollaborationPattern counts how often two participant URNs
// co-occur within the same process.
type CollaborationPattern struct {
	A     string
	B     string
	Count int
}

// GetCollaborationPatterns counts pairwise co-occurrence of every
// ckp:// participant URN across all processes, sorted descending.
func (t *Tracker) GetCollaborationPatterns() ([]CollaborationPattern, error) {
	procs, err := t.loadAll("")
	if err != nil {
		return nil, err
	}
	counts := map[[2]string]int{}
	for _, p := range procs {
		var urns []string
		for _, v := range p.Participants {
			if s, ok := v.(string); ok && strings.HasPrefix(s, "ckp://") {
				urns = append(urns, s)
			}
		}
		sort.Strings(urns)
		for i := 0; i < len(urns); i++ {
			for j := i + 1; j < len(urns); j++ {
				if urns[i] == urns[j] {
					continue
				}
				counts[[2]string{urns[i], urns[j]}]++
			}
		}
	}
	var patterns []CollaborationPattern
	for pair, c := range counts {
		patterns = append(patterns, CollaborationPattern{A: pair[0], B: pair[1], Count: c})
	}
	sort.Slice(patterns, func(i, j int) bool { return patterns[i].Count > patterns[j].Count })
	return patterns, nil
}

// DurationStatistics is one get_duration_statistics row, per process type.
type DurationStatistics struct {
	Type    string
	Count   int
	AvgMs   float64
	MinMs   int64
	MaxMs   int64
}

// GetDurationStatistics aggregates duration_ms over completed
// processes, grouped by type.
func (t *Tracker) GetDurationStatistics() ([]DurationStatistics, error) {
	procs, err := t.loadAll("")
	if err != nil {
		return nil, err
	}
	type acc struct {
		count    int
		sum      int64
		min, max int64
	}
	byType := map[string]*acc{}
	for _, p := range procs {
		if p.Status != StatusCompleted || p.TemporalRegion.DurationMs == nil {
			continue
		}
		a, ok := byType[p.Type]
		if !ok {
			a = &acc{min: *p.TemporalRegion.DurationMs, max: *p.TemporalRegion.DurationMs}
			byType[p.Type] = a
		}
		d := *p.TemporalRegion.DurationMs
		a.count++
		a.sum += d
		if d < a.min {
			a.min = d
		}
		if d > a.max {
			a.max = d
		}
	}
	var out []DurationStatistics
	for typ, a := range byType {
		out = append(out, DurationStatistics{
			Type:  typ,
			Count: a.count,
			AvgMs: float64(a.sum) / float64(a.count),
			MinMs: a.min,
			MaxMs: a.max,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

// KernelActivity is one get_most_active_kernels row.
type KernelActivity struct {
	Urn   string
	Count int
}

// GetMostActiveKernels returns the most frequent ckp:// participant
// URNs across every process, limited to limit entries.
func (t *Tracker) GetMostActiveKernels(limit int) ([]KernelActivity, error) {
	procs, err := t.loadAll("")
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, p := range procs {
		for _, v := range p.Participants {
			if s, ok := v.(string); ok && strings.HasPrefix(s, "ckp://") {
				counts[s]++
			}
		}
	}
	var activity []KernelActivity
	for urn, c := range counts {
		activity = append(activity, KernelActivity{Urn: urn, Count: c})
	}
	sort.Slice(activity, func(i, j int) bool { return activity[i].Count > activity[j].Count })
	if limit > 0 && len(activity) > limit {
		activity = activity[:limit]
	}
	return activity, nil
}

// FailureAnalysis is one get_failure_analysis row, per process type.
type FailureAnalysis struct {
	Type        string
	Failures    int
	Total       int
	FailureRate float64
}

// GetFailureAnalysis computes, per process type, the fraction of
// records whose status is "failed".
func (t *Tracker) GetFailureAnalysis() ([]FailureAnalysis, error) {
	procs, err := t.loadAll("")
	if err != nil {
		return nil, err
	}
	type acc struct{ failures, total int }
	byType := map[string]*acc{}
	for _, p := range procs {
		a, ok := byType[p.Type]
		if !ok {
			a = &acc{}
			byType[p.Type] = a
		}
		a.total++
		if p.Status == StatusFailed {
			a.failures++
		}
	}
	var out []FailureAnalysis
	for typ, a := range byType {
		rate := 0.0
		if a.total > 0 {
			rate = float64(a.failures) / float64(a.total)
		}
		out = append(out, FailureAnalysis{Type: typ, Failures: a.failures, Total: a.total, FailureRate: rate})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}
