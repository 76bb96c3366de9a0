package trial

import (
	"sort"

	"tetmeter/internal/tet"
)

// Summary aggregates the results of one entry method.
type Summary struct {
	Method    string
	Trials    int
	Undefined int

	// Means over the defined trials.
	MeanThroughput        float64
	MeanMutualInformation float64
	MeanRates             tet.Rates
}

// Summarize groups results by method. Summaries are ordered by method name;
// trials without a method are grouped under "".
func Summarize(results []Result) []Summary {
	byMethod := make(map[string]*Summary)
	for i := range results {
		r := &results[i]
		s, ok := byMethod[r.Trial.Method]
		if !ok {
			s = &Summary{Method: r.Trial.Method}
			byMethod[r.Trial.Method] = s
		}
		s.Trials++
		if !r.Defined() {
			s.Undefined++
			continue
		}
		m := r.Measurement
		s.MeanThroughput += m.Throughput
		s.MeanMutualInformation += m.MutualInformation
		s.MeanRates.Insertion += m.Rates.Insertion
		s.MeanRates.Omission += m.Rates.Omission
		s.MeanRates.Substitution += m.Rates.Substitution
		s.MeanRates.Correct += m.Rates.Correct
	}

	out := make([]Summary, 0, len(byMethod))
	for _, s := range byMethod {
		if n := float64(s.Trials - s.Undefined); n > 0 {
			s.MeanThroughput /= n
			s.MeanMutualInformation /= n
			s.MeanRates.Insertion /= n
			s.MeanRates.Omission /= n
			s.MeanRates.Substitution /= n
			s.MeanRates.Correct /= n
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out
}
