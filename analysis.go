package tekdaq

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// WaveformSummary holds the scalar statistics of one trace, in volts.
type WaveformSummary struct {
	Min      float64
	Max      float64
	PkToPk   float64
	Mean     float64
	StdDev   float64
	Baseline float64
}

// Summarize computes the summary statistics of one trace. pretriggerFrac
// is the fraction of the record ahead of the trigger; those samples form
// the baseline estimate. With a fraction of 0 the baseline is the mean of
// the whole record.
func Summarize(volts []float64, pretriggerFrac float64) WaveformSummary {
	var s WaveformSummary
	if len(volts) == 0 {
		return s
	}
	s.Min = floats.Min(volts)
	s.Max = floats.Max(volts)
	s.PkToPk = s.Max - s.Min
	s.Mean = stat.Mean(volts, nil)
	if len(volts) > 1 {
		s.StdDev = stat.StdDev(volts, nil)
	}
	s.Baseline = s.Mean
	if npre := int(pretriggerFrac * float64(len(volts))); npre > 0 && npre <= len(volts) {
		s.Baseline = stat.Mean(volts[:npre], nil)
	}
	return s
}
