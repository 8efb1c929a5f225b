package trips

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Interval is a half-open [Start, End) period during which a channel was in
// its down state. Touching endpoints are treated as not overlapping.
type Interval struct {
	Channel string
	Start   time.Time
	End     time.Time
}

// Duration returns the length of the interval.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps reports whether two left-closed/right-open intervals share any
// instant.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Diagnostic records a non-fatal anomaly found while scanning a channel's
// state sequence. The scan continues past it with tracking reset.
type Diagnostic struct {
	Channel string
	Time    time.Time
	Value   float64
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s at %s (value %v): %s", d.Channel, d.Time.Format(time.DateTime), d.Value, d.Message)
}

// DownStateIntervals scans one channel's time-ordered samples and returns
// the fully-closed intervals during which the channel was down, plus any
// diagnostics raised along the way.
//
// A NaN sample means the archiver lost the channel: any in-progress
// interval is abandoned. While no interval is open, any value other than
// onState starts one; values that equal neither state are deliberately
// treated as down. Two down transitions without an intervening up (or vice
// versa) discard the pending interval with a diagnostic. A trailing open
// interval at the end of input is dropped.
func DownStateIntervals(times []time.Time, values []float64, onState, offState float64) ([]Interval, []Diagnostic) {
	var intervals []Interval
	var diags []Diagnostic

	var start, end *time.Time
	for i := range times {
		v := values[i]
		switch {
		case math.IsNaN(v):
			start, end = nil, nil
		case start == nil && end == nil:
			if v != onState {
				t := times[i]
				start = &t
			}
		case v == offState:
			if start == nil {
				t := times[i]
				start = &t
				end = nil
			} else {
				diags = append(diags, Diagnostic{
					Time: times[i], Value: v,
					Message: "found down transition with previous start still pending",
				})
				start, end = nil, nil
			}
		case v == onState:
			if end == nil {
				intervals = append(intervals, Interval{Start: *start, End: times[i]})
				start, end = nil, nil
			} else {
				diags = append(diags, Diagnostic{
					Time: times[i], Value: v,
					Message: "found up transition with previous end still pending",
				})
				start, end = nil, nil
			}
		}
	}

	return intervals, diags
}

// RemoveRepeats sorts the rows chronologically, breaking timestamp ties by
// original row order, then drops every row whose value equals the previous
// row's value. The first row of each run survives. NaN never equals NaN, so
// runs of NaN are kept.
func RemoveRepeats(times []time.Time, values []float64) ([]time.Time, []float64) {
	idx := make([]int, len(times))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return times[idx[a]].Before(times[idx[b]])
	})

	outTimes := make([]time.Time, 0, len(times))
	outValues := make([]float64, 0, len(values))
	for n, i := range idx {
		if n > 0 && values[i] == values[idx[n-1]] {
			continue
		}
		outTimes = append(outTimes, times[i])
		outValues = append(outValues, values[i])
	}

	return outTimes, outValues
}

// AggConfig names the aggregation applied to each auxiliary column when
// overlapping intervals collapse into one. Start and end always aggregate
// as min and max respectively.
type AggConfig struct {
	// Channel merges the contributing channels' names. When nil the
	// collapsed interval carries no channel.
	Channel func(channels []string) string
}

// Collapse merges overlapping intervals into a minimal non-overlapping
// set. Rows are sorted by start; a new group begins whenever a start
// exceeds the running maximum of all previously seen ends. Each output
// interval spans [min start, max end] of its group, so every input
// interval is fully covered by exactly one output interval. Touching
// intervals (start equal to a prior end) join the group.
func Collapse(intervals []Interval, agg AggConfig) []Interval {
	if len(intervals) == 0 {
		return nil
	}

	sorted := append([]Interval(nil), intervals...)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Start.Before(sorted[b].Start)
	})

	var out []Interval
	flush := func(group []Interval) {
		merged := Interval{Start: group[0].Start, End: group[0].End}
		channels := make([]string, 0, len(group))
		for _, iv := range group {
			if iv.End.After(merged.End) {
				merged.End = iv.End
			}
			channels = append(channels, iv.Channel)
		}
		if agg.Channel != nil {
			merged.Channel = agg.Channel(channels)
		}
		out = append(out, merged)
	}

	group := []Interval{sorted[0]}
	maxEnd := sorted[0].End
	for _, iv := range sorted[1:] {
		if iv.Start.After(maxEnd) {
			flush(group)
			group = nil
		}
		group = append(group, iv)
		if iv.End.After(maxEnd) {
			maxEnd = iv.End
		}
	}
	flush(group)

	return out
}

// OverlapAny reports, for each interval in a, whether it overlaps at least
// one interval in b. Both inputs must already be sorted ascending by start;
// the scan advances a single forward cursor over b and never backtracks, so
// unsorted input can under-report. First match wins per a-interval.
// Amortized O(len(a)+len(b)).
func OverlapAny(a, b []Interval) []bool {
	overlaps := make([]bool, len(a))

	startJ := 0
	for i := range a {
		for j := startJ; j < len(b); j++ {
			if a[i].Overlaps(b[j]) {
				overlaps[i] = true
				startJ = j
				break
			}
			// Everything past j starts even further right.
			if b[j].Start.After(a[i].End) {
				break
			}
		}
	}

	return overlaps
}
