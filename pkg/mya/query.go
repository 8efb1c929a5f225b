package mya

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	cliTimeLayout = "2006-01-02 15:04:05"
	webTimeLayout = "2006-01-02T15:04:05"

	millisPerSecond = 1_000
	millisPerMinute = 60_000
	millisPerHour   = 3_600_000
	millisPerDay    = 86_400_000
	millisPerWeek   = 604_800_000
)

var intervalPattern = regexp.MustCompile(`^(\d+)(\D)$`)

// SamplerQuery holds the arguments for one mySampler invocation: evenly
// spaced samples starting at a point in time. Queries are immutable once
// constructed; batches are built by offsetting the start of a base query.
type SamplerQuery struct {
	Start      time.Time
	Interval   string // e.g. "1s", "5m"
	NumSamples int
	PVs        []string
	Deployment string
}

// NewSamplerQuery builds a SamplerQuery. The start time is truncated to
// whole seconds, matching what the mySampler CLI accepts.
func NewSamplerQuery(start time.Time, interval string, numSamples int, pvs []string) SamplerQuery {
	return SamplerQuery{
		Start:      start.Truncate(time.Second),
		Interval:   strings.TrimSpace(interval),
		NumSamples: numSamples,
		PVs:        pvs,
	}
}

// IntervalMillis parses the query's interval spec into milliseconds between
// samples, as required by the myquery web API. Recognized unit suffixes are
// s, m, h, d, and w.
func (q SamplerQuery) IntervalMillis() (int64, error) {
	m := intervalPattern.FindStringSubmatch(q.Interval)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedIntervalUnit, q.Interval)
	}

	// The CLI does not support fractional multipliers, so neither do we.
	multiplier, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedIntervalUnit, q.Interval)
	}

	var millis int64
	switch m[2] {
	case "s":
		millis = millisPerSecond
	case "m":
		millis = millisPerMinute
	case "h":
		millis = millisPerHour
	case "d":
		millis = millisPerDay
	case "w":
		millis = millisPerWeek
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedIntervalUnit, q.Interval)
	}

	return millis * multiplier, nil
}

// WebParams converts the query's command line arguments to their myquery
// web API counterparts.
func (q SamplerQuery) WebParams() (url.Values, error) {
	millis, err := q.IntervalMillis()
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("c", strings.Join(q.PVs, ","))
	params.Set("b", q.Start.Format(webTimeLayout))
	params.Set("n", strconv.Itoa(q.NumSamples))
	params.Set("s", strconv.FormatInt(millis, 10))
	if q.Deployment != "" {
		params.Set("m", q.Deployment)
	}

	return params, nil
}

// DataQuery holds the arguments for one myData invocation: every archived
// update for the PVs within [Begin, End].
type DataQuery struct {
	Begin time.Time
	End   time.Time
	PVs   []string
}

// GenerateSamplerQueries builds numQueries sampler queries, each one
// starting queryInterval after the previous.
func GenerateSamplerQueries(begin time.Time, interval string, numSamples int, queryInterval time.Duration, numQueries int, pvs []string) []SamplerQuery {
	queries := make([]SamplerQuery, 0, numQueries)
	for i := 0; i < numQueries; i++ {
		q := NewSamplerQuery(begin.Add(time.Duration(i)*queryInterval), interval, numSamples, pvs)
		queries = append(queries, q)
	}
	return queries
}

// GenerateDataQueries builds numQueries data queries of the given duration,
// each one beginning queryInterval after the previous.
func GenerateDataQueries(begin time.Time, duration, queryInterval time.Duration, numQueries int, pvs []string) []DataQuery {
	queries := make([]DataQuery, 0, numQueries)
	for i := 0; i < numQueries; i++ {
		start := begin.Add(time.Duration(i) * queryInterval)
		queries = append(queries, DataQuery{Begin: start, End: start.Add(duration), PVs: pvs})
	}
	return queries
}
