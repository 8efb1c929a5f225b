package trips

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JeffersonLab/mya-getter/pkg/mya"
)

// ArchiveSource fetches every archived update for a set of PVs within a
// time range. *mya.DataCLI satisfies this.
type ArchiveSource interface {
	Fetch(ctx context.Context, q mya.DataQuery) (*mya.Table, error)
}

// Config configures a down-state interval extraction run.
type Config struct {
	Logger *slog.Logger
	Source ArchiveSource

	// OnState and OffState are the sentinel values that classify a sample
	// as up or down. They must differ. Values equal to neither are treated
	// as down when no interval is open.
	OnState  float64
	OffState float64

	// MaxDuration drops individual PV intervals longer than this before
	// collapsing; long outages are not trips. Zero keeps everything.
	MaxDuration time.Duration

	// Agg controls how auxiliary columns combine when intervals collapse.
	Agg AggConfig
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Source == nil {
		return errors.New("archive source is required")
	}
	if cfg.OnState == cfg.OffState {
		return errors.New("on state and off state must differ")
	}
	return nil
}

// CombinedDownStateIntervals queries each PV over [begin, end], extracts
// its down-state intervals, drops those longer than MaxDuration, and
// collapses overlapping intervals across PVs into one non-overlapping trip
// table. Diagnostics from all channels are returned alongside the result.
func CombinedDownStateIntervals(ctx context.Context, cfg Config, pvs []string, begin, end time.Time) ([]Interval, []Diagnostic, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	var all []Interval
	var diags []Diagnostic
	for _, pv := range pvs {
		table, err := cfg.Source.Fetch(ctx, mya.DataQuery{Begin: begin, End: end, PVs: []string{pv}})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to fetch %s: %w", pv, err)
		}

		col := table.ColumnIndex(pv)
		if col < 0 {
			return nil, nil, fmt.Errorf("%w: channel %q missing from result", mya.ErrMalformedResponse, pv)
		}

		intervals, pvDiags := DownStateIntervals(table.Times, table.Numeric(col), cfg.OnState, cfg.OffState)
		for i := range intervals {
			intervals[i].Channel = pv
		}
		for i := range pvDiags {
			pvDiags[i].Channel = pv
			cfg.Logger.Warn("trips: inconsistent state sequence", "channel", pv, "time", pvDiags[i].Time, "value", pvDiags[i].Value)
		}
		diags = append(diags, pvDiags...)

		kept := filterByDuration(intervals, cfg.MaxDuration)
		cfg.Logger.Debug("trips: extracted intervals", "channel", pv, "found", len(intervals), "kept", len(kept))
		all = append(all, kept...)
	}

	return Collapse(all, cfg.Agg), diags, nil
}

// filterByDuration keeps intervals no longer than max. Zero max keeps all.
func filterByDuration(intervals []Interval, max time.Duration) []Interval {
	if max <= 0 {
		return intervals
	}
	var out []Interval
	for _, iv := range intervals {
		if iv.Duration() <= max {
			out = append(out, iv)
		}
	}
	return out
}

// CauseAttributed returns the effect intervals that overlap at least one
// cause interval, e.g. the beam trips attributable to RF trips. Both inputs
// must be sorted ascending by start.
func CauseAttributed(effects, causes []Interval) []Interval {
	overlapped := OverlapAny(effects, causes)

	var out []Interval
	for i, iv := range effects {
		if overlapped[i] {
			out = append(out, iv)
		}
	}
	return out
}

// SamplerQueriesForTrips builds one mySampler query per trip interval,
// sampling the given PVs once per second for the trip's whole span.
func SamplerQueriesForTrips(intervals []Interval, pvs []string) []mya.SamplerQuery {
	queries := make([]mya.SamplerQuery, 0, len(intervals))
	for _, iv := range intervals {
		numSamples := int(iv.Duration().Seconds()) + 1
		queries = append(queries, mya.NewSamplerQuery(iv.Start, "1s", numSamples, pvs))
	}
	return queries
}
