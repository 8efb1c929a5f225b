package mya

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
)

// DefaultSamplerCmd is where the certified mySampler binary lives on the
// accelerator machines.
const DefaultSamplerCmd = "/usr/csite/certified/bin/mySampler"

// SamplerCLI fetches samples by running the external mySampler binary.
type SamplerCLI struct {
	// Cmd is the path to the mySampler binary. Defaults to DefaultSamplerCmd.
	Cmd string
	// Options are extra command line arguments appended before the PV list.
	Options []string

	Log *slog.Logger
}

func (s *SamplerCLI) cmd() string {
	if s.Cmd == "" {
		return DefaultSamplerCmd
	}
	return s.Cmd
}

// Fetch runs mySampler for one query and parses its output. mySampler can
// take minutes on large PV lists, so start and finish are logged.
func (s *SamplerCLI) Fetch(ctx context.Context, q SamplerQuery) (*Table, error) {
	args := []string{"-b", q.Start.Format(cliTimeLayout), "-s", q.Interval, "-n", strconv.Itoa(q.NumSamples)}
	if q.Deployment != "" {
		args = append(args, "-m", q.Deployment)
	}
	args = append(args, s.Options...)
	args = append(args, q.PVs...)

	s.Log.Info("mysampler: starting", "start", q.Start, "interval", q.Interval, "samples", q.NumSamples, "pvs", len(q.PVs))

	out, err := exec.CommandContext(ctx, s.cmd(), args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %s exited: %v: %s", ErrSourceUnavailable, s.cmd(), err, exitErr.Stderr)
		}
		return nil, fmt.Errorf("%w: running %s: %v", ErrSourceUnavailable, s.cmd(), err)
	}

	table, err := parseCLITable(out)
	if err != nil {
		return nil, err
	}

	s.Log.Info("mysampler: finished", "start", q.Start, "rows", table.NumRows())
	return table, nil
}
