package mya

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
)

// DefaultDataCmd is where the certified myData binary lives on the
// accelerator machines.
const DefaultDataCmd = "/usr/csite/certified/bin/myData"

// DataCLI fetches every archived update in a time range by running the
// external myData binary.
type DataCLI struct {
	// Cmd is the path to the myData binary. Defaults to DefaultDataCmd.
	Cmd string
	// Options are extra command line arguments appended before the PV list.
	Options []string

	Log *slog.Logger
}

func (d *DataCLI) cmd() string {
	if d.Cmd == "" {
		return DefaultDataCmd
	}
	return d.Cmd
}

// Fetch runs myData for one query and parses its output.
func (d *DataCLI) Fetch(ctx context.Context, q DataQuery) (*Table, error) {
	args := []string{"-b", q.Begin.Format(cliTimeLayout), "-e", q.End.Format(cliTimeLayout)}
	args = append(args, d.Options...)
	args = append(args, q.PVs...)

	d.Log.Info("mydata: starting", "begin", q.Begin, "end", q.End, "pvs", len(q.PVs))

	out, err := exec.CommandContext(ctx, d.cmd(), args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %s exited: %v: %s", ErrSourceUnavailable, d.cmd(), err, exitErr.Stderr)
		}
		return nil, fmt.Errorf("%w: running %s: %v", ErrSourceUnavailable, d.cmd(), err)
	}

	table, err := parseCLITable(out)
	if err != nil {
		return nil, err
	}

	d.Log.Info("mydata: finished", "begin", q.Begin, "rows", table.NumRows())
	return table, nil
}
