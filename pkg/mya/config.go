package mya

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// QuerySet is the result of loading a query config file. Exactly one of the
// two slices is populated, matching the file's subcommand.
type QuerySet struct {
	Sampler []SamplerQuery
	Data    []DataQuery
}

type queryFile struct {
	Subcommand string `json:"subcommand"`
	Queries    []struct {
		PVList  []string          `json:"pvlist"`
		Periods []json.RawMessage `json:"periods"`
	} `json:"queries"`
}

type samplerPeriod struct {
	Start      string `json:"start"`
	Interval   string `json:"interval"`
	NumSamples int    `json:"num_samples"`
	Deployment string `json:"deployment"`
}

type dataPeriod struct {
	Begin string `json:"begin"`
	End   string `json:"end"`
}

// LoadQueryFile reads a JSON query config. Lines whose first non-blank
// character is '#' are treated as comments and stripped before parsing.
func LoadQueryFile(path string) (*QuerySet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read query config: %w", err)
	}

	var kept []string
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		kept = append(kept, line)
	}

	var file queryFile
	if err := json.Unmarshal([]byte(strings.Join(kept, "\n")), &file); err != nil {
		return nil, fmt.Errorf("failed to parse query config %s: %w", path, err)
	}

	set := &QuerySet{}
	for _, query := range file.Queries {
		for _, period := range query.Periods {
			switch file.Subcommand {
			case "mySampler":
				var p samplerPeriod
				if err := json.Unmarshal(period, &p); err != nil {
					return nil, fmt.Errorf("failed to parse mySampler period: %w", err)
				}
				start, err := time.Parse(cliTimeLayout, p.Start)
				if err != nil {
					return nil, fmt.Errorf("failed to parse period start %q: %w", p.Start, err)
				}
				q := NewSamplerQuery(start, p.Interval, p.NumSamples, query.PVList)
				q.Deployment = p.Deployment
				set.Sampler = append(set.Sampler, q)
			case "myData":
				var p dataPeriod
				if err := json.Unmarshal(period, &p); err != nil {
					return nil, fmt.Errorf("failed to parse myData period: %w", err)
				}
				begin, err := time.Parse(cliTimeLayout, p.Begin)
				if err != nil {
					return nil, fmt.Errorf("failed to parse period begin %q: %w", p.Begin, err)
				}
				end, err := time.Parse(cliTimeLayout, p.End)
				if err != nil {
					return nil, fmt.Errorf("failed to parse period end %q: %w", p.End, err)
				}
				set.Data = append(set.Data, DataQuery{Begin: begin, End: end, PVs: query.PVList})
			default:
				return nil, fmt.Errorf("unrecognized subcommand %q, valid subcommands are mySampler and myData", file.Subcommand)
			}
		}
	}

	return set, nil
}
