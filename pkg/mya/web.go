package mya

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultMyQueryURL is the public myquery mysampler endpoint.
const DefaultMyQueryURL = "https://epicsweb.jlab.org/myquery/mysampler"

// SamplerWeb fetches samples from the myquery web service instead of the
// mySampler CLI. Results are normalized into the same Table shape,
// including the Undefined sentinel the CLI would have emitted for channel
// disconnect events.
type SamplerWeb struct {
	// URL is the base mysampler endpoint. Defaults to DefaultMyQueryURL.
	URL string
	// Options are extra HTTP parameters. Query-derived parameters take
	// precedence on conflict.
	Options url.Values
	// Client defaults to http.DefaultClient.
	Client *http.Client

	Log *slog.Logger
}

type webSample struct {
	Date  string          `json:"d"`
	Value json.RawMessage `json:"v"`
	// Disconnect event type. Present only when the archiver lost the channel.
	Type json.RawMessage `json:"t"`
}

type webChannel struct {
	Data []webSample `json:"data"`
}

type webResponse struct {
	Channels map[string]webChannel `json:"channels"`
}

func (s *SamplerWeb) url() string {
	if s.URL == "" {
		return DefaultMyQueryURL
	}
	return s.URL
}

// Fetch issues one myquery request and parses the JSON response. Column
// order follows the query's PV order regardless of response key order.
func (s *SamplerWeb) Fetch(ctx context.Context, q SamplerQuery) (*Table, error) {
	params, err := q.WebParams()
	if err != nil {
		return nil, err
	}
	for key, vals := range s.Options {
		if params.Get(key) == "" && len(vals) > 0 {
			params.Set(key, vals[0])
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url()+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrSourceUnavailable, err)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	s.Log.Info("mysampler-web: starting", "start", q.Start, "samples", q.NumSamples, "pvs", len(q.PVs))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: contacting %s: %v", ErrSourceUnavailable, s.url(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrSourceUnavailable, s.url(), resp.StatusCode)
	}

	var body webResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrMalformedResponse, err)
	}

	table, err := tableFromWebResponse(&body, q.PVs)
	if err != nil {
		return nil, err
	}

	s.Log.Info("mysampler-web: finished", "start", q.Start, "rows", table.NumRows())
	return table, nil
}

func tableFromWebResponse(body *webResponse, pvs []string) (*Table, error) {
	table := &Table{Channels: pvs}

	columns := make([][]string, len(pvs))
	for i, pv := range pvs {
		channel, ok := body.Channels[pv]
		if !ok {
			return nil, fmt.Errorf("%w: channel %q missing from response", ErrMalformedResponse, pv)
		}

		// All channels share one timestamp series; take it from the first.
		if i == 0 {
			for _, sample := range channel.Data {
				ts, err := time.Parse(webTimeLayout+".999999999", sample.Date)
				if err != nil {
					return nil, fmt.Errorf("%w: unparseable timestamp %q", ErrMalformedResponse, sample.Date)
				}
				table.Times = append(table.Times, ts)
			}
		} else if len(channel.Data) != len(table.Times) {
			return nil, fmt.Errorf("%w: channel %q has %d samples, expected %d",
				ErrMalformedResponse, pv, len(channel.Data), len(table.Times))
		}

		columns[i] = make([]string, 0, len(channel.Data))
		for _, sample := range channel.Data {
			columns[i] = append(columns[i], webValueToken(sample))
		}
	}

	for row := range table.Times {
		values := make([]string, len(pvs))
		for col := range pvs {
			values[col] = columns[col][row]
		}
		table.Values = append(table.Values, values)
	}

	return table, nil
}

// webValueToken renders one web sample the way the mySampler CLI would
// have printed it. Disconnect events become the Undefined sentinel rather
// than being dropped, so both fetchers look identical downstream.
func webValueToken(sample webSample) string {
	if sample.Type != nil {
		return Undefined
	}

	var str string
	if err := json.Unmarshal(sample.Value, &str); err == nil {
		return str
	}
	var num float64
	if err := json.Unmarshal(sample.Value, &num); err == nil {
		return strconv.FormatFloat(num, 'g', -1, 64)
	}
	return string(sample.Value)
}
