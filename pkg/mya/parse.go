package mya

import (
	"fmt"
	"strings"
	"time"
)

// Both CLI tools emit fractional seconds when the archive has them.
const cliRowTimeLayout = "2006-01-02 15:04:05.999999999"

// parseCLITable parses the whitespace-delimited output shared by the
// mySampler and myData CLIs: a header row naming the Date column and one
// column per PV, then one row per timestamp where the date and time occupy
// two fields.
func parseCLITable(output []byte) (*Table, error) {
	lines := strings.Split(string(output), "\n")

	var header []string
	table := &Table{}
	for lineno, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		if header == nil {
			if fields[0] != "Date" || len(fields) < 2 {
				return nil, fmt.Errorf("%w: unexpected header row %q", ErrMalformedResponse, line)
			}
			header = fields
			table.Channels = fields[1:]
			continue
		}

		if len(fields) != len(table.Channels)+2 {
			return nil, fmt.Errorf("%w: line %d has %d fields, expected %d",
				ErrMalformedResponse, lineno+1, len(fields), len(table.Channels)+2)
		}

		ts, err := time.Parse(cliRowTimeLayout, fields[0]+" "+fields[1])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: unparseable timestamp %q %q",
				ErrMalformedResponse, lineno+1, fields[0], fields[1])
		}

		table.Times = append(table.Times, ts)
		table.Values = append(table.Values, fields[2:])
	}

	if header == nil {
		return nil, fmt.Errorf("%w: empty output", ErrMalformedResponse)
	}

	return table, nil
}
