package mya

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"
)

// Undefined is the sentinel the archiver tools emit when they lost track of
// a channel. It is preserved verbatim in Table values; Numeric coerces it
// to NaN.
const Undefined = "<undefined>"

// Table is the common tabular result all fetchers normalize to: a timestamp
// column plus one raw string column per requested channel, rows in time
// order. Values keep whatever token the archiver returned, including the
// Undefined sentinel.
type Table struct {
	Channels []string
	Times    []time.Time
	Values   [][]string // row-major, len(Values[i]) == len(Channels)
}

// NumRows returns the number of rows in the table.
func (t *Table) NumRows() int {
	return len(t.Times)
}

// ColumnIndex returns the position of the named channel, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Channels {
		if c == name {
			return i
		}
	}
	return -1
}

// Numeric coerces one channel's column to float64. Anything that does not
// parse as a number, including the Undefined sentinel, becomes NaN.
func (t *Table) Numeric(col int) []float64 {
	out := make([]float64, len(t.Values))
	for i, row := range t.Values {
		v, err := strconv.ParseFloat(row[col], 64)
		if err != nil {
			v = math.NaN()
		}
		out[i] = v
	}
	return out
}

// Batch is the combined result of a parallel query run: the concatenation
// of each query's table in query order, with a column mapping every row
// back to its originating query's position in the input list.
type Batch struct {
	Table
	QueryIndex []int
}

// concatTables stitches per-query tables into one Batch. All tables must
// carry the same channel set in the same order.
func concatTables(tables []*Table) (*Batch, error) {
	if len(tables) == 0 {
		return &Batch{}, nil
	}

	batch := &Batch{Table: Table{Channels: tables[0].Channels}}
	for i, t := range tables {
		if len(t.Channels) != len(batch.Channels) {
			return nil, fmt.Errorf("%w: query %d returned %d channels, expected %d",
				ErrMalformedResponse, i, len(t.Channels), len(batch.Channels))
		}
		for j, c := range t.Channels {
			if c != batch.Channels[j] {
				return nil, fmt.Errorf("%w: query %d channel %d is %q, expected %q",
					ErrMalformedResponse, i, j, c, batch.Channels[j])
			}
		}
		batch.Times = append(batch.Times, t.Times...)
		batch.Values = append(batch.Values, t.Values...)
		for range t.Times {
			batch.QueryIndex = append(batch.QueryIndex, i)
		}
	}

	return batch, nil
}

// WriteCSV writes the batch as CSV with a leading query-index column.
func (b *Batch) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := append([]string{"query", "Date"}, b.Channels...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	record := make([]string, 0, len(header))
	for i := range b.Times {
		record = record[:0]
		record = append(record, strconv.Itoa(b.QueryIndex[i]), b.Times[i].Format(cliTimeLayout))
		record = append(record, b.Values[i]...)
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
