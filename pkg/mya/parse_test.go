package mya

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMya_ParseCLITable(t *testing.T) {
	t.Parallel()

	t.Run("parses header and rows", func(t *testing.T) {
		t.Parallel()
		out := []byte(`Date       R1M1GMES  R1Q1GMES
2023-05-01 00:00:00   5.5       6.25
2023-05-01 00:00:01   5.6       <undefined>
`)
		table, err := parseCLITable(out)
		require.NoError(t, err)
		assert.Equal(t, []string{"R1M1GMES", "R1Q1GMES"}, table.Channels)
		require.Equal(t, 2, table.NumRows())
		assert.Equal(t, time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC), table.Times[0])
		assert.Equal(t, []string{"5.5", "6.25"}, table.Values[0])
		assert.Equal(t, Undefined, table.Values[1][1])
	})

	t.Run("parses fractional seconds", func(t *testing.T) {
		t.Parallel()
		out := []byte("Date P1\n2023-05-01 00:00:00.528742 1\n")
		table, err := parseCLITable(out)
		require.NoError(t, err)
		assert.Equal(t, 528742000, table.Times[0].Nanosecond())
	})

	t.Run("rejects row with wrong column count", func(t *testing.T) {
		t.Parallel()
		out := []byte("Date P1 P2\n2023-05-01 00:00:00 1\n")
		_, err := parseCLITable(out)
		require.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("rejects unparseable timestamp", func(t *testing.T) {
		t.Parallel()
		out := []byte("Date P1\nyesterday midnight 1\n")
		_, err := parseCLITable(out)
		require.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("rejects missing header", func(t *testing.T) {
		t.Parallel()
		_, err := parseCLITable([]byte("2023-05-01 00:00:00 1\n"))
		require.ErrorIs(t, err, ErrMalformedResponse)

		_, err = parseCLITable([]byte("\n\n"))
		require.ErrorIs(t, err, ErrMalformedResponse)
	})
}

func TestMya_Table_Numeric(t *testing.T) {
	t.Parallel()

	table := &Table{
		Channels: []string{"P1"},
		Times:    []time.Time{{}, {}, {}},
		Values:   [][]string{{"1.5"}, {Undefined}, {"oops"}},
	}

	got := table.Numeric(0)
	require.Len(t, got, 3)
	assert.Equal(t, 1.5, got[0])
	assert.True(t, math.IsNaN(got[1]))
	assert.True(t, math.IsNaN(got[2]))
}
