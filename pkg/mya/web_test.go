package mya

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testQuery() SamplerQuery {
	q := NewSamplerQuery(time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC), "1s", 2, []string{"R1M1GMES", "R1Q1GMES"})
	return q
}

func TestMya_SamplerWeb_Fetch(t *testing.T) {
	t.Parallel()

	t.Run("parses channels in query order", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "R1M1GMES,R1Q1GMES", r.URL.Query().Get("c"))
			assert.Equal(t, "1000", r.URL.Query().Get("s"))
			// Response key order deliberately reversed from the query.
			_, _ = w.Write([]byte(`{"channels": {
				"R1Q1GMES": {"data": [
					{"d": "2023-05-01T00:00:00", "v": 6.25},
					{"d": "2023-05-01T00:00:01", "v": 6.5}
				]},
				"R1M1GMES": {"data": [
					{"d": "2023-05-01T00:00:00", "v": 5.5},
					{"d": "2023-05-01T00:00:01", "v": 5.6}
				]}
			}}`))
		}))
		defer server.Close()

		web := &SamplerWeb{URL: server.URL, Log: testLog()}
		table, err := web.Fetch(context.Background(), testQuery())
		require.NoError(t, err)

		assert.Equal(t, []string{"R1M1GMES", "R1Q1GMES"}, table.Channels)
		require.Equal(t, 2, table.NumRows())
		assert.Equal(t, time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC), table.Times[0])
		assert.Equal(t, []string{"5.5", "6.25"}, table.Values[0])
		assert.Equal(t, []string{"5.6", "6.5"}, table.Values[1])
	})

	t.Run("disconnect events become the undefined sentinel", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"channels": {
				"R1M1GMES": {"data": [{"d": "2023-05-01T00:00:00", "t": "NETWORK_DISCONNECTION"}]},
				"R1Q1GMES": {"data": [{"d": "2023-05-01T00:00:00", "v": 6.25}]}
			}}`))
		}))
		defer server.Close()

		web := &SamplerWeb{URL: server.URL, Log: testLog()}
		table, err := web.Fetch(context.Background(), testQuery())
		require.NoError(t, err)
		assert.Equal(t, []string{Undefined, "6.25"}, table.Values[0])
	})

	t.Run("error status is source unavailable", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusBadGateway)
		}))
		defer server.Close()

		web := &SamplerWeb{URL: server.URL, Log: testLog()}
		_, err := web.Fetch(context.Background(), testQuery())
		require.ErrorIs(t, err, ErrSourceUnavailable)
	})

	t.Run("unreachable server is source unavailable", func(t *testing.T) {
		t.Parallel()
		web := &SamplerWeb{URL: "http://127.0.0.1:1", Log: testLog()}
		_, err := web.Fetch(context.Background(), testQuery())
		require.ErrorIs(t, err, ErrSourceUnavailable)
	})

	t.Run("missing channel is malformed", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"channels": {
				"R1M1GMES": {"data": [{"d": "2023-05-01T00:00:00", "v": 5.5}]}
			}}`))
		}))
		defer server.Close()

		web := &SamplerWeb{URL: server.URL, Log: testLog()}
		_, err := web.Fetch(context.Background(), testQuery())
		require.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("undecodable body is malformed", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>not json</html>`))
		}))
		defer server.Close()

		web := &SamplerWeb{URL: server.URL, Log: testLog()}
		_, err := web.Fetch(context.Background(), testQuery())
		require.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("bad interval spec fails before any request", func(t *testing.T) {
		t.Parallel()
		web := &SamplerWeb{URL: "http://127.0.0.1:1", Log: testLog()}
		q := NewSamplerQuery(time.Now(), "1x", 1, []string{"R1M1GMES"})
		_, err := web.Fetch(context.Background(), q)
		require.ErrorIs(t, err, ErrUnsupportedIntervalUnit)
	})

	t.Run("string values pass through unquoted", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"channels": {
				"R1M1GMES": {"data": [{"d": "2023-05-01T00:00:00", "v": "On"}]},
				"R1Q1GMES": {"data": [{"d": "2023-05-01T00:00:00", "v": 1}]}
			}}`))
		}))
		defer server.Close()

		web := &SamplerWeb{URL: server.URL, Log: testLog()}
		table, err := web.Fetch(context.Background(), testQuery())
		require.NoError(t, err)
		assert.Equal(t, []string{"On", "1"}, table.Values[0])
	})
}
