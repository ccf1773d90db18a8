package httputil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequest(t *testing.T, ctx context.Context, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	return req
}

func TestStandardClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Timestamp_ms,Lat,Lon,Speed,Lap\n"))
	}))
	defer srv.Close()

	c := NewStandardClient(nil)
	assert.Equal(t, DefaultTimeout, c.Timeout)

	resp, err := c.Do(newRequest(t, context.Background(), srv.URL+"/files/data_1.csv"))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Timestamp_ms,Lat,Lon,Speed,Lap\n", string(body))
}

func TestMockHTTPClient_Routes(t *testing.T) {
	m := NewMockHTTPClient().
		Handle("/", http.StatusOK, "index").
		HandleError("/files/broken.csv", errors.New("connection reset"))

	resp, err := m.Do(newRequest(t, context.Background(), "http://logger/"))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "index", string(body))

	resp, err = m.Do(newRequest(t, context.Background(), "http://logger/files/missing.csv"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, err = m.Do(newRequest(t, context.Background(), "http://logger/files/broken.csv"))
	assert.EqualError(t, err, "connection reset")

	assert.Equal(t, []string{"/", "/files/missing.csv", "/files/broken.csv"}, m.Paths())
}

func TestMockHTTPClient_DefaultError(t *testing.T) {
	m := NewMockHTTPClient().Handle("/", http.StatusOK, "index")
	m.DefaultError = errors.New("no route to host")

	_, err := m.Do(newRequest(t, context.Background(), "http://logger/"))
	assert.EqualError(t, err, "no route to host")
	assert.Len(t, m.Requests, 1)
}

func TestMockHTTPClient_CancelledContext(t *testing.T) {
	m := NewMockHTTPClient().Handle("/", http.StatusOK, "index")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Do(newRequest(t, ctx, "http://logger/"))
	assert.ErrorIs(t, err, context.Canceled)
}
