package device

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartbox/telemetry/internal/fsutil"
	"github.com/kartbox/telemetry/internal/httputil"
)

const indexPage = `<!DOCTYPE html><html><head><title>Kart logger</title></head><body>
<h1>Files</h1><ul>
<li><a href="/files/data_1.csv">data_1.csv</a> (2048 bytes)</li>
<li><a href="/files/laps_1.csv">laps_1.csv</a> (120 bytes)</li>
<li><a href="/files/DATA_2.CSV">DATA_2.CSV</a></li>
<li><a href="/files/boot.LOG">boot.LOG</a></li>
<li><a href="/files/data_1.csv">again</a></li>
<li><a href="/files/../secret">bad</a></li>
<li><a href="/settings">settings</a></li>
<li><a>no href</a></li>
</ul></body></html>`

func TestList(t *testing.T) {
	m := httputil.NewMockHTTPClient().Handle("/", http.StatusOK, indexPage)
	c := NewClient("http://logger.local/", m)

	got, err := c.List(context.Background())
	require.NoError(t, err)

	want := []File{
		{Name: "DATA_2.CSV", URL: "http://logger.local/files/DATA_2.CSV"},
		{Name: "boot.LOG", URL: "http://logger.local/files/boot.LOG"},
		{Name: "data_1.csv", URL: "http://logger.local/files/data_1.csv"},
		{Name: "laps_1.csv", URL: "http://logger.local/files/laps_1.csv"},
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("List() mismatch (-got +want):\n%s", diff)
	}
}

func TestList_Errors(t *testing.T) {
	t.Run("unreachable", func(t *testing.T) {
		m := httputil.NewMockHTTPClient()
		m.DefaultError = errors.New("no route to host")
		_, err := NewClient("", m).List(context.Background())
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, []string{"/"}, m.Paths())
	})
	t.Run("server error", func(t *testing.T) {
		m := httputil.NewMockHTTPClient().Handle("/", http.StatusInternalServerError, "oops")
		_, err := NewClient("", m).List(context.Background())
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("", nil)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.NotNil(t, c.http)
}

func TestDownload(t *testing.T) {
	m := httputil.NewMockHTTPClient().Handle("/files/data_1.csv", http.StatusOK, "Timestamp_ms,Lat,Lon,Speed,Lap\n1,2,3,4,1\n")
	mem := fsutil.NewMemoryFileSystem()
	dst := filepath.Join("logs", "data_1.csv")

	n, err := NewClient("", m).Download(context.Background(), "data_1.csv", mem, dst)
	require.NoError(t, err)
	assert.EqualValues(t, 41, n)

	data, err := mem.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "Timestamp_ms,Lat,Lon,Speed,Lap\n1,2,3,4,1\n", string(data))
	assert.False(t, mem.Exists(dst+".part"))
}

func TestDownload_Errors(t *testing.T) {
	m := httputil.NewMockHTTPClient().
		Handle("/files/busy.csv", http.StatusServiceUnavailable, "busy")
	c := NewClient("", m)
	mem := fsutil.NewMemoryFileSystem()

	tests := []struct {
		name string
		file string
		want error
	}{
		{"missing", "data_9.csv", ErrNotFound},
		{"busy", "busy.csv", ErrUnavailable},
		{"traversal", "../etc/passwd", ErrBadName},
		{"empty", "", ErrBadName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Download(context.Background(), tt.file, mem, filepath.Join("logs", "out.csv"))
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, mem.Files("."))
}

func TestIsSessionFile(t *testing.T) {
	tests := map[string]bool{
		"data_1.csv":  true,
		"laps_12.csv": true,
		"DATA_3.CSV":  true,
		"boot.LOG":    false,
		"data_1.txt":  false,
		"notes.csv":   false,
	}
	for name, want := range tests {
		assert.Equal(t, want, IsSessionFile(name), name)
	}
}

func TestSync(t *testing.T) {
	m := httputil.NewMockHTTPClient().
		Handle("/", http.StatusOK, indexPage).
		Handle("/files/data_1.csv", http.StatusOK, "new data").
		Handle("/files/laps_1.csv", http.StatusOK, "laps")
	mem := fsutil.NewMemoryFileSystem()
	require.NoError(t, mem.WriteFile(filepath.Join("logs", "data_1.csv"), []byte("old data"), 0644))

	res, err := NewClient("", m).Sync(context.Background(), mem, "logs", false)

	// DATA_2.CSV is listed but the device no longer has it.
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"laps_1.csv"}, res.Downloaded)
	assert.Equal(t, []string{"data_1.csv"}, res.Skipped)
	assert.EqualValues(t, 4, res.Bytes)

	data, err := mem.ReadFile(filepath.Join("logs", "data_1.csv"))
	require.NoError(t, err)
	assert.Equal(t, "old data", string(data))
	for _, p := range m.Paths() {
		assert.NotEqual(t, "/files/boot.LOG", p)
	}
}

func TestSync_Overwrite(t *testing.T) {
	m := httputil.NewMockHTTPClient().
		Handle("/", http.StatusOK, `<a href="/files/data_1.csv">data_1.csv</a>`).
		Handle("/files/data_1.csv", http.StatusOK, "new data")
	mem := fsutil.NewMemoryFileSystem()
	require.NoError(t, mem.WriteFile(filepath.Join("logs", "data_1.csv"), []byte("old data"), 0644))

	res, err := NewClient("", m).Sync(context.Background(), mem, "logs", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"data_1.csv"}, res.Downloaded)
	assert.Empty(t, res.Skipped)

	data, err := mem.ReadFile(filepath.Join("logs", "data_1.csv"))
	require.NoError(t, err)
	assert.Equal(t, "new data", string(data))
}

func TestSync_HTTPServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<html><body><a href="/files/data_7.csv">data_7.csv</a><a href="/files/laps_7.csv">laps_7.csv</a></body></html>`))
		case "/files/data_7.csv", "/files/laps_7.csv":
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write([]byte(strings.Repeat("x", 4096)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	res, err := NewClient(srv.URL, nil).Sync(context.Background(), fsutil.OSFileSystem{}, dir, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"data_7.csv", "laps_7.csv"}, res.Downloaded)
	assert.EqualValues(t, 8192, res.Bytes)
	assert.True(t, fsutil.OSFileSystem{}.Exists(filepath.Join(dir, "laps_7.csv")))
}

func TestSync_LowercasesNames(t *testing.T) {
	m := httputil.NewMockHTTPClient().
		Handle("/", http.StatusOK, `<a href="/files/DATA_4.CSV">DATA_4.CSV</a>`).
		Handle("/files/DATA_4.CSV", http.StatusOK, "samples")
	mem := fsutil.NewMemoryFileSystem()

	res, err := NewClient("", m).Sync(context.Background(), mem, "logs", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"DATA_4.CSV"}, res.Downloaded)
	assert.Equal(t, []string{filepath.Join("logs", "data_4.csv")}, mem.Files("logs"))
}

func TestSync_Cancelled(t *testing.T) {
	m := httputil.NewMockHTTPClient().Handle("/", http.StatusOK, indexPage)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient("", m).Sync(ctx, fsutil.NewMemoryFileSystem(), "logs", false)
	assert.ErrorIs(t, err, context.Canceled)
}
