package urlengine

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugr-lab/url-engine/pkg/catalog"
	"github.com/hugr-lab/url-engine/pkg/storages"
)

type remote struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (rm *remote) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rm.mu.Lock()
		data, ok := rm.files[r.URL.Path]
		rm.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	case http.MethodPost:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rm.mu.Lock()
		rm.files[r.URL.Path] = data
		rm.mu.Unlock()
	}
}

func newTestService(t *testing.T) (*httptest.Server, *remote) {
	t.Helper()
	rm := &remote{files: make(map[string][]byte)}
	remoteSrv := httptest.NewServer(rm)
	t.Cleanup(remoteSrv.Close)

	s := New(Config{Settings: storages.DefaultSettings()})
	require.NoError(t, s.Init(context.Background()))
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)

	def := catalog.Definition{
		Catalog: "db",
		Name:    "events",
		Engine:  "URL",
		Args:    []string{remoteSrv.URL + "/events.jsonl.gz", "JSONEachRow"},
		Columns: []catalog.ColumnDefinition{
			{Name: "id", Type: "Int64"},
			{Name: "name", Type: "String"},
			{Name: "level", Type: "Int32", Default: "1"},
		},
	}
	body, err := json.Marshal(def)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/tables", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return srv, rm
}

func do(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestWriteAndReadTable(t *testing.T) {
	srv, rm := newTestService(t)

	status, body := do(t, http.MethodPost, srv.URL+"/tables/db/events?format=CSVWithNames", "id,name\n1,a\n2,b\n")
	require.Equal(t, http.StatusOK, status, body)
	assert.Contains(t, body, `"rows":2`)

	rm.mu.Lock()
	stored := rm.files["/events.jsonl.gz"]
	rm.mu.Unlock()
	zr, err := gzip.NewReader(bytes.NewReader(stored))
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, `{"id":1,"name":"a","level":1}`+"\n"+`{"id":2,"name":"b","level":1}`+"\n", string(raw))

	status, body = do(t, http.MethodGet, srv.URL+"/tables/db/events?columns=name,id&format=CSV", "")
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "a,1\nb,2\n", body)

	status, body = do(t, http.MethodGet, srv.URL+"/tables/db/events?columns=id&limit=1", "")
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, `{"id":1}`+"\n", body)
}

func TestListCompressed(t *testing.T) {
	srv, _ := newTestService(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/tables", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))

	zr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	var tables []TableInfo
	require.NoError(t, json.NewDecoder(zr).Decode(&tables))
	require.Len(t, tables, 1)
	assert.Equal(t, "events", tables[0].Name)
	assert.Equal(t, "JSONEachRow", tables[0].Format)
	assert.Equal(t, "auto", tables[0].Compression)
	assert.Equal(t, "Int32", tables[0].Columns[2].Type)
}

func TestRenameAndDrop(t *testing.T) {
	srv, _ := newTestService(t)

	status, body := do(t, http.MethodPost, srv.URL+"/tables/db/events/rename", `{"catalog":"archive","name":"old_events"}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Contains(t, body, `"catalog":"archive"`)

	status, _ = do(t, http.MethodGet, srv.URL+"/tables/db/events", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, http.MethodDelete, srv.URL+"/tables/archive/old_events", "")
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = do(t, http.MethodDelete, srv.URL+"/tables/archive/old_events", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRequestErrors(t *testing.T) {
	srv, _ := newTestService(t)

	status, _ := do(t, http.MethodGet, srv.URL+"/tables/db/events?format=Nope", "")
	assert.Equal(t, http.StatusBadGateway, status, "the resource does not exist yet")

	status, _ = do(t, http.MethodPost, srv.URL+"/tables/db/events?format=Nope", "x")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, http.MethodGet, srv.URL+"/tables/db/events?columns=unknown", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, http.MethodGet, srv.URL+"/tables/db/events?max_block_size=x", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, http.MethodPost, srv.URL+"/tables", `{"catalog":"db","name":"events","engine":"URL","args":["http://h/x","CSV"],"columns":[{"name":"id","type":"Int8"}]}`)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = do(t, http.MethodPost, srv.URL+"/tables", `{"catalog":"db","name":"x","engine":"URL","args":["http://h/x"],"columns":[{"name":"id","type":"Int8"}]}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func gzipped(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestReadFailsBeforeStatus(t *testing.T) {
	srv, rm := newTestService(t)

	rm.mu.Lock()
	rm.files["/events.jsonl.gz"] = gzipped(t, `{"id":"x"`+"\n")
	rm.mu.Unlock()
	status, body := do(t, http.MethodGet, srv.URL+"/tables/db/events?format=CSV", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, `"error"`)

	rm.mu.Lock()
	rm.files["/events.jsonl.gz"] = gzipped(t, "")
	rm.mu.Unlock()
	status, body = do(t, http.MethodGet, srv.URL+"/tables/db/events?format=CSV", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, body)
}
