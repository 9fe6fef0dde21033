package command

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/sniffer/internal/filter"
	"firestige.xyz/sniffer/internal/protocol"
	"firestige.xyz/sniffer/internal/report"
	"firestige.xyz/sniffer/internal/runstate"
)

func newTestAPI(t *testing.T) (*fakeEngine, *httptest.Server) {
	t.Helper()
	eng := newFakeEngine()
	eng.admit(1000, protocol.HTTP, 4)
	h := NewCommandHandler(eng, staticReports{report.Report{Text: "HTTP: 4 packets (100%)\n"}}, nil)
	srv := httptest.NewServer(NewHTTPServer("", h).Router())
	t.Cleanup(srv.Close)
	return eng, srv
}

func doRequest(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestHTTPServer_Devices(t *testing.T) {
	eng, srv := newTestAPI(t)

	resp, body := doRequest(t, http.MethodGet, srv.URL+"/api/v1/devices", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var res DeviceListResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Len(t, res.Devices, 2)

	resp, _ = doRequest(t, http.MethodPut, srv.URL+"/api/v1/device", `{"name":"lo"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "lo", eng.SelectedDevice().Name)

	resp, _ = doRequest(t, http.MethodPut, srv.URL+"/api/v1/device", `{"name":"nope0"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodPut, srv.URL+"/api/v1/device", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTPServer_Filters(t *testing.T) {
	eng, srv := newTestAPI(t)

	resp, body := doRequest(t, http.MethodPut, srv.URL+"/api/v1/filters", `{"ip":"ipv4","application":"HTTP"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var f filter.Filters
	require.NoError(t, json.Unmarshal(body, &f))
	assert.Equal(t, filter.Filters{IP: filter.IPv4, App: protocol.HTTP}, f)
	assert.Equal(t, f, eng.Filters())

	resp, body = doRequest(t, http.MethodGet, srv.URL+"/api/v1/filters", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ip":"ipv4","transport":"any","application":"HTTP"}`, string(body))

	resp, _ = doRequest(t, http.MethodPut, srv.URL+"/api/v1/filters", `{"transport":"sctp"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTPServer_Capture(t *testing.T) {
	_, srv := newTestAPI(t)

	resp, body := doRequest(t, http.MethodPost, srv.URL+"/api/v1/capture/start", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"state":"running"`)

	resp, _ = doRequest(t, http.MethodPost, srv.URL+"/api/v1/capture/pause", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodPost, srv.URL+"/api/v1/capture/stop", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodPost, srv.URL+"/api/v1/capture/resume", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodPost, srv.URL+"/api/v1/capture/explode", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodGet, srv.URL+"/api/v1/capture/start", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHTTPServer_Traffic(t *testing.T) {
	eng, srv := newTestAPI(t)
	eng.admit(1001, protocol.HTTP, 1)

	resp, body := doRequest(t, http.MethodGet, srv.URL+"/api/v1/traffic?limit=1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var raw struct {
		Admitted    uint64            `json:"admitted"`
		Connections []json.RawMessage `json:"connections"`
	}
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.Equal(t, uint64(5), raw.Admitted)
	assert.Len(t, raw.Connections, 1)

	resp, _ = doRequest(t, http.MethodGet, srv.URL+"/api/v1/traffic?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodPost, srv.URL+"/api/v1/traffic/reset", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, eng.ReadSnapshot().Admitted)
}

func TestHTTPServer_ReportAndStatus(t *testing.T) {
	_, srv := newTestAPI(t)

	resp, body := doRequest(t, http.MethodGet, srv.URL+"/api/v1/report?format=text", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))
	assert.Equal(t, "HTTP: 4 packets (100%)\n", string(body))

	resp, body = doRequest(t, http.MethodGet, srv.URL+"/api/v1/report", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"text"`)

	resp, body = doRequest(t, http.MethodGet, srv.URL+"/api/v1/status", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var st DaemonStatus
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, runstate.Init, st.Engine.State)
}

func TestHTTPServer_StartStop(t *testing.T) {
	s := NewHTTPServer("127.0.0.1:0", NewCommandHandler(newFakeEngine(), nil, nil))
	require.NoError(t, s.Start(context.Background()))

	resp, _ := doRequest(t, http.MethodGet, "http://"+s.Addr()+"/api/v1/status", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Stop(context.Background()))
}
