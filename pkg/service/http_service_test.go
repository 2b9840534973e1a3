package service

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-feature/appflagd/pkg/eval"
	"github.com/open-feature/appflagd/pkg/model"
	"github.com/open-feature/appflagd/pkg/sync"
)

const Flags = `{
  "flags": {
    "theme": [
      {"appId": "com.example.browser", "stringValue": "dark"},
      {"stringValue": "light"}
    ],
    "maxTabs": [{"intValue": "16"}],
    "betaOnly": [{"appId": "com.example.beta", "boolValue": true}]
  }
}`

func newTestServer(t *testing.T) (*Server, *eval.JSONEvaluator, *sync.Multiplexer) {
	t.Helper()
	evaluator := eval.NewJSONEvaluator(nil)
	require.NoError(t, evaluator.SetState(Flags))
	mux := sync.NewMux(evaluator.Table())
	return NewServer(evaluator, mux, nil), evaluator, mux
}

func get(t *testing.T, h http.Handler, url string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, url, nil))
	return rr
}

func TestResolveAll(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Router()

	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "scoped app",
			url:  "/flags?appId=com.example.browser",
			want: `{"theme": {"type": "STRING", "value": "dark"}, "maxTabs": {"type": "INT", "value": "16"}}`,
		},
		{
			name: "beta app",
			url:  "/flags?appId=com.example.beta",
			want: `{"theme": {"type": "STRING", "value": "light"}, "maxTabs": {"type": "INT", "value": "16"}, "betaOnly": {"type": "BOOL", "value": true}}`,
		},
		{
			name: "no app id",
			url:  "/flags",
			want: `{"theme": {"type": "STRING", "value": "light"}, "maxTabs": {"type": "INT", "value": "16"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := get(t, h, tt.url)
			assert.Equal(t, http.StatusOK, rr.Code)
			assert.JSONEq(t, tt.want, rr.Body.String())
		})
	}
}

func TestResolveTyped(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Router()

	tests := []struct {
		name       string
		url        string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "targeting match",
			url:        "/flags/theme/string?appId=com.example.browser",
			wantStatus: http.StatusOK,
			wantBody:   `{"flagKey": "theme", "value": {"type": "STRING", "value": "dark"}, "reason": "TARGETING_MATCH"}`,
		},
		{
			name:       "static",
			url:        "/flags/maxTabs/int?appId=other",
			wantStatus: http.StatusOK,
			wantBody:   `{"flagKey": "maxTabs", "value": {"type": "INT", "value": "16"}, "reason": "STATIC"}`,
		},
		{
			name:       "type mismatch",
			url:        "/flags/maxTabs/bool?appId=other",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown type",
			url:        "/flags/maxTabs/object",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing flag",
			url:        "/flags/missing/bool",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "no candidate for app",
			url:        "/flags/betaOnly/bool?appId=com.example.browser",
			wantStatus: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := get(t, h, tt.url)
			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rr.Body.String())
			}
		})
	}
}

func TestResolveTyped_ErrorBody(t *testing.T) {
	s, _, _ := newTestServer(t)
	rr := get(t, s.Router(), "/flags/maxTabs/string")

	var body ResolutionDetailsWithError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, model.TypeMismatchErrorCode, body.ErrorCode)
	assert.Equal(t, model.ErrorReason, body.Reason)
	assert.Equal(t, "maxTabs", body.FlagKey)
}

func TestState(t *testing.T) {
	s, _, _ := newTestServer(t)
	rr := get(t, s.Router(), "/state")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"betaOnly"`)
}

func TestHealthzAndMetrics(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Router()

	rr := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())

	get(t, h, "/flags/theme/string")
	rr = get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "appflagd_http_requests_total")
	assert.Contains(t, rr.Body.String(), "appflagd_resolutions_total")
}

func readEvent(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
}

func TestStream(t *testing.T) {
	s, evaluator, mux := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/flags/stream?appId=com.example.browser", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body := bufio.NewReader(resp.Body)
	assert.JSONEq(t, `{"theme": {"type": "STRING", "value": "dark"}, "maxTabs": {"type": "INT", "value": "16"}}`, readEvent(t, body))

	require.NoError(t, evaluator.SetState(`{"flags": {"theme": [{"stringValue": "sepia"}]}}`))
	require.NoError(t, mux.Publish(evaluator.Table()))

	assert.JSONEq(t, `{"theme": {"type": "STRING", "value": "sepia"}}`, readEvent(t, body))
}

func TestServe_NoConfiguration(t *testing.T) {
	h := HTTPService{}
	assert.Error(t, h.Serve(context.Background(), eval.NewJSONEvaluator(nil), nil))
}

func freePort(t *testing.T) int32 {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return int32(l.Addr().(*net.TCPAddr).Port)
}

func TestServe_CancelEndsOpenStreams(t *testing.T) {
	_, evaluator, mux := newTestServer(t)
	port := freePort(t)
	h := HTTPService{HTTPServiceConfiguration: &HTTPServiceConfiguration{
		Port:            port,
		ShutdownTimeout: 10 * time.Second,
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx, evaluator, mux) }()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get(base + "/flags/stream?appId=com.example.browser")
	require.NoError(t, err)
	defer resp.Body.Close()
	body := bufio.NewReader(resp.Body)
	assert.Contains(t, readEvent(t, body), "dark")

	start := time.Now()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
		assert.Less(t, time.Since(start), 5*time.Second)
	case <-time.After(8 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
