package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericlevine/qrdecode"
	"github.com/ericlevine/qrdecode/internal/cache"
	"github.com/ericlevine/qrdecode/internal/config"
	"github.com/ericlevine/qrdecode/internal/loader"
	"github.com/ericlevine/qrdecode/internal/testutil"
)

type fakeScanner struct {
	calls   atomic.Int32
	results []qrdecode.DecodeResult
	err     error
}

func (f *fakeScanner) DecodeImage(_ context.Context, _ image.Image) ([]qrdecode.DecodeResult, error) {
	f.calls.Add(1)
	return f.results, f.err
}

func hello() []qrdecode.DecodeResult {
	return []qrdecode.DecodeResult{{
		Content: "hello",
		Finder:  [3]qrdecode.Pattern{{X: 10, Y: 10, ModuleSize: 2}, {X: 50, Y: 10, ModuleSize: 2}, {X: 10, Y: 50, ModuleSize: 2}},
	}}
}

func pngBytes(t *testing.T) []byte {
	return testutil.PNG(t, testutil.Canvas(32, 32))
}

func dataURI(data []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

func newTestServer(t *testing.T, sc *fakeScanner, store cache.Store) *httptest.Server {
	t.Helper()
	return newTestServerWithConfig(t, *config.Default(), sc, store)
}

func newTestServerWithConfig(t *testing.T, cfg config.Config, sc *fakeScanner, store cache.Store) *httptest.Server {
	t.Helper()
	cfg.Reply.Prefix = "result: "
	srv := New(Options{
		Config:  cfg,
		Scanner: sc,
		Fetcher: loader.New(loader.Options{DenyRemote: true, DenyLocal: true}),
		Cache:   store,
		Version: "test",
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, r io.Reader) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(r).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &fakeScanner{}, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[healthResponse](t, resp.Body)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "test", body.Version)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestRequestIDIsPropagated(t *testing.T) {
	ts := newTestServer(t, &fakeScanner{}, nil)
	const id = "0b4b6a43-44a4-4f8e-9b0e-0d3c7d1a1c11"

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, id)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, id, resp.Header.Get(requestIDHeader))

	req.Header.Set(requestIDHeader, "not-a-uuid")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.NotEqual(t, "not-a-uuid", resp2.Header.Get(requestIDHeader))
}

func TestDecodeJSON(t *testing.T) {
	sc := &fakeScanner{results: hello()}
	ts := newTestServer(t, sc, nil)

	resp := postJSON(t, ts.URL+"/v1/decode", decodeRequest{Src: dataURI(pngBytes(t))})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[decodeResponse](t, resp.Body)
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "hello", body.Results[0].Content)
	assert.Nil(t, body.Results[0].Alignment)
	assert.Equal(t, resp.Header.Get(requestIDHeader), body.RequestID)
}

func TestDecodeEmptyResultIsArray(t *testing.T) {
	ts := newTestServer(t, &fakeScanner{results: []qrdecode.DecodeResult{}}, nil)

	resp := postJSON(t, ts.URL+"/v1/decode", decodeRequest{Src: dataURI(pngBytes(t))})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"results":[]`)
	assert.Contains(t, string(raw), `"count":0`)
}

func TestDecodeMultipart(t *testing.T) {
	sc := &fakeScanner{results: hello()}
	ts := newTestServer(t, sc, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "code.png")
	require.NoError(t, err)
	_, err = fw.Write(pngBytes(t))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/v1/decode", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[decodeResponse](t, resp.Body)
	assert.Equal(t, 1, body.Count)
	assert.EqualValues(t, 1, sc.calls.Load())
}

func TestDecodeUsesCache(t *testing.T) {
	sc := &fakeScanner{results: hello()}
	store, err := cache.NewMemory(8)
	require.NoError(t, err)
	ts := newTestServer(t, sc, store)

	src := dataURI(pngBytes(t))
	for i := 0; i < 3; i++ {
		resp := postJSON(t, ts.URL+"/v1/decode", decodeRequest{Src: src})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody[decodeResponse](t, resp.Body)
		assert.Equal(t, "hello", body.Results[0].Content)
	}
	assert.EqualValues(t, 1, sc.calls.Load())
}

func TestDecodeBadRequests(t *testing.T) {
	ts := newTestServer(t, &fakeScanner{}, nil)

	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"no content type", "", "{}"},
		{"unsupported content type", "text/plain", "hello"},
		{"malformed json", "application/json", "{"},
		{"missing src", "application/json", `{"src":""}`},
		{"multipart without image", "multipart/form-data; boundary=x", "--x--\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/decode", strings.NewReader(tt.body))
			require.NoError(t, err)
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body := decodeBody[errorResponse](t, resp.Body)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestDecodeLoadFailures(t *testing.T) {
	sc := &fakeScanner{}
	ts := newTestServer(t, sc, nil)

	for _, src := range []string{
		"data:text/plain,not-an-image",
		"https://example.com/remote-is-denied.png",
		"/does/not/exist.png",
	} {
		resp := postJSON(t, ts.URL+"/v1/decode", decodeRequest{Src: src})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, src)
	}
	assert.Zero(t, sc.calls.Load())
}

func TestDecodeRejectsLocalFiles(t *testing.T) {
	sc := &fakeScanner{results: hello()}
	ts := newTestServer(t, sc, nil)

	path := filepath.Join(t.TempDir(), "secret.png")
	require.NoError(t, os.WriteFile(path, pngBytes(t), 0o600))

	for _, src := range []string{path, "file://" + path, "/does/not/exist.png"} {
		resp := postJSON(t, ts.URL+"/v1/decode", decodeRequest{Src: src})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, src)
		body := decodeBody[errorResponse](t, resp.Body)
		assert.Contains(t, body.Error, loader.ErrLocalDisabled.Error(), src)
	}
	assert.Zero(t, sc.calls.Load())
}

func TestMessagesOrigin(t *testing.T) {
	cfg := *config.Default()
	cfg.Server.AllowedOrigins = []string{"https://chat.example.com"}
	ts := newTestServerWithConfig(t, cfg, &fakeScanner{results: hello()}, nil)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/messages"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://chat.example.com"}})
	require.NoError(t, err)
	_ = resp.Body.Close()
	_ = conn.Close()

	assert.True(t, originAllowed("", cfg.Server.AllowedOrigins))
	assert.True(t, originAllowed("https://x.example", []string{"*"}))
}

func TestDecodeTimeout(t *testing.T) {
	ts := newTestServer(t, &fakeScanner{err: context.DeadlineExceeded}, nil)

	resp := postJSON(t, ts.URL+"/v1/decode", decodeRequest{Src: dataURI(pngBytes(t))})
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t, &fakeScanner{}, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `qrdecode_http_requests_total{method="GET",route="/healthz",status="200"}`)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(&qrdecode.ImageLoadError{Ref: "x", Err: io.EOF}))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}

func dialMessages(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/messages"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestMessagesReply(t *testing.T) {
	ts := newTestServer(t, &fakeScanner{results: hello()}, nil)
	conn := dialMessages(t, ts)

	// No image: no reply. The next frame read must answer the second message.
	require.NoError(t, conn.WriteJSON(map[string]any{
		"id":       "m1",
		"elements": []map[string]any{{"type": "text", "attrs": map[string]string{"content": "hi"}}},
	}))
	require.NoError(t, conn.WriteJSON(map[string]any{
		"id": "m2",
		"elements": []map[string]any{
			{"type": "quote", "children": []map[string]any{
				{"type": "img", "attrs": map[string]string{"src": dataURI(pngBytes(t))}},
			}},
		},
	}))

	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "reply", f.Type)
	assert.Equal(t, "m2", f.ID)
	assert.Equal(t, "result: hello\n", f.Text)
}

func TestMessagesErrors(t *testing.T) {
	ts := newTestServer(t, &fakeScanner{results: hello()}, nil)
	conn := dialMessages(t, ts)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "error", f.Type)
	assert.NotEmpty(t, f.Error)

	// A load failure is logged, not sent; the following message still gets
	// its reply.
	require.NoError(t, conn.WriteJSON(map[string]any{
		"id":       "broken",
		"elements": []map[string]any{{"type": "img", "attrs": map[string]string{"src": "/does/not/exist.png"}}},
	}))
	require.NoError(t, conn.WriteJSON(map[string]any{
		"id":       "ok",
		"elements": []map[string]any{{"type": "img", "attrs": map[string]string{"src": dataURI(pngBytes(t))}}},
	}))
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "reply", f.Type)
	assert.Equal(t, "ok", f.ID)
}
