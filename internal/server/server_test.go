package server

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oszuidwest/zwfm-videoencoder/internal/config"
	"github.com/oszuidwest/zwfm-videoencoder/internal/supervisor"
	"github.com/oszuidwest/zwfm-videoencoder/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEncoder mimics the supervisor state machine without processes.
type fakeEncoder struct {
	mu        sync.Mutex
	status    types.Status
	input     string
	output    string
	startErr  error
	restarts  int
	logs      []types.LogEntry
	lastInput string
}

func (f *fakeEncoder) Start(input string, outputs []types.OutputTarget) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	if len(outputs) == 0 || outputs[0].URL == "" {
		return supervisor.ErrNoOutput
	}
	if f.status == types.StatusRunning {
		return supervisor.ErrAlreadyRunning
	}
	f.status = types.StatusRunning
	f.input = input
	f.output = outputs[0].URL
	f.lastInput = input
	f.append("Encoder started")
	return nil
}

func (f *fakeEncoder) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == types.StatusRunning {
		f.status = types.StatusStopped
		f.append("Encoder stopped manually")
	}
}

// Restart fails after stopping when ctx is done, like the supervisor's
// wait for the old process.
func (f *fakeEncoder) Restart(ctx context.Context, input string, outputs []types.OutputTarget) error {
	f.Stop()
	f.mu.Lock()
	f.restarts++
	f.append("Encoder restarted")
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.Start(input, outputs)
}

func (f *fakeEncoder) Status() types.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeEncoder) Logs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := make([]string, len(f.logs))
	for i, e := range f.logs {
		lines[i] = e.Line
	}
	return lines
}

func (f *fakeEncoder) LogsSince(cursor string) []types.LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.LogEntry
	for _, e := range f.logs {
		if e.ID > cursor {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeEncoder) RecentLogs(int) []types.LogEntry {
	return f.LogsSince("")
}

func (f *fakeEncoder) Info() types.EncoderInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	info := types.EncoderInfo{Status: f.status}
	if f.status == types.StatusRunning {
		info.PID = 4242
		info.Input = f.input
		info.Output = f.output
		info.Command = []string{"ffmpeg", "-i", f.input, "-f", "flv", f.output}
	}
	return info
}

// append must be called with f.mu held.
func (f *fakeEncoder) append(line string) {
	f.logs = append(f.logs, types.LogEntry{ID: fmt.Sprintf("%04d", len(f.logs)+1), Line: line})
}

func newTestServer(t *testing.T, enc *fakeEncoder, mutate ...func(*Options)) *httptest.Server {
	t.Helper()
	opts := Options{
		Web:        config.New().Web,
		Encoder:    enc,
		AppVersion: "1.2.3",
		Assets: Assets{
			IndexHTML: "<html>{{VERSION}}</html>",
			StyleCSS:  "body{}",
			AppJS:     "console.log(1)",
		},
		Tests: map[string]func() error{
			"webhook": func() error { return nil },
			"email":   func() error { return errors.New("SMTP host not configured") },
		},
	}
	for _, m := range mutate {
		m(&opts)
	}
	srv := httptest.NewServer(New(opts).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	resp, err := http.Post(url, "application/json", reader)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode, decode(t, resp.Body)
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode, decode(t, resp.Body)
}

func decode(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(r).Decode(&out))
	return out
}

func startBody(input, url string) map[string]any {
	return map[string]any{
		"inputUrl": input,
		"outputs":  []map[string]string{{"type": "rtmp", "url": url}},
	}
}

func TestStartEncoder(t *testing.T) {
	enc := &fakeEncoder{status: types.StatusStopped}
	srv := newTestServer(t, enc)

	code, body := postJSON(t, srv.URL+"/api/encoder/start", startBody("input-A", "rtmp://x/y"))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "running", body["status"])
	assert.NotContains(t, body, "error")
}

func TestStartEncoder_AlreadyRunning(t *testing.T) {
	enc := &fakeEncoder{status: types.StatusStopped}
	srv := newTestServer(t, enc)
	postJSON(t, srv.URL+"/api/encoder/start", startBody("input-A", "rtmp://x/y"))

	code, body := postJSON(t, srv.URL+"/api/encoder/start", startBody("input-B", "rtmp://x/z"))

	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, "encoder already running", body["error"])
	assert.Equal(t, "input-A", enc.lastInput)
}

func TestStartEncoder_MissingInputUsesActionShape(t *testing.T) {
	enc := &fakeEncoder{status: types.StatusStopped}
	srv := newTestServer(t, enc)

	body := map[string]any{"outputs": []map[string]string{{"type": "rtmp", "url": "rtmp://x/y"}}}
	code, resp := postJSON(t, srv.URL+"/api/encoder/start", body)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "running", resp["status"])
	assert.Empty(t, enc.lastInput, "the input is passed through unchanged")

	code, resp = postJSON(t, srv.URL+"/api/encoder/restart", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp, "status")
	assert.NotEmpty(t, resp["error"])
}

func TestStartEncoder_Errors(t *testing.T) {
	tests := []struct {
		name     string
		startErr error
		body     any
		wantCode int
	}{
		{"no outputs", nil, map[string]any{"inputUrl": "input-A"}, http.StatusBadRequest},
		{"empty output url", nil, startBody("input-A", ""), http.StatusBadRequest},
		{"input too long", nil, startBody(strings.Repeat("a", maxURLLength+1), "rtmp://x/y"), http.StatusBadRequest},
		{"launch failure", fmt.Errorf("%w: %w", supervisor.ErrLaunchFailed, os.ErrNotExist), startBody("input-A", "rtmp://x/y"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := &fakeEncoder{status: types.StatusStopped, startErr: tt.startErr}
			srv := newTestServer(t, enc)

			code, body := postJSON(t, srv.URL+"/api/encoder/start", tt.body)

			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, "stopped", body["status"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestStopEncoder(t *testing.T) {
	enc := &fakeEncoder{status: types.StatusStopped}
	srv := newTestServer(t, enc)
	postJSON(t, srv.URL+"/api/encoder/start", startBody("input-A", "rtmp://x/y"))

	for range 2 {
		code, body := postJSON(t, srv.URL+"/api/encoder/stop", nil)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "stopped", body["status"])
	}
}

func TestRestartEncoder(t *testing.T) {
	enc := &fakeEncoder{status: types.StatusStopped}
	srv := newTestServer(t, enc)
	postJSON(t, srv.URL+"/api/encoder/start", startBody("input-A", "rtmp://x/y"))

	code, body := postJSON(t, srv.URL+"/api/encoder/restart", startBody("input-B", "rtmp://x/y"))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, 1, enc.restarts)
	assert.Equal(t, "input-B", enc.lastInput)
}

func TestStatusAndLogs(t *testing.T) {
	enc := &fakeEncoder{status: types.StatusStopped}
	srv := newTestServer(t, enc)

	code, body := getJSON(t, srv.URL+"/api/encoder/status")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"status": "stopped"}, body)

	code, body = getJSON(t, srv.URL+"/api/encoder/logs")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{}, body["logs"])

	postJSON(t, srv.URL+"/api/encoder/start", startBody("input-A", "rtmp://x/y"))
	_, body = getJSON(t, srv.URL+"/api/encoder/logs")
	assert.Equal(t, []any{"Encoder started"}, body["logs"])
}

func TestGetInfo_RedactsStreamKey(t *testing.T) {
	enc := &fakeEncoder{status: types.StatusStopped}
	srv := newTestServer(t, enc)
	postJSON(t, srv.URL+"/api/encoder/start", startBody("input-A", "rtmp://live.example.com/app/secret"))

	code, body := getJSON(t, srv.URL+"/api/encoder/info")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, "rtmp://live.example.com/app/REDACTED", body["output"])
	raw, _ := json.Marshal(body)
	assert.NotContains(t, string(raw), "secret")
}

func TestGetVersion(t *testing.T) {
	srv := newTestServer(t, &fakeEncoder{}, func(o *Options) {
		o.Version = func() types.VersionInfo { return types.VersionInfo{Current: "1.2.3", Latest: "1.3.0", UpdateAvail: true} }
	})

	code, body := getJSON(t, srv.URL+"/api/version")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1.3.0", body["latest"])
	assert.Equal(t, true, body["update_available"])
}

func TestNotificationTest(t *testing.T) {
	srv := newTestServer(t, &fakeEncoder{})

	code, body := postJSON(t, srv.URL+"/api/notifications/test/webhook", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])

	code, body = postJSON(t, srv.URL+"/api/notifications/test/email", nil)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "SMTP host not configured", body["error"])

	code, _ = postJSON(t, srv.URL+"/api/notifications/test/log", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = postJSON(t, srv.URL+"/api/notifications/test/pager", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestStaticFiles(t *testing.T) {
	srv := newTestServer(t, &fakeEncoder{})

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "<html>1.2.3</html>", string(data))
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	resp, err = http.Get(srv.URL + "/app.js")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "application/javascript", resp.Header.Get("Content-Type"))

	resp, err = http.Get(srv.URL + "/missing.txt")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStaticFiles_Compressed(t *testing.T) {
	srv := newTestServer(t, &fakeEncoder{})

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/style.css", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
	gz, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, "body{}", string(data))
}

func TestOpenAPIDocument(t *testing.T) {
	srv := newTestServer(t, &fakeEncoder{})

	code, body := getJSON(t, srv.URL+"/openapi.json")

	assert.Equal(t, http.StatusOK, code)
	paths, ok := body["paths"].(map[string]any)
	require.True(t, ok)
	for _, p := range []string{"/api/encoder/start", "/api/encoder/stop", "/api/encoder/restart", "/api/encoder/status", "/api/encoder/logs"} {
		assert.Contains(t, paths, p)
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t, &fakeEncoder{})
	resp, err := http.Get(srv.URL + "/api/encoder/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func readUntil(t *testing.T, conn *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		if msg["type"] == msgType {
			return msg
		}
	}
}

func TestWebSocket_StatusLogsAndCommands(t *testing.T) {
	enc := &fakeEncoder{status: types.StatusStopped}
	srv := newTestServer(t, enc)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	status := readUntil(t, conn, "status")
	encoder, ok := status["encoder"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "stopped", encoder["status"])

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "start",
		"data": startBody("input-A", "rtmp://x/y"),
	}))
	result := readUntil(t, conn, "command_result")
	assert.Equal(t, "start", result["command"])
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "running", result["status"])

	logs := readUntil(t, conn, "logs")
	entries, ok := logs["entries"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, entries)
	assert.Equal(t, "Encoder started", entries[0].(map[string]any)["line"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "test_email"}))
	test := readUntil(t, conn, "test_result")
	assert.Equal(t, "email", test["test_type"])
	assert.Equal(t, false, test["success"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "stop"}))
	result = readUntil(t, conn, "command_result")
	assert.Equal(t, "stopped", result["status"])
}

type recordingWriter struct {
	mu   sync.Mutex
	msgs []any
}

func (w *recordingWriter) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, v)
	return nil
}

func (w *recordingWriter) last() any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.msgs[len(w.msgs)-1]
}

func TestCommandHandler_InvalidData(t *testing.T) {
	enc := &fakeEncoder{status: types.StatusStopped}
	h := NewCommandHandler(enc, "", nil)
	w := &recordingWriter{}
	updated := false

	h.Handle(context.Background(), WSCommand{Type: "start", Data: json.RawMessage(`{"inputUrl": 5}`)}, w, func() { updated = true })

	res, ok := w.last().(types.WSCommandResult)
	require.True(t, ok)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "invalid command data")
	assert.True(t, updated)
	assert.Equal(t, types.StatusStopped, enc.Status())
}

func TestCommandHandler_RestartSurvivesDisconnect(t *testing.T) {
	enc := &fakeEncoder{}
	require.NoError(t, enc.Start("input-A", []types.OutputTarget{{Type: "rtmp", URL: "rtmp://x/y"}}))
	h := NewCommandHandler(enc, "", nil)
	w := &recordingWriter{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	data := json.RawMessage(`{"inputUrl":"input-B","outputs":[{"type":"rtmp","url":"rtmp://x/y"}]}`)
	h.Handle(ctx, WSCommand{Type: "restart", Data: data}, w, func() {})

	res, ok := w.last().(types.WSCommandResult)
	require.True(t, ok)
	assert.True(t, res.Success, res.Error)
	assert.Equal(t, types.StatusRunning, enc.Status())
	assert.Equal(t, "input-B", enc.lastInput)
}

func TestCommandHandler_ViewEventLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	content := `{"timestamp":"2024-01-01T00:00:00Z","event":"test"}
not json
{"timestamp":"2024-01-02T00:00:00Z","event":"encoder_exited","exit_code":1}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	h := NewCommandHandler(&fakeEncoder{}, path, nil)
	w := &recordingWriter{}
	h.Handle(context.Background(), WSCommand{Type: "view_event_log"}, w, func() {})

	res, ok := w.last().(types.WSEventLogResult)
	require.True(t, ok)
	require.True(t, res.Success)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, "encoder_exited", res.Entries[0].Event, "newest first")
	assert.Equal(t, 1, res.Entries[0].ExitCode)
}

func TestCommandHandler_ViewEventLogUnconfigured(t *testing.T) {
	h := NewCommandHandler(&fakeEncoder{}, "", nil)
	w := &recordingWriter{}
	h.Handle(context.Background(), WSCommand{Type: "view_event_log"}, w, func() {})

	res, ok := w.last().(types.WSEventLogResult)
	require.True(t, ok)
	assert.False(t, res.Success)
}

func TestReadEventLog_Missing(t *testing.T) {
	entries, err := readEventLog(filepath.Join(t.TempDir(), "absent.jsonl"), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
