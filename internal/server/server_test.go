package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/evolve"
	"github.com/gogpu/evolve/brush"
	"github.com/gogpu/evolve/focus"
	"github.com/gogpu/evolve/internal/metrics"
	"github.com/gogpu/evolve/mutate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *evolve.Evolver) {
	t.Helper()
	cfg := evolve.DefaultConfig()
	cfg.Device = "cpu"
	cfg.MaxGrid = 8
	cfg.MinStrokeSize = 0.1
	cfg.MaxStrokeSize = 0.5

	m := metrics.New()
	ev, err := evolve.New(brush.Procedural(4, 16, 1), cfg,
		evolve.WithSeed(3), evolve.WithWorkers(2), evolve.WithObserver(m))
	require.NoError(t, err)
	t.Cleanup(ev.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ev.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	s := New(ev, Options{Metrics: m, MaxImageSize: 32, StatsInterval: 10 * time.Millisecond})
	t.Cleanup(s.Hub().Close)
	return s, ev
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func request(t *testing.T, s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if len(body) > 0 && (body[0] == '{' || body[0] == '[') {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
	return er
}

func setTarget(t *testing.T, s *Server) evolve.Stats {
	t.Helper()
	rec := request(t, s, http.MethodPost, "/target", pngBytes(t, 64, 48))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var st evolve.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	return st
}

func TestRequiresTarget(t *testing.T) {
	s, _ := newTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/start"},
		{http.MethodGet, "/image.png"},
		{http.MethodGet, "/strokes"},
		{http.MethodPost, "/focus/edit"},
		{http.MethodPost, "/focus/clear"},
	} {
		t.Run(tc.path, func(t *testing.T) {
			rec := request(t, s, tc.method, tc.path, nil)
			assert.Equal(t, http.StatusConflict, rec.Code)
			assert.Equal(t, "NO_IMAGE", decodeError(t, rec).Code)
		})
	}
}

func TestSetTargetFitsImage(t *testing.T) {
	s, _ := newTestServer(t)

	st := setTarget(t, s)
	assert.Equal(t, 32, st.Width)
	assert.Equal(t, 24, st.Height)
	assert.Equal(t, evolve.StateReady, st.State)
	assert.NotEmpty(t, st.Session)
}

func TestSetTargetMultipart(t *testing.T) {
	s, _ := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "target.png")
	require.NoError(t, err)
	_, err = fw.Write(pngBytes(t, 16, 16))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/target", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSetTargetRejectsGarbage(t *testing.T) {
	s, _ := newTestServer(t)

	rec := request(t, s, http.MethodPost, "/target", []byte("not an image"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartStop(t *testing.T) {
	s, _ := newTestServer(t)
	setTarget(t, s)

	rec := request(t, s, http.MethodPost, "/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Changed)
	assert.Equal(t, evolve.StateRunning, resp.State)

	rec = request(t, s, http.MethodPost, "/start", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Changed)

	assert.Eventually(t, func() bool {
		rec := request(t, s, http.MethodGet, "/stats", nil)
		var st evolve.Stats
		return json.Unmarshal(rec.Body.Bytes(), &st) == nil && st.Frames > 0
	}, 5*time.Second, 10*time.Millisecond)

	rec = request(t, s, http.MethodPost, "/stop", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Changed)
	assert.Equal(t, evolve.StateReady, resp.State)
}

func TestImageAndStrokes(t *testing.T) {
	s, ev := newTestServer(t)
	setTarget(t, s)
	require.NoError(t, ev.Do(context.Background(), func(ev *evolve.Evolver) {
		for range 5 {
			ev.Iterate()
		}
	}))

	rec := request(t, s, http.MethodGet, "/image.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 24), img.Bounds())

	again := request(t, s, http.MethodGet, "/image.png", nil)
	assert.Equal(t, uint64(1), s.pngs.Stats().Hits, "unchanged painting is served from cache")
	assert.Equal(t, http.StatusOK, again.Code)

	for _, path := range []string{"/target.png", "/frame.png"} {
		rec := request(t, s, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec = request(t, s, http.MethodGet, "/strokes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := rec.Body.Bytes()

	rec = request(t, s, http.MethodPost, "/strokes", doc)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = request(t, s, http.MethodPost, "/strokes", []byte(`{"version":99}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_STROKES", decodeError(t, rec).Code)
}

func TestFocusEditing(t *testing.T) {
	s, _ := newTestServer(t)
	setTarget(t, s)

	rec := request(t, s, http.MethodPost, "/focus/paint", []byte(`{"x":1,"y":1,"radius":2,"value":1}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NOT_EDITING", decodeError(t, rec).Code)

	assert.Equal(t, http.StatusNoContent, request(t, s, http.MethodPost, "/focus/edit", nil).Code)
	rec = request(t, s, http.MethodPost, "/focus/edit", nil)
	assert.Equal(t, "EDITING", decodeError(t, rec).Code)

	assert.Equal(t, http.StatusNoContent,
		request(t, s, http.MethodPost, "/focus/fill", []byte(`{"value":0}`)).Code)
	assert.Equal(t, http.StatusNoContent,
		request(t, s, http.MethodPost, "/focus/paint", []byte(`{"x":4,"y":4,"radius":3,"value":1}`)).Code)
	assert.Equal(t, http.StatusBadRequest,
		request(t, s, http.MethodPost, "/focus/paint", []byte(`{"x":4,"y":4,"radius":3,"value":2}`)).Code)
	assert.Equal(t, http.StatusBadRequest,
		request(t, s, http.MethodPost, "/focus/fill", []byte(`{}`)).Code)

	rec = request(t, s, http.MethodGet, "/stats", nil)
	assert.Contains(t, rec.Body.String(), `"editing":true`)

	assert.Equal(t, http.StatusNoContent, request(t, s, http.MethodPost, "/focus/save", nil).Code)
	assert.Equal(t, http.StatusConflict, request(t, s, http.MethodPost, "/focus/save", nil).Code)
	assert.Equal(t, http.StatusNoContent, request(t, s, http.MethodPost, "/focus/cancel", nil).Code)
	assert.Equal(t, http.StatusNoContent, request(t, s, http.MethodPost, "/focus/clear", nil).Code)
}

func TestConfig(t *testing.T) {
	s, _ := newTestServer(t)

	rec := request(t, s, http.MethodGet, "/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg evolve.Config
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, evolve.DefaultConfig().FrameSkip, cfg.FrameSkip)

	rec = request(t, s, http.MethodPut, "/config", []byte(`{"frameSkip":3,"focusExponent":9}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 3, cfg.FrameSkip)
	assert.Equal(t, "cpu", cfg.Device, "fields not in the body are kept")
	assert.Equal(t, focus.MaxExponent, cfg.FocusExponent)

	rec = request(t, s, http.MethodPut, "/config", []byte(`{"enabledMutations":{"append":true,"delete":true}}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, mutate.Enabled{Append: true, Delete: true}, cfg.EnabledMutations,
		"kinds missing from the block are disabled")
	assert.Equal(t, 3, cfg.FrameSkip)

	rec = request(t, s, http.MethodPut, "/config", []byte(`{"enabledMutations":{"smudge":true}}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = request(t, s, http.MethodPut, "/config", []byte(`{"frameSkip":0}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_CONFIG", decodeError(t, rec).Code)

	rec = request(t, s, http.MethodPut, "/config", []byte(`{"bogus":1}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDisplay(t *testing.T) {
	s, ev := newTestServer(t)

	rec := request(t, s, http.MethodPost, "/display", []byte(`{"mode":"difference"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var mode evolve.DisplayMode
	require.NoError(t, ev.Do(context.Background(), func(ev *evolve.Evolver) { mode = ev.DisplayMode() }))
	assert.Equal(t, evolve.DisplayDifference, mode)

	rec = request(t, s, http.MethodPost, "/display", []byte(`{"mode":"sideways"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetrics(t *testing.T) {
	s, ev := newTestServer(t)
	setTarget(t, s)
	require.NoError(t, ev.Do(context.Background(), func(ev *evolve.Evolver) { ev.Iterate() }))

	rec := request(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "evolve_cycles_total")
}

func TestUnavailableWithoutRun(t *testing.T) {
	ev, err := evolve.New(brush.Procedural(2, 8, 1), evolve.DefaultConfig(), evolve.WithWorkers(1))
	require.NoError(t, err)
	defer ev.Close()
	s := New(ev, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebsocketStream(t *testing.T) {
	s, _ := newTestServer(t)
	setTarget(t, s)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.RunStats(ctx) }()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var hello Event
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello.Type)
	assert.NotEmpty(t, hello.Client)

	s.PublishNotice(evolve.Notice{Message: "hi", Time: time.Now()})

	seen := map[string]bool{}
	for !(seen["stats"] && seen["notice"]) {
		var ev Event
		require.NoError(t, conn.ReadJSON(&ev))
		seen[ev.Type] = true
		if ev.Type == "stats" {
			require.NotNil(t, ev.Stats)
			assert.Equal(t, 32, ev.Stats.Width)
		}
	}
	assert.Equal(t, 1, s.Hub().Clients())
}
