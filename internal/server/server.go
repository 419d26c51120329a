// Package server exposes a running Evolver over HTTP: control endpoints, image
// and stroke transfer, focus editing, Prometheus metrics and a websocket
// progress stream.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gogpu/evolve"
	"github.com/gogpu/evolve/internal/cache"
	"github.com/gogpu/evolve/internal/imageio"
	"github.com/gogpu/evolve/internal/metrics"
	"github.com/gogpu/evolve/stroke"
)

const (
	defaultMaxImageSize = 512
	defaultMaxBody      = 32 << 20
	defaultStatsEvery   = time.Second
	defaultPNGCache     = 16 << 20
)

// Options configures a Server.
type Options struct {
	// Metrics is served on /metrics when set.
	Metrics *metrics.Metrics
	// MaxImageSize bounds the longer side of uploaded targets.
	MaxImageSize int
	// MaxBodyBytes bounds request bodies.
	MaxBodyBytes int64
	// StatsInterval is the websocket stats period used by RunStats.
	StatsInterval time.Duration
	// PNGCacheBytes bounds the encoded images kept for polling clients.
	PNGCacheBytes int
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// StatusResponse is returned by control endpoints.
type StatusResponse struct {
	Changed bool         `json:"changed"`
	State   evolve.State `json:"state"`
}

// FocusPaintRequest paints a disc into the focus map being edited.
type FocusPaintRequest struct {
	X      float64  `json:"x" binding:"gte=0"`
	Y      float64  `json:"y" binding:"gte=0"`
	Radius float64  `json:"radius" binding:"gt=0"`
	Value  *float64 `json:"value" binding:"required,gte=0,lte=1"`
}

// FocusFillRequest sets every weight of the focus map being edited.
type FocusFillRequest struct {
	Value *float64 `json:"value" binding:"required,gte=0,lte=1"`
}

// DisplayRequest selects what frames show.
type DisplayRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// Server routes HTTP requests to an Evolver. Every evolver call goes through
// Evolver.Do, so Run must be active for requests to complete.
type Server struct {
	ev     *evolve.Evolver
	opts   Options
	hub    *Hub
	pngs   *cache.Cache[pngKey, []byte]
	engine *gin.Engine
}

// New creates a server for ev.
func New(ev *evolve.Evolver, opts Options) *Server {
	if opts.MaxImageSize <= 0 {
		opts.MaxImageSize = defaultMaxImageSize
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBody
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = defaultStatsEvery
	}
	if opts.PNGCacheBytes <= 0 {
		opts.PNGCacheBytes = defaultPNGCache
	}
	s := &Server{
		ev:   ev,
		opts: opts,
		hub:  NewHub(),
		pngs: cache.New[pngKey, []byte](opts.PNGCacheBytes),
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests())

	r.GET("/", s.handleIndex)
	r.GET("/stats", s.handleStats)
	r.POST("/start", s.control((*evolve.Evolver).Start))
	r.POST("/stop", s.control((*evolve.Evolver).Stop))
	r.POST("/optimize", s.control((*evolve.Evolver).Optimize))

	r.POST("/target", s.handleSetTarget)
	r.GET("/target.png", s.handleTarget)
	r.GET("/image.png", s.handleImage)
	r.GET("/frame.png", s.handleFrame)
	r.GET("/strokes", s.handleExportStrokes)
	r.POST("/strokes", s.handleImportStrokes)

	f := r.Group("/focus")
	f.POST("/edit", s.handleFocusEdit)
	f.POST("/paint", s.handleFocusPaint)
	f.POST("/fill", s.handleFocusFill)
	f.POST("/save", s.handleFocusSave)
	f.POST("/cancel", s.handleFocusCancel)
	f.POST("/clear", s.handleFocusClear)

	r.GET("/config", s.handleGetConfig)
	r.PUT("/config", s.handlePutConfig)
	r.POST("/display", s.handleDisplay)

	if s.opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.opts.Metrics.Handler()))
	}
	r.GET("/ws", s.hub.ServeWS)
	return r
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		evolve.Logger().Debug("server: request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

// do runs fn on the evolver goroutine and reports a failure to the client.
func (s *Server) do(c *gin.Context, fn func(*evolve.Evolver) error) bool {
	var ferr error
	if err := s.ev.Do(c.Request.Context(), func(ev *evolve.Evolver) { ferr = fn(ev) }); err != nil {
		abort(c, err)
		return false
	}
	if ferr != nil {
		abort(c, ferr)
		return false
	}
	return true
}

func abort(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		evolve.Logger().Error("server: request failed", "path", c.FullPath(), "err", err)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, evolve.ErrNoImage):
		return http.StatusConflict, "NO_IMAGE"
	case errors.Is(err, evolve.ErrEditing):
		return http.StatusConflict, "EDITING"
	case errors.Is(err, evolve.ErrNotEditing):
		return http.StatusConflict, "NOT_EDITING"
	case errors.Is(err, evolve.ErrInvalidConfig):
		return http.StatusBadRequest, "INVALID_CONFIG"
	case errors.Is(err, stroke.ErrInvalidDocument):
		return http.StatusBadRequest, "INVALID_STROKES"
	case errors.Is(err, imageio.ErrEmpty):
		return http.StatusBadRequest, "INVALID_IMAGE"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, evolve.ErrClosed):
		return http.StatusServiceUnavailable, "CLOSED"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

var errBadRequest = errors.New("bad request")

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func badRequest(err error) error {
	return errors.Join(errBadRequest, err)
}

func (s *Server) handleIndex(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name": "evolve",
		"endpoints": []string{
			"GET /stats", "POST /start", "POST /stop", "POST /optimize",
			"POST /target", "GET /target.png", "GET /image.png", "GET /frame.png",
			"GET /strokes", "POST /strokes",
			"POST /focus/{edit,paint,fill,save,cancel,clear}",
			"GET /config", "PUT /config", "POST /display", "GET /ws",
		},
	})
}

func (s *Server) handleStats(c *gin.Context) {
	var st evolve.Stats
	if !s.do(c, func(ev *evolve.Evolver) error { st = ev.Stats(); return nil }) {
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) control(op func(*evolve.Evolver) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var resp StatusResponse
		ok := s.do(c, func(ev *evolve.Evolver) error {
			if ev.Stats().Width == 0 {
				return evolve.ErrNoImage
			}
			resp.Changed = op(ev)
			resp.State = ev.State()
			return nil
		})
		if ok {
			c.JSON(http.StatusOK, resp)
		}
	}
}

func (s *Server) body(c *gin.Context) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxBodyBytes))
	if err != nil {
		return nil, badRequest(err)
	}
	return data, nil
}

func (s *Server) handleSetTarget(c *gin.Context) {
	var r io.Reader
	if fh, err := c.FormFile("image"); err == nil {
		f, err := fh.Open()
		if err != nil {
			abort(c, badRequest(err))
			return
		}
		defer f.Close()
		r = f
	} else {
		data, err := s.body(c)
		if err != nil {
			abort(c, err)
			return
		}
		r = bytes.NewReader(data)
	}
	img, format, err := imageio.Decode(r)
	if err != nil {
		if !errors.Is(err, imageio.ErrEmpty) {
			err = badRequest(err)
		}
		abort(c, err)
		return
	}
	fit := imageio.Fit(img, s.opts.MaxImageSize)

	var st evolve.Stats
	if !s.do(c, func(ev *evolve.Evolver) error {
		if err := ev.SetTargetImage(fit); err != nil {
			return err
		}
		st = ev.Stats()
		return nil
	}) {
		return
	}
	evolve.Logger().Info("server: target set", "format", format, "width", st.Width, "height", st.Height)
	s.hub.Publish(Event{Type: "stats", Stats: &st})
	c.JSON(http.StatusOK, st)
}

func (s *Server) writePNG(c *gin.Context, get func(*evolve.Evolver) (*image.RGBA, error)) {
	var img *image.RGBA
	if !s.do(c, func(ev *evolve.Evolver) error {
		var err error
		img, err = get(ev)
		return err
	}) {
		return
	}
	var buf bytes.Buffer
	if err := imageio.EncodePNG(&buf, img); err != nil {
		abort(c, err)
		return
	}
	sendPNG(c, buf.Bytes())
}

func sendPNG(c *gin.Context, data []byte) {
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", data)
}

// pngKey identifies an encoded image. Targets never change within a session
// and paintings are identified by their revision.
type pngKey struct {
	kind     string
	session  string
	revision uint64
}

// writeCachedPNG serves the painting or target, encoding it only when its key
// is not cached. Encoding happens off the evolver goroutine.
func (s *Server) writeCachedPNG(c *gin.Context, kind string) {
	var (
		key  pngKey
		data []byte
		img  *image.RGBA
	)
	if !s.do(c, func(ev *evolve.Evolver) error {
		st := ev.Stats()
		if st.Session == "" {
			return evolve.ErrNoImage
		}
		key = pngKey{kind: kind, session: st.Session}
		if kind == "painting" {
			key.revision = st.Revision
		}
		var ok bool
		if data, ok = s.pngs.Get(key); ok {
			return nil
		}
		var err error
		if kind == "painting" {
			img, err = ev.ExportImage()
		} else {
			img, err = ev.Target()
		}
		return err
	}) {
		return
	}
	if data == nil {
		var buf bytes.Buffer
		if err := imageio.EncodePNG(&buf, img); err != nil {
			abort(c, err)
			return
		}
		data = buf.Bytes()
		s.pngs.Set(key, data, len(data))
	}
	sendPNG(c, data)
}

func (s *Server) handleImage(c *gin.Context) { s.writeCachedPNG(c, "painting") }

func (s *Server) handleTarget(c *gin.Context) { s.writeCachedPNG(c, "target") }

func (s *Server) handleFrame(c *gin.Context) {
	s.writePNG(c, func(ev *evolve.Evolver) (*image.RGBA, error) {
		fr, err := ev.Frame()
		if err != nil {
			return nil, err
		}
		return fr.Image, nil
	})
}

func (s *Server) handleExportStrokes(c *gin.Context) {
	var data []byte
	if !s.do(c, func(ev *evolve.Evolver) error {
		var err error
		data, err = ev.ExportStrokes()
		return err
	}) {
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

func (s *Server) handleImportStrokes(c *gin.Context) {
	data, err := s.body(c)
	if err != nil {
		abort(c, err)
		return
	}
	var st evolve.Stats
	if !s.do(c, func(ev *evolve.Evolver) error {
		if err := ev.ImportStrokes(data); err != nil {
			return err
		}
		st = ev.Stats()
		return nil
	}) {
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleFocusEdit(c *gin.Context) {
	if s.do(c, (*evolve.Evolver).EditFocusMap) {
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleFocusPaint(c *gin.Context) {
	var req FocusPaintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, badRequest(err))
		return
	}
	if s.do(c, func(ev *evolve.Evolver) error {
		return ev.PaintFocus(req.X, req.Y, req.Radius, *req.Value)
	}) {
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleFocusFill(c *gin.Context) {
	var req FocusFillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, badRequest(err))
		return
	}
	if s.do(c, func(ev *evolve.Evolver) error { return ev.FillFocus(*req.Value) }) {
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleFocusSave(c *gin.Context) {
	if s.do(c, (*evolve.Evolver).SaveFocusMap) {
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleFocusCancel(c *gin.Context) {
	if s.do(c, func(ev *evolve.Evolver) error { ev.CancelFocusMap(); return nil }) {
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleFocusClear(c *gin.Context) {
	if s.do(c, func(ev *evolve.Evolver) error {
		if ev.Stats().Width == 0 {
			return evolve.ErrNoImage
		}
		ev.ClearFocusMap()
		return nil
	}) {
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleGetConfig(c *gin.Context) {
	var cfg evolve.Config
	if s.do(c, func(ev *evolve.Evolver) error { cfg = ev.Config(); return nil }) {
		c.JSON(http.StatusOK, cfg)
	}
}

// handlePutConfig merges the JSON body over the current settings.
func (s *Server) handlePutConfig(c *gin.Context) {
	data, err := s.body(c)
	if err != nil {
		abort(c, err)
		return
	}
	var cfg evolve.Config
	if !s.do(c, func(ev *evolve.Evolver) error {
		next := ev.Config()
		if err := decodeStrict(data, &next); err != nil {
			return badRequest(err)
		}
		if err := ev.SetConfig(next); err != nil {
			return err
		}
		cfg = ev.Config()
		return nil
	}) {
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleDisplay(c *gin.Context) {
	var req DisplayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, badRequest(err))
		return
	}
	mode, err := evolve.ParseDisplayMode(req.Mode)
	if err != nil {
		abort(c, badRequest(err))
		return
	}
	if s.do(c, func(ev *evolve.Evolver) error { ev.SetDisplayMode(mode); return nil }) {
		c.JSON(http.StatusOK, gin.H{"mode": mode.String()})
	}
}

// RunStats publishes a stats event every Options.StatsInterval while clients
// are connected, until ctx is done.
func (s *Server) RunStats(ctx context.Context) error {
	t := time.NewTicker(s.opts.StatsInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if s.hub.Clients() == 0 {
				continue
			}
			var st evolve.Stats
			if err := s.ev.Do(ctx, func(ev *evolve.Evolver) { st = ev.Stats() }); err != nil {
				return err
			}
			s.hub.Publish(Event{Type: "stats", Stats: &st})
		}
	}
}

// PublishSnapshot announces a snapshot to websocket clients. It is safe to use
// as an evolve.WithSnapshotHandler callback.
func (s *Server) PublishSnapshot(snap evolve.Snapshot) {
	s.hub.Publish(Event{Type: "snapshot", Seq: snap.Seq, Similarity: snap.Similarity})
}

// PublishNotice forwards a notice to websocket clients.
func (s *Server) PublishNotice(n evolve.Notice) {
	s.hub.Publish(Event{Type: "notice", Level: n.Level.String(), Message: n.Message, Time: n.Time})
}
