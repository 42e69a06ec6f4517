// Package server exposes an export pipeline over HTTP.
//
// One Server owns one sequence, one player and one pipeline, so at most one
// export runs at a time; a second start is answered with 409 Conflict.
// Exports run in the background: POST /exports returns 202 as soon as the
// job is admitted, and progress is polled through GET /exports/current.
//
// # Routes
//
//	POST   /exports            start an export (JSON body, all fields optional)
//	GET    /exports/current    running job, or the last finished one
//	DELETE /exports/current    request cancellation of the running job
//	GET    /playback           player position
//	POST   /playback/toggle    play or pause
//	POST   /playback/seek      jump to ?beat=
//	GET    /pool/stats         canvas pool usage
//	GET    /plan               dimension plan for ?beats=&start=&scale=&title=&footer=
//	GET    /metrics            export, pool and cache counters (when configured)
//	GET    /healthz            liveness
package server

import (
	"context"
	"encoding/json"
	"image/color"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/seqexport/pkg/buildinfo"
	"github.com/matzehuels/seqexport/pkg/dimension"
	"github.com/matzehuels/seqexport/pkg/errors"
	"github.com/matzehuels/seqexport/pkg/export"
	"github.com/matzehuels/seqexport/pkg/observability"
	"github.com/matzehuels/seqexport/pkg/sequence"
)

// Config wires a Server.
type Config struct {
	Runner   *export.Runner
	Sequence *sequence.Sequence

	// Scale, Title and Footer fix the frame layout for every export.
	Scale  float64
	Title  bool
	Footer bool

	// Defaults are merged under every request body.
	Defaults export.Options

	// Metrics, when set, is reported at GET /metrics.
	Metrics *observability.Counters

	Logger *log.Logger
}

// Summary describes the most recent finished export.
type Summary struct {
	JobID      string       `json:"id"`
	Stage      export.Stage `json:"stage"`
	Format     string       `json:"format"`
	Filename   string       `json:"filename,omitempty"`
	Bytes      int          `json:"bytes"`
	Frames     int          `json:"frames"`
	DurationMS int64        `json:"duration_ms"`
	Error      string       `json:"error,omitempty"`
	Code       errors.Code  `json:"code,omitempty"`
}

// Server is the HTTP control surface for one sequence.
type Server struct {
	runner   *export.Runner
	pipeline *export.Pipeline
	player   *sequence.Player
	overlay  *sequence.TitleOverlay
	seq      *sequence.Sequence
	layout   dimension.Request
	defaults export.Options
	metrics  *observability.Counters
	logger   *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	jobs   sync.WaitGroup

	mu   sync.Mutex
	last *Summary

	router chi.Router
}

// New builds the renderer, overlay, player and pipeline for cfg.Sequence.
// Jobs run under ctx; Close cancels them.
func New(ctx context.Context, cfg Config) (*Server, error) {
	if cfg.Runner == nil || cfg.Sequence == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "server needs a runner and a sequence")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = cfg.Runner.Logger
	}
	scale := cfg.Scale
	if scale == 0 {
		scale = 1
	}

	layout := cfg.Sequence.LayoutRequest(scale, cfg.Title, cfg.Footer)
	plan, err := dimension.Plan(layout)
	if err != nil {
		return nil, err
	}
	renderer, err := sequence.NewRenderer(cfg.Sequence, plan, sequence.DefaultStyle)
	if err != nil {
		return nil, err
	}
	overlay, err := sequence.NewTitleOverlay(cfg.Sequence, renderer, color.RGBA{R: 0x22, G: 0x22, B: 0x22, A: 0xff})
	if err != nil {
		return nil, err
	}
	player := sequence.NewPlayer(cfg.Sequence)
	pipeline, err := cfg.Runner.NewPipeline(export.Binding{
		Source:   renderer,
		Playback: player,
		Overlay:  overlay,
	})
	if err != nil {
		overlay.Close()
		return nil, err
	}

	jobCtx, cancel := context.WithCancel(ctx)
	s := &Server{
		runner:   cfg.Runner,
		pipeline: pipeline,
		player:   player,
		overlay:  overlay,
		seq:      cfg.Sequence,
		layout:   layout,
		defaults: cfg.Defaults,
		metrics:  cfg.Metrics,
		logger:   logger,
		ctx:      jobCtx,
		cancel:   cancel,
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Close cancels any running export, waits for it to stop and releases fonts.
func (s *Server) Close() error {
	s.cancel()
	s.pipeline.CancelExport()
	s.jobs.Wait()
	return s.overlay.Close()
}

type healthResponse struct {
	Status string         `json:"status"`
	Build  buildinfo.Info `json:"build"`
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Build: buildinfo.Get()})
	})

	r.Route("/exports", func(r chi.Router) {
		r.Post("/", s.handleStartExport)
		r.Get("/current", s.handleCurrentExport)
		r.Delete("/current", s.handleCancelExport)
	})

	r.Route("/playback", func(r chi.Router) {
		r.Get("/", s.handlePlayback)
		r.Post("/toggle", s.handleToggle)
		r.Post("/seek", s.handleSeek)
	})

	r.Get("/pool/stats", s.handlePoolStats)
	r.Get("/plan", s.handlePlan)
	if s.metrics != nil {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, s.metrics.Snapshot())
		})
	}
	return r
}

// =============================================================================
// Exports
// =============================================================================

// StartRequest is the body of POST /exports. Zero fields use the server
// defaults.
type StartRequest struct {
	Format        string  `json:"format"`
	FramesPerBeat int     `json:"frames_per_beat"`
	BPM           float64 `json:"bpm"`
	Quality       int     `json:"quality"`
	Repeat        *int    `json:"repeat"`
	WebPQuality   int     `json:"webp_quality"`
	Lossless      *bool   `json:"lossless"`
	Filename      string  `json:"filename"`
}

func (s *Server) options(req StartRequest) export.Options {
	opts := s.defaults
	if req.Format != "" {
		opts.Format = req.Format
	}
	if req.FramesPerBeat != 0 {
		opts.FramesPerBeat = req.FramesPerBeat
	}
	if req.BPM != 0 {
		opts.BPM = req.BPM
	}
	if opts.BPM == 0 {
		opts.BPM = s.seq.BPM
	}
	if req.Quality != 0 {
		opts.Quality = req.Quality
	}
	if req.Repeat != nil {
		opts.Repeat = *req.Repeat
	}
	if req.WebPQuality != 0 {
		opts.WebPQuality = req.WebPQuality
	}
	if req.Lossless != nil {
		opts.Lossless = *req.Lossless
	}
	if req.Filename != "" {
		opts.Filename = req.Filename
	}
	return opts
}

func (s *Server) handleStartExport(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && err != io.EOF {
			writeError(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid request body"))
			return
		}
	}

	opts := s.options(req)
	started := make(chan export.JobStatus, 1)
	var admitted *export.JobStatus
	opts.OnStart = func(st export.JobStatus) {
		admitted = &st
		started <- st
	}

	done := make(chan error, 1)
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		res, err := s.runner.Export(s.ctx, s.pipeline, export.Request{
			Layout:  s.layout,
			Options: opts,
			Title:   s.seq.Title,
		})
		// OnStart runs on this goroutine, so admitted is settled here.
		if admitted != nil {
			s.record(*admitted, res, err)
		}
		done <- err
	}()

	select {
	case st := <-started:
		writeJSON(w, http.StatusAccepted, st)
	case err := <-done:
		select {
		case st := <-started:
			writeJSON(w, http.StatusAccepted, st)
		default:
			writeError(w, err)
		}
	}
}

func (s *Server) handleCurrentExport(w http.ResponseWriter, r *http.Request) {
	if st, ok := s.pipeline.CurrentJob(); ok {
		writeJSON(w, http.StatusOK, st)
		return
	}
	if last := s.lastSummary(); last != nil {
		writeJSON(w, http.StatusOK, last)
		return
	}
	writeError(w, errors.New(errors.ErrCodeNotFound, "no export has run yet"))
}

func (s *Server) handleCancelExport(w http.ResponseWriter, r *http.Request) {
	st, ok := s.pipeline.CurrentJob()
	if !ok {
		writeError(w, errors.New(errors.ErrCodeNotFound, "no export is running"))
		return
	}
	s.pipeline.CancelExport()
	st.Cancelling = true
	writeJSON(w, http.StatusAccepted, st)
}

func (s *Server) record(st export.JobStatus, res *export.Result, err error) {
	sum := &Summary{
		JobID:      st.ID,
		Stage:      export.StageComplete,
		Format:     st.Format,
		DurationMS: time.Since(st.StartedAt).Milliseconds(),
	}
	switch {
	case err != nil:
		sum.Stage = export.StageError
		sum.Error = errors.UserMessage(err)
		sum.Code = errors.GetCode(err)
	case res.Cancelled:
		sum.Stage = export.StageCancelled
	}
	if res != nil {
		sum.Filename = res.Filename
		sum.Bytes = len(res.Blob)
		sum.Frames = res.Frames
		sum.DurationMS = res.Stats.TotalTime.Milliseconds()
	}

	s.mu.Lock()
	s.last = sum
	s.mu.Unlock()
	s.logger.Info("export finished", "job", sum.JobID, "stage", sum.Stage, "bytes", sum.Bytes)
}

func (s *Server) lastSummary() *Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	cp := *s.last
	return &cp
}

// =============================================================================
// Playback
// =============================================================================

type playbackState struct {
	Beat    float64 `json:"beat"`
	Playing bool    `json:"playing"`
	Beats   int     `json:"beats"`
}

func (s *Server) playbackState() playbackState {
	return playbackState{
		Beat:    s.player.Advance(),
		Playing: s.player.IsPlaying(),
		Beats:   s.seq.Beats,
	}
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.playbackState())
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	err := s.pipeline.WithIdlePlayback(func(export.PlaybackController) {
		s.player.Advance()
		s.player.TogglePlayback()
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.playbackState())
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	beat, err := strconv.ParseFloat(r.URL.Query().Get("beat"), 64)
	if err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "beat must be a number"))
		return
	}
	err = s.pipeline.WithIdlePlayback(func(pc export.PlaybackController) {
		pc.JumpToBeat(beat)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.playbackState())
}

// =============================================================================
// Pool and planning
// =============================================================================

func (s *Server) handlePoolStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.Pool.Stats())
}

type planResponse struct {
	dimension.LayoutPlan
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := dimension.Request{Scale: 1}
	var err error
	if v := q.Get("beats"); v != "" {
		if req.BeatCount, err = strconv.Atoi(v); err != nil {
			writeError(w, errors.Wrap(errors.ErrCodeInvalidDimensionInput, err, "beats must be an integer"))
			return
		}
	} else {
		req.BeatCount = s.seq.Beats
	}
	if v := q.Get("scale"); v != "" {
		if req.Scale, err = strconv.ParseFloat(v, 64); err != nil {
			writeError(w, errors.Wrap(errors.ErrCodeInvalidDimensionInput, err, "scale must be a number"))
			return
		}
	}
	for name, dst := range map[string]*bool{
		"start":  &req.IncludeStartPosition,
		"title":  &req.WantTitle,
		"footer": &req.WantFooter,
	} {
		if v := q.Get(name); v != "" {
			if *dst, err = strconv.ParseBool(v); err != nil {
				writeError(w, errors.Wrap(errors.ErrCodeInvalidDimensionInput, err, "%s must be a boolean", name))
				return
			}
		}
	}

	plan, err := dimension.Plan(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, planResponse{LayoutPlan: plan, Width: plan.Width(), Height: plan.Height()})
}

// =============================================================================
// Helpers
// =============================================================================

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

type errorResponse struct {
	Error string      `json:"error"`
	Code  errors.Code `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	writeJSON(w, statusFor(code), errorResponse{Error: errors.UserMessage(err), Code: code})
}

func statusFor(code errors.Code) int {
	switch code {
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidDimensionInput, errors.ErrCodeInvalidFormat,
		errors.ErrCodeInvalidPath, errors.ErrCodeInvalidSequence:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeConcurrentExport:
		return http.StatusConflict
	case errors.ErrCodeMemoryBudgetExceeded:
		return http.StatusInsufficientStorage
	case errors.ErrCodeUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
