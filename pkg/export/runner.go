package export

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/seqexport/pkg/canvas"
	"github.com/matzehuels/seqexport/pkg/delivery"
	"github.com/matzehuels/seqexport/pkg/dimension"
	"github.com/matzehuels/seqexport/pkg/encode"
	"github.com/matzehuels/seqexport/pkg/transcode"
)

// Runner owns the process-wide collaborators (pool, encoder, transcoder,
// delivery) and builds pipelines bound to a particular player. Both the CLI
// and the HTTP server go through it, so sizing and naming stay consistent.
type Runner struct {
	Pool       *canvas.Pool
	Encoder    encode.Encoder
	Transcoder transcode.Transcoder
	Delivery   Delivery
	Clock      FrameClock
	Logger     *log.Logger

	// Now is used for generated filenames.
	Now func() time.Time
}

// NewRunner creates a runner. A nil pool gets a default one, a nil encoder
// the GIF encoder.
func NewRunner(pool *canvas.Pool, enc encode.Encoder, tc transcode.Transcoder, dl Delivery, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	if pool == nil {
		pool = canvas.NewPool(canvas.Config{Logger: logger})
	}
	if enc == nil {
		enc = encode.NewGIF()
	}
	return &Runner{
		Pool:       pool,
		Encoder:    enc,
		Transcoder: tc,
		Delivery:   dl,
		Logger:     logger,
		Now:        time.Now,
	}
}

// Binding is the per-sequence part of a pipeline.
type Binding struct {
	Source   FrameSource
	Playback PlaybackController
	Overlay  Overlay
}

// NewPipeline builds a pipeline that shares the runner's collaborators.
func (r *Runner) NewPipeline(b Binding) (*Pipeline, error) {
	return NewPipeline(Config{
		Pool:       r.Pool,
		Source:     b.Source,
		Playback:   b.Playback,
		Encoder:    r.Encoder,
		Transcoder: r.Transcoder,
		Delivery:   r.Delivery,
		Overlay:    b.Overlay,
		Clock:      r.Clock,
		Logger:     r.Logger,
	})
}

// Request is a sized export: the layout request determines the surface
// size, Options everything else.
type Request struct {
	Layout  dimension.Request
	Options Options

	// Title names the delivered file when Options.Filename is empty.
	Title string
}

// Plan computes the layout for req.
func (r *Runner) Plan(req Request) (dimension.LayoutPlan, error) {
	return dimension.Plan(req.Layout)
}

// Export plans the surface size, fills in beat count and filename, and runs
// the job on p.
func (r *Runner) Export(ctx context.Context, p *Pipeline, req Request) (*Result, error) {
	planStart := time.Now()
	plan, err := r.Plan(req)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	r.Logger.Debug("planned layout",
		"columns", plan.Columns,
		"rows", plan.Rows,
		"width", plan.Width(),
		"height", plan.Height(),
		"duration", time.Since(planStart))

	opts := req.Options
	opts.Width = plan.Width()
	opts.Height = plan.Height()
	if opts.TotalBeats == 0 {
		opts.TotalBeats = req.Layout.BeatCount
	}
	if opts.Format == "" {
		opts.Format = DefaultFormat
	}
	if opts.Filename == "" && r.Delivery != nil {
		opts.Filename = delivery.Filename(req.Title, opts.Format, r.Now())
	}
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}

	res, err := p.StartExport(ctx, opts)
	if err != nil {
		return nil, err
	}

	st := r.Pool.Stats()
	r.Logger.Debug("canvas pool after export",
		"pools", st.TotalPools,
		"canvases", st.TotalCanvases,
		"memory_mb", fmt.Sprintf("%.1f", st.MemoryUsageMB))
	return res, nil
}
