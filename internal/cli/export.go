package cli

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/matzehuels/seqexport/pkg/cache"
	"github.com/matzehuels/seqexport/pkg/config"
	"github.com/matzehuels/seqexport/pkg/delivery"
	"github.com/matzehuels/seqexport/pkg/dimension"
	"github.com/matzehuels/seqexport/pkg/export"
	"github.com/matzehuels/seqexport/pkg/sequence"
)

// overlayInk is the colour of title and footer text.
var overlayInk = color.RGBA{R: 0x22, G: 0x22, B: 0x22, A: 0xff}

// exportOpts holds the command-line flags for the export command. Flags that
// are not set on the command line fall back to the config file.
type exportOpts struct {
	format        string
	output        string
	filename      string
	framesPerBeat int
	bpm           float64
	scale         float64
	title         bool
	footer        bool
	quality       int
	repeat        int
	webpQuality   int
	lossless      bool
	noCache       bool
	realtime      bool
	interactive   bool
}

// exportJob is everything runExport needs after flags and config are merged.
type exportJob struct {
	seq      *sequence.Sequence
	layout   dimension.Request
	options  export.Options
	scale    float64
	filename string
}

func (c *CLI) exportCommand() *cobra.Command {
	var opts exportOpts

	cmd := &cobra.Command{
		Use:   "export [sequence.toml]",
		Short: "Export a sequence as an animated GIF or WebP",
		Long: `Export plays the sequence from beat 0 to its last beat, captures every frame
onto a grid of beat cells and writes the encoded animation to the output
directory. Without a file argument the built-in demo sequence is exported.`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeSequenceFile,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			seq, err := loadSequence(args)
			if err != nil {
				return err
			}
			job := mergeExportFlags(cmd, cfg, seq, &opts)
			return c.runExport(cmd.Context(), cfg, job, &opts)
		},
	}

	addExportFlags(cmd.Flags(), &opts)
	_ = cmd.RegisterFlagCompletionFunc("format", completeFormat)

	return cmd
}

func addExportFlags(fs *pflag.FlagSet, o *exportOpts) {
	fs.StringVarP(&o.format, "format", "f", "", "output format: gif (default), webp")
	fs.StringVarP(&o.output, "output", "o", "", "output directory (default from config, else .)")
	fs.StringVar(&o.filename, "filename", "", "output file name (default derived from the title)")
	fs.IntVar(&o.framesPerBeat, "frames-per-beat", 0, "frames captured per beat")
	fs.Float64Var(&o.bpm, "bpm", 0, "playback tempo (default from the sequence)")
	fs.Float64Var(&o.scale, "scale", 0, "beat cell scale factor")
	fs.BoolVar(&o.title, "title", true, "reserve a title band above the grid")
	fs.BoolVar(&o.footer, "footer", false, "reserve a footer band below the grid")
	fs.IntVar(&o.quality, "quality", 0, "GIF quantiser quality, 1 (best) to 30")
	fs.IntVar(&o.repeat, "repeat", 0, "GIF loop count: 0 forever, -1 once")
	fs.IntVar(&o.webpQuality, "webp-quality", 0, "WebP quality, 0 to 100")
	fs.BoolVar(&o.lossless, "lossless", false, "lossless WebP")
	fs.BoolVar(&o.noCache, "no-cache", false, "disable caching")
	fs.BoolVar(&o.realtime, "realtime", false, "pace captures to the render frame rate")
	fs.BoolVarP(&o.interactive, "interactive", "i", false, "show a live progress view (terminal only)")
}

// mergeExportFlags layers explicitly set flags over the config defaults.
func mergeExportFlags(cmd *cobra.Command, cfg *config.Config, seq *sequence.Sequence, o *exportOpts) exportJob {
	set := cmd.Flags().Changed
	opts := cfg.ExportOptions()

	if set("format") {
		opts.Format = o.format
	}
	if set("frames-per-beat") {
		opts.FramesPerBeat = o.framesPerBeat
	}
	if set("bpm") {
		opts.BPM = o.bpm
	}
	if opts.BPM == 0 {
		opts.BPM = seq.BPM
	}
	if set("quality") {
		opts.Quality = o.quality
	}
	if set("repeat") {
		opts.Repeat = o.repeat
	}
	if set("webp-quality") {
		opts.WebPQuality = o.webpQuality
	}
	if set("lossless") {
		opts.Lossless = o.lossless
	}
	if opts.Format == "" {
		opts.Format = export.DefaultFormat
	}
	if opts.FramesPerBeat == 0 {
		opts.FramesPerBeat = export.DefaultFramesPerBeat
	}

	scale := cfg.Export.Scale
	if set("scale") {
		scale = o.scale
	}
	if scale == 0 {
		scale = config.DefaultScale
	}
	title, footer := cfg.Export.Title, cfg.Export.Footer
	if set("title") {
		title = o.title
	}
	if set("footer") {
		footer = o.footer
	}

	return exportJob{
		seq:      seq,
		layout:   seq.LayoutRequest(scale, title, footer),
		options:  opts,
		scale:    scale,
		filename: o.filename,
	}
}

// artifactKey identifies the finished bytes of job.
func (j exportJob) artifactKey(keyer cache.Keyer) string {
	return keyer.ArtifactKey(j.seq.Hash(), cache.ArtifactKeyOpts{
		Format:        j.options.Format,
		FramesPerBeat: j.options.FramesPerBeat,
		BPM:           j.options.BPM,
		Scale:         j.scale,
		Quality:       j.options.Quality,
		Repeat:        j.options.Repeat,
		Title:         j.layout.WantTitle,
		Footer:        j.layout.WantFooter,
		WebPQuality:   j.options.WebPQuality,
		Lossless:      j.options.Lossless,
	})
}

func (c *CLI) runExport(ctx context.Context, cfg *config.Config, job exportJob, o *exportOpts) error {
	logger := c.Logger
	prog := newProgress(logger)

	var clock export.FrameClock = export.Immediate{}
	if o.realtime {
		clock = export.NewTicker(cfg.Export.FrameRate)
	}
	runner, store, keyer, err := c.newRunner(ctx, cfg, runnerOpts{noCache: o.noCache, outputDir: o.output, clock: clock})
	if err != nil {
		return err
	}
	defer store.Close()
	defer runner.Pool.Close()

	filename := job.filename
	if filename == "" {
		filename = delivery.Filename(job.seq.Title, job.options.Format, runner.Now())
	}
	job.options.Filename = filename
	outPath := filepath.Join(o.output, filename)
	if dir, ok := runner.Delivery.(*delivery.Dir); ok {
		outPath = filepath.Join(dir.Path(), filename)
	}

	key := job.artifactKey(keyer)
	if blob, ok, err := store.Get(ctx, key); err != nil {
		logger.Warn("artifact cache read failed", "err", err)
	} else if ok {
		if err := runner.Delivery.Save(ctx, blob, filename); err != nil {
			return err
		}
		printSuccess("Exported %s", job.displayTitle())
		printFile(outPath)
		printExportStats(0, len(blob), true)
		return nil
	}

	pipeline, closeBinding, err := bindSequence(runner, job.seq, job.layout)
	if err != nil {
		return err
	}
	defer closeBinding()

	run := func(ctx context.Context, onProgress export.ProgressFunc) (*export.Result, error) {
		opts := job.options
		opts.OnProgress = onProgress
		return runner.Export(ctx, pipeline, export.Request{Layout: job.layout, Options: opts, Title: job.seq.Title})
	}

	var res *export.Result
	switch {
	case o.interactive && stderrIsTerminal():
		res, err = runInteractive(ctx, NewExportModel(job.seq.Title, job.options.Format, pipeline.CancelExport), run)
	case stderrIsTerminal():
		res, err = runWithSpinner(ctx, run)
	default:
		res, err = run(ctx, logProgress(logger))
	}
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if res.Cancelled {
		printWarning("Export cancelled")
		return nil
	}

	if err := store.Set(ctx, key, res.Blob, cache.TTLArtifact); err != nil {
		logger.Warn("artifact cache write failed", "err", err)
	}
	prog.done("Export finished")
	printSuccess("Exported %s", job.displayTitle())
	printFile(outPath)
	printExportStats(res.Frames, len(res.Blob), false)
	return nil
}

func (j exportJob) displayTitle() string {
	if j.seq.Title == "" {
		return fmt.Sprintf("%d-beat sequence", j.seq.Beats)
	}
	return j.seq.Title
}

// bindSequence builds the renderer, overlay and player for seq and binds
// them to a new pipeline on runner.
func bindSequence(runner *export.Runner, seq *sequence.Sequence, layout dimension.Request) (*export.Pipeline, func(), error) {
	plan, err := runner.Plan(export.Request{Layout: layout})
	if err != nil {
		return nil, nil, err
	}
	renderer, err := sequence.NewRenderer(seq, plan, sequence.DefaultStyle)
	if err != nil {
		return nil, nil, err
	}
	overlay, err := sequence.NewTitleOverlay(seq, renderer, overlayInk)
	if err != nil {
		return nil, nil, err
	}
	pipeline, err := runner.NewPipeline(export.Binding{
		Source:   renderer,
		Playback: sequence.NewPlayer(seq),
		Overlay:  overlay,
	})
	if err != nil {
		overlay.Close()
		return nil, nil, err
	}
	return pipeline, func() { overlay.Close() }, nil
}

// runWithSpinner shows the current stage and frame count next to a spinner.
func runWithSpinner(ctx context.Context, run func(context.Context, export.ProgressFunc) (*export.Result, error)) (*export.Result, error) {
	spinner := newSpinnerWithContext(ctx, "Starting export...")
	spinner.Start()
	defer spinner.Stop()

	return run(ctx, func(ev export.Progress) {
		spinner.SetMessage(progressText(ev))
	})
}

// logProgress reports stage changes at info level and frames at debug level.
func logProgress(logger *log.Logger) export.ProgressFunc {
	var last export.Stage
	return func(ev export.Progress) {
		if ev.Stage == export.StageCapturing && last == export.StageCapturing {
			logger.Debug("captured frame", "frame", ev.Current, "total", ev.Total)
			return
		}
		last = ev.Stage
		if ev.Stage == export.StageError {
			logger.Error("export failed", "err", ev.Error)
			return
		}
		logger.Info(progressText(ev))
	}
}

func progressText(ev export.Progress) string {
	switch ev.Stage {
	case export.StageCapturing:
		return fmt.Sprintf("Capturing frame %d/%d", ev.Current, ev.Total)
	case export.StageEncoding:
		return "Encoding..."
	case export.StageTranscoding:
		return "Transcoding..."
	case export.StageComplete:
		return "Complete"
	case export.StageError:
		return "Failed: " + ev.Error
	}
	return string(ev.Stage)
}

func stderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
