package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/seqexport/pkg/config"
	"github.com/matzehuels/seqexport/pkg/delivery"
	"github.com/matzehuels/seqexport/pkg/observability"
	"github.com/matzehuels/seqexport/pkg/server"
)

// serveOpts holds the command-line flags for the serve command.
type serveOpts struct {
	addr    string
	output  string
	noCache bool
}

func (c *CLI) serveCommand() *cobra.Command {
	var opts serveOpts

	cmd := &cobra.Command{
		Use:   "serve [sequence.toml]",
		Short: "Serve the export pipeline over HTTP",
		Long: `Serve loads one sequence and exposes its player and export pipeline over
HTTP. Exports run in the background and are written to the output directory;
only one export runs at a time.`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeSequenceFile,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if opts.addr == "" {
				opts.addr = cfg.Server.Addr
			}
			return c.runServe(cmd.Context(), cfg, args, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (default from config, else "+config.DefaultServerAddr+")")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output directory")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable caching")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, cfg *config.Config, args []string, opts *serveOpts) error {
	seq, err := loadSequence(args)
	if err != nil {
		return err
	}

	runner, store, _, err := c.newRunner(ctx, cfg, runnerOpts{noCache: opts.noCache, outputDir: opts.output})
	if err != nil {
		return err
	}
	defer store.Close()
	if dir, ok := runner.Delivery.(*delivery.Dir); ok {
		unlock, err := dir.Lock()
		if err != nil {
			return err
		}
		defer unlock()
	}
	runner.Pool.Start()
	defer runner.Pool.Close()

	metrics := observability.NewCounters()
	metrics.Register()
	defer observability.Reset()

	srv, err := server.New(ctx, server.Config{
		Runner:   runner,
		Sequence: seq,
		Scale:    cfg.Export.Scale,
		Title:    cfg.Export.Title,
		Footer:   cfg.Export.Footer,
		Defaults: cfg.ExportOptions(),
		Metrics:  metrics,
		Logger:   c.Logger,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	ln, err := net.Listen("tcp", opts.addr)
	if err != nil {
		return err
	}
	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- httpSrv.Serve(ln) }()

	printSuccess("Serving %s", StyleHighlight.Render(seq.Title))
	printKeyValue("listen", StyleLink.Render("http://"+ln.Addr().String()))
	printKeyValue("beats", StyleNumber.Render(fmt.Sprint(seq.Beats)))
	printNextStep("Start an export", "curl -X POST http://"+ln.Addr().String()+"/exports")

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := cfg.Server.ShutdownTimeout.Duration
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	c.Logger.Info("shutting down", "timeout", timeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return ctx.Err()
}
