package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/seqexport/pkg/dimension"
)

// planOpts holds the command-line flags for the plan command.
type planOpts struct {
	beats  int  // beat count when no sequence file is given
	start  bool // include a start-position cell
	scale  float64
	title  bool
	footer bool
}

func (c *CLI) planCommand() *cobra.Command {
	opts := planOpts{scale: 1}

	cmd := &cobra.Command{
		Use:   "plan [sequence.toml]",
		Short: "Show the grid layout and image size of an export",
		Long: `Plan prints the beat grid, cell size and final image dimensions an export
would use. The layout comes from the sequence file, or from --beats and
--start when no file is given.`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeSequenceFile,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := dimension.Request{
				BeatCount:            opts.beats,
				IncludeStartPosition: opts.start,
				Scale:                opts.scale,
				WantTitle:            opts.title,
				WantFooter:           opts.footer,
			}
			if len(args) == 1 || !cmd.Flags().Changed("beats") {
				seq, err := loadSequence(args)
				if err != nil {
					return err
				}
				req = seq.LayoutRequest(opts.scale, opts.title, opts.footer)
			}

			plan, err := dimension.Plan(req)
			if err != nil {
				return err
			}
			printPlan(req, plan)
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.beats, "beats", 0, "beat count (instead of a sequence file)")
	cmd.Flags().BoolVar(&opts.start, "start", false, "include a start-position cell (with --beats)")
	cmd.Flags().Float64Var(&opts.scale, "scale", opts.scale, "beat cell scale factor")
	cmd.Flags().BoolVar(&opts.title, "title", false, "reserve a title band")
	cmd.Flags().BoolVar(&opts.footer, "footer", false, "reserve a footer band")

	return cmd
}

func printPlan(req dimension.Request, plan dimension.LayoutPlan) {
	fmt.Println(StyleTitle.Render(fmt.Sprintf("%d beats", req.BeatCount)))
	fmt.Println(renderGrid(req, plan))
	fmt.Println()

	printKeyValue("grid", StyleNumber.Render(fmt.Sprintf("%d × %d", plan.Columns, plan.Rows)))
	printKeyValue("cell", fmt.Sprintf("%d px", plan.BeatPixelSize))
	if plan.AdditionalHeightTop > 0 {
		printKeyValue("title", fmt.Sprintf("%d px", plan.AdditionalHeightTop))
	}
	if plan.AdditionalHeightBottom > 0 {
		printKeyValue("footer", fmt.Sprintf("%d px", plan.AdditionalHeightBottom))
	}
	printKeyValue("image", StyleHighlight.Render(fmt.Sprintf("%d × %d px", plan.Width(), plan.Height())))
	printKeyValue("frame", formatBytes(plan.Width()*plan.Height()*4))
}

// renderGrid draws the cell layout with the start cell marked S and unused
// trailing cells left blank.
func renderGrid(req dimension.Request, plan dimension.LayoutPlan) string {
	cells := req.BeatCount
	first := 1
	if req.IncludeStartPosition {
		cells++
		first = 0
	}
	rows := make([][]string, plan.Rows)
	for r := range rows {
		rows[r] = make([]string, plan.Columns)
		for col := range rows[r] {
			idx := r*plan.Columns + col
			switch {
			case idx >= cells:
			case idx == 0 && first == 0:
				rows[r][col] = "S"
			default:
				rows[r][col] = fmt.Sprint(idx + first)
			}
		}
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		BorderRow(true).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			return lipgloss.NewStyle().Width(4).Align(lipgloss.Center).Foreground(colorWhite)
		}).
		Render()
}
