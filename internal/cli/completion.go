package cli

import (
	"github.com/spf13/cobra"
)

// sequenceExts are the file extensions offered when completing a sequence
// argument.
var sequenceExts = []string{"toml"}

// completeSequenceFile completes the optional sequence file argument of
// export, plan and serve.
func completeSequenceFile(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return sequenceExts, cobra.ShellCompDirectiveFilterFileExt
}

// completeFormat completes --format values.
func completeFormat(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{"gif\tanimated GIF", "webp\tanimated WebP (needs ffmpeg)"}, cobra.ShellCompDirectiveNoFileComp
}

func (c *CLI) completionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate a completion script for your shell. Completion covers commands,
flags, --format values and sequence files (*.toml) for export, plan and serve.

  $ source <(seqexport completion bash)
  $ seqexport completion zsh > "${fpath[1]}/_seqexport"
  $ seqexport completion fish > ~/.config/fish/completions/seqexport.fish
  PS> seqexport completion powershell | Out-String | Invoke-Expression`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(out, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			default:
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
		},
	}
}
