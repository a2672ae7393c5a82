package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// completionCmd represents the completion command
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Print a completion script for the given shell to stdout.

Completion covers subcommands and flags; --config offers only YAML files
and the free-text search flags of 'start' offer nothing.

Examples:
  # current bash session
  source <(citamon completion bash)

  # install for zsh (directory must be on $fpath)
  citamon completion zsh > ~/.zsh/completions/_citamon

  # install for fish
  citamon completion fish > ~/.config/fish/completions/citamon.fish`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		switch args[0] {
		case "bash":
			err = cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			err = cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			err = cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			err = cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
		if err != nil {
			cmd.PrintErrf("Error generating completion: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)

	_ = rootCmd.MarkPersistentFlagFilename("config", "yaml", "yml")
	_ = startCmd.RegisterFlagCompletionFunc("office", completeNoFiles)
	_ = startCmd.RegisterFlagCompletionFunc("procedure", completeNoFiles)
	_ = startCmd.RegisterFlagCompletionFunc("location", completeNoFiles)
}

// completeNoFiles stops the shell from offering file names for free-text flags.
func completeNoFiles(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return nil, cobra.ShellCompDirectiveNoFileComp
}
