package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestCompletionCommand(t *testing.T) {
	// Find completion command
	var completionCmd *cobra.Command
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == "completion" {
			completionCmd = cmd
			break
		}
	}

	if completionCmd == nil {
		t.Fatal("Completion command not found")
		return // Help staticcheck understand control flow
	}

	// Verify valid args
	validArgs := completionCmd.ValidArgs
	expectedArgs := []string{"bash", "zsh", "fish", "powershell"}

	if len(validArgs) != len(expectedArgs) {
		t.Errorf("Expected %d valid args, got %d", len(expectedArgs), len(validArgs))
	}

	for i, arg := range expectedArgs {
		if i >= len(validArgs) || validArgs[i] != arg {
			t.Errorf("Expected valid arg %s at position %d", arg, i)
		}
	}
}

func TestCompletionScript_NamesCommands(t *testing.T) {
	var buf bytes.Buffer
	if err := rootCmd.GenBashCompletionV2(&buf, true); err != nil {
		t.Fatalf("GenBashCompletionV2() error = %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("citamon")) {
		t.Error("bash completion script does not mention citamon")
	}
}

func TestCompleteNoFiles(t *testing.T) {
	values, directive := completeNoFiles(startCmd, nil, "")
	if len(values) != 0 {
		t.Errorf("completeNoFiles() values = %v", values)
	}
	if directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("completeNoFiles() directive = %v, want NoFileComp", directive)
	}
}

func TestCompletionCommand_Help(t *testing.T) {
	for _, want := range []string{"citamon completion bash", "--config"} {
		if !strings.Contains(completionCmd.Long, want) {
			t.Errorf("completion help missing %q", want)
		}
	}
}
