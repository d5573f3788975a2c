package cli

import (
	"context"
	"fmt"
	"io"
)

// Execute runs the CLI with args and returns the process exit code.
// Errors are rendered in the selected output format.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	code := GetExitCode(err)
	format, _ := cmd.PersistentFlags().GetString("format")
	if format == "json" || format == "yaml" {
		out := &OutputFormatter{Format: format, Writer: stdout}
		if renderErr := out.Error(errorCode(code), err.Error(), nil); renderErr == nil {
			return code
		}
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return code
}

// errorCode maps exit codes to the codes used in structured error output.
func errorCode(exitCode int) string {
	if exitCode == ExitCommandError {
		return "E002"
	}
	return "E001"
}
