// Command multiplex runs several child processes in parallel under a
// single parent, coordinating their start via a declarative dependency
// language, interleaving their stdout/stderr onto one structured output
// stream, and shutting them all down cleanly on interrupt, timeout, or a
// designated "terminator" process ending.
//
// Usage:
//
//	multiplex [flags] "[KEY][#COLOR][+DELAY…][:DEP…][|ACTION…]=CMD" ...
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	colorable "github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"multiplex/internal/emit"
	"multiplex/internal/run"
)

func main() {
	os.Exit(execute())
}

func execute() int {
	var (
		timeoutSeconds float64
		timeMode       string
		timestampMode  string
		relative       bool
		exitCode       int
	)

	root := &cobra.Command{
		Use:   "multiplex [flags] EXPR...",
		Short: "Run multiple commands concurrently with dependency-aware start and structured output",
		Long: `multiplex runs several child processes in parallel, each described by an
expression of the form [KEY][#COLOR][+DELAY...][:DEP...][|ACTION...]=CMD. It
coordinates start order via wall-clock delays and "wait for process P to
start/end" dependencies, interleaves child stdout/stderr onto a single
structured stream, and shuts every child down cleanly (SIGINT, then SIGTERM,
then SIGKILL) on interrupt, timeout, or when an END-flagged child exits.`,
		Args:              cobra.MinimumNArgs(1),
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := resolveTimeMode(relative, timeMode, timestampMode)
			if err != nil {
				return err
			}

			stdout := os.Stdout
			opts := run.Options{
				Timeout:      time.Duration(timeoutSeconds * float64(time.Second)),
				TimeMode:     mode,
				ColorEnabled: colorEnabled(stdout),
				Out:          colorable.NewColorable(stdout),
				Logger:       slog.New(slog.NewTextHandler(os.Stderr, nil)),
			}

			exitCode = run.New(opts).Run(context.Background(), args)
			return nil
		},
	}

	root.Flags().Float64VarP(&timeoutSeconds, "timeout", "t", 0, "global wall-clock timeout in seconds")
	root.Flags().StringVar(&timeMode, "time", "", "enable timestamp prefix: absolute or relative")
	root.Flags().Lookup("time").NoOptDefVal = "absolute"
	root.Flags().StringVar(&timestampMode, "timestamp", "", "alias for --time (spec.md §9d)")
	root.Flags().Lookup("timestamp").NoOptDefVal = "absolute"
	root.Flags().BoolVarP(&relative, "relative", "r", false, "shorthand for --time=relative")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "multiplex:", err)
		return 2
	}
	return exitCode
}

func resolveTimeMode(relative bool, modes ...string) (emit.TimeMode, error) {
	if relative {
		return emit.Relative, nil
	}
	mode := ""
	for _, m := range modes {
		if m != "" {
			mode = m
			break
		}
	}
	switch mode {
	case "":
		return emit.NoTime, nil
	case "absolute":
		return emit.Absolute, nil
	case "relative":
		return emit.Relative, nil
	default:
		return emit.NoTime, fmt.Errorf("invalid --time mode %q (want absolute or relative)", mode)
	}
}

func colorEnabled(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
