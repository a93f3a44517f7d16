package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

func main() {
	cmd := newRootCommand()
	cmd.SetArgs(normalizeLegacyArgs(os.Args[1:]))
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			reportError(os.Stderr, err)
			var usage *usageError
			if errors.As(err, &usage) {
				fmt.Fprint(os.Stderr, "\n"+cmd.UsageString())
			}
		}
		os.Exit(1)
	}
}

// reportError prints err the way every fatal simq message is printed.
func reportError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error (simq) %v\n", err)
}

// normalizeLegacyArgs rewrites the single-dash "-run" spelling accepted by
// earlier releases to "--run". Only the leading flags are inspected; the
// queue directory and the submitted command are passed through untouched.
func normalizeLegacyArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" || len(arg) < 2 || arg[0] != '-' {
			return append(out, args[i:]...)
		}
		switch arg {
		case "-run":
			out = append(out, "--run")
		case "-p", "-w", "-c", "--poll", "--wait", "--config":
			out = append(out, arg)
			if i+1 < len(args) {
				i++
				out = append(out, args[i])
			}
		default:
			out = append(out, arg)
		}
	}
	return out
}
