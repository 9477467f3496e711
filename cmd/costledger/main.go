// Command costledger records and reports on metered API spend.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/costledger/app"
)

// Exit codes.
const (
	exitOK       = 0
	exitFailure  = 1
	exitBreached = 2
)

func main() {
	os.Exit(execute(newRootCmd(&globalOptions{}), os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs root with args and maps the outcome to an exit code.
func execute(root *cobra.Command, args []string, stdout, stderr io.Writer) int {
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(context.Background())
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, app.ErrThresholdBreached):
		// The report has already been printed.
		return exitBreached
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
}
