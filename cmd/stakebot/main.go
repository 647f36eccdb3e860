// Binary stakebot watches a subnet alpha price and moves stake when the
// price crosses an operator-defined threshold.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes distinguish clean stops, runtime failures, and bad
// configuration.
const (
	exitOK     = 0
	exitFatal  = 1
	exitConfig = 2
)

// exitError carries an explicit process exit code out of a subcommand.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "stakebot",
		Short:         "Automated subnet stake watcher for subtensor networks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newBuyCmd(), newSellCmd(), newKeysCmd())
	return root
}

func main() {
	err := newRootCmd().Execute()
	if err == nil {
		os.Exit(exitOK)
	}
	fmt.Fprintln(os.Stderr, err)
	var ee *exitError
	if errors.As(err, &ee) {
		os.Exit(ee.code)
	}
	os.Exit(exitFatal)
}
