// Command interlock runs and inspects the opposing-key arbitration engine.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/interlock/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
