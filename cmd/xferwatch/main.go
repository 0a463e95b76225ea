// Command xferwatch fetches URLs through an observed transport and reports
// per-transfer progress and a completion summary.
package main

import (
	"os"

	"github.com/meigma/xferwatch/cmd/xferwatch/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
