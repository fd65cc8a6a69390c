// canvas-fetch is a thin CLI over the engine: it pulls every page of a
// paginated Canvas endpoint (optionally across many course keys) and
// prints the result as a table.
package main

import (
	"os"

	"github.com/campusops/canvas-client/cmd/canvas-fetch/cmd"
)

var version = "dev"

func main() {
	cmd.SetVersion(version)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
