// Command pixelgrid paints on a shared grid and runs the relay that
// collaborators connect to.
package main

import (
	"os"

	"github.com/roach88/pixelgrid/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
