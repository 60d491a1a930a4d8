// Command frost-cli coordinates and participates in FROST-Ed25519
// distributed key generation and threshold signing sessions over a
// pluggable content-addressed rendezvous store. See internal/cli for
// the command tree.
package main

import (
	"os"

	"github.com/frostkit/frost-cli/internal/cli"
	"github.com/frostkit/frost-cli/internal/clog"
)

func main() {
	defer clog.Sync()
	os.Exit(cli.Execute())
}
