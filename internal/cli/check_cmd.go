package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/frostkit/frost-cli/internal/frosterr"
	"github.com/frostkit/frost-cli/internal/rendezvous"
)

// newCheckCommand implements spec §6's `check`: probe every rendezvous
// backend name and report which ones are reachable. Unlike every other
// subcommand it never fails the whole process over a single backend
// being down — that is the point of the probe — so a backend's
// Healthz error is printed, not propagated.
func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "health-probe each rendezvous backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := background()
			names := []string{"server", "mainline", "ipfs", "hybrid"}
			anyHealthy := false
			for _, name := range names {
				client, err := rendezvous.New(name, flags.host, flags.port)
				if err != nil {
					return err
				}
				if err := client.Healthz(ctx); err != nil {
					fmt.Printf("%-10s unreachable: %v\n", name, err)
					continue
				}
				anyHealthy = true
				fmt.Printf("%-10s ok\n", name)
			}
			if !anyHealthy {
				return frosterr.New(frosterr.Transport, "no rendezvous backend is reachable")
			}
			return nil
		},
	}
}
