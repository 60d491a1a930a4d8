// Package cli assembles the cobra command tree of spec §6 on top of
// internal/dkgengine, internal/signengine, internal/registry and
// internal/rendezvous. Grounded on the pack's cobra+pflag CLI repos:
// one root command carrying persistent flags, subcommands doing
// nothing but flag parsing and engine calls, all business logic left
// in the internal/* packages.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/frostkit/frost-cli/internal/clog"
	"github.com/frostkit/frost-cli/internal/dispatch"
	"github.com/frostkit/frost-cli/internal/frosterr"
	"github.com/frostkit/frost-cli/internal/registry"
	"github.com/frostkit/frost-cli/internal/rendezvous"
)

// globalFlags holds the values of spec §6's shared flags, bound once
// on the root command and read by every subcommand's RunE.
type globalFlags struct {
	storage    string
	host       string
	port       int
	registry   string
	timeoutSec int
	verbose    bool
	parallel   int
}

var flags globalFlags

// Execute builds the root command and runs it, returning the process
// exit code spec §6 requires: 0 on success, a class-specific non-zero
// code from internal/frosterr on failure.
func Execute() int {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return frosterr.ExitCode(frosterr.KindOf(err))
	}
	return 0
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "frost-cli",
		Short:         "FROST-Ed25519 threshold coordination over a rendezvous store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			clog.Init(flags.verbose)
			clog.WithTraceID(dispatch.NewTraceID())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.storage, "storage", "server", "rendezvous backend: mainline|ipfs|hybrid|server")
	pf.StringVar(&flags.host, "host", "localhost", "rendezvous server host")
	pf.IntVar(&flags.port, "port", 8787, "rendezvous server port")
	pf.StringVar(&flags.registry, "registry", "registry.json", "path to the registry file")
	pf.IntVar(&flags.timeoutSec, "timeout", 30, "per-request timeout, in seconds")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	pf.IntVar(&flags.parallel, "parallel", 1, "max concurrent rendezvous fetches during a collection phase")

	root.AddCommand(newRegistryCommand())
	root.AddCommand(newCheckCommand())
	root.AddCommand(newDKGCommand())
	root.AddCommand(newSignCommand())
	return root
}

// env bundles what nearly every subcommand needs: the freshly loaded
// registry and a rendezvous client for the configured backend. Built
// fresh per invocation, never cached, per spec §4.3's "re-read and
// re-validate" rule and §5's "no shared mutable state outlives a
// single process" rule.
type env struct {
	reg    *registry.Registry
	client rendezvous.Client
}

func loadEnv() (*env, error) {
	reg, err := registry.Load(flags.registry)
	if err != nil {
		return nil, err
	}
	client, err := rendezvous.New(flags.storage, flags.host, flags.port)
	if err != nil {
		return nil, err
	}
	return &env{reg: reg, client: client}, nil
}

func (e *env) timeout() time.Duration {
	return time.Duration(flags.timeoutSec) * time.Second
}

// registryDir is the group-state directory root, conventionally the
// registry file's parent directory (spec §6's on-disk layout).
func registryDir() string {
	return filepath.Dir(flags.registry)
}

func background() context.Context {
	return context.Background()
}
