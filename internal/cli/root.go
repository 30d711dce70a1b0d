// Package cli registers the ck binary's cobra command tree through a
// cmdline.CommandManager, with each subcommand group self-registering
// via addCmdInit from its own file's init().
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	ckconfig "github.com/conceptkernel/ck-core/internal/config"
	"github.com/conceptkernel/ck-core/pkg/ckerr"
	"github.com/conceptkernel/ck-core/pkg/cklog"
	"github.com/conceptkernel/ck-core/pkg/cmdline"
)

const envPrefix = "CK_"

var (
	debug       bool
	projectRoot string
)

var cmdInits = make([]func(*cmdline.CommandManager), 0)

func addCmdInit(fn func(*cmdline.CommandManager)) {
	cmdInits = append(cmdInits, fn)
}

// New builds the ck command tree with every subcommand registered.
func New() *cobra.Command {
	root := &cobra.Command{
		Use:   "ck",
		Short: "Conceptkernel orchestrator: projects, kernels, edges, packages, versions",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cklog.SetDebug(debug)
			if projectRoot == "" {
				wd, err := os.Getwd()
				if err == nil {
					projectRoot = wd
				}
			}
			cfg, err := ckconfig.Parse(ckconfig.FindProjectConfig(projectRoot))
			if err != nil {
				cklog.Warningf("loading .ckconfig: %v", err)
			} else {
				ckconfig.SetCurrentConfig(cfg)
			}
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&projectRoot, "project", "", "project root (defaults to the working directory)")

	cmdManager := cmdline.NewCommandManager(root)
	for _, fn := range cmdInits {
		fn(cmdManager)
	}
	if err := cmdManager.UpdateCmdFlagFromEnv(root, envPrefix); err != nil {
		cklog.Warningf("applying environment overrides: %v", err)
	}
	return root
}

// Execute runs the ck command tree against os.Args.
func Execute() int {
	root := New()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if ckerr.Is(err, ckerr.Process) {
			return 2
		}
		return 1
	}
	return 0
}
