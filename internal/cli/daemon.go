package cli

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	ckconfig "github.com/conceptkernel/ck-core/internal/config"
	"github.com/conceptkernel/ck-core/internal/edge"
	"github.com/conceptkernel/ck-core/internal/kernel"
	"github.com/conceptkernel/ck-core/internal/router"
	"github.com/conceptkernel/ck-core/pkg/cklog"
	"github.com/conceptkernel/ck-core/pkg/cmdline"
)

var (
	daemonKernelName    string
	daemonRecordProcess bool
)

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		governorCmd := &cobra.Command{
			Use:   "governor",
			Short: "Run the long-lived watcher: project-wide edge router, or a single kernel's job watcher with --kernel",
			RunE: func(cmd *cobra.Command, args []string) error {
				stop := make(chan struct{})
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
				go func() {
					<-sigCh
					close(stop)
				}()

				if daemonKernelName != "" {
					mgr, err := kernel.New(projectRoot)
					if err != nil {
						return err
					}
					cklog.Infof("governor watching kernel %s", daemonKernelName)
					return mgr.RunWatcher(daemonKernelName, stop)
				}

				cfg := ckconfig.GetCurrentConfig()
				edgeKernel := edge.NewKernel(filepath.Join(projectRoot, "concepts"), cfg.DefaultEdgeVersion, cfg.EdgeVersioning)
				r := router.New(projectRoot, edgeKernel, daemonRecordProcess)
				cklog.Infof("governor routing edges for project at %s", projectRoot)
				return r.Watch(stop)
			},
		}
		governorCmd.Flags().StringVar(&daemonKernelName, "kernel", "", "watch a single kernel's inbox instead of routing edges project-wide")
		governorCmd.Flags().BoolVar(&daemonRecordProcess, "record-process", false, "write an edge-comm Process record per routing decision")

		daemonCmd := &cobra.Command{
			Use:   "daemon",
			Short: "Long-running governor processes: per-kernel watchers and the project-wide edge router",
		}
		daemonCmd.AddCommand(governorCmd)
		cmdManager.RegisterCmd(daemonCmd)
	})
}
