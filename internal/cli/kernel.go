package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conceptkernel/ck-core/internal/kernel"
	"github.com/conceptkernel/ck-core/pkg/cmdline"
)

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		kernelCmd := &cobra.Command{
			Use:   "kernel",
			Short: "Start, stop, and inspect kernels in the current project",
		}

		startCmd := &cobra.Command{
			Use:   "start <name>",
			Short: "Start a kernel, always spawning its governor watcher",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				mgr, err := kernel.New(projectRoot)
				if err != nil {
					return err
				}
				result, err := mgr.StartKernel(args[0])
				if err != nil {
					return err
				}
				fmt.Printf("started %s (tool pid=%d watcher pid=%d type=%s already_running=%v)\n",
					args[0], result.Pid, result.WatcherPid, result.KernelType, result.AlreadyRunning)
				return nil
			},
		}

		stopCmd := &cobra.Command{
			Use:   "stop <name>",
			Short: "Stop a kernel's tool and watcher processes",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				mgr, err := kernel.New(projectRoot)
				if err != nil {
					return err
				}
				signaled, err := mgr.StopKernel(args[0])
				if err != nil {
					return err
				}
				fmt.Printf("stopped %s (signal delivered=%v)\n", args[0], signaled)
				return nil
			},
		}

		statusCmd := &cobra.Command{
			Use:   "status [name]",
			Short: "Show kernel status (all kernels if name is omitted)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				mgr, err := kernel.New(projectRoot)
				if err != nil {
					return err
				}
				if len(args) == 1 {
					s, err := mgr.GetStatus(args[0])
					if err != nil {
						return err
					}
					printKernelStatus(*s)
					return nil
				}
				statuses, err := mgr.Status()
				if err != nil {
					return err
				}
				for _, s := range statuses {
					printKernelStatus(s)
				}
				return nil
			},
		}

		kernelCmd.AddCommand(startCmd, stopCmd, statusCmd)
		cmdManager.RegisterCmd(kernelCmd)
	})
}

func printKernelStatus(s kernel.Status) {
	fmt.Printf("%s\tmode=%s\ttool_pid=%d\twatcher_pid=%d\tport=%d\tinbox=%d staging=%d ready=%d\n",
		s.Name, s.Mode, s.Pid, s.WatcherPid, s.Port, s.Queue.Inbox, s.Queue.Staging, s.Queue.Ready)
}
