package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/conceptkernel/ck-core/internal/version"
	"github.com/conceptkernel/ck-core/pkg/cmdline"
)

var versionCreateMessage string

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		versionCmd := &cobra.Command{
			Use:   "version",
			Short: "Inspect and manage a kernel's version history",
		}

		describeCmd := &cobra.Command{
			Use:   "describe <kernel>",
			Short: "Report the current version, backend, and clean state of a kernel",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				kernelPath := filepath.Join(projectRoot, "concepts", args[0])
				driver := version.Detect(kernelPath, args[0])
				if driver == nil {
					fmt.Println("none")
					return nil
				}
				info, err := driver.GetVersion()
				if err != nil {
					return err
				}
				fmt.Printf("%s\tbackend=%s\tclean=%v\t%s\n", info.Version, info.Backend, info.IsClean, info.Metadata)
				return nil
			},
		}

		initCmd := &cobra.Command{
			Use:   "init <kernel>",
			Short: "Initialize git-backed versioning for a kernel",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				kernelPath := filepath.Join(projectRoot, "concepts", args[0])
				driver, err := version.Create(version.BackendGit, kernelPath, args[0])
				if err != nil {
					return err
				}
				if driver.IsInitialized() {
					fmt.Println("already initialized")
					return nil
				}
				return driver.Init()
			},
		}

		createCmd := &cobra.Command{
			Use:   "create <kernel>",
			Short: "Record a new version of a kernel",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				kernelPath := filepath.Join(projectRoot, "concepts", args[0])
				driver := version.Detect(kernelPath, args[0])
				if driver == nil {
					return fmt.Errorf("kernel %s has no versioning backend initialized", args[0])
				}
				v, err := driver.CreateVersion(versionCreateMessage)
				if err != nil {
					return err
				}
				fmt.Println(v)
				return nil
			},
		}
		createCmd.Flags().StringVar(&versionCreateMessage, "message", "", "version commit message")

		listCmd := &cobra.Command{
			Use:   "list <kernel>",
			Short: "List recorded versions of a kernel",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				kernelPath := filepath.Join(projectRoot, "concepts", args[0])
				driver := version.Detect(kernelPath, args[0])
				if driver == nil {
					return fmt.Errorf("kernel %s has no versioning backend initialized", args[0])
				}
				versions, err := driver.ListVersions()
				if err != nil {
					return err
				}
				for _, v := range versions {
					fmt.Println(v)
				}
				return nil
			},
		}

		versionCmd.AddCommand(describeCmd, initCmd, createCmd, listCmd)
		cmdManager.RegisterCmd(versionCmd)
	})
}
