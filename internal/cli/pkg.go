package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conceptkernel/ck-core/internal/pkgmanager"
	"github.com/conceptkernel/ck-core/pkg/cmdline"
)

var (
	pkgExportSourceDir   string
	pkgInstallTargetDir  string
	pkgInstallName       string
	pkgForkClean         bool
	pkgForkTag           string
	pkgForkTagMessage    string
)

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		pkgCmd := &cobra.Command{
			Use:   "package",
			Short: "Export, install, and fork concept kernel packages",
		}

		exportCmd := &cobra.Command{
			Use:   "export <name> <version>",
			Short: "Tar up a kernel directory into the local package cache",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := pkgmanager.New()
				if err != nil {
					return err
				}
				sourceDir := pkgExportSourceDir
				if sourceDir == "" {
					sourceDir = projectRoot
				}
				path, err := m.Export(args[0], args[1], sourceDir)
				if err != nil {
					return err
				}
				fmt.Println(path)
				return nil
			},
		}
		exportCmd.Flags().StringVar(&pkgExportSourceDir, "source", "", "project directory whose concepts/<name> is exported (defaults to the current project root)")

		installCmd := &cobra.Command{
			Use:   "install <name> <version>",
			Short: "Install a cached package into the current project",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := pkgmanager.New()
				if err != nil {
					return err
				}
				targetDir := pkgInstallTargetDir
				if targetDir == "" {
					targetDir = projectRoot
				}
				path, err := m.Install(args[0], args[1], targetDir, pkgInstallName)
				if err != nil {
					return err
				}
				fmt.Println(path)
				return nil
			},
		}
		installCmd.Flags().StringVar(&pkgInstallTargetDir, "target", "", "project directory whose concepts/ receives the kernel (defaults to the current project root)")
		installCmd.Flags().StringVar(&pkgInstallName, "as", "", "instance name override")

		listCmd := &cobra.Command{
			Use:   "list",
			Short: "List packages in the local cache",
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := pkgmanager.New()
				if err != nil {
					return err
				}
				pkgs, err := m.ListCached()
				if err != nil {
					return err
				}
				for _, p := range pkgs {
					fmt.Printf("%s\t%s\t%s/%s\t%s\n", p.Name, p.Version, p.Runtime, p.Arch, p.HumanSize())
				}
				return nil
			},
		}

		forkCmd := &cobra.Command{
			Use:   "fork <source> <newName>",
			Short: "Fork a cached package under a new name",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := pkgmanager.New()
				if err != nil {
					return err
				}
				path, err := m.ForkPackage(args[0], args[1], projectRoot, pkgForkClean, pkgForkTag, pkgForkTagMessage)
				if err != nil {
					return err
				}
				fmt.Println(path)
				return nil
			},
		}
		forkCmd.Flags().BoolVar(&pkgForkClean, "clean", false, "strip the source kernel's storage/queue state from the fork")
		forkCmd.Flags().StringVar(&pkgForkTag, "tag", "", "git tag to apply to the forked kernel")
		forkCmd.Flags().StringVar(&pkgForkTagMessage, "tag-message", "", "message for --tag")

		removeCmd := &cobra.Command{
			Use:   "remove <name> <version>",
			Short: "Remove a package from the local cache",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := pkgmanager.New()
				if err != nil {
					return err
				}
				removed, err := m.Remove(args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Printf("removed=%v\n", removed)
				return nil
			},
		}

		pkgCmd.AddCommand(exportCmd, installCmd, listCmd, forkCmd, removeCmd)
		cmdManager.RegisterCmd(pkgCmd)
	})
}
