package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	ckstorage "github.com/conceptkernel/ck-core/internal/storage"
	"github.com/conceptkernel/ck-core/pkg/cmdline"
)

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		storageCmd := &cobra.Command{
			Use:   "storage",
			Short: "Inspect a kernel's storage/ instance directories",
		}

		listCmd := &cobra.Command{
			Use:   "list <kernel>",
			Short: "List instances under a kernel's storage/ directory with their sizes",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				kernelPath := filepath.Join(projectRoot, "concepts", args[0])
				instances, err := ckstorage.Scan(kernelPath)
				if err != nil {
					return err
				}
				for _, inst := range instances {
					fmt.Printf("%s\t%s\t%d files\n", inst.TxID, inst.HumanSize(), len(inst.Files))
				}
				fmt.Printf("total\t%s\n", ckstorage.HumanSize(ckstorage.TotalSize(instances)))
				return nil
			},
		}

		storageCmd.AddCommand(listCmd)
		cmdManager.RegisterCmd(storageCmd)
	})
}
