package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conceptkernel/ck-core/internal/project"
	"github.com/conceptkernel/ck-core/pkg/cmdline"
)

var projectRegisterSlot uint32

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		projectCmd := &cobra.Command{
			Use:   "project",
			Short: "Register and switch between conceptkernel projects",
		}

		registerCmd := &cobra.Command{
			Use:   "register <name> <path>",
			Short: "Register a project in the local registry",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				r, err := project.New()
				if err != nil {
					return err
				}
				entry, err := r.Register(project.Info{
					Name:          args[0],
					Path:          args[1],
					PreferredSlot: projectRegisterSlot,
				})
				if err != nil {
					return err
				}
				fmt.Printf("registered %s (slot %d, ports %d-%d)\n", entry.Name, entry.Slot, entry.PortRange.Start, entry.PortRange.End)
				return nil
			},
		}
		registerCmd.Flags().Uint32Var(&projectRegisterSlot, "slot", 0, "preferred port-allocation slot (0 lets the registry choose)")

		listCmd := &cobra.Command{
			Use:   "list",
			Short: "List registered projects",
			RunE: func(cmd *cobra.Command, args []string) error {
				r, err := project.New()
				if err != nil {
					return err
				}
				entries, err := r.List()
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Printf("%s\t%s\t slot=%d\n", e.Name, e.Path, e.Slot)
				}
				return nil
			},
		}

		useCmd := &cobra.Command{
			Use:   "use <name>",
			Short: "Mark a project as the current project",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				r, err := project.New()
				if err != nil {
					return err
				}
				if err := r.SetCurrent(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "current project set to %s\n", args[0])
				return nil
			},
		}

		projectCmd.AddCommand(registerCmd, listCmd, useCmd)
		cmdManager.RegisterCmd(projectCmd)
	})
}
