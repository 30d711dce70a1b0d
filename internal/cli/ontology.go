package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conceptkernel/ck-core/internal/ontology"
	"github.com/conceptkernel/ck-core/pkg/cmdline"
)

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		ontologyCmd := &cobra.Command{
			Use:   "ontology",
			Short: "Query a kernel's loaded RDF ontology graph",
		}

		describeCmd := &cobra.Command{
			Use:   "describe <kernel>",
			Short: "Load a kernel's ontology.ttl and report its metadata, roles, and functions",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				lib := ontology.NewLibrary(projectRoot)
				defer lib.Close()

				if _, err := lib.LoadKernelOntology(args[0]); err != nil {
					return err
				}
				meta, err := lib.GetKernelMetadata(args[0])
				if err != nil {
					return err
				}
				fmt.Printf("%s\tversion=%s\ttype=%s\t%s\n", meta.Name, meta.Version, meta.KernelType, meta.Description)

				roles, err := lib.GetKernelRoles(args[0])
				if err != nil {
					return err
				}
				for _, r := range roles {
					fmt.Printf("role\t%s\t%s\n", r.Label, r.Context)
				}

				funcs, err := lib.GetKernelFunctions(args[0])
				if err != nil {
					return err
				}
				for _, f := range funcs {
					fmt.Printf("function\t%s\n", f.Capabilities)
				}
				return nil
			},
		}

		ontologyCmd.AddCommand(describeCmd)
		cmdManager.RegisterCmd(ontologyCmd)
	})
}
