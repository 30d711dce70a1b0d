package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	ckedge "github.com/conceptkernel/ck-core/internal/edge"
	ckconfig "github.com/conceptkernel/ck-core/internal/config"
	"github.com/conceptkernel/ck-core/pkg/cmdline"
)

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		edgeCmd := &cobra.Command{
			Use:   "edge",
			Short: "Create edges and route instances between kernels",
		}

		routeCmd := &cobra.Command{
			Use:   "route <predicate> <source> <target> <instancePath>",
			Short: "Create (if absent) the edge (predicate, source, target) and route an instance",
			Args:  cobra.ExactArgs(4),
			RunE: func(cmd *cobra.Command, args []string) error {
				predicate, source, target, instancePath := args[0], args[1], args[2], args[3]
				cfg := ckconfig.GetCurrentConfig()
				k := ckedge.NewKernel(filepath.Join(projectRoot, "concepts"), cfg.DefaultEdgeVersion, cfg.EdgeVersioning)

				if _, found, err := k.GetEdge(predicate, source); err != nil {
					return err
				} else if !found {
					if _, err := k.CreateEdge(predicate, source, target); err != nil {
						return err
					}
				}
				routed, err := k.RouteInstance(instancePath, source)
				if err != nil {
					return err
				}
				for _, link := range routed {
					fmt.Println(link)
				}
				return nil
			},
		}

		listCmd := &cobra.Command{
			Use:   "list",
			Short: "List all edges in the project",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg := ckconfig.GetCurrentConfig()
				k := ckedge.NewKernel(filepath.Join(projectRoot, "concepts"), cfg.DefaultEdgeVersion, cfg.EdgeVersioning)
				edges, err := k.ListAllEdges()
				if err != nil {
					return err
				}
				for _, e := range edges {
					fmt.Printf("%s\n", e.Urn)
				}
				return nil
			},
		}

		edgeCmd.AddCommand(routeCmd, listCmd)
		cmdManager.RegisterCmd(edgeCmd)
	})
}
