package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"infinite-experiment/vitals/internal/probe"
)

func newListCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the services in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := withGlobal(map[string]string{"probe.catalog": "catalog"})
			if err := a.load(cmd, flags); err != nil {
				return err
			}

			catalog, err := probe.LoadCatalog(a.cfg.Probe.Catalog)
			if err != nil {
				return configError("%w", err)
			}

			t := table.NewWriter()
			t.SetOutputMirror(a.out)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Service", "Base Path", "Group", "Owner", "Ready", "Live", "Timeout", "Tests"})

			for _, spec := range catalog.Specs {
				timeout := "default"
				if spec.Timeout > 0 {
					timeout = spec.Timeout.String()
				}
				t.AppendRow(table.Row{
					spec.ServiceName,
					spec.BasePath,
					spec.Group,
					spec.Owner,
					spec.CheckReady,
					spec.CheckLive,
					timeout,
					len(catalog.Tests[spec.ServiceName]),
				})
			}
			t.AppendFooter(table.Row{fmt.Sprintf("%d services", len(catalog.Specs))})
			t.Render()
			return nil
		},
	}

	cmd.Flags().String("catalog", "catalog.yaml", "catalog of services to list")
	return cmd
}
