package main

import (
	"fmt"
	"sort"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
)

func newProvidersCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "列出配置的 provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := root.loadSettings()
			if err != nil {
				return err
			}

			names := make([]string, 0, len(settings.Providers))
			for name := range settings.Providers {
				names = append(names, name)
			}
			sort.Strings(names)

			table := uitable.New()
			table.MaxColWidth = 60
			table.AddRow("NAME", "DIALECT", "MODEL", "BASE URL", "DEFAULT")
			for _, name := range names {
				p := settings.Providers[name]
				def := ""
				if name == settings.Default {
					def = "*"
				}
				table.AddRow(name, p.Dialect, p.Model, p.BaseURL, def)
			}
			fmt.Println(table.String())
			return nil
		},
	}
}
