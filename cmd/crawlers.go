package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
	"github.com/jonesrussell/north-cloud/regwatch/internal/registry"
)

func crawlersCommand() *cobra.Command {
	var country, crawlerType string
	cmd := &cobra.Command{
		Use:   "crawlers",
		Short: "List the registered crawlers and their parameters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := registry.NewCrawlerRegistry(registry.NewSchemaRegistry(), logger.NewNop())
			if err := registry.RegisterBuiltin(reg); err != nil {
				return fmt.Errorf("register crawlers: %w", err)
			}

			defs := reg.List()
			switch {
			case country != "":
				defs = reg.ListByCountry(country)
			case crawlerType != "":
				defs = reg.ListByType(crawlerType)
			}
			renderCrawlers(cmd.OutOrStdout(), defs)
			return nil
		},
	}
	cmd.Flags().StringVar(&country, "country", "", "only crawlers of this country code")
	cmd.Flags().StringVar(&crawlerType, "type", "", "only crawlers of this type")
	return cmd
}

func renderCrawlers(w io.Writer, defs []domain.CrawlerDefinition) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Country", "Type", "Enabled", "Parameters", "Description"})
	for _, def := range defs {
		names := make([]string, 0, len(def.Schema.Fields))
		for _, f := range def.Schema.Fields {
			name := f.Name
			if f.Required {
				name += "*"
			}
			names = append(names, name)
		}
		t.AppendRow(table.Row{def.Name, def.CountryCode, def.CrawlerType, def.Enabled, strings.Join(names, ", "), def.Description})
	}
	t.AppendFooter(table.Row{"", "", "", "", "Total", len(defs)})
	t.Render()
}
