package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dastankg/orimi-merchen/internal/config"
)

func newCatalogCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print photo categories and brands",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = os.Getenv("CATALOG_PATH")
			}
			catalog, err := config.LoadCatalog(path)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderCatalog(catalog))
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "Catalog YAML file (default: embedded catalog)")

	return cmd
}

func renderCatalog(c *config.Catalog) string {
	rows := make([][]string, 0, len(c.Categories()))
	for i, cat := range c.Categories() {
		rows = append(rows, []string{strconv.Itoa(i + 1), cat.Name, string(cat.Family), nextStep(cat)})
	}
	categories := renderTable([]string{"#", "Category", "Family", "Next step"}, rows)

	brands := make([][]string, 0)
	for _, b := range c.OrimiBrands() {
		brands = append(brands, []string{b, "ORIMI"})
	}
	for _, b := range c.CompetitorBrands() {
		brands = append(brands, []string{b, "competitor"})
	}
	return categories + "\n" + renderTable([]string{"Brand", "Owner"}, brands)
}

func nextStep(cat config.Category) string {
	switch {
	case cat.IsCompetitor():
		return "competitor brand, count"
	case cat.IsDMP():
		return "ORIMI brand, photo"
	default:
		return "photo"
	}
}
