package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/crisisworks/lifeline/core/model"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Component catalog commands",
}

var catalogLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List supported component type codes and base repair times",
	RunE:  runCatalogLs,
}

func init() {
	catalogCmd.AddCommand(catalogLsCmd)
	rootCmd.AddCommand(catalogCmd)
}

func runCatalogLs(cmd *cobra.Command, args []string) error {
	catalog := model.DefaultCatalog()
	for _, infra := range model.Infras {
		codes := make([]string, 0, len(catalog[infra]))
		for code := range catalog[infra] {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			spec := catalog[infra][code]
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%.0fh\n", infra, code, spec.Name, spec.RepairHours)
		}
	}
	return nil
}
