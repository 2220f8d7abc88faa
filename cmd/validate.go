package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crisisworks/lifeline/config"
	"github.com/crisisworks/lifeline/core/access"
	"github.com/crisisworks/lifeline/core/model"
	"github.com/crisisworks/lifeline/core/transpo"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a scenario file without running it",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	net, err := transpo.NewNetwork(cfg.Network.Nodes, cfg.Network.Links)
	if err != nil {
		return fmt.Errorf("transportation network: %w", err)
	}
	if _, err := access.Build(cfg.Access, net.Nodes()); err != nil {
		return fmt.Errorf("access index: %w", err)
	}
	catalog := model.DefaultCatalog()
	for _, d := range cfg.Disruptions {
		if _, err := model.ParseComponentID(catalog, d.Component); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d nodes, %d links, %d disruptions, %d repairs\n",
		len(cfg.Network.Nodes), len(cfg.Network.Links), len(cfg.Disruptions), len(cfg.RepairOrder))
	return nil
}
