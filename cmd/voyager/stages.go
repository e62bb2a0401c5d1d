package main

import (
	"github.com/spf13/cobra"

	"github.com/sephirothchang/CXVoyager-sub000/internal/orchestrator"
	"github.com/sephirothchang/CXVoyager-sub000/internal/status"
)

func stagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List the pipeline stages; the default selection is marked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			status.PrintStages(cmd.OutOrStdout(), orchestrator.ListInfo(), orchestrator.DefaultStages(cfg, nil))
			return nil
		},
	}
}
