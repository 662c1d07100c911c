package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bioimg-tools/bioimg/internal/config"
)

func newConfigCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config <file.yaml>",
		Short: "Write the effective configuration to a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(context.Context) error {
				path, err := checkOutputFile(args[0], ".yaml", ".yml")
				if err != nil {
					return err
				}
				if err := config.Write(a.cfg, path); err != nil {
					return err
				}
				a.log.Info("Configuration written", "path", path)
				return nil
			})
		},
	}
}
