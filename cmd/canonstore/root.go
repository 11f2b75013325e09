package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"canonstore/internal/config"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		out      outputFlags
		logLevel string
	)

	cmd := &cobra.Command{
		Use:           "canonstore",
		Short:         "Canonstore stores canonicalized images and documents exactly once",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			return out.apply()
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&out.json, "json", false, "output JSON")
	cmd.PersistentFlags().BoolVar(&out.yaml, "yaml", false, "output YAML")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.MarkFlagsMutuallyExclusive("json", "yaml")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newPutCmd(cfg, &out),
		newListCmd(cfg, &out),
		newShowCmd(cfg, &out),
		newCatCmd(cfg),
		newRmCmd(cfg, &out),
		newOwnerCmd(cfg, &out),
		newAdminCmd(cfg, &out),
		newMigrateCmd(cfg, &out),
		newConfigCmd(cfg, &out),
	)

	return cmd
}
