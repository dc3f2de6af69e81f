package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var apiFlag string
	var jsonFlag bool

	ctx := newCommandContext(&configFlag, &apiFlag, &jsonFlag)

	rootCmd := &cobra.Command{
		Use:           "mediaforge",
		Short:         "Asynchronous media transform pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&apiFlag, "api", "", "Daemon API address (defaults to api.bind from config)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print machine-readable JSON")

	rootCmd.AddCommand(newDaemonCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newUploadCommand(ctx))
	rootCmd.AddCommand(newTrimCommand(ctx))
	rootCmd.AddCommand(newQualityCommand(ctx))
	rootCmd.AddCommand(newOverlayCommand(ctx))
	rootCmd.AddCommand(newWatermarkCommand(ctx))
	rootCmd.AddCommand(newJobCommand(ctx))
	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newAssetsCommand(ctx))
	rootCmd.AddCommand(newOverlaysCommand(ctx))
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}
