package main

import (
	"github.com/spf13/cobra"

	"neosweat/internal/config"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "neosweat",
		Short: "Calibrate infant sweat sensor exports into glucose readings",
		Long: `neosweat keeps per-infant records of notes, finger-prick readings and
per-day calibration settings, and converts uploaded sweat sensor exports into
glucose readings whenever a record is read.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"config file (default $"+config.ConfigPathEnvVar+" or ./"+config.DefaultConfigPath+")")

	cmd.AddCommand(newServeCmd(opts), newRecordsCmd(opts), newUploadCmd(opts))
	return cmd
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	return config.Load(o.configPath)
}
