// Package cli implements the acmedash command line.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/squadracorsepolito/acmedash/catalog"
	"github.com/squadracorsepolito/acmedash/dbc"
	"github.com/squadracorsepolito/acmedash/internal"
)

type rootOptions struct {
	configPath   string
	logLevel     string
	catalogPath  string
	catalogCells bool
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "acmedash",
		Short: "Dashboard node of the drive CAN bus",
		Long: `acmedash decodes the frames of the drive CAN bus into typed signals,
transmits the dashboard heartbeat and records the decoded values.

Examples:
  acmedash run --driver socketcan --interface can0
  acmedash run --simulate
  acmedash catalog --signals
  acmedash decode 0x2A1 64323C4650
  acmedash encode dashHeartbeat counter=42`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logLevel == "" {
				return nil
			}

			level, err := internal.ParseLogLevel(opts.logLevel)
			if err != nil {
				return err
			}
			internal.SetLogLevel(level)

			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "node configuration file (yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&opts.catalogPath, "catalog", "", "message table file, the embedded drive table when empty")
	rootCmd.PersistentFlags().BoolVar(&opts.catalogCells, "catalog-cells", false, "append the BMS cell frames to the --catalog table")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newCatalogCmd(opts))
	rootCmd.AddCommand(newDecodeCmd(opts))
	rootCmd.AddCommand(newEncodeCmd(opts))

	return rootCmd
}

// ExecuteWithContext runs the command line with the given context.
func ExecuteWithContext(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (o *rootOptions) loadSchema() (*dbc.Schema, error) {
	if o.catalogPath == "" {
		return catalog.Load()
	}

	schema, err := catalog.LoadFile(o.catalogPath, o.catalogCells)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog %s: %w", o.catalogPath, err)
	}

	return schema, nil
}
