package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/squadracorsepolito/acmedash/internal"
	"github.com/squadracorsepolito/acmedash/node"
	"github.com/squadracorsepolito/acmedash/telemetry"
)

type runOptions struct {
	driver     string
	iface      string
	listenAddr string
	remoteAddr string
	simulate   bool
	record     bool
	telemetry  bool
}

func newRunCmd(rootOpts *rootOptions) *cobra.Command {
	opts := &runOptions{}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the dashboard node",
		Long: `Run the dashboard node until interrupted.

The node loads the catalog, binds the bus to the selected driver and ticks it
at the loop interval. Flags override the values of the configuration file.

Examples:
  acmedash run --driver socketcan --interface can0
  acmedash run --driver cannelloni --listen 0.0.0.0:20000 --remote 192.168.1.10:20000
  acmedash run --simulate --record`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildNodeConfig(cmd, rootOpts, opts)
			if err != nil {
				return err
			}

			return runNode(cmd, cfg)
		},
	}

	bindRunFlags(runCmd, opts)

	return runCmd
}

func bindRunFlags(cmd *cobra.Command, opts *runOptions) {
	cmd.Flags().StringVar(&opts.driver, "driver", node.DriverVirtual, "driver: virtual, socketcan, cannelloni")
	cmd.Flags().StringVar(&opts.iface, "interface", "can0", "socketcan interface")
	cmd.Flags().StringVar(&opts.listenAddr, "listen", "0.0.0.0:20000", "cannelloni listen address")
	cmd.Flags().StringVar(&opts.remoteAddr, "remote", "127.0.0.1:20001", "cannelloni remote address")
	cmd.Flags().BoolVar(&opts.simulate, "simulate", false, "inject simulated frames into the virtual driver")
	cmd.Flags().BoolVar(&opts.record, "record", false, "record the decoded signals into QuestDB")
	cmd.Flags().BoolVar(&opts.telemetry, "telemetry", false, "export metrics and traces over OTLP")
}

func buildNodeConfig(cmd *cobra.Command, rootOpts *rootOptions, opts *runOptions) (*node.Config, error) {
	cfg := node.NewDefaultConfig()
	if rootOpts.configPath != "" {
		fileCfg, err := node.LoadConfig(rootOpts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	flags := cmd.Flags()

	if rootOpts.catalogPath != "" {
		cfg.Catalog = rootOpts.catalogPath
		cfg.CatalogCells = rootOpts.catalogCells
	}
	if rootOpts.logLevel != "" {
		cfg.LogLevel = rootOpts.logLevel
	}
	if flags.Changed("driver") {
		cfg.Driver = opts.driver
	}
	if flags.Changed("interface") {
		cfg.SocketCAN.Interface = opts.iface
	}
	if flags.Changed("listen") {
		cfg.Cannelloni.ListenAddr = opts.listenAddr
	}
	if flags.Changed("remote") {
		cfg.Cannelloni.RemoteAddr = opts.remoteAddr
	}
	if flags.Changed("simulate") {
		cfg.Simulator.Enabled = opts.simulate
	}
	if flags.Changed("record") {
		cfg.Recorder.Enabled = opts.record
	}
	if flags.Changed("telemetry") {
		cfg.Telemetry.Enabled = opts.telemetry
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func runNode(cmd *cobra.Command, cfg *node.Config) error {
	ctx := cmd.Context()

	level, err := internal.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	internal.SetLogLevel(level)

	l := internal.NewLogger("cli", "run")

	shutdown, err := telemetry.Init(ctx, &cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			l.Error("failed to shutdown telemetry", err)
		}
	}()

	n, err := node.New(ctx, cfg)
	if err != nil {
		return err
	}

	l.Info("starting node", "driver", cfg.Driver, "recorder", cfg.Recorder.Enabled, "simulator", cfg.Simulator.Enabled)

	return n.Run(ctx)
}
