package cli

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/squadracorsepolito/acmedash/dbc"
)

type catalogOptions struct {
	signals bool
	message string
}

func newCatalogCmd(rootOpts *rootOptions) *cobra.Command {
	opts := &catalogOptions{}

	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the messages and signals of the catalog",
		Long: `List the messages of the catalog with their id, direction, length and period.

Examples:
  acmedash catalog                     # List every message
  acmedash catalog --signals           # Include the signal layout
  acmedash catalog --message pdmCurrent`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := rootOpts.loadSchema()
			if err != nil {
				return err
			}

			return runCatalog(cmd, schema, opts)
		},
	}

	catalogCmd.Flags().BoolVar(&opts.signals, "signals", false, "show the signals of every message")
	catalogCmd.Flags().StringVar(&opts.message, "message", "", "show the signals of a single message")

	return catalogCmd
}

func runCatalog(cmd *cobra.Command, schema *dbc.Schema, opts *catalogOptions) error {
	out := cmd.OutOrStdout()

	messages := schema.Messages()
	if opts.message != "" {
		msg, ok := schema.Message(opts.message)
		if !ok {
			return fmt.Errorf("message %q not found", opts.message)
		}
		messages = []*dbc.Message{msg}
	}

	data := pterm.TableData{{"Message", "ID", "Dir", "Length", "Period", "Signals"}}
	for _, msg := range messages {
		period := "-"
		if msg.Direction() == dbc.DirectionTX {
			period = fmt.Sprintf("%d ms", msg.PeriodMs())
		}

		data = append(data, []string{
			msg.Name(),
			msg.Key().String(),
			msg.Direction().String(),
			strconv.Itoa(int(msg.Length())),
			period,
			strconv.Itoa(msg.NumSignals()),
		})
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, table)

	if !opts.signals && opts.message == "" {
		fmt.Fprintf(out, "%d messages, %d signals\n", len(schema.Messages()), schema.NumSignals())
		return nil
	}

	sigData := pterm.TableData{{"Message", "Signal", "Start", "Size", "Signed", "Type", "Scale", "Offset", "Unit"}}
	for _, msg := range messages {
		for _, sig := range msg.Signals() {
			def := sig.Def()
			sigData = append(sigData, []string{
				msg.Name(),
				def.Name,
				strconv.Itoa(def.Start),
				strconv.Itoa(def.Size),
				strconv.FormatBool(def.Signed),
				def.Type.String(),
				strconv.FormatFloat(def.Scale, 'g', -1, 64),
				strconv.FormatFloat(def.Offset, 'g', -1, 64),
				def.Unit,
			})
		}
	}

	sigTable, err := pterm.DefaultTable.WithHasHeader().WithData(sigData).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, sigTable)

	return nil
}
