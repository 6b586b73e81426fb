package cli

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/squadracorsepolito/acmedash/dbc"
	"go.einride.tech/can"
)

type decodeOptions struct {
	extended bool
}

func newDecodeCmd(rootOpts *rootOptions) *cobra.Command {
	opts := &decodeOptions{}

	decodeCmd := &cobra.Command{
		Use:   "decode <id> <hex payload>",
		Short: "Decode a single frame",
		Long: `Decode a single frame with the catalog and print its signal values.
Rx messages take precedence over tx messages sharing the same id.

Examples:
  acmedash decode 0x2A1 64323C4650
  acmedash decode 0x510 2A00000000000000`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := rootOpts.loadSchema()
			if err != nil {
				return err
			}

			frame, err := parseFrame(args[0], args[1], opts.extended)
			if err != nil {
				return err
			}

			return runDecode(cmd, schema, frame)
		},
	}

	decodeCmd.Flags().BoolVar(&opts.extended, "extended", false, "the id is a 29 bit extended id")

	return decodeCmd
}

func parseFrame(idArg, payloadArg string, extended bool) (can.Frame, error) {
	id, err := strconv.ParseUint(idArg, 0, 32)
	if err != nil {
		return can.Frame{}, fmt.Errorf("invalid id %q: %w", idArg, err)
	}

	payload, err := hex.DecodeString(strings.ReplaceAll(payloadArg, " ", ""))
	if err != nil {
		return can.Frame{}, fmt.Errorf("invalid payload %q: %w", payloadArg, err)
	}

	if len(payload) > dbc.MaxLength {
		return can.Frame{}, fmt.Errorf("payload of %d bytes exceeds %d bytes", len(payload), dbc.MaxLength)
	}

	frame := can.Frame{
		ID:         uint32(id),
		IsExtended: extended,
		Length:     uint8(len(payload)),
	}
	copy(frame.Data[:], payload)

	if err := frame.Validate(); err != nil {
		return can.Frame{}, err
	}

	return frame, nil
}

func runDecode(cmd *cobra.Command, schema *dbc.Schema, frame can.Frame) error {
	key := dbc.Key{ID: frame.ID, Extended: frame.IsExtended}

	msg, ok := schema.Find(key)
	if !ok {
		return fmt.Errorf("%w: %s", dbc.ErrUnknownMessage, key)
	}

	msg.DecodeFrom(frame)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", msg.Name(), key)

	if frame.Length < msg.Length() {
		fmt.Fprintf(out, "short frame: %d of %d bytes, missing bytes read as zero\n", frame.Length, msg.Length())
	}

	data := pterm.TableData{{"Signal", "Value", "Unit", "Raw"}}
	payload := [8]byte(frame.Data)
	for _, sig := range msg.Signals() {
		data = append(data, []string{
			sig.Name(),
			sig.Value().String(),
			sig.Unit(),
			fmt.Sprintf("0x%X", sig.RawBits(payload)),
		})
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, table)

	return nil
}

func newEncodeCmd(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "encode <message> [signal=value...]",
		Short: "Encode a message",
		Long: `Encode a message with the given signal values and print the frame
in candump format. Signals not given keep their initial value.

Examples:
  acmedash encode dashHeartbeat counter=42
  acmedash encode ecuPumpFanCommand frontPumpDutyCycle=80 rearFanDutyCycle=40`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := rootOpts.loadSchema()
			if err != nil {
				return err
			}

			msg, ok := schema.Message(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", dbc.ErrUnknownMessage, args[0])
			}

			if err := setSignals(msg, args[1:]); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), formatFrame(msg.Encode()))

			return nil
		},
	}
}

func setSignals(msg *dbc.Message, assignments []string) error {
	for _, assignment := range assignments {
		name, rawValue, ok := strings.Cut(assignment, "=")
		if !ok {
			return fmt.Errorf("invalid assignment %q, want signal=value", assignment)
		}

		sig, ok := msg.SignalByName(name)
		if !ok {
			return fmt.Errorf("message %s has no signal %q", msg.Name(), name)
		}

		value, err := parseValue(sig.Type(), rawValue)
		if err != nil {
			return fmt.Errorf("signal %s: %w", name, err)
		}

		sig.SetValue(value)
	}

	return nil
}

func parseValue(typ dbc.ValueType, s string) (dbc.Value, error) {
	switch typ {
	case dbc.ValueTypeFlag:
		b, err := strconv.ParseBool(s)
		return dbc.FlagValue(b), err
	case dbc.ValueTypeInt:
		i, err := strconv.ParseInt(s, 0, 64)
		return dbc.IntValue(i), err
	case dbc.ValueTypeUint:
		u, err := strconv.ParseUint(s, 0, 64)
		return dbc.UintValue(u), err
	default:
		f, err := strconv.ParseFloat(s, 64)
		return dbc.FloatValue(f), err
	}
}

// formatFrame prints the frame like candump: 123#DEADBEEF.
func formatFrame(frame can.Frame) string {
	id := fmt.Sprintf("%03X", frame.ID)
	if frame.IsExtended {
		id = fmt.Sprintf("%08X", frame.ID)
	}

	return id + "#" + strings.ToUpper(hex.EncodeToString(frame.Data[:frame.Length]))
}
