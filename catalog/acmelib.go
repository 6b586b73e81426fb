package catalog

import (
	"fmt"

	"github.com/squadracorsepolito/acmelib"
	"github.com/squadracorsepolito/acmedash/dbc"
)

// ToAcmelib mirrors the layout of the standard id messages of the schema into
// acmelib messages. Every signal becomes an integer signal inserted at its
// start bit, so acmelib decodes the raw values of the table.
// Extended id messages are skipped.
func ToAcmelib(schema *dbc.Schema) ([]*acmelib.Message, error) {
	messages := make([]*acmelib.Message, 0, len(schema.Messages()))

	for _, msg := range schema.Messages() {
		if msg.Extended() {
			continue
		}

		acmeMsg := acmelib.NewMessage(msg.Name(), acmelib.MessageID(msg.ID()), int(msg.Length()))

		for _, sig := range msg.Signals() {
			sigType, err := acmelib.NewIntegerSignalType(fmt.Sprintf("%s_%s_t", msg.Name(), sig.Name()), sig.Size(), sig.Signed())
			if err != nil {
				return nil, fmt.Errorf("acmelib: message %s: signal %s: %w", msg.Name(), sig.Name(), err)
			}

			acmeSig, err := acmelib.NewStandardSignal(sig.Name(), sigType)
			if err != nil {
				return nil, fmt.Errorf("acmelib: message %s: signal %s: %w", msg.Name(), sig.Name(), err)
			}

			if err := acmeMsg.InsertSignal(acmeSig, sig.Start()); err != nil {
				return nil, fmt.Errorf("acmelib: message %s: signal %s: %w", msg.Name(), sig.Name(), err)
			}
		}

		messages = append(messages, acmeMsg)
	}

	return messages, nil
}
