package control

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Decode parses a JSON command and stamps its source. A command without an
// id gets a fresh UUID so the acknowledgement can be correlated.
//
// On error the returned Command still carries the id (when one could be
// read or generated) so the failure can be acknowledged.
func Decode(payload []byte, source string) (Command, error) {
	var cmd Command
	err := json.Unmarshal(payload, &cmd)
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	cmd.Source = source
	if err != nil {
		return cmd, fmt.Errorf("%w: %w", ErrMalformedCommand, err)
	}
	if cmd.Command == "" {
		return cmd, fmt.Errorf("%w: command name is required", ErrMalformedCommand)
	}
	return cmd, nil
}
