package hub

import (
	"context"
	"fmt"

	"github.com/nerrad567/poweredup/internal/lwp3"
)

// Remote control button mode and report values.
const (
	remoteModeKey uint8 = 0

	buttonReleased int32 = 0
	buttonPlus     int32 = 1
	buttonMinus    int32 = -1
	buttonRed      int32 = 127
)

// ButtonState is one side of the remote control.
type ButtonState struct {
	Plus     bool `json:"plus"`
	Red      bool `json:"red"`
	Minus    bool `json:"minus"`
	Released bool `json:"released"`
}

// String returns the pressed button name.
func (b ButtonState) String() string {
	switch {
	case b.Plus:
		return "plus"
	case b.Red:
		return "red"
	case b.Minus:
		return "minus"
	default:
		return "released"
	}
}

// DecodeButtons converts a remote button sample into a ButtonState.
func DecodeButtons(s Sample) (ButtonState, error) {
	if s.Values.Len() == 0 {
		return ButtonState{}, fmt.Errorf("%w: empty button sample", lwp3.ErrMalformed)
	}
	switch int32(s.Values.Float(0)) {
	case buttonReleased:
		return ButtonState{Released: true}, nil
	case buttonPlus:
		return ButtonState{Plus: true}, nil
	case buttonMinus:
		return ButtonState{Minus: true}, nil
	case buttonRed:
		return ButtonState{Red: true}, nil
	default:
		return ButtonState{}, fmt.Errorf("%w: button value %v", lwp3.ErrMalformed, s.Values.Float(0))
	}
}

// SubscribeButtons enables key reports on a remote control button port.
// Decode each sample with DecodeButtons.
func (d Device) SubscribeButtons(ctx context.Context) (*Subscription, error) {
	if err := d.require("subscribe_buttons", lwp3.FamilyRemoteButton); err != nil {
		return nil, err
	}
	return d.Subscribe(ctx, remoteModeKey, 1)
}
