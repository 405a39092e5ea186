package control

import (
	"fmt"
	"math"

	"github.com/nerrad567/poweredup/internal/lwp3"
)

// params reads typed values from a decoded JSON object. Numbers arrive as
// float64 from encoding/json and must be integral.
type params map[string]any

func (p params) integer(key string, lo, hi int64) (int64, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrInvalidParameters, key)
	}
	return toInteger(key, v, lo, hi)
}

func (p params) integerOr(key string, def, lo, hi int64) (int64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	return toInteger(key, v, lo, hi)
}

func toInteger(key string, v any, lo, hi int64) (int64, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return 0, fmt.Errorf("%w: %q must be a number", ErrInvalidParameters, key)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %q must be a whole number, got %v", ErrInvalidParameters, key, f)
	}
	if f < float64(lo) || f > float64(hi) {
		return 0, fmt.Errorf("%w: %q must be %d-%d, got %v", ErrInvalidParameters, key, lo, hi, f)
	}
	return int64(f), nil
}

func (p params) str(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", ErrInvalidParameters, key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %q must be a non-empty string", ErrInvalidParameters, key)
	}
	return s, nil
}

// boolean defaults to false when absent.
func (p params) boolean(key string) (bool, error) {
	v, ok := p[key]
	if !ok {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q must be a boolean", ErrInvalidParameters, key)
	}
	return b, nil
}

func (p params) speed() (int8, uint8, error) {
	speed, err := p.integer("speed", -100, 100) //nolint:mnd // percent
	if err != nil {
		return 0, 0, err
	}
	maxPower, err := p.integerOr("max_power", defaultMaxPower, 0, 100) //nolint:mnd // percent
	if err != nil {
		return 0, 0, err
	}
	return int8(speed), uint8(maxPower), nil
}

// move reads the speed, max_power and end_state of a profiled move. The end
// state defaults to brake.
func (p params) move() (int8, uint8, lwp3.EndState, error) {
	speed, maxPower, err := p.speed()
	if err != nil {
		return 0, 0, 0, err
	}
	end := lwp3.EndBrake
	if _, ok := p["end_state"]; ok {
		name, err := p.str("end_state")
		if err != nil {
			return 0, 0, 0, err
		}
		if end, ok = lwp3.ParseEndState(name); !ok {
			return 0, 0, 0, fmt.Errorf("%w: end_state must be float, hold or brake", ErrInvalidParameters)
		}
	}
	return speed, maxPower, end, nil
}

