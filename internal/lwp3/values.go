package lwp3

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Values is a decoded sample set. Ints holds integer datasets (sign
// extended to 32 bits), Floats holds DatasetFloat32 datasets.
type Values struct {
	Type   DatasetType
	Ints   []int32
	Floats []float32
}

// Len returns the number of decoded datasets.
func (v Values) Len() int {
	if v.Type == DatasetFloat32 {
		return len(v.Floats)
	}
	return len(v.Ints)
}

// Float returns dataset i as a float64 regardless of the dataset type.
func (v Values) Float(i int) float64 {
	if v.Type == DatasetFloat32 {
		return float64(v.Floats[i])
	}
	return float64(v.Ints[i])
}

// DecodeValues decodes a raw port value according to a mode's value format.
//
// At most vf.Datasets samples are decoded; a shorter buffer yields fewer
// samples as long as at least one full sample is present. A Datasets count
// of zero decodes as many whole samples as the buffer holds.
//
// Parameters:
//   - vf: Value format recorded for the port's current mode
//   - raw: Sample bytes from PortValueSingle.Data
//
// Returns:
//   - Values: Typed samples
//   - error: ErrMalformed if the format is unknown or no full sample fits
func DecodeValues(vf ValueFormat, raw []byte) (Values, error) {
	size := vf.Type.Size()
	if size == 0 {
		return Values{}, fmt.Errorf("%w: unknown dataset type 0x%02x", ErrMalformed, uint8(vf.Type))
	}
	n := len(raw) / size
	if n == 0 {
		return Values{}, fmt.Errorf("%w: %d bytes hold no %s sample", ErrMalformed, len(raw), vf.Type)
	}
	if vf.Datasets > 0 && int(vf.Datasets) < n {
		n = int(vf.Datasets)
	}

	v := Values{Type: vf.Type}
	if vf.Type == DatasetFloat32 {
		v.Floats = make([]float32, n)
		for i := range n {
			v.Floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*size:]))
		}
		return v, nil
	}

	v.Ints = make([]int32, n)
	for i := range n {
		s := raw[i*size:]
		switch vf.Type {
		case DatasetInt8:
			v.Ints[i] = int32(int8(s[0]))
		case DatasetInt16:
			v.Ints[i] = int32(int16(binary.LittleEndian.Uint16(s)))
		default:
			v.Ints[i] = int32(binary.LittleEndian.Uint32(s))
		}
	}
	return v, nil
}

// EncodeValues is the inverse of DecodeValues for integer and float samples.
// It is used to build synthetic port values.
func EncodeValues(v Values) ([]byte, error) {
	size := v.Type.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: unknown dataset type 0x%02x", ErrInvalidMessage, uint8(v.Type))
	}
	out := make([]byte, 0, v.Len()*size)
	if v.Type == DatasetFloat32 {
		for _, f := range v.Floats {
			out = appendF32(out, f)
		}
		return out, nil
	}
	for _, i := range v.Ints {
		switch v.Type {
		case DatasetInt8:
			out = append(out, byte(int8(i)))
		case DatasetInt16:
			out = appendU16(out, uint16(int16(i)))
		default:
			out = appendU32(out, uint32(i))
		}
	}
	return out, nil
}
