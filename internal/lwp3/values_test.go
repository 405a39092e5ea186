package lwp3

import (
	"errors"
	"reflect"
	"testing"
)

func TestDecodeValues(t *testing.T) {
	tests := []struct {
		name    string
		vf      ValueFormat
		raw     []byte
		want    Values
		wantErr bool
	}{
		{
			name: "int32 position",
			vf:   ValueFormat{Datasets: 1, Type: DatasetInt32},
			raw:  []byte{0x2A, 0x00, 0x00, 0x00},
			want: Values{Type: DatasetInt32, Ints: []int32{42}},
		},
		{
			name: "negative int32",
			vf:   ValueFormat{Datasets: 1, Type: DatasetInt32},
			raw:  []byte{0xA6, 0xFF, 0xFF, 0xFF},
			want: Values{Type: DatasetInt32, Ints: []int32{-90}},
		},
		{
			name: "int8 speed",
			vf:   ValueFormat{Datasets: 1, Type: DatasetInt8},
			raw:  []byte{0xCE},
			want: Values{Type: DatasetInt8, Ints: []int32{-50}},
		},
		{
			name: "three int16 axes",
			vf:   ValueFormat{Datasets: 3, Type: DatasetInt16},
			raw:  []byte{0x01, 0x00, 0xFF, 0xFF, 0x00, 0x01},
			want: Values{Type: DatasetInt16, Ints: []int32{1, -1, 256}},
		},
		{
			name: "dataset count caps samples",
			vf:   ValueFormat{Datasets: 1, Type: DatasetInt8},
			raw:  []byte{0x01, 0x02, 0x03},
			want: Values{Type: DatasetInt8, Ints: []int32{1}},
		},
		{
			name: "zero datasets decodes whole buffer",
			vf:   ValueFormat{Type: DatasetInt8},
			raw:  []byte{0x01, 0x02},
			want: Values{Type: DatasetInt8, Ints: []int32{1, 2}},
		},
		{
			name: "float",
			vf:   ValueFormat{Datasets: 1, Type: DatasetFloat32},
			raw:  []byte{0x00, 0x00, 0xC0, 0x3F},
			want: Values{Type: DatasetFloat32, Floats: []float32{1.5}},
		},
		{
			name:    "short sample",
			vf:      ValueFormat{Datasets: 1, Type: DatasetInt32},
			raw:     []byte{0x01, 0x02},
			wantErr: true,
		},
		{
			name:    "unknown dataset type",
			vf:      ValueFormat{Datasets: 1, Type: 7},
			raw:     []byte{0x01},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeValues(tt.vf, tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Errorf("DecodeValues() error = %v, want ErrMalformed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeValues() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DecodeValues() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEncodeValuesInverse(t *testing.T) {
	in := Values{Type: DatasetInt16, Ints: []int32{-300, 0, 300}}
	raw, err := EncodeValues(in)
	if err != nil {
		t.Fatalf("EncodeValues() error = %v", err)
	}
	out, err := DecodeValues(ValueFormat{Datasets: 3, Type: DatasetInt16}, raw)
	if err != nil {
		t.Fatalf("DecodeValues() error = %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("got %+v, want %+v", out, in)
	}
	if out.Len() != 3 || out.Float(0) != -300 {
		t.Errorf("Len() = %d, Float(0) = %v", out.Len(), out.Float(0))
	}
}

func TestPowerHelpers(t *testing.T) {
	if PowerCW(150) != 100 {
		t.Errorf("PowerCW(150) = %d, want 100", PowerCW(150))
	}
	if PowerCCW(40) != -40 {
		t.Errorf("PowerCCW(40) = %d, want -40", PowerCCW(40))
	}
}

func TestHubPropertyAccessors(t *testing.T) {
	name := &HubProperty{Property: PropAdvertisingName, Operation: PropOpUpdate, Payload: []byte("Move Hub\x00\x00")}
	if got := name.Text(); got != "Move Hub" {
		t.Errorf("Text() = %q", got)
	}

	rssi := &HubProperty{Property: PropRSSI, Operation: PropOpUpdate, Payload: []byte{0xC4}}
	if v, err := rssi.Int8(); err != nil || v != -60 {
		t.Errorf("Int8() = %d, %v", v, err)
	}

	mac := &HubProperty{Property: PropPrimaryMAC, Operation: PropOpUpdate, Payload: []byte{0x90, 0x84, 0x2b, 0x01, 0x02, 0x03}}
	if hw, err := mac.MAC(); err != nil || hw.String() != "90:84:2b:01:02:03" {
		t.Errorf("MAC() = %v, %v", hw, err)
	}

	empty := &HubProperty{Property: PropBatteryVoltage, Operation: PropOpUpdate}
	if _, err := empty.Uint8(); !errors.Is(err, ErrMalformed) {
		t.Errorf("Uint8() on empty payload error = %v", err)
	}
	if _, err := SetAdvertisingName("a name that is far too long"); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("SetAdvertisingName() error = %v", err)
	}
}
