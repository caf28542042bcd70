package ruuvi

import (
	"encoding/hex"
	"testing"
)

// decodeHex pads the spec's 17-byte field vectors out to the full 24-byte
// payload with a trailing filler (standing in for the MAC-address tail of a
// real advertisement), since Decode requires exactly PayloadLength bytes but
// only the first 17 carry decoded fields.
func decodeHex(t *testing.T, s string) Telemetry {
	t.Helper()
	raw, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex fixture: %v", err)
	}
	padded := make([]byte, PayloadLength)
	copy(padded, raw)
	tel, err := Decode(padded)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return tel
}

func TestDecode_Vectors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Telemetry
	}{
		{
			name:    "valid",
			payload: "12FC5394C37C0004FFFC040CAC364200CD",
			want: Telemetry{
				Temperature:         24.3,
				Humidity:            53.49,
				AtmosphericPressure: 1000.44,
				Acceleration:        Acceleration{OnXAxis: 4, OnYAxis: -4, OnZAxis: 1036},
				BatteryMillivolts:   2977,
				TXPowerDBm:          4,
				MovementCounter:     66,
				MeasurementSequence: 205,
			},
		},
		{
			name:    "min",
			payload: "8001000000008001800180010000000000",
			want: Telemetry{
				Temperature:         -163.835,
				Humidity:            0.0,
				AtmosphericPressure: 500.0,
				Acceleration:        Acceleration{OnXAxis: -32767, OnYAxis: -32767, OnZAxis: -32767},
				BatteryMillivolts:   1600,
				TXPowerDBm:          -40,
				MovementCounter:     0,
				MeasurementSequence: 0,
			},
		},
		{
			name:    "max",
			payload: "7FFFFFFEFFFE7FFF7FFF7FFFFFDEFEFFFE",
			want: Telemetry{
				Temperature:         163.835,
				Humidity:            163.835,
				AtmosphericPressure: 1155.34,
				Acceleration:        Acceleration{OnXAxis: 32767, OnYAxis: 32767, OnZAxis: 32767},
				BatteryMillivolts:   3646,
				TXPowerDBm:          20,
				MovementCounter:     254,
				MeasurementSequence: 65534,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeHex(t, tt.payload)
			if got != tt.want {
				t.Errorf("Decode(%s) = %+v, want %+v", tt.payload, got, tt.want)
			}
		})
	}
}

func TestDecode_ShortPayload(t *testing.T) {
	_, err := Decode(make([]byte, 10))
	if err == nil {
		t.Fatal("expected error for short payload")
	}
}

func TestDecode_Linearity(t *testing.T) {
	// Three equally spaced raw temperature samples must map to equally
	// spaced floats, confirming the constant-divisor relationship.
	samples := []int16{-1000, 0, 1000}
	var floats []float64
	for _, raw := range samples {
		payload := make([]byte, PayloadLength)
		payload[0] = byte(uint16(raw) >> 8)
		payload[1] = byte(uint16(raw))
		tel, err := Decode(payload)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		floats = append(floats, tel.Temperature)
	}
	d1 := floats[1] - floats[0]
	d2 := floats[2] - floats[1]
	if d1 != d2 {
		t.Fatalf("non-linear temperature mapping: %v vs %v", d1, d2)
	}
}
