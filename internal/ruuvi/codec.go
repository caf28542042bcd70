// Package ruuvi decodes RuuviTag data format 5 advertising payloads.
//
// https://github.com/ruuvi/ruuvi-sensor-protocols/blob/master/dataformat_05.md
package ruuvi

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// PayloadLength is the number of bytes in a v5 payload after the format tag.
// Only the first 17 carry decoded fields; the remainder (address bytes) is
// accepted but not interpreted by this package.
const PayloadLength = 24

// ErrShortPayload is returned when the input is not exactly PayloadLength bytes.
var ErrShortPayload = errors.New("ruuvi: payload must be exactly 24 bytes")

// Acceleration holds triaxial acceleration in mG.
type Acceleration struct {
	OnXAxis int16 `json:"on_x_axis"`
	OnYAxis int16 `json:"on_y_axis"`
	OnZAxis int16 `json:"on_z_axis"`
}

// Telemetry is the decoded v5 payload. Immutable after construction.
type Telemetry struct {
	Temperature         float64      `json:"temperature"`
	Humidity            float64      `json:"humidity"`
	AtmosphericPressure float64      `json:"atmospheric_pressure"`
	Acceleration        Acceleration `json:"acceleration"`
	BatteryMillivolts   uint16       `json:"powerinfo"`
	TXPowerDBm          int8         `json:"-"`
	MovementCounter     uint8        `json:"movement_counter"`
	MeasurementSequence uint16       `json:"measurement_sequence_number"`
}

// Decode decodes exactly 24 bytes of v5 payload (the bytes following the
// format tag). It treats every 24-byte input as valid: sentinel encodings
// (0x8000, 0xFFFF, ...) surface as their literal extreme values rather than
// being rejected.
func Decode(payload []byte) (Telemetry, error) {
	if len(payload) != PayloadLength {
		return Telemetry{}, fmt.Errorf("%w: got %d bytes", ErrShortPayload, len(payload))
	}

	rawTemp := int16(binary.BigEndian.Uint16(payload[0:2]))
	rawHumidity := binary.BigEndian.Uint16(payload[2:4])
	rawPressure := binary.BigEndian.Uint16(payload[4:6])
	rawAccelX := int16(binary.BigEndian.Uint16(payload[6:8]))
	rawAccelY := int16(binary.BigEndian.Uint16(payload[8:10]))
	rawAccelZ := int16(binary.BigEndian.Uint16(payload[10:12]))
	rawPower := binary.BigEndian.Uint16(payload[12:14])
	movementCounter := payload[14]
	rawSequence := binary.BigEndian.Uint16(payload[15:17])

	batteryVoltage := rawPower >> 5
	txPowerRaw := rawPower & 0b11111

	return Telemetry{
		Temperature:         float64(rawTemp) / 200.0,
		Humidity:            float64(rawHumidity) / 400.0,
		AtmosphericPressure: (float64(rawPressure) + 50000.0) / 100.0,
		Acceleration: Acceleration{
			OnXAxis: rawAccelX,
			OnYAxis: rawAccelY,
			OnZAxis: rawAccelZ,
		},
		BatteryMillivolts:   batteryVoltage + 1600,
		TXPowerDBm:          int8(txPowerRaw)*2 - 40,
		MovementCounter:     movementCounter,
		MeasurementSequence: rawSequence,
	}, nil
}

// String renders the telemetry the same way on every call, so that two
// observations can be compared for the scanner's stuck-stack detection
// (spec.md §4.2) without relying on struct equality semantics.
func (t Telemetry) String() string {
	return fmt.Sprintf(
		"(temperature=%.2f°C, humidity=%.2f%%, pressure=%.2fhPa, acceleration=(%d,%d,%d)mG, battery=%dmV, tx_power=%ddBm, movement_counter=%d, measurement_sequence=%d)",
		t.Temperature, t.Humidity, t.AtmosphericPressure,
		t.Acceleration.OnXAxis, t.Acceleration.OnYAxis, t.Acceleration.OnZAxis,
		t.BatteryMillivolts, t.TXPowerDBm, t.MovementCounter, t.MeasurementSequence,
	)
}
