package ruuvi

// manufacturerIDLow and manufacturerIDHigh are the two on-air bytes (little
// endian) that identify Ruuvi Innovations Ltd as the advertiser.
const (
	manufacturerIDLow  = 0x99
	manufacturerIDHigh = 0x04

	// FormatV5 is the format tag byte for data format 5.
	FormatV5 = 0x05
)

// RecognizeFrame inspects a raw manufacturer-data buffer and, if it carries
// the Ruuvi manufacturer prefix, returns the format tag and the remaining
// payload bytes. ok is false for any buffer not starting with the Ruuvi
// prefix; decode must never be invoked in that case (spec.md §4.1).
func RecognizeFrame(raw []byte) (formatTag byte, payload []byte, ok bool) {
	if len(raw) < 3 || raw[0] != manufacturerIDLow || raw[1] != manufacturerIDHigh {
		return 0, nil, false
	}
	return raw[2], raw[3:], true
}
