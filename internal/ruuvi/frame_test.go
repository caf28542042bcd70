package ruuvi

import "testing"

func TestRecognizeFrame(t *testing.T) {
	t.Run("rejects non-ruuvi prefix", func(t *testing.T) {
		_, _, ok := RecognizeFrame([]byte{0x4C, 0x00, 0x05, 0x01})
		if ok {
			t.Fatal("expected ok=false for non-Ruuvi manufacturer prefix")
		}
	})

	t.Run("accepts v5 frame with full payload", func(t *testing.T) {
		raw := append([]byte{0x99, 0x04, FormatV5}, make([]byte, PayloadLength)...)
		tag, payload, ok := RecognizeFrame(raw)
		if !ok {
			t.Fatal("expected ok=true")
		}
		if tag != FormatV5 {
			t.Fatalf("tag = %d, want %d", tag, FormatV5)
		}
		if len(payload) != PayloadLength {
			t.Fatalf("payload length = %d, want %d", len(payload), PayloadLength)
		}
	})

	t.Run("unsupported format tag still recognized as a frame", func(t *testing.T) {
		_, _, ok := RecognizeFrame([]byte{0x99, 0x04, 0x03, 0x01, 0x02})
		if !ok {
			t.Fatal("expected ok=true; caller decides whether format tag is supported")
		}
	})

	t.Run("too short to contain a format tag", func(t *testing.T) {
		_, _, ok := RecognizeFrame([]byte{0x99, 0x04})
		if ok {
			t.Fatal("expected ok=false for truncated header")
		}
	})
}
