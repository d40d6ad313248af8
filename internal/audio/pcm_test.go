package audio

import (
	"bytes"
	"testing"
	"time"
)

func TestFloat32ToPCM16Clamps(t *testing.T) {
	pcm := Float32ToPCM16([]float32{0, 0.5, 1.5, -1.5})
	samples := PCM16ToSamples(pcm)
	if len(samples) != 4 {
		t.Fatalf("sample count = %d, want 4", len(samples))
	}
	if samples[0] != 0 {
		t.Fatalf("samples[0] = %d, want 0", samples[0])
	}
	if samples[1] != 16384 {
		t.Fatalf("samples[1] = %d, want 16384", samples[1])
	}
	if samples[2] != 32767 {
		t.Fatalf("samples[2] = %d, want clamped 32767", samples[2])
	}
	if samples[3] != -32768 {
		t.Fatalf("samples[3] = %d, want clamped -32768", samples[3])
	}
}

func TestDuration(t *testing.T) {
	// One second of 24kHz mono PCM16: 48000 bytes.
	if d := Duration(48000, PlaybackRate); d != time.Second {
		t.Fatalf("Duration = %v, want 1s", d)
	}
	if d := Duration(1, PlaybackRate); d != 0 {
		t.Fatalf("Duration of under one sample = %v, want 0", d)
	}
}

func TestBase64RoundTrip(t *testing.T) {
	in := []byte{1, 2, 3, 250}
	out, err := DecodeBase64(EncodeBase64(in))
	if err != nil {
		t.Fatalf("DecodeBase64() error = %v", err)
	}
	if !bytes.Equal(in, out) {
		t.Fatalf("round trip = %v, want %v", out, in)
	}
}
