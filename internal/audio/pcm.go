package audio

import (
	"encoding/base64"
	"encoding/binary"
	"time"
)

// Capture and playback rates used by the realtime endpoint: the client
// microphone streams 16 kHz mono PCM16 up, assistant audio comes back at
// 24 kHz mono PCM16.
const (
	CaptureRate  = 16000
	PlaybackRate = 24000
)

// Float32ToPCM16 converts floating-point samples in [-1, 1] to 16-bit signed
// little-endian bytes, clamping out-of-range values.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(s * 32768)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// PCM16ToSamples decodes little-endian PCM16 bytes into int16 samples. A
// trailing odd byte is dropped.
func PCM16ToSamples(pcm []byte) []int16 {
	n := len(pcm) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// Duration reports how long a mono PCM16 payload plays at sampleRate.
func Duration(pcmLen, sampleRate int) time.Duration {
	if sampleRate <= 0 || pcmLen < 2 {
		return 0
	}
	samples := pcmLen / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// EncodeBase64 and DecodeBase64 wrap the wire encoding used for audio frames.
func EncodeBase64(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

func DecodeBase64(data string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(data)
}
