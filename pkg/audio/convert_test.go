package audio_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/MrWong99/kwstune/pkg/audio"
)

func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

// encodeWAV wraps pcm in a canonical 44-byte RIFF/WAVE header.
func encodeWAV(pcm []byte, sampleRate, channels, bits int) []byte {
	buf := make([]byte, 44+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*channels*bits/8))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(channels*bits/8))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bits))
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[44:], pcm)
	return buf
}

func equalSamples(t *testing.T, got, want []int16) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono(t *testing.T) {
	t.Parallel()
	stereo := samplesToBytes([]int16{100, 200, -100, -200})
	equalSamples(t, bytesToSamples(audio.StereoToMono(stereo)), []int16{150, -150})
}

func TestStereoToMono_Clamping(t *testing.T) {
	t.Parallel()
	stereo := samplesToBytes([]int16{32767, 32767})
	equalSamples(t, bytesToSamples(audio.StereoToMono(stereo)), []int16{32767})
}

func TestDownmix(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		in       []int16
		channels int
		want     []int16
	}{
		{name: "mono passthrough", in: []int16{1, 2, 3}, channels: 1, want: []int16{1, 2, 3}},
		{name: "stereo", in: []int16{10, 30, -10, -30}, channels: 2, want: []int16{20, -20}},
		{name: "three channels", in: []int16{3, 6, 9, 30, 60, 90}, channels: 3, want: []int16{6, 60}},
		{name: "partial trailing frame dropped", in: []int16{3, 6, 9, 1}, channels: 3, want: []int16{6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := audio.Downmix(samplesToBytes(tt.in), tt.channels)
			if err != nil {
				t.Fatalf("Downmix: %v", err)
			}
			equalSamples(t, bytesToSamples(got), tt.want)
		})
	}
}

func TestDownmix_InvalidChannels(t *testing.T) {
	t.Parallel()
	if _, err := audio.Downmix([]byte{0, 0}, 0); err == nil {
		t.Fatal("Downmix with 0 channels succeeded")
	}
}

func TestExtract_WAV(t *testing.T) {
	t.Parallel()
	pcm := samplesToBytes([]int16{1, -1, 2, -2})
	got, err := audio.Extract(encodeWAV(pcm, 44100, 2, 16))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.SampleRate != 44100 || got.Channels != 2 {
		t.Errorf("format = %s, want 44100Hz stereo", got.Format)
	}
	equalSamples(t, bytesToSamples(got.Data), []int16{1, -1, 2, -2})
}

func TestExtract_HeaderlessFallsBack(t *testing.T) {
	t.Parallel()
	raw := make([]byte, audio.HeaderSize+7)
	for i := range raw {
		raw[i] = 0xAA
	}
	raw[audio.HeaderSize] = 0x01
	got, err := audio.Extract(raw)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Format != audio.FallbackFormat {
		t.Errorf("format = %s, want %s", got.Format, audio.FallbackFormat)
	}
	if len(got.Data) != 6 || got.Data[0] != 0x01 {
		t.Errorf("data = %v, want the 6 even bytes after the header", got.Data)
	}
}

func TestExtract_TooShort(t *testing.T) {
	t.Parallel()
	if _, err := audio.Extract([]byte("RIFF")); err == nil {
		t.Fatal("Extract of a 4-byte payload succeeded")
	}
}

func TestExtract_Unsupported(t *testing.T) {
	t.Parallel()
	_, err := audio.Extract(encodeWAV([]byte{1, 2, 3, 4}, 8000, 1, 8))
	if !errors.Is(err, audio.ErrUnsupportedFormat) {
		t.Fatalf("error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestNormalize_Passthrough(t *testing.T) {
	t.Parallel()
	pcm := samplesToBytes([]int16{5, 6, 7})
	got, err := audio.Normalize(audio.PCM{Data: pcm, Format: audio.Format{SampleRate: 16000, Channels: 1}}, 16000)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	equalSamples(t, bytesToSamples(got), []int16{5, 6, 7})
}

func TestNormalize_Downsample(t *testing.T) {
	t.Parallel()
	const srcRate = 48000
	in := make([]int16, srcRate*2) // one second of stereo
	for i := range in {
		in[i] = int16((i % 200) * 50)
	}
	got, err := audio.Normalize(audio.PCM{Data: samplesToBytes(in), Format: audio.Format{SampleRate: srcRate, Channels: 2}}, 16000)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if n := len(got) / 2; absDiff(n, 16000) > resampleSlack {
		t.Errorf("downsampled to %d samples, want 16000", n)
	}
}

// resampleSlack is the rounding allowed on a resampled length.
const resampleSlack = 16

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

func TestResampleMono_KeepsDuration(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		srcRate int
	}{
		{name: "8 kHz", srcRate: 8000},
		{name: "22.05 kHz", srcRate: 22050},
		{name: "44.1 kHz", srcRate: 44100},
		{name: "48 kHz", srcRate: 48000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := make([]int16, tt.srcRate) // one second
			for i := range in {
				in[i] = int16((i % 100) * 100)
			}
			got, err := audio.ResampleMono(samplesToBytes(in), tt.srcRate, 16000)
			if err != nil {
				t.Fatalf("ResampleMono: %v", err)
			}
			if n := len(got) / 2; absDiff(n, 16000) > resampleSlack {
				t.Errorf("one second at %d Hz resampled to %d samples, want 16000", tt.srcRate, n)
			}
		})
	}
}

func TestResampleMono_InvalidRate(t *testing.T) {
	t.Parallel()
	if _, err := audio.ResampleMono([]byte{0, 0}, 0, 16000); err == nil {
		t.Fatal("ResampleMono with zero source rate succeeded")
	}
}
