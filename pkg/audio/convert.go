package audio

import "fmt"

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		lSample := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		rSample := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := clamp16((lSample + rSample) / 2)
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// Downmix converts interleaved 16-bit PCM with the given channel count to
// mono by averaging each frame. Mono input is returned unchanged; stereo uses
// [StereoToMono].
func Downmix(pcm []byte, channels int) ([]byte, error) {
	switch {
	case channels <= 0:
		return nil, fmt.Errorf("audio: invalid channel count %d", channels)
	case channels == 1:
		return pcm, nil
	case channels == 2:
		return StereoToMono(pcm), nil
	}
	frameBytes := channels * 2
	frames := len(pcm) / frameBytes
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for ch := range channels {
			j := i*frameBytes + ch*2
			sum += int32(int16(pcm[j]) | int16(pcm[j+1])<<8)
		}
		avg := clamp16(sum / int32(channels))
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out, nil
}

func clamp16(v int32) int32 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return v
}

// formatString returns a human-readable string for a sample rate and channel
// count, e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
