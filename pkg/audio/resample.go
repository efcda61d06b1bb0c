package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// ResampleMono converts 16-bit little-endian mono PCM from srcRate to dstRate.
// Equal rates return pcm unchanged.
func ResampleMono(pcm []byte, srcRate, dstRate int) ([]byte, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("audio: invalid resample rates %d -> %d", srcRate, dstRate)
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm, nil
	}

	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: create resampler: %w", err)
	}

	n := len(pcm) / 2
	input := make([]float64, n)
	for i := range n {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		input[i] = float64(s) / 32768.0
	}

	output, err := rs.Process(input)
	if err != nil {
		return nil, fmt.Errorf("audio: resample: %w", err)
	}
	// The filter holds back its delay line until flushed.
	tail, err := rs.Flush()
	if err != nil {
		return nil, fmt.Errorf("audio: flush resampler: %w", err)
	}
	output = append(output, tail...)

	out := make([]byte, len(output)*2)
	for i, s := range output {
		var v int16
		switch {
		case s >= 1.0:
			v = 32767
		case s < -1.0:
			v = -32768
		default:
			v = int16(s * 32767.0)
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out, nil
}
