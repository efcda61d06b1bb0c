package whisper

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/kwstune/pkg/decoder"
	"github.com/MrWong99/kwstune/pkg/decoder/phonetic"
	"github.com/MrWong99/kwstune/pkg/vocab"
)

// bitsPerSample is fixed at 16 for the PCM whisper.cpp expects.
const bitsPerSample = 16

// token is one whisper output token with its probability.
type token struct {
	text  string
	p     float64
	start time.Duration
	end   time.Duration
}

// isSpecial reports whether text is a whisper control token such as
// "[_BEG_]", "[_TT_42]" or "<|endoftext|>".
func isSpecial(text string) bool {
	t := strings.TrimSpace(text)
	return strings.HasPrefix(t, "[_") || strings.HasPrefix(t, "<|")
}

// groupWords merges sub-word tokens into words. A token starting with a space
// begins a new word; the word probability is the product of its token
// probabilities.
func groupWords(tokens []token) []decoder.Word {
	var (
		words []decoder.Word
		cur   *decoder.Word
	)
	for _, tk := range tokens {
		if tk.text == "" || isSpecial(tk.text) {
			continue
		}
		if cur == nil || strings.HasPrefix(tk.text, " ") {
			words = append(words, decoder.Word{
				Text:        strings.TrimSpace(tk.text),
				Start:       tk.start,
				End:         tk.end,
				Probability: tk.p,
			})
			cur = &words[len(words)-1]
			continue
		}
		cur.Text += tk.text
		cur.End = tk.end
		cur.Probability *= tk.p
	}
	return words
}

// loadSpotter builds the keyword spotter for cfg from its dictionary.
func loadSpotter(cfg decoder.Config, opts ...phonetic.Option) (*phonetic.Spotter, error) {
	if cfg.DictionaryPath == "" {
		return nil, fmt.Errorf("whisper: dictionary path must not be empty")
	}
	entries, err := vocab.Load(cfg.DictionaryPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	keyword := strings.Join(strings.Fields(strings.ToUpper(cfg.Keyword)), " ")
	for _, e := range entries {
		if e.Word == keyword {
			return phonetic.New(e, decoder.Probability(cfg.Threshold), opts...), nil
		}
	}
	return nil, fmt.Errorf("whisper: keyword %q not in dictionary %s", cfg.Keyword, cfg.DictionaryPath)
}

// encodeWAV wraps raw 16-bit signed little-endian mono PCM in a RIFF/WAV
// container for upload.
func encodeWAV(pcm []byte, sampleRate int) []byte {
	const channels = 1
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], channels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)
	return buf
}

// pcmToFloat32 converts 16-bit signed little-endian PCM to float32 samples in
// [-1.0, 1.0]. A trailing odd byte is ignored.
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}
