package whisper

import (
	"encoding/binary"
	"testing"
	"time"
)

func TestIsSpecial(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text string
		want bool
	}{
		{"[_BEG_]", true},
		{" [_TT_42]", true},
		{"<|endoftext|>", true},
		{" hello", false},
		{"omi", false},
	}
	for _, tt := range tests {
		if got := isSpecial(tt.text); got != tt.want {
			t.Errorf("isSpecial(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestGroupWords(t *testing.T) {
	t.Parallel()
	ms := time.Millisecond
	tokens := []token{
		{text: "[_BEG_]", p: 1},
		{text: "Hey", p: 0.9, start: 0, end: 100 * ms},
		{text: " Na", p: 0.5, start: 100 * ms, end: 200 * ms},
		{text: "omi", p: 0.4, start: 200 * ms, end: 300 * ms},
		{text: "", p: 0.1},
		{text: " there", p: 0.8, start: 300 * ms, end: 400 * ms},
		{text: "<|endoftext|>", p: 1},
	}
	got := groupWords(tokens)
	if len(got) != 3 {
		t.Fatalf("groupWords returned %d words: %+v", len(got), got)
	}
	if got[0].Text != "Hey" || got[1].Text != "Naomi" || got[2].Text != "there" {
		t.Errorf("texts = %q %q %q", got[0].Text, got[1].Text, got[2].Text)
	}
	if got[1].Probability != 0.5*0.4 {
		t.Errorf("Probability = %v, want 0.2", got[1].Probability)
	}
	if got[1].Start != 100*ms || got[1].End != 300*ms {
		t.Errorf("span = %v..%v", got[1].Start, got[1].End)
	}
}

func TestEncodeWAV(t *testing.T) {
	t.Parallel()
	pcm := []byte{1, 0, 2, 0}
	wav := encodeWAV(pcm, 16000)
	if len(wav) != 48 {
		t.Fatalf("len = %d, want 48", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Error("missing RIFF/WAVE/data markers")
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate = %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != 4 {
		t.Errorf("data size = %d", got)
	}
}

func TestPCMToFloat32(t *testing.T) {
	t.Parallel()
	pcm := make([]byte, 5)
	binary.LittleEndian.PutUint16(pcm[0:], uint16(16384))
	v := int16(-32768)
	binary.LittleEndian.PutUint16(pcm[2:], uint16(v))
	got := pcmToFloat32(pcm)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (odd byte dropped)", len(got))
	}
	if got[0] != 0.5 || got[1] != -1 {
		t.Errorf("samples = %v", got)
	}
}
