package tuning

import (
	"encoding/base64"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// tokenVersion is bumped whenever the envelope layout changes.
const tokenVersion = 1

// envelope is the msgpack wire form of a SearchState.
type envelope struct {
	_msgpack struct{} `msgpack:",as_array"`

	Version  uint8
	Phase    Phase
	Start    int
	End      int
	StepSize int
	Samples  int
	Cursor   int
	Best     int
}

var tokenEncoding = base64.RawURLEncoding

// EncodeState serialises s into an opaque URL-safe token.
func EncodeState(s SearchState) (string, error) {
	b, err := msgpack.Marshal(&envelope{
		Version:  tokenVersion,
		Phase:    s.Phase,
		Start:    s.Window.Start,
		End:      s.Window.End,
		StepSize: s.Window.StepSize,
		Samples:  s.Window.Samples,
		Cursor:   s.Window.Cursor,
		Best:     s.Best,
	})
	if err != nil {
		return "", fmt.Errorf("tuning: encode state: %w", err)
	}
	return tokenEncoding.EncodeToString(b), nil
}

// DecodeState parses a token produced by [EncodeState]. Every failure wraps
// [ErrInvalidToken].
func DecodeState(token string) (SearchState, error) {
	if token == "" {
		return SearchState{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	b, err := tokenEncoding.DecodeString(token)
	if err != nil {
		return SearchState{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	var env envelope
	if err := msgpack.Unmarshal(b, &env); err != nil {
		return SearchState{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if env.Version != tokenVersion {
		return SearchState{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidToken, env.Version)
	}
	s := SearchState{
		Phase: env.Phase,
		Window: SearchWindow{
			Start:    env.Start,
			End:      env.End,
			StepSize: env.StepSize,
			Samples:  env.Samples,
			Cursor:   env.Cursor,
		},
		Best: env.Best,
	}
	if err := s.Validate(); err != nil {
		return SearchState{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return s, nil
}
