package corpus

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type manifestEntry struct {
	Filename           string `yaml:"filename"`
	VerifiedTranscript string `yaml:"verified"`
	Transcript         string `yaml:"transcript"`
}

// LoadManifest reads a YAML sample list for the [Memory] accessor:
//
//	- filename: 2024-01-02_10-00-00.wav
//	  verified: naomi turn on the lights
//	  transcript: naomi turn on the light
func LoadManifest(path string) ([]Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: read manifest: %w", err)
	}
	var entries []manifestEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("corpus: parse manifest %q: %w", path, err)
	}
	samples := make([]Sample, 0, len(entries))
	for i, e := range entries {
		if e.Filename == "" {
			return nil, fmt.Errorf("corpus: manifest %q entry %d has no filename", path, i)
		}
		samples = append(samples, Sample(e))
	}
	return samples, nil
}
