// Package vocab compiles keyword pronunciation dictionaries.
//
// A dictionary is a UTF-8 text file with one entry per line:
//
//	KEYWORD<TAB>PRIMARY<TAB>ALTERNATE
//
// KEYWORD is the uppercase keyword (possibly several space-separated tokens).
// PRIMARY and ALTERNATE hold the space-separated Double Metaphone codes of each
// token, in token order. Lines starting with '#' are comments. Decoders load
// the dictionary with [Load] and spot keywords by comparing the phonetic codes
// of transcribed words against it.
package vocab

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

// Entry is one keyword with its per-token pronunciation codes.
type Entry struct {
	Word      string
	Tokens    []string
	Primary   []string
	Alternate []string
}

// NewEntry computes the pronunciation codes for keyword.
func NewEntry(keyword string) Entry {
	tokens := strings.Fields(strings.ToUpper(keyword))
	e := Entry{Word: strings.Join(tokens, " "), Tokens: tokens}
	for _, tok := range tokens {
		p, s := matchr.DoubleMetaphone(strings.ToLower(tok))
		if s == "" {
			s = p
		}
		e.Primary = append(e.Primary, codeOrDash(p))
		e.Alternate = append(e.Alternate, codeOrDash(s))
	}
	return e
}

// codeOrDash keeps columns aligned for tokens without consonants.
func codeOrDash(c string) string {
	if c == "" {
		return "-"
	}
	return c
}

// Write serialises entries in dictionary format.
func Write(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if _, err := fmt.Fprintf(bw, "%s\t%s\t%s\n", e.Word, strings.Join(e.Primary, " "), strings.Join(e.Alternate, " ")); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Read parses a dictionary.
func Read(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		cols := strings.Split(text, "\t")
		if len(cols) != 3 {
			return nil, fmt.Errorf("vocab: line %d: want 3 tab-separated columns, got %d", line, len(cols))
		}
		e := Entry{
			Word:      cols[0],
			Tokens:    strings.Fields(cols[0]),
			Primary:   strings.Fields(cols[1]),
			Alternate: strings.Fields(cols[2]),
		}
		if len(e.Tokens) == 0 || len(e.Primary) != len(e.Tokens) || len(e.Alternate) != len(e.Tokens) {
			return nil, fmt.Errorf("vocab: line %d: code count does not match token count for %q", line, cols[0])
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("vocab: read: %w", err)
	}
	return entries, nil
}

// Load reads the dictionary at path.
func Load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vocab: open dictionary: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Compiler writes dictionaries into a directory, one file per keyword set.
// Compiling the same set twice reuses the existing file.
type Compiler struct {
	dir string
}

// NewCompiler returns a [Compiler] writing into dir. The directory is created
// on first use.
func NewCompiler(dir string) *Compiler {
	return &Compiler{dir: dir}
}

// Compile returns the path of a dictionary covering keywords.
func (c *Compiler) Compile(ctx context.Context, keywords []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(keywords) == 0 {
		return "", errors.New("vocab: no keywords to compile")
	}

	words := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if w := strings.Join(strings.Fields(strings.ToUpper(k)), " "); w != "" {
			words = append(words, w)
		}
	}
	slices.Sort(words)
	words = slices.Compact(words)
	if len(words) == 0 {
		return "", errors.New("vocab: keywords are blank")
	}

	sum := sha256.Sum256([]byte(strings.Join(words, "\n")))
	path := filepath.Join(c.dir, "kws-"+hex.EncodeToString(sum[:8])+".dict")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("vocab: create dictionary dir: %w", err)
	}
	entries := make([]Entry, len(words))
	for i, w := range words {
		entries[i] = NewEntry(w)
	}

	tmp, err := os.CreateTemp(c.dir, ".kws-*.tmp")
	if err != nil {
		return "", fmt.Errorf("vocab: create dictionary: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := Write(tmp, entries); err != nil {
		tmp.Close()
		return "", fmt.Errorf("vocab: write dictionary: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("vocab: write dictionary: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("vocab: install dictionary: %w", err)
	}
	return path, nil
}
