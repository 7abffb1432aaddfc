package reference

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"
)

// accessionRe matches RefSeq-style versioned accessions such as NC_001806.1.
var accessionRe = regexp.MustCompile(`[A-Z]{1,3}_\d+\.\d+`)

var versionRe = regexp.MustCompile(`^\d+\.\d+$`)

// Targets is the set of accessions to keep, with and without version.
type Targets struct {
	WithVersion map[string]bool
	NoVersion   map[string]bool
}

func newTargets() *Targets {
	return &Targets{WithVersion: make(map[string]bool), NoVersion: make(map[string]bool)}
}

// Len returns the number of unversioned accessions.
func (t *Targets) Len() int { return len(t.NoVersion) }

func (t *Targets) add(acc string) {
	acc = strings.ReplaceAll(strings.TrimSpace(acc), " ", "_")
	if acc == "" {
		return
	}
	if m := accessionRe.FindString(acc); m != "" {
		acc = m
	}
	if base, _, ok := strings.Cut(acc, "."); ok {
		t.WithVersion[acc] = true
		t.NoVersion[base] = true
		return
	}
	t.NoVersion[acc] = true
}

// ParseTargets reads an accession list. Blank lines and # comments are
// skipped. Each line contributes one accession: an embedded versioned
// accession ("NC 001806.1 Human herpesvirus 1" reads as NC_001806.1), else
// the first two tokens joined when they look like a prefix and a version,
// else the first token.
func ParseTargets(r io.Reader) (*Targets, error) {
	t := newTargets()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if m := accessionRe.FindString(strings.ReplaceAll(line, " ", "_")); m != "" {
			t.add(m)
			continue
		}
		toks := strings.Fields(line)
		if len(toks) >= 2 && isAlpha(toks[0]) && versionRe.MatchString(toks[1]) {
			t.add(toks[0] + "_" + toks[1])
			continue
		}
		if len(toks) > 0 {
			t.add(toks[0])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read accession list: %w", err)
	}
	return t, nil
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// HeaderAccession extracts the accession from a FASTA header line, returning
// it with and without version. ok is false when the header carries none.
func HeaderAccession(header string) (withVersion, noVersion string, ok bool) {
	acc := accessionRe.FindString(strings.TrimPrefix(header, ">"))
	if acc == "" {
		return "", "", false
	}
	base, _, _ := strings.Cut(acc, ".")
	return acc, base, true
}

// Match reports whether a header names a target. With ignoreVersion an
// accession matches regardless of its version suffix.
func (t *Targets) Match(header string, ignoreVersion bool) bool {
	wv, nv, ok := HeaderAccession(header)
	if !ok {
		return false
	}
	if t.WithVersion[wv] {
		return true
	}
	return ignoreVersion && t.NoVersion[nv]
}
