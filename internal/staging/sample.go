package staging

import (
	"fmt"
	"regexp"
	"strings"
)

// Layout is the read layout of a sample.
type Layout string

const (
	PairedEnd Layout = "paired"
	SingleEnd Layout = "single"
)

// ParseLayout accepts "paired"/"single" and the PAIRED/SINGLE spelling used by
// SRA run tables.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "paired", "pairedend", "paired-end":
		return PairedEnd, nil
	case "single", "singleend", "single-end":
		return SingleEnd, nil
	default:
		return "", fmt.Errorf("unknown layout %q", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler so layouts can be read from config.
func (l *Layout) UnmarshalText(text []byte) error {
	parsed, err := ParseLayout(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Sample is one sequencing run to stage and align.
type Sample struct {
	ID     string `yaml:"id"`
	Layout Layout `yaml:"layout"`
}

var accessionRe = regexp.MustCompile(`^[A-Z]{3}[0-9]{6,9}$`)

// Validate checks that the sample has an archive accession and a known layout.
func (s Sample) Validate() error {
	if !accessionRe.MatchString(s.ID) {
		return fmt.Errorf("sample %q: not an archive run accession", s.ID)
	}
	if s.Layout != PairedEnd && s.Layout != SingleEnd {
		return fmt.Errorf("sample %s: unknown layout %q", s.ID, s.Layout)
	}
	return nil
}

// ExpectedFiles returns the raw read file names of the sample, primary first.
func (s Sample) ExpectedFiles() []string {
	if s.Layout == PairedEnd {
		return []string{s.ID + "_1.fastq.gz", s.ID + "_2.fastq.gz"}
	}
	return []string{s.ID + ".fastq.gz"}
}

// AlignmentFile is the sorted alignment the align stages write into the sample area.
func (s Sample) AlignmentFile() string {
	return s.ID + ".sorted.bam"
}

// RemoteURL returns the archive location of file for accession id, following
// the ENA convention <base>/<first 6>/[<subdir>/]<id>/<file>. The subdir is the
// trailing digits zero-padded to three for 7 to 9 digit accessions.
func RemoteURL(base, id, file string) string {
	base = strings.TrimRight(base, "/")
	prefix := id
	if len(prefix) > 6 {
		prefix = id[:6]
	}

	digits := len(id) - len(strings.TrimRight(id, "0123456789"))
	parts := []string{base, prefix}
	if digits > 6 {
		extra := min(digits-6, 3)
		parts = append(parts, strings.Repeat("0", 3-extra)+id[len(id)-extra:])
	}
	parts = append(parts, id, file)
	return strings.Join(parts, "/")
}
