// Package reference prepares the viral reference FASTA the index is built
// from, optionally filtered down to an accession list.
package reference

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LineWidth is the sequence wrap width of written records.
const LineWidth = 60

// Stats counts the records seen and written by Filter.
type Stats struct {
	Kept  int
	Total int
}

// Filter streams FASTA records from r and writes those whose header names a
// target to w, sequences wrapped at LineWidth. A nil targets keeps every record.
func Filter(ctx context.Context, r io.Reader, w io.Writer, targets *Targets, ignoreVersion bool) (Stats, error) {
	var stats Stats
	bw := bufio.NewWriter(w)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1024*1024), 64*1024*1024)

	var header string
	var seq strings.Builder
	inRecord := false

	flush := func() error {
		if !inRecord {
			return nil
		}
		stats.Total++
		if targets != nil && !targets.Match(header, ignoreVersion) {
			return nil
		}
		stats.Kept++
		return writeRecord(bw, header, seq.String())
	}

	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, ">") {
			if err := flush(); err != nil {
				return stats, err
			}
			if stats.Total%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return stats, err
				}
			}
			header = strings.TrimRight(line, "\r")
			seq.Reset()
			inRecord = true
			continue
		}
		if inRecord {
			seq.WriteString(strings.TrimSpace(line))
		}
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("read fasta: %w", err)
	}
	if err := flush(); err != nil {
		return stats, err
	}
	if err := bw.Flush(); err != nil {
		return stats, fmt.Errorf("write fasta: %w", err)
	}
	return stats, nil
}

func writeRecord(w *bufio.Writer, header, seq string) error {
	if _, err := w.WriteString(header + "\n"); err != nil {
		return fmt.Errorf("write fasta: %w", err)
	}
	for i := 0; i < len(seq); i += LineWidth {
		end := min(i+LineWidth, len(seq))
		if _, err := w.WriteString(seq[i:end] + "\n"); err != nil {
			return fmt.Errorf("write fasta: %w", err)
		}
	}
	return nil
}

// Options selects the reference source.
type Options struct {
	FASTA         string // master FASTA, plain or gzip
	List          string // accession list; empty keeps every record
	IgnoreVersion bool
}

// Prepare writes the reference described by opts to dest, via a temp file
// and rename.
func Prepare(ctx context.Context, opts Options, dest string) (Stats, error) {
	in, err := Open(opts.FASTA)
	if err != nil {
		return Stats{}, fmt.Errorf("open reference: %w", err)
	}
	defer in.Close()

	var targets *Targets
	if opts.List != "" {
		lf, err := Open(opts.List)
		if err != nil {
			return Stats{}, fmt.Errorf("open accession list: %w", err)
		}
		targets, err = ParseTargets(lf)
		lf.Close()
		if err != nil {
			return Stats{}, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Stats{}, err
	}
	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return Stats{}, err
	}
	stats, err := Filter(ctx, in, out, targets, opts.IgnoreVersion)
	if cerr := out.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return stats, err
	}
	if stats.Kept == 0 {
		os.Remove(tmp)
		return stats, fmt.Errorf("reference %s: no records kept out of %d", opts.FASTA, stats.Total)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return stats, err
	}
	return stats, nil
}
