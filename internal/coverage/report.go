package coverage

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Row is one reference sequence of a samtools coverage table.
type Row struct {
	Name         string
	Length       int64
	NumReads     int64
	CoveredBases int64
	Coverage     float64 // percent of bases covered
	MeanDepth    float64
	MeanBaseQ    float64
	MeanMapQ     float64
}

// Report is the parsed coverage table of one sample.
type Report struct {
	Path string
	Rows []Row
}

// Row returns the row for a reference name.
func (r *Report) Row(name string) (Row, bool) {
	for _, row := range r.Rows {
		if row.Name == name {
			return row, true
		}
	}
	return Row{}, false
}

const reportColumns = 9

// ParseReport parses samtools coverage output:
// #rname startpos endpos numreads covbases coverage meandepth meanbaseq meanmapq.
func ParseReport(r io.Reader) ([]Row, error) {
	var rows []Row
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != reportColumns {
			return nil, fmt.Errorf("line %d: expected %d columns, got %d", lineNo, reportColumns, len(fields))
		}
		row, err := parseRow(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read coverage table: %w", err)
	}
	return rows, nil
}

func parseRow(f []string) (Row, error) {
	var ints [4]int64
	for i, col := range []int{1, 2, 3, 4} {
		v, err := strconv.ParseInt(f[col], 10, 64)
		if err != nil {
			return Row{}, fmt.Errorf("column %d: %w", col+1, err)
		}
		ints[i] = v
	}
	var floats [4]float64
	for i, col := range []int{5, 6, 7, 8} {
		v, err := strconv.ParseFloat(f[col], 64)
		if err != nil {
			return Row{}, fmt.Errorf("column %d: %w", col+1, err)
		}
		floats[i] = v
	}
	start, end := ints[0], ints[1]
	if end < start {
		return Row{}, fmt.Errorf("endpos %d before startpos %d", end, start)
	}
	return Row{
		Name:         f[0],
		Length:       end - start + 1,
		NumReads:     ints[2],
		CoveredBases: ints[3],
		Coverage:     floats[0],
		MeanDepth:    floats[1],
		MeanBaseQ:    floats[2],
		MeanMapQ:     floats[3],
	}, nil
}
