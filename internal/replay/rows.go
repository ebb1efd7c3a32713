package replay

import (
	"bufio"
	"encoding/csv"
	"io"
	"strings"
)

const maxLineSize = 1 << 20

// rowReader yields one CSV record per physical line. Each line is parsed on
// its own with lazy quoting, so a stray quote in one row cannot swallow the
// rows after it.
type rowReader struct {
	sc   *bufio.Scanner
	line int
}

func newRowReader(r io.Reader) *rowReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &rowReader{sc: sc}
}

// next returns the next record. Blank lines come back as an empty record.
// It returns io.EOF after the last line.
func (r *rowReader) next() ([]string, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	r.line++
	line := r.sc.Text()
	if strings.TrimSpace(line) == "" {
		return []string{}, nil
	}

	cr := csv.NewReader(strings.NewReader(line))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rec, err := cr.Read()
	if err != nil {
		return strings.Split(line, ","), nil
	}
	return rec, nil
}
