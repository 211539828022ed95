package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// CSVParser reads comma-separated data. Delimiter defaults to ','.
type CSVParser struct {
	Delimiter rune
}

// Parse implements Parser. The whole file is one sheet; opts.Sheet only
// names the resulting table.
func (p CSVParser) Parse(data []byte, opts Options) (*Table, error) {
	r := csv.NewReader(NewCleanReader(bytes.NewReader(data)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	if p.Delimiter != 0 {
		r.Comma = p.Delimiter
	}

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv: %w", err)
		}
		records = append(records, rec)
	}

	return buildTable(opts.Sheet, records, opts)
}
