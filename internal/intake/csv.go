package intake

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// ReadCSV reads ideas from CSV with a header row, using the same column
// names as ReadXLSX. Refs are "line N" of the input.
func ReadCSV(r io.Reader) ([]Idea, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var (
		rows  [][]string
		lines []int
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, record)
		lines = append(lines, line)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return parseRows(rows, func(n int) string { return fmt.Sprintf("line %d", lines[n]) })
}

// ReadCSVFile opens path and reads ideas from it.
func ReadCSVFile(path string) ([]Idea, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "csv: open file")
	}
	defer f.Close() //nolint:errcheck
	return ReadCSV(f)
}

// ReadFile reads ideas from a .csv or .xlsx file by extension.
func ReadFile(path string, opts XLSXOptions) ([]Idea, error) {
	switch {
	case strings.HasSuffix(strings.ToLower(path), ".csv"):
		return ReadCSVFile(path)
	case strings.HasSuffix(strings.ToLower(path), ".xlsx"):
		return ReadXLSX(path, opts)
	}
	return nil, eris.Errorf("unsupported idea file %s (want .csv or .xlsx)", path)
}
