package intake

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/content-router/internal/apperr"
	"github.com/sells-group/content-router/internal/model"
)

// XLSXOptions selects the sheet ideas are read from.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// headerAliases maps normalized header text onto fact fields.
var headerAliases = map[string]string{
	"id":               "id",
	"idea_id":          "id",
	"idea":             "id",
	"title":            "title",
	"name":             "title",
	"resource":         model.FieldResource,
	"estimated_length": model.FieldEstimatedLength,
	"length":           model.FieldEstimatedLength,
	"time_sensitivity": model.FieldTimeSensitivity,
	"news_window":      model.FieldNewsWindow,
	"contrarian_angle": model.FieldContrarianAngle,
	"contrarian":       model.FieldContrarianAngle,
	"format":           model.FieldFormat,
	"audiences":        model.FieldAudiences,
	"audience":         model.FieldAudiences,
	"tags":             model.FieldTags,
	"pillar":           model.FieldPillar,
	"source":           model.FieldSource,
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(h)
}

// ReadXLSX reads ideas from a sheet whose first row is a header. Blank rows
// are skipped; a row without an id is a validation error.
func ReadXLSX(path string, opts XLSXOptions) ([]Idea, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, nil
	}
	rows := make([][]string, len(sheet.Rows))
	for i, r := range sheet.Rows {
		rows[i] = rowToStrings(r)
	}
	return parseRows(rows, func(n int) string { return fmt.Sprintf("%s!%d", sheet.Name, n+1) })
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}

// parseRows maps a header row plus data rows onto ideas. ref names the
// source location of the zero-based row n.
func parseRows(rows [][]string, ref func(n int) string) ([]Idea, error) {
	const op = "intake.parse_rows"

	header := rows[0]
	columns := make([]string, len(header))
	hasID := false
	for i, h := range header {
		field, ok := headerAliases[normalizeHeader(h)]
		if !ok {
			continue
		}
		columns[i] = field
		hasID = hasID || field == "id"
	}
	if !hasID {
		return nil, apperr.Validation(op, "%s: header has no id column", ref(0))
	}

	var ideas []Idea
	for n := 1; n < len(rows); n++ {
		cells := rows[n]
		if blank(cells) {
			continue
		}
		idea := Idea{Ref: ref(n)}
		for i, v := range cells {
			v = strings.TrimSpace(v)
			if i >= len(columns) || columns[i] == "" || v == "" {
				continue
			}
			if err := assign(&idea, columns[i], v); err != nil {
				return nil, apperr.Validation(op, "%s: %v", idea.Ref, err)
			}
		}
		if idea.ID == "" {
			return nil, apperr.Validation(op, "%s: idea id is empty", idea.Ref)
		}
		ideas = append(ideas, idea)
	}
	return ideas, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}

func assign(idea *Idea, field, v string) error {
	f := &idea.Facts
	switch field {
	case "id":
		idea.ID = v
	case "title":
		idea.Title = v
	case model.FieldResource:
		f.Resource = v
	case model.FieldEstimatedLength:
		f.EstimatedLength = v
	case model.FieldTimeSensitivity:
		f.TimeSensitivity = model.TimeSensitivity(strings.ToLower(strings.ReplaceAll(v, " ", "_")))
	case model.FieldNewsWindow:
		f.NewsWindow = v
	case model.FieldContrarianAngle:
		b, err := parseBool(v)
		if err != nil {
			return err
		}
		f.ContrarianAngle = b
	case model.FieldFormat:
		f.Format = v
	case model.FieldAudiences:
		f.Audiences = splitList(v)
	case model.FieldTags:
		f.Tags = splitList(v)
	case model.FieldPillar:
		f.Pillar = v
	case model.FieldSource:
		f.Source = v
	}
	return nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "x":
		return true, nil
	case "0", "false", "no", "n":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a yes/no value", v)
}

func splitList(v string) []string {
	parts := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ';' })
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
