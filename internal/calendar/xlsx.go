package calendar

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/content-router/internal/model"
)

var calendarHeader = []string{
	"Date", "Day", "Publication", "Slot", "Idea", "Routing", "Tier", "Score", "Status", "Format",
}

// Workbook renders the calendar as a two-sheet workbook: every entry on
// "Calendar" and per-publication totals on "Summary".
func (c *Calendar) Workbook() (*xlsx.File, error) {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("Calendar")
	if err != nil {
		return nil, eris.Wrap(err, "calendar: add calendar sheet")
	}
	addRow(sheet, calendarHeader...)
	for _, e := range c.Entries {
		row := sheet.AddRow()
		row.AddCell().SetString(e.Date.Format(model.DateLayout))
		row.AddCell().SetString(e.Date.Weekday().String())
		row.AddCell().SetString(e.Publication)
		slot := e.SlotName
		if slot == "" {
			slot = e.SlotID
		}
		row.AddCell().SetString(slot)
		row.AddCell().SetString(e.IdeaID)
		row.AddCell().SetString(e.RoutingID)
		row.AddCell().SetString(string(e.Tier))
		score := row.AddCell()
		if e.Score != nil {
			score.SetFloatWithFormat(*e.Score, "0.00")
		}
		row.AddCell().SetString(string(e.Status))
		row.AddCell().SetString(e.Format)
	}

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return nil, eris.Wrap(err, "calendar: add summary sheet")
	}
	addRow(summary, "From", c.From.Format(model.DateLayout))
	addRow(summary, "To", c.To.AddDate(0, 0, -1).Format(model.DateLayout))
	addRow(summary)
	addRow(summary, "Publication", "Scheduled", "Published")
	for _, pc := range c.Counts() {
		row := summary.AddRow()
		row.AddCell().SetString(pc.Publication)
		row.AddCell().SetInt(pc.Scheduled)
		row.AddCell().SetInt(pc.Published)
	}
	return f, nil
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// WriteXLSX writes the calendar workbook to w.
func (c *Calendar) WriteXLSX(w io.Writer) error {
	f, err := c.Workbook()
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "calendar: write xlsx")
}

// SaveXLSX writes the calendar workbook to path.
func (c *Calendar) SaveXLSX(path string) error {
	f, err := c.Workbook()
	if err != nil {
		return err
	}
	return eris.Wrap(f.Save(path), "calendar: save xlsx")
}
