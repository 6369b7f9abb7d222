package measurement

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// ExportTimeLayout renders measured_at the way Polish locale clients show
// it, e.g. "7.03.2026, 08:15:00".
const ExportTimeLayout = "2.01.2006, 15:04:05"

var exportHeader = []string{
	"Data i czas pomiaru",
	"SYS (mmHg)",
	"DIA (mmHg)",
	"Tętno (bpm)",
	"Poziom ciśnienia",
	"Notatki",
}

// ExportFilename is the attachment name for an export produced on day.
func ExportFilename(day time.Time) string {
	return "pomiary-cisnienia-" + day.Format("2006-01-02") + ".csv"
}

// WriteCSV writes records in the given order as CSV with a header row.
// Timestamps are shown in loc; a nil loc means UTC.
func WriteCSV(w io.Writer, records []Record, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	row := make([]string, len(exportHeader))
	for _, r := range records {
		row[0] = r.MeasuredAt.In(loc).Format(ExportTimeLayout)
		row[1] = strconv.Itoa(r.Sys)
		row[2] = strconv.Itoa(r.Dia)
		row[3] = strconv.Itoa(r.Pulse)
		row[4] = r.Level.Label()
		row[5] = ""
		if r.Notes != nil {
			row[5] = *r.Notes
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
