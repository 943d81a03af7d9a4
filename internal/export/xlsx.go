// Package export renders ledger history as spreadsheets.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/TanguyBaudrin/familly-companion/internal/model"
)

const (
	sheetName   = "History"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var headers = []string{"Date", "Reason", "Cause", "Points", "Balance"}

// WriteHistory writes one row per ledger entry, in the order given, with a
// running balance column. Entries are expected newest first, matching the
// history endpoint, so the balance column counts back from the member's
// current total.
func WriteHistory(w io.Writer, member *model.Member, entries []model.LedgerEntry) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for i, h := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return fmt.Errorf("set header: %w", err)
		}
	}

	balance := member.TotalPoints
	for idx, e := range entries {
		row := idx + 2
		values := []any{
			e.Timestamp.UTC().Format(time.DateTime),
			e.Reason,
			string(e.Cause.Kind()),
			e.PointsChange,
			balance,
		}
		for col, v := range values {
			cell := fmt.Sprintf("%c%d", 'A'+col, row)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
		balance -= e.PointsChange
	}

	f.SetColWidth(sheetName, "A", "A", 20)
	f.SetColWidth(sheetName, "B", "B", 40)
	f.SetColWidth(sheetName, "C", "C", 18)
	f.SetColWidth(sheetName, "D", "E", 10)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Filename returns the download name for a member's history export.
func Filename(member *model.Member, now time.Time) string {
	return fmt.Sprintf("history_%d_%s.xlsx", member.ID, now.UTC().Format("20060102"))
}
