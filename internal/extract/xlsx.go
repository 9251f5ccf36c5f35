package extract

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractXLSX renders each sheet as one page, one row per line.
func extractXLSX(data []byte) ([]Page, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var pages []Page
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			slog.Warn("Skipping unreadable sheet.", "sheet", sheet, "error", err)
			continue
		}
		var sb strings.Builder
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, " "))
			if line == "" {
				continue
			}
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
		if sb.Len() == 0 {
			continue
		}
		pages = append(pages, newPage(len(pages)+1, sb.String(), nil))
	}
	return pages, nil
}
