package extractor

import (
	"fmt"
	"strings"

	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

func extractXLSX(path string) (string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, sheet := range f.Sheets {
		b.WriteString(fmt.Sprintf("Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				b.WriteString(cell.String())
				b.WriteByte(' ')
			}
			b.WriteByte('\n')
		}
	}
	return collapseWhitespace(b.String()), nil
}

func extractODS(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		b.WriteString(fmt.Sprintf("Sheet: %s\n", sheetName))
		for _, row := range rows {
			b.WriteString(strings.Join(row, " "))
			b.WriteByte('\n')
		}
	}
	return collapseWhitespace(b.String()), nil
}
