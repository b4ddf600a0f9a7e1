package parsers

import (
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Saurav-kan/gist/internal/giserr"
)

// XlsxParser iterates sheets, rows, and cells via xuri/excelize, joining
// each row's cells with spaces and separating sheets with blank lines,
// per spec §4.1.
type XlsxParser struct{}

func (p *XlsxParser) CanParse(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".xlsx"
}

func (p *XlsxParser) ExtractText(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", giserr.Wrap(giserr.BadRequest, "open xlsx", err)
	}
	defer f.Close()

	var sheetTexts []string
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		var lines []string
		for _, row := range rows {
			if line := strings.TrimSpace(strings.Join(row, " ")); line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			sheetTexts = append(sheetTexts, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(sheetTexts, "\n\n"), nil
}
