package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"load-analytics/internal/analysis/domain/series"
)

// ReadXLSX reads one worksheet into a table. An empty sheet name selects the
// first sheet. Cell values are read raw so that date cells arrive as Excel
// serial numbers.
func ReadXLSX(data []byte, sheet string) (series.Table, Report, error) {
	if len(data) == 0 {
		return series.Table{}, Report{}, ErrEmptyInput
	}
	f, err := excelize.OpenReader(bytes.NewReader(data), excelize.Options{RawCellValue: true})
	if err != nil {
		return series.Table{}, Report{}, fmt.Errorf("ingest: open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return series.Table{}, Report{}, ErrEmptyInput
		}
		sheet = sheets[0]
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return series.Table{}, Report{}, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return series.Table{}, Report{}, fmt.Errorf("ingest: read sheet %s: %w", sheet, err)
	}
	report := Report{Format: "xlsx", Sheet: sheet}
	if len(rows) == 0 {
		return series.Table{}, report, ErrEmptyInput
	}
	header := make([]string, len(rows[0]))
	for i, col := range rows[0] {
		header[i] = strings.TrimSpace(col)
	}
	if err := validateHeader(header, false); err != nil {
		return series.Table{}, report, fmt.Errorf("%w: %v", ErrMalformedTable, err)
	}
	return series.Table{Header: header, Rows: rows[1:]}, report, nil
}
