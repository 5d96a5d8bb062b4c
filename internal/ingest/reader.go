package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"load-analytics/internal/analysis/domain/series"
)

// ReadTable dispatches on the file extension. Unknown extensions are read as
// delimited text.
func ReadTable(filename string, data []byte, sheet string) (series.Table, Report, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return ReadXLSX(data, sheet)
	case ".xls":
		return series.Table{}, Report{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	default:
		return ReadCSV(data)
	}
}
