package ingest

import (
	"encoding/csv"
	"fmt"
	"strings"

	"load-analytics/internal/analysis/domain/series"
)

// Report describes how an upload was read.
type Report struct {
	Format    string   `json:"format"`
	Encoding  Encoding `json:"encoding,omitempty"`
	Delimiter string   `json:"delimiter,omitempty"`
	Sheet     string   `json:"sheet,omitempty"`
	// Fallback is set when the detected delimiter failed and another was used.
	Fallback bool `json:"fallback,omitempty"`
}

// ReadCSV decodes delimited text into a table. The delimiter is detected;
// when it does not yield a valid header the fallback delimiters are tried.
func ReadCSV(data []byte) (series.Table, Report, error) {
	text, enc, err := Decode(data)
	if err != nil {
		return series.Table{}, Report{}, fmt.Errorf("ingest: decode: %w", err)
	}
	text = strings.ReplaceAll(text, "\ufeff", "")
	if strings.TrimSpace(text) == "" {
		return series.Table{}, Report{}, ErrEmptyInput
	}

	detected := DetectDelimiter(text)
	report := Report{Format: "csv", Encoding: enc, Delimiter: DelimiterName(detected)}
	table, firstErr := parseDelimited(text, detected)
	if firstErr == nil {
		firstErr = validateHeader(table.Header, true)
	}
	if firstErr == nil {
		return table, report, nil
	}

	for _, d := range fallbacks {
		if d == detected {
			continue
		}
		table, err := parseDelimited(text, d)
		if err != nil || validateHeader(table.Header, false) != nil {
			continue
		}
		report.Delimiter = DelimiterName(d)
		report.Fallback = true
		return table, report, nil
	}
	return series.Table{}, report, fmt.Errorf("%w: %v", ErrMalformedTable, firstErr)
}

func parseDelimited(text string, delimiter rune) (series.Table, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return series.Table{}, err
	}
	if len(records) == 0 {
		return series.Table{}, ErrEmptyInput
	}
	header := make([]string, len(records[0]))
	for i, col := range records[0] {
		header[i] = strings.TrimSpace(col)
	}
	return series.Table{Header: header, Rows: records[1:]}, nil
}

func validateHeader(header []string, strict bool) error {
	if len(header) < 2 {
		return fmt.Errorf("expected at least 2 columns, got %d", len(header))
	}
	seen := make(map[string]struct{}, len(header))
	for _, col := range header {
		if strict && col == "" {
			return fmt.Errorf("empty column name")
		}
		if _, ok := seen[col]; ok {
			return fmt.Errorf("duplicate column %q", col)
		}
		seen[col] = struct{}{}
	}
	return nil
}
