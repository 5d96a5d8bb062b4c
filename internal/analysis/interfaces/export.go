package interfaces

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"load-analytics/internal/analysis/domain/statistic"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
	utf8BOM     = "\ufeff"
	exportPrec  = 2
)

var dailyHeader = []string{"day", "count", "mean", "max", "min", "stdev", "peak_valley", "load_factor", "volatility"}

// ErrMalformedExport is returned when a daily CSV cannot be read back.
var ErrMalformedExport = errors.New("export: malformed daily csv")

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', exportPrec, 64)
}

func dailyRecord(d statistic.DailyStat) []string {
	return []string{
		d.Day.Format(dayLayout),
		strconv.Itoa(d.Count),
		formatFloat(d.Mean),
		formatFloat(d.Max),
		formatFloat(d.Min),
		d.Stdev.Format(exportPrec),
		formatFloat(d.PeakValley),
		d.LoadFactor.Format(exportPrec),
		d.Volatility.Format(exportPrec),
	}
}

// WriteDailyCSV writes daily statistics as UTF-8 CSV with a BOM so that
// spreadsheet tools detect the encoding. Missing values are blank.
func WriteDailyCSV(w io.Writer, daily []statistic.DailyStat) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(dailyHeader); err != nil {
		return err
	}
	for _, d := range daily {
		if err := writer.Write(dailyRecord(d)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadDailyStatsCSV reads a file written by WriteDailyCSV. Days are parsed
// in loc.
func ReadDailyStatsCSV(r io.Reader, loc *time.Location) ([]statistic.DailyStat, error) {
	if loc == nil {
		loc = time.UTC
	}
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && string(prefix) == utf8BOM {
		_, _ = br.Discard(len(utf8BOM))
	}
	reader := csv.NewReader(br)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedExport, err)
	}
	if len(records) == 0 || strings.Join(records[0], ",") != strings.Join(dailyHeader, ",") {
		return nil, fmt.Errorf("%w: unexpected header", ErrMalformedExport)
	}
	out := make([]statistic.DailyStat, 0, len(records)-1)
	for i, rec := range records[1:] {
		d, err := parseDailyRecord(rec, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedExport, i+2, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func parseDailyRecord(rec []string, loc *time.Location) (statistic.DailyStat, error) {
	var d statistic.DailyStat
	if len(rec) != len(dailyHeader) {
		return d, fmt.Errorf("expected %d fields, got %d", len(dailyHeader), len(rec))
	}
	day, err := time.ParseInLocation(dayLayout, rec[0], loc)
	if err != nil {
		return d, err
	}
	d.Day = day
	if d.Count, err = strconv.Atoi(rec[1]); err != nil {
		return d, err
	}
	floats := []*float64{&d.Mean, &d.Max, &d.Min}
	for i, dst := range floats {
		if *dst, err = strconv.ParseFloat(rec[2+i], 64); err != nil {
			return d, err
		}
	}
	if d.Stdev, err = statistic.ParseOptional(rec[5]); err != nil {
		return d, err
	}
	if d.PeakValley, err = strconv.ParseFloat(rec[6], 64); err != nil {
		return d, err
	}
	if d.LoadFactor, err = statistic.ParseOptional(rec[7]); err != nil {
		return d, err
	}
	if d.Volatility, err = statistic.ParseOptional(rec[8]); err != nil {
		return d, err
	}
	return d, nil
}

// WriteProfileJSON writes the profile as indented JSON; missing values are null.
func WriteProfileJSON(w io.Writer, profile statistic.Profile) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(profile)
}

// BuildDailyXLSX renders daily and monthly statistics into a workbook.
func BuildDailyXLSX(profile statistic.Profile) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()
	dailySheet := "daily"
	monthlySheet := "monthly"
	if err := f.SetSheetName("Sheet1", dailySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(monthlySheet); err != nil {
		return nil, err
	}

	for i, name := range dailyHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(dailySheet, cell, name)
	}
	for i, d := range profile.Daily {
		row := i + 2
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("A%d", row), d.Day.Format(dayLayout))
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("B%d", row), d.Count)
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("C%d", row), d.Mean)
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("D%d", row), d.Max)
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("E%d", row), d.Min)
		setOptional(f, dailySheet, fmt.Sprintf("F%d", row), d.Stdev)
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("G%d", row), d.PeakValley)
		setOptional(f, dailySheet, fmt.Sprintf("H%d", row), d.LoadFactor)
		setOptional(f, dailySheet, fmt.Sprintf("I%d", row), d.Volatility)
	}

	_ = f.SetCellValue(monthlySheet, "A1", "month")
	_ = f.SetCellValue(monthlySheet, "B1", "mean")
	_ = f.SetCellValue(monthlySheet, "C1", "days")
	for i, m := range profile.Monthly {
		row := i + 2
		_ = f.SetCellValue(monthlySheet, fmt.Sprintf("A%d", row), m.Month.Format(monthLayout))
		_ = f.SetCellValue(monthlySheet, fmt.Sprintf("B%d", row), m.Mean)
		_ = f.SetCellValue(monthlySheet, fmt.Sprintf("C%d", row), m.Days)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Missing values stay empty cells.
func setOptional(f *excelize.File, sheet, cell string, o statistic.Optional) {
	if o.Valid {
		_ = f.SetCellValue(sheet, cell, o.Value)
	}
}

// BuildDailyPDF renders a minimal PDF table of daily statistics.
func BuildDailyPDF(profile statistic.Profile, generated time.Time) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Daily Load Statistics")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Entity: %s", profile.EntityID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Days: %d", len(profile.Daily)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generated.Format(time.RFC3339)))
	pdf.Ln(8)

	widths := []float64{28, 18, 28, 28, 28, 28, 30, 28, 28}
	pdf.SetFont("Arial", "B", 9)
	for i, name := range dailyHeader {
		pdf.CellFormat(widths[i], 6, name, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, d := range profile.Daily {
		for i, value := range dailyRecord(d) {
			align := "R"
			if i == 0 {
				align = "C"
			}
			pdf.CellFormat(widths[i], 6, value, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	if len(profile.Monthly) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(28, 6, "month", "1", 0, "C", false, 0, "")
		pdf.CellFormat(28, 6, "mean", "1", 0, "C", false, 0, "")
		pdf.CellFormat(18, 6, "days", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
		for _, m := range profile.Monthly {
			pdf.CellFormat(28, 6, m.Month.Format(monthLayout), "1", 0, "C", false, 0, "")
			pdf.CellFormat(28, 6, formatFloat(m.Mean), "1", 0, "R", false, 0, "")
			pdf.CellFormat(18, 6, strconv.Itoa(m.Days), "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
