package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"noisemap/internal/analytics/application"
	"noisemap/internal/analytics/domain/statistic"
)

var historyHeader = []string{"time", "sensor_id", "display_name", "x", "y", "value_db", "replicates", "samples"}

func historyRecord(row application.HistoryRow) []string {
	return []string{
		row.Time.UTC().Format(time.RFC3339),
		row.SensorID,
		row.DisplayName,
		strconv.FormatFloat(row.Position.X, 'f', -1, 64),
		strconv.FormatFloat(row.Position.Y, 'f', -1, 64),
		strconv.FormatFloat(row.Value, 'f', 2, 64),
		strconv.Itoa(row.Replicates),
		strconv.Itoa(row.Samples),
	}
}

// WriteHistoryCSV writes windowed history rows as CSV with a header line.
func WriteHistoryCSV(w io.Writer, rows []application.HistoryRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(historyHeader); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(historyRecord(row)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// BuildHistoryXLSX renders windowed history rows into a workbook with a
// "history" sheet and a per-sensor "sensors" sheet.
func BuildHistoryXLSX(rows []application.HistoryRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	historySheet := "history"
	sensorsSheet := "sensors"
	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(sensorsSheet); err != nil {
		return nil, err
	}

	for i, title := range historyHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(historySheet, cell, title)
	}
	type sensorTotals struct {
		name  string
		count int
		sum   float64
	}
	totals := make(map[string]*sensorTotals)
	order := make([]string, 0)
	for i, row := range rows {
		r := i + 2
		_ = f.SetCellValue(historySheet, fmt.Sprintf("A%d", r), row.Time.UTC().Format(time.RFC3339))
		_ = f.SetCellValue(historySheet, fmt.Sprintf("B%d", r), row.SensorID)
		_ = f.SetCellValue(historySheet, fmt.Sprintf("C%d", r), row.DisplayName)
		_ = f.SetCellValue(historySheet, fmt.Sprintf("D%d", r), row.Position.X)
		_ = f.SetCellValue(historySheet, fmt.Sprintf("E%d", r), row.Position.Y)
		_ = f.SetCellValue(historySheet, fmt.Sprintf("F%d", r), row.Value)
		_ = f.SetCellValue(historySheet, fmt.Sprintf("G%d", r), row.Replicates)
		_ = f.SetCellValue(historySheet, fmt.Sprintf("H%d", r), row.Samples)

		t := totals[row.SensorID]
		if t == nil {
			t = &sensorTotals{name: row.DisplayName}
			totals[row.SensorID] = t
			order = append(order, row.SensorID)
		}
		t.count++
		t.sum += row.Value
	}

	_ = f.SetCellValue(sensorsSheet, "A1", "sensor_id")
	_ = f.SetCellValue(sensorsSheet, "B1", "display_name")
	_ = f.SetCellValue(sensorsSheet, "C1", "buckets")
	_ = f.SetCellValue(sensorsSheet, "D1", "mean_db")
	for i, id := range order {
		r := i + 2
		t := totals[id]
		_ = f.SetCellValue(sensorsSheet, fmt.Sprintf("A%d", r), id)
		_ = f.SetCellValue(sensorsSheet, fmt.Sprintf("B%d", r), t.name)
		_ = f.SetCellValue(sensorsSheet, fmt.Sprintf("C%d", r), t.count)
		_ = f.SetCellValue(sensorsSheet, fmt.Sprintf("D%d", r), t.sum/float64(t.count))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildStatisticsPDF renders a one-page summary report for a sensor.
func BuildStatisticsPDF(summary statistic.Summary, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Noise Level Statistics")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Sensor: %s", summary.SensorID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Period: last %d h, window %s", summary.Hours, summary.Window))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.UTC().Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.Cell(0, 6, fmt.Sprintf("Buckets: %d", summary.Count))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Mean (dB): %.2f", summary.Mean))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Min (dB): %.2f", summary.Min))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Max (dB): %.2f", summary.Max))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Std dev (dB): %.2f", summary.Std))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Bucket", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Value (dB)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Replicates", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, point := range summary.SamplePoints {
		pdf.CellFormat(60, 6, point.Start.UTC().Format("2006-01-02 15:04:05"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%.2f", point.Value), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, strconv.Itoa(point.Replicates), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
