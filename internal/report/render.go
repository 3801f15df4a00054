package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/franz/catstats/internal/query"
	"github.com/xuri/excelize/v2"
)

// Format is an output format for statistics tables
type Format string

const (
	FormatTable    Format = "table"
	FormatMarkdown Format = "md"
	FormatCSV      Format = "csv"
	FormatXLSX     Format = "xlsx"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTable, FormatMarkdown, FormatCSV, FormatXLSX:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown format %q (expected table, md, csv or xlsx)", s)
	}
}

// Title returns a heading line for a report result
func Title(res *query.Result) string {
	return fmt.Sprintf("%s - %s (%s, %s to %s)",
		res.Report.Code, res.Report.Title, res.Filter.CatCenter, res.Start, res.End)
}

// WriteResult writes a report result in the given format
func WriteResult(w io.Writer, format Format, res *query.Result) error {
	headers, rows := res.Table()
	if format == FormatXLSX {
		return WriteXLSX(w, "Report "+res.Report.Code, headers, rows)
	}
	if format == FormatMarkdown {
		if _, err := fmt.Fprintf(w, "## %s\n\n", Title(res)); err != nil {
			return err
		}
	}
	return WriteTable(w, format, headers, rows)
}

// WriteTable writes a header and rows as an aligned table, Markdown or CSV
func WriteTable(w io.Writer, format Format, headers []string, rows [][]string) error {
	switch format {
	case FormatTable, "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, strings.Join(headers, "\t")+"\t")
		for _, row := range rows {
			fmt.Fprintln(tw, strings.Join(row, "\t")+"\t")
		}
		return tw.Flush()

	case FormatMarkdown:
		var md strings.Builder
		md.WriteString("| " + strings.Join(escapeRow(headers), " | ") + " |\n")
		md.WriteString("|")
		for range headers {
			md.WriteString("------|")
		}
		md.WriteString("\n")
		for _, row := range rows {
			md.WriteString("| " + strings.Join(escapeRow(row), " | ") + " |\n")
		}
		_, err := io.WriteString(w, md.String())
		return err

	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(headers); err != nil {
			return err
		}
		if err := cw.WriteAll(rows); err != nil {
			return fmt.Errorf("failed to write csv: %w", err)
		}
		return nil

	case FormatXLSX:
		return WriteXLSX(w, "Report", headers, rows)

	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// WriteXLSX writes a single-sheet workbook. Numeric cells are stored as
// numbers.
func WriteXLSX(w io.Writer, sheet string, headers []string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Report"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E2E8F0"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err == nil {
		f.SetRowStyle(sheet, 1, 1, headerStyle)
	}

	for r, row := range rows {
		for c, val := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if n, err := strconv.Atoi(val); err == nil && c > 0 {
				f.SetCellValue(sheet, cell, n)
			} else {
				f.SetCellValue(sheet, cell, val)
			}
		}
	}

	if len(headers) > 0 {
		last, _ := excelize.ColumnNumberToName(len(headers))
		f.SetColWidth(sheet, "A", "A", 24)
		if len(headers) > 1 {
			f.SetColWidth(sheet, "B", last, 12)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func escapeRow(row []string) []string {
	out := make([]string, len(row))
	for i, s := range row {
		out[i] = escapeCell(s)
	}
	return out
}
