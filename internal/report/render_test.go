package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/franz/catstats/internal/query"
	"github.com/xuri/excelize/v2"
)

func sampleTable() ([]string, [][]string) {
	ct := query.BuildCrosstab("Format", [][2]string{
		{"Book", "1"}, {"Book", "2"}, {"Book", "1"}, {"Score", "2"},
	})
	return ct.Table()
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"MD", FormatMarkdown, false},
		{"csv", FormatCSV, false},
		{"xlsx", FormatXLSX, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteTable_Text(t *testing.T) {
	headers, rows := sampleTable()
	var buf bytes.Buffer
	if err := WriteTable(&buf, FormatTable, headers, rows); err != nil {
		t.Fatalf("WriteTable failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected 4 lines, got %d:\n%s", len(lines), buf.String())
	}
	if fields := strings.Fields(lines[0]); strings.Join(fields, " ") != "Format 1 2 Total" {
		t.Errorf("Header line = %q", lines[0])
	}
	if fields := strings.Fields(lines[3]); strings.Join(fields, " ") != "Totals 2 2 4" {
		t.Errorf("Totals line = %q", lines[3])
	}
}

func TestWriteTable_Markdown(t *testing.T) {
	headers, rows := sampleTable()
	var buf bytes.Buffer
	if err := WriteTable(&buf, FormatMarkdown, headers, rows); err != nil {
		t.Fatalf("WriteTable failed: %v", err)
	}

	out := buf.String()
	for _, s := range []string{
		"| Format | 1 | 2 | Total |",
		"|------|------|------|------|",
		"| Book | 2 | 1 | 3 |",
		"| Score | 0 | 1 | 1 |",
		"| Totals | 2 | 2 | 4 |",
	} {
		if !strings.Contains(out, s) {
			t.Errorf("Markdown missing %q:\n%s", s, out)
		}
	}
}

func TestWriteTable_CSV(t *testing.T) {
	headers, rows := sampleTable()
	var buf bytes.Buffer
	if err := WriteTable(&buf, FormatCSV, headers, rows); err != nil {
		t.Fatalf("WriteTable failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("Invalid CSV: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("Expected 4 records, got %d", len(records))
	}
	if strings.Join(records[1], ",") != "Book,2,1,3" {
		t.Errorf("Row 1 = %v", records[1])
	}
}

func TestWriteTable_UnknownFormat(t *testing.T) {
	if err := WriteTable(&bytes.Buffer{}, Format("pdf"), nil, nil); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestWriteXLSX(t *testing.T) {
	headers, rows := sampleTable()
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, "Report 01", headers, rows); err != nil {
		t.Fatalf("WriteXLSX failed: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("Failed to open workbook: %v", err)
	}
	defer f.Close()

	if got := f.GetSheetName(0); got != "Report 01" {
		t.Errorf("Sheet name = %q", got)
	}

	header, _ := f.GetCellValue("Report 01", "A1")
	if header != "Format" {
		t.Errorf("A1 = %q, want Format", header)
	}
	label, _ := f.GetCellValue("Report 01", "A2")
	total, _ := f.GetCellValue("Report 01", "D2")
	if label != "Book" || total != "3" {
		t.Errorf("Row 2 = %q/%q, want Book/3", label, total)
	}
}

func TestWriteResult_MarkdownTitle(t *testing.T) {
	info, _ := query.LookupReport("05")
	res := &query.Result{
		Report:  info,
		Filter:  query.Filter{CatCenter: "ALL"},
		Start:   "202307",
		End:     "202406",
		Kind:    query.KindSummary,
		Summary: query.BuildSummary([]string{"6", "7", "6"}),
	}

	var buf bytes.Buffer
	if err := WriteResult(&buf, FormatMarkdown, res); err != nil {
		t.Fatalf("WriteResult failed: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "## 05 - Maintenance (broad) (ALL, 202307 to 202406)") {
		t.Errorf("Unexpected title:\n%s", out)
	}
	if !strings.Contains(out, "| 6 | 2 |") {
		t.Errorf("Missing summary row:\n%s", out)
	}
}
