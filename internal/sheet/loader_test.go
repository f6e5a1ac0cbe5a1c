package sheet

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/shehryarbajwa/whatsapp-sender/pkg/models"
)

func TestLoad_CSVKeepsOrderAndSkipsIncompleteRows(t *testing.T) {
	input := "Number,Message\n15550001234,Hi A\n,Hi B\n15550005678,Hi C\n"

	batch, err := Load("contacts.csv", strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}

	if len(batch.Rows) != 3 {
		t.Fatalf("Rows = %d, want 3", len(batch.Rows))
	}

	want := []struct {
		index   int
		number  string
		skipped bool
	}{
		{2, "15550001234", false},
		{3, "", true},
		{4, "15550005678", false},
	}
	for i, w := range want {
		row := batch.Rows[i]
		if row.Index != w.index {
			t.Errorf("Rows[%d].Index = %d, want %d", i, row.Index, w.index)
		}
		if row.Record.Number != w.number {
			t.Errorf("Rows[%d].Number = %q, want %q", i, row.Record.Number, w.number)
		}
		if row.Skipped() != w.skipped {
			t.Errorf("Rows[%d].Skipped() = %v, want %v", i, row.Skipped(), w.skipped)
		}
	}

	if batch.Rows[1].SkipReason != "missing number" {
		t.Errorf("SkipReason = %q, want missing number", batch.Rows[1].SkipReason)
	}
	if batch.Sendable() != 2 {
		t.Errorf("Sendable() = %d, want 2", batch.Sendable())
	}
}

func TestLoad_HeaderMatching(t *testing.T) {
	input := "\ufeff id , number ,MESSAGE \n1,+1 555 000,  hello  \n\n2,15550009999,\n"

	batch, err := Load("contacts.CSV", strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}

	if len(batch.Rows) != 2 {
		t.Fatalf("Rows = %d, want 2 (blank line dropped)", len(batch.Rows))
	}
	if got := batch.Rows[0].Record; got.Number != "+1 555 000" || got.Message != "hello" {
		t.Errorf("Rows[0] = %+v, want trimmed values", got)
	}
	if batch.Rows[1].SkipReason != "missing message" {
		t.Errorf("Rows[1].SkipReason = %q, want missing message", batch.Rows[1].SkipReason)
	}
	if batch.Rows[1].Index != 4 {
		t.Errorf("Rows[1].Index = %d, want 4", batch.Rows[1].Index)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name        string
		file        string
		input       string
		wantMissing []string
	}{
		{"missing message column", "a.csv", "Number,Text\n1,hi\n", []string{"Message"}},
		{"missing both columns", "a.csv", "Phone,Text\n1,hi\n", []string{"Number", "Message"}},
		{"empty file", "a.csv", "", nil},
		{"header only", "a.csv", "Number,Message\n", nil},
		{"legacy excel", "a.xls", "whatever", nil},
		{"not a workbook", "a.xlsx", "plain text", nil},
		{"broken csv", "a.csv", "Number,Message\n\"unterminated,hi\n", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.file, strings.NewReader(tt.input))

			var loadErr *models.LoadError
			if !errors.As(err, &loadErr) {
				t.Fatalf("error = %v, want *models.LoadError", err)
			}
			if strings.Join(loadErr.Missing, ",") != strings.Join(tt.wantMissing, ",") {
				t.Errorf("Missing = %v, want %v", loadErr.Missing, tt.wantMissing)
			}
		})
	}
}

func TestLoad_Excel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"Number", "Message"},
		{15550001234, "Hi A"},
		{"", "Hi B"},
		{"15550005678", "Hi C"},
	}
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow(sheet, cellRef, &row); err != nil {
			t.Fatal(err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	batch, err := Load("contacts.xlsx", buf)
	if err != nil {
		t.Fatal(err)
	}

	if len(batch.Rows) != 3 {
		t.Fatalf("Rows = %d, want 3", len(batch.Rows))
	}
	if batch.Rows[0].Record.Number != "15550001234" {
		t.Errorf("Rows[0].Number = %q, want 15550001234", batch.Rows[0].Record.Number)
	}
	if !batch.Rows[1].Skipped() {
		t.Error("Rows[1] should be skipped")
	}
	if batch.Rows[2].Index != 4 || batch.Rows[2].Record.Message != "Hi C" {
		t.Errorf("Rows[2] = %+v, want line 4 Hi C", batch.Rows[2])
	}
}

func TestCleanCell(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{" 15550001234 ", "15550001234"},
		{"15550001234.0", "15550001234"},
		{"15550001234.5", "15550001234.5"},
		{"+1 555", "+1 555"},
	}

	for _, tt := range tests {
		if got := cleanCell(tt.input); got != tt.want {
			t.Errorf("cleanCell(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestExportURL(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{
			"https://docs.google.com/spreadsheets/d/abc123/edit#gid=0",
			"https://docs.google.com/spreadsheets/d/abc123/export?format=csv",
		},
		{
			"https://docs.google.com/spreadsheets/d/abc123/export?format=csv",
			"https://docs.google.com/spreadsheets/d/abc123/export?format=csv",
		},
		{"https://example.com/contacts.csv", "https://example.com/contacts.csv"},
	}

	for _, tt := range tests {
		if got := ExportURL(tt.input); got != tt.want {
			t.Errorf("ExportURL(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.csv" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("Number,Message\n15550001234,Hi\n"))
	}))
	defer srv.Close()

	batch, err := Fetch(context.Background(), srv.Client(), srv.URL+"/contacts.csv")
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Rows) != 1 || batch.Rows[0].Record.Message != "Hi" {
		t.Errorf("Rows = %+v, want one row", batch.Rows)
	}

	_, err = Fetch(context.Background(), srv.Client(), srv.URL+"/missing.csv")
	var loadErr *models.LoadError
	if !errors.As(err, &loadErr) {
		t.Errorf("error = %v, want *models.LoadError", err)
	}

	_, err = Fetch(context.Background(), srv.Client(), "ftp://example.com/a.csv")
	if !errors.As(err, &loadErr) {
		t.Errorf("error = %v, want *models.LoadError for bad scheme", err)
	}
}
