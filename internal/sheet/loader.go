package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/shehryarbajwa/whatsapp-sender/pkg/models"
)

const (
	ColumnNumber  = "Number"
	ColumnMessage = "Message"
)

var (
	errNoHeader  = errors.New("file has no header row")
	errNoRows    = errors.New("file has no data rows")
	wholeFloatRe = regexp.MustCompile(`^(\d+)\.0+$`)
)

// tableRow is one non-blank line of the input with its 1-based line number
type tableRow struct {
	line  int
	cells []string
}

// Load parses an uploaded spreadsheet. The format is picked from the file name.
func Load(name string, r io.Reader) (*models.Batch, error) {
	var (
		rows []tableRow
		err  error
	)

	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		rows, err = readExcel(r)
	case ".csv":
		rows, err = readCSV(r)
	default:
		return nil, &models.LoadError{
			Source: name,
			Err:    fmt.Errorf("unsupported format %q (use .xlsx or .csv)", filepath.Ext(name)),
		}
	}
	if err != nil {
		return nil, &models.LoadError{Source: name, Err: err}
	}

	return buildBatch(name, rows)
}

func readExcel(r io.Reader) ([]tableRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	// Numbers typed into Excel keep their digits only when read raw
	raw, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}

	rows := make([]tableRow, 0, len(raw))
	for i, cells := range raw {
		if isBlank(cells) {
			continue
		}
		rows = append(rows, tableRow{line: i + 1, cells: cells})
	}
	return rows, nil
}

func readCSV(r io.Reader) ([]tableRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows []tableRow
	for {
		cells, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse csv: %w", err)
		}
		if isBlank(cells) {
			continue
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, tableRow{line: line, cells: cells})
	}
	return rows, nil
}

func buildBatch(source string, rows []tableRow) (*models.Batch, error) {
	if len(rows) == 0 {
		return nil, &models.LoadError{Source: source, Err: errNoHeader}
	}

	numberCol, messageCol := -1, -1
	for i, name := range rows[0].cells {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		switch {
		case strings.EqualFold(name, ColumnNumber) && numberCol < 0:
			numberCol = i
		case strings.EqualFold(name, ColumnMessage) && messageCol < 0:
			messageCol = i
		}
	}

	var missing []string
	if numberCol < 0 {
		missing = append(missing, ColumnNumber)
	}
	if messageCol < 0 {
		missing = append(missing, ColumnMessage)
	}
	if len(missing) > 0 {
		return nil, &models.LoadError{Source: source, Missing: missing}
	}

	data := rows[1:]
	if len(data) == 0 {
		return nil, &models.LoadError{Source: source, Err: errNoRows}
	}

	batch := &models.Batch{
		Source: source,
		Rows:   make([]models.Row, 0, len(data)),
	}
	for _, tr := range data {
		row := models.Row{
			Index: tr.line,
			Record: models.Record{
				Number:  cleanCell(cell(tr.cells, numberCol)),
				Message: strings.TrimSpace(cell(tr.cells, messageCol)),
			},
		}
		switch {
		case row.Record.Number == "" && row.Record.Message == "":
			row.SkipReason = "missing number and message"
		case row.Record.Number == "":
			row.SkipReason = "missing number"
		case row.Record.Message == "":
			row.SkipReason = "missing message"
		}
		batch.Rows = append(batch.Rows, row)
	}

	return batch, nil
}

func cell(cells []string, i int) string {
	if i < len(cells) {
		return cells[i]
	}
	return ""
}

// cleanCell trims a number cell and drops a ".0" left by numeric formatting
func cleanCell(v string) string {
	v = strings.TrimSpace(v)
	if m := wholeFloatRe.FindStringSubmatch(v); m != nil {
		return m[1]
	}
	return v
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
