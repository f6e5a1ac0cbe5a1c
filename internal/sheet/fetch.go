package sheet

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shehryarbajwa/whatsapp-sender/pkg/models"
)

// maxFetchBytes caps a downloaded sheet
const maxFetchBytes = 10 << 20

// ExportURL turns a Google Sheets edit link into its CSV export link.
// Other URLs are returned unchanged.
func ExportURL(sheetURL string) string {
	if !strings.Contains(sheetURL, "docs.google.com/spreadsheets") || strings.Contains(sheetURL, "export") {
		return sheetURL
	}
	_, rest, ok := strings.Cut(sheetURL, "/d/")
	if !ok {
		return sheetURL
	}
	id, _, _ := strings.Cut(rest, "/")
	if id == "" {
		return sheetURL
	}
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/export?format=csv", id)
}

// Fetch downloads a published sheet as CSV and loads it
func Fetch(ctx context.Context, client *http.Client, sheetURL string) (*models.Batch, error) {
	u, err := url.Parse(sheetURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &models.LoadError{Source: sheetURL, Err: fmt.Errorf("invalid sheet URL")}
	}

	exportURL := ExportURL(sheetURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, exportURL, nil)
	if err != nil {
		return nil, &models.LoadError{Source: sheetURL, Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &models.LoadError{Source: sheetURL, Err: fmt.Errorf("failed to fetch sheet: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &models.LoadError{Source: sheetURL, Err: fmt.Errorf("fetch returned %s", resp.Status)}
	}

	rows, err := readCSV(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, &models.LoadError{Source: sheetURL, Err: err}
	}
	return buildBatch(sheetURL, rows)
}
