package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clientdesk/internal/credential"
)

// ErrAuth is returned when the data source rejects the bearer credential.
// It is fatal for the connection: callers should degrade rather than retry.
var ErrAuth = errors.New("sheets: credential rejected")

// TransientError marks a failure that is expected to clear on retry:
// network trouble, rate limiting, or a server-side error.
type TransientError struct {
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("sheets: transient failure (status %d)", e.Status)
	}
	return fmt.Sprintf("sheets: transient failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retryable data-source failure.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// Client reads ranges from one spreadsheet through the Sheets values API.
type Client struct {
	apiBase       string
	spreadsheetID string
	sheetName     string
	creds         credential.Provider
	httpClient    *http.Client
	logger        *slog.Logger
}

func New(apiBase, spreadsheetID, sheetName string, creds credential.Provider, logger *slog.Logger) *Client {
	if strings.TrimSpace(apiBase) == "" {
		apiBase = "https://sheets.googleapis.com"
	}
	if strings.TrimSpace(sheetName) == "" {
		sheetName = "Sheet1"
	}
	return &Client{
		apiBase:       strings.TrimRight(strings.TrimSpace(apiBase), "/"),
		spreadsheetID: strings.TrimSpace(spreadsheetID),
		sheetName:     sheetName,
		creds:         creds,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// HeaderRow returns the first row of the sheet.
func (c *Client) HeaderRow(ctx context.Context) ([]string, error) {
	rows, err := c.getValues(ctx, fmt.Sprintf("%s!1:1", c.sheetName))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Column returns the cell values of one column starting at row 2, in row
// order. Rows with an empty cell in that column yield an empty string so the
// caller can map position i back to row number i+2.
func (c *Client) Column(ctx context.Context, index int) ([]string, error) {
	letter := columnLetter(index)
	rows, err := c.getValues(ctx, fmt.Sprintf("%s!%s2:%s", c.sheetName, letter, letter))
	if err != nil {
		return nil, err
	}
	values := make([]string, len(rows))
	for i, row := range rows {
		if len(row) > 0 {
			values[i] = row[0]
		}
	}
	return values, nil
}

// Row fetches a single row by its 1-based row number.
func (c *Client) Row(ctx context.Context, rowNumber int) ([]string, error) {
	rows, err := c.getValues(ctx, fmt.Sprintf("%s!%d:%d", c.sheetName, rowNumber, rowNumber))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// RowCount returns the number of data rows (excluding the header row).
func (c *Client) RowCount(ctx context.Context) (int, error) {
	rows, err := c.getValues(ctx, fmt.Sprintf("%s!A:A", c.sheetName))
	if err != nil {
		return 0, err
	}
	if len(rows) <= 1 {
		return 0, nil
	}
	return len(rows) - 1, nil
}

func (c *Client) getValues(ctx context.Context, valueRange string) ([][]string, error) {
	if c.spreadsheetID == "" {
		return nil, errors.New("sheets: spreadsheet id not configured")
	}
	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}

	endpoint := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s",
		c.apiBase, url.PathEscape(c.spreadsheetID), url.PathEscape(valueRange))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrAuth, res.StatusCode)
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
		c.logger.Warn("sheets values get throttled or failed upstream", "status", res.StatusCode, "range", valueRange)
		return nil, &TransientError{Status: res.StatusCode}
	case res.StatusCode < 200 || res.StatusCode >= 300:
		return nil, fmt.Errorf("sheets: values get failed with status %d", res.StatusCode)
	}

	var payload struct {
		Values [][]string `json:"values"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode values response: %w", err)
	}
	return payload.Values, nil
}

// columnLetter converts a zero-based column index to its A1-notation letter.
func columnLetter(index int) string {
	if index < 0 {
		index = 0
	}
	letters := ""
	for {
		letters = string(rune('A'+index%26)) + letters
		index = index/26 - 1
		if index < 0 {
			return letters
		}
	}
}
