package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"bilancio/internal/core"
	"bilancio/internal/sheets"

	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base tab name without year (e.g. "Ledger"); the entry's year is prefixed.
	sheetBase string

	// Serializes read-then-write so two entries never land on the same row.
	mu sync.Mutex
}

var _ sheets.EntryMirror = (*Client)(nil)

// New creates a Sheets mirror using Service Account credentials from the
// environment. sheetBase defaults to "Ledger".
func New(ctx context.Context, spreadsheetID, sheetBase string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, spreadsheetID, sheetBase), nil
}

// NewWithService wraps an already configured Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetBase string) *Client {
	if strings.TrimSpace(sheetBase) == "" {
		sheetBase = sheets.DefaultSheetName
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     strings.TrimSpace(sheetBase),
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	credentialsJSON, err := serviceAccountJSON(ctx)
	if err != nil {
		return nil, err
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created", "scope", gsheet.SpreadsheetsScope)
	return service, nil
}

func serviceAccountJSON(ctx context.Context) ([]byte, error) {
	inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.DebugContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	case file != "":
		slog.DebugContext(ctx, "Reading service account credentials", "path", file)
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// MirrorEntry writes e on the "<year> <base>" tab of the year it was created.
// A known entry is rewritten on its row; a new one is appended, and the tab is
// created with a header when missing.
func (c *Client) MirrorEntry(ctx context.Context, e core.Entry, op core.EntryOp) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if e.ID == "" {
		return "", errors.New("entry id is required")
	}

	sheet := sheets.SheetName(c.sheetBase, e.CreatedAt.UTC().Year())

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.readSheet(ctx, sheet)
	if err != nil {
		return "", err
	}

	p, write := sheets.Place(existing, e)
	if !write {
		slog.DebugContext(ctx, "Sheet row already up to date", "entry_id", e.ID, "sheets_ref", p.Ref(sheet))
		return p.Ref(sheet), nil
	}

	vr := &gsheet.ValueRange{Values: p.Values}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, p.Range(sheet), vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to update %s: %w", p.Range(sheet), err)
	}

	slog.InfoContext(ctx, "Entry mirrored to sheet",
		"entry_id", e.ID,
		"op", string(op),
		"sheets_ref", p.Ref(sheet))
	return p.Ref(sheet), nil
}

// readSheet returns the used A:H values of a tab, creating the tab when the
// spreadsheet does not have it yet.
func (c *Client) readSheet(ctx context.Context, sheet string) ([][]any, error) {
	rng := fmt.Sprintf("%s!A:%s", sheet, sheets.LastColumn)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err == nil {
		return resp.Values, nil
	}
	if !isMissingSheet(err) {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: sheet},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return nil, fmt.Errorf("add sheet %s: %w", sheet, err)
	}
	slog.InfoContext(ctx, "Created ledger sheet", "sheet", sheet)
	return nil, nil
}

// isMissingSheet matches the error Sheets returns for a range on a tab that
// does not exist.
func isMissingSheet(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Code == http.StatusBadRequest && strings.Contains(gerr.Message, "Unable to parse range")
}
