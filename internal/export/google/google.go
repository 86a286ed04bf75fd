// Package google appends savings reports to a Google spreadsheet using
// service-account credentials.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"github.com/jefersonfloz/ahorraplus/internal/core"
)

// Client exports ledger snapshots to one sheet of one spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

// Config holds spreadsheet coordinates and credentials. Credentials may be
// inline JSON or a file path; inline wins when both are set.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
	CredentialsJSON string
}

// New creates a sheets export client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if cfg.SheetName == "" {
		return nil, errors.New("missing sheet name")
	}

	credentialsJSON, err := resolveCredentials(cfg)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
	}, nil
}

func resolveCredentials(cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.CredentialsJSON)
	file := strings.TrimSpace(cfg.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		credentialsJSON, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return credentialsJSON, nil
	default:
		return nil, errors.New("missing service account credentials")
	}
}

// AppendReport appends one row per goal plus a balance summary row. Each
// export run is self-contained; rows accumulate as a history of reports.
func (c *Client) AppendReport(ctx context.Context, snap core.Snapshot, now time.Time) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	stamp := now.Format("2006-01-02 15:04")
	rows := make([][]any, 0, len(snap.Goals)+1)
	for _, g := range snap.Goals {
		view := core.NewGoalView(g, now)
		rows = append(rows, []any{
			stamp,
			g.Name,
			core.FormatAmount(g.TargetAmount),
			core.FormatAmount(g.CurrentAmount),
			fmt.Sprintf("%.1f%%", view.Progress),
			string(g.Status),
			string(g.Priority),
			g.EndDate.String(),
		})
	}
	rows = append(rows, []any{
		stamp,
		"(disponible)",
		"", "", "", "", "",
		core.FormatAmount(snap.AvailableBalance),
	})

	rng := fmt.Sprintf("%s!A:H", c.sheetName)
	vr := &gsheet.ValueRange{Values: rows}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append report to sheet %s: %w", c.sheetName, err)
	}
	return nil
}
