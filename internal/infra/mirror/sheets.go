package mirror

import (
	"context"
	"fmt"

	"ratio_watch/internal/domain"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsConfig selects the target range and the service-account credentials.
// CredentialsJSON wins over CredentialsFile.
type SheetsConfig struct {
	SheetID         string
	Range           string
	CredentialsJSON string
	CredentialsFile string
}

// SheetsSink writes the metric,value table into a spreadsheet range.
type SheetsSink struct {
	svc     *sheets.Service
	sheetID string
	rng     string
}

// NewSheetsSink builds a Sheets client. Extra options are appended last
// (endpoint or HTTP client overrides).
func NewSheetsSink(ctx context.Context, cfg SheetsConfig, opts ...option.ClientOption) (*SheetsSink, error) {
	if cfg.SheetID == "" {
		return nil, &domain.ConfigError{Field: "mirror.sheets.sheet_id", Err: fmt.Errorf("required")}
	}

	clientOpts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
	switch {
	case cfg.CredentialsJSON != "":
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}

	return &SheetsSink{svc: svc, sheetID: cfg.SheetID, rng: cfg.Range}, nil
}

func (s *SheetsSink) Name() string { return "sheets" }

// Push overwrites the range with the header row and one row per metric.
func (s *SheetsSink) Push(ctx context.Context, snap domain.Snapshot) error {
	rows := snap.Rows()
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, cell := range row {
			cells[j] = cell
		}
		values[i] = cells
	}

	_, err := s.svc.Spreadsheets.Values.
		Update(s.sheetID, s.rng, &sheets.ValueRange{Range: s.rng, Values: values}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("sheets update %s: %w", s.rng, err)
	}
	return nil
}
