// Package report renders the reconciliation state as an XLSX workbook for
// review outside the service.
package report

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/eshaffer321/reconcile/internal/domain/ledger"
	"github.com/eshaffer321/reconcile/internal/infrastructure/storage"
)

// Sheet names
const (
	SheetSummary      = "Summary"
	SheetUnreconciled = "Unreconciled"
	SheetMatches      = "Matches"
	SheetRuns         = "Runs"
)

// ContentType is the MIME type of the rendered workbook
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	maxMatches = 10000
	maxRuns    = 100
)

// Source is the read side the report is built from.
type Source interface {
	UnreconciledEntries(ctx context.Context, kind ledger.Kind, asOf time.Time) ([]ledger.Entry, error)
	ListMatches(ctx context.Context, filters storage.MatchFilters) ([]*ledger.Match, error)
	ListRuns(ctx context.Context, limit int) ([]storage.Run, error)
}

// Data is everything one workbook shows
type Data struct {
	GeneratedAt  time.Time
	Unreconciled []ledger.Entry
	Matches      []*ledger.Match
	Runs         []storage.Run
}

// Collect reads the current ledger state from src.
func Collect(ctx context.Context, src Source, now time.Time) (*Data, error) {
	free, err := src.UnreconciledEntries(ctx, "", time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to read unreconciled entries: %w", err)
	}
	matches, err := src.ListMatches(ctx, storage.MatchFilters{Limit: maxMatches})
	if err != nil {
		return nil, fmt.Errorf("failed to read matches: %w", err)
	}
	runs, err := src.ListRuns(ctx, maxRuns)
	if err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}

	return &Data{
		GeneratedAt:  now.UTC(),
		Unreconciled: free,
		Matches:      matches,
		Runs:         runs,
	}, nil
}

// WriteWorkbook renders data as XLSX into w.
func WriteWorkbook(w io.Writer, data *Data) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	b, err := newBuilder(f)
	if err != nil {
		return err
	}

	steps := []func(*Data) error{b.summary, b.unreconciled, b.matches, b.runs}
	for _, step := range steps {
		if err := step(data); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

type builder struct {
	f      *excelize.File
	header int
	money  int
}

func newBuilder(f *excelize.File) (*builder, error) {
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	// Built-in format 4 is "#,##0.00"
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return nil, err
	}
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, err
	}
	return &builder{f: f, header: header, money: money}, nil
}

// table writes a bold header row and the given rows starting at A1.
func (b *builder) table(sheet string, headers []interface{}, rows [][]interface{}) error {
	if sheet != SheetSummary {
		if _, err := b.f.NewSheet(sheet); err != nil {
			return err
		}
	}
	if err := b.f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return err
	}
	if err := b.f.SetRowStyle(sheet, 1, 1, b.header); err != nil {
		return err
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := b.f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}

// moneyColumn applies the amount format to one column below the header.
func (b *builder) moneyColumn(sheet, col string, rows int) error {
	if rows == 0 {
		return nil
	}
	return b.f.SetCellStyle(sheet, col+"2", fmt.Sprintf("%s%d", col, rows+1), b.money)
}

func (b *builder) summary(data *Data) error {
	var freeTotal int64
	for _, e := range data.Unreconciled {
		freeTotal += e.Amount
	}
	active := 0
	for _, m := range data.Matches {
		if m.Active() {
			active++
		}
	}

	rows := [][]interface{}{
		{"Generated at", data.GeneratedAt.Format(time.RFC3339)},
		{"Unreconciled entries", len(data.Unreconciled)},
		{"Unreconciled net amount", ledger.AmountDecimal(freeTotal).InexactFloat64()},
		{"Active matches", active},
		{"Reversed matches", len(data.Matches) - active},
		{"Runs recorded", len(data.Runs)},
	}
	if err := b.table(SheetSummary, []interface{}{"Metric", "Value"}, rows); err != nil {
		return err
	}
	if err := b.f.SetCellStyle(SheetSummary, "B4", "B4", b.money); err != nil {
		return err
	}
	return b.f.SetColWidth(SheetSummary, "A", "A", 26)
}

func (b *builder) unreconciled(data *Data) error {
	rows := make([][]interface{}, 0, len(data.Unreconciled))
	for _, e := range data.Unreconciled {
		rows = append(rows, []interface{}{
			e.ID,
			string(e.Kind),
			e.Date.Format("2006-01-02"),
			ledger.AmountDecimal(e.Amount).InexactFloat64(),
			e.Currency,
			e.AccountID,
			e.Description,
		})
	}
	headers := []interface{}{"ID", "Kind", "Date", "Amount", "Currency", "Account", "Description"}
	if err := b.table(SheetUnreconciled, headers, rows); err != nil {
		return err
	}
	if err := b.moneyColumn(SheetUnreconciled, "D", len(rows)); err != nil {
		return err
	}
	return b.f.SetColWidth(SheetUnreconciled, "G", "G", 40)
}

func (b *builder) matches(data *Data) error {
	rows := make([][]interface{}, 0, len(data.Matches))
	for _, m := range data.Matches {
		reversed := ""
		if m.ReversedAt != nil {
			reversed = m.ReversedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []interface{}{
			m.ID,
			strings.Join(m.EntryIDs, ", "),
			m.Confidence,
			string(m.Origin),
			m.CreatedAt.UTC().Format(time.RFC3339),
			reversed,
		})
	}
	headers := []interface{}{"Match ID", "Entries", "Confidence", "Origin", "Created", "Reversed"}
	if err := b.table(SheetMatches, headers, rows); err != nil {
		return err
	}
	return b.f.SetColWidth(SheetMatches, "A", "B", 38)
}

func (b *builder) runs(data *Data) error {
	rows := make([][]interface{}, 0, len(data.Runs))
	for _, r := range data.Runs {
		completed := ""
		if r.CompletedAt != nil {
			completed = r.CompletedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []interface{}{
			r.ID,
			string(r.Status),
			r.StartedAt.UTC().Format(time.RFC3339),
			completed,
			r.Confirmed,
			r.Suggested,
			r.StillUnmatched,
			r.Conflicts,
			r.ErrorMessage,
		})
	}
	headers := []interface{}{"Run", "Status", "Started", "Completed", "Confirmed", "Suggested", "Still unmatched", "Conflicts", "Error"}
	return b.table(SheetRuns, headers, rows)
}
