package cli

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/eshaffer321/reconcile/internal/api/dto"
	"github.com/eshaffer321/reconcile/internal/domain/ledger"
)

// csvColumns is the expected header of an entries CSV file. Columns after
// description are optional.
var csvColumns = []string{"id", "kind", "date", "amount", "description", "account_id", "currency"}

// ReadEntriesFile loads entries from a .json or .csv file. JSON files use
// the same shape as the POST /api/entries body.
func ReadEntriesFile(path string) ([]ledger.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ReadEntriesJSON(f)
	case ".csv":
		return ReadEntriesCSV(f)
	}
	return nil, fmt.Errorf("unsupported entries file %q: want .json or .csv", path)
}

// ReadEntriesJSON decodes and validates a load request
func ReadEntriesJSON(r io.Reader) ([]ledger.Entry, error) {
	var req dto.LoadEntriesRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("failed to parse entries JSON: %w", err)
	}
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	return req.ToEntries()
}

// ReadEntriesCSV reads entries with a header row; amounts are decimals.
func ReadEntriesCSV(r io.Reader) ([]ledger.Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range csvColumns[:4] {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("CSV header is missing column %q", required)
		}
	}

	var req dto.LoadEntriesRequest
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("CSV line %d: %w", line, err)
		}

		field := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		req.Entries = append(req.Entries, dto.EntryInput{
			ID:          field("id"),
			Kind:        field("kind"),
			Date:        field("date"),
			Amount:      field("amount"),
			Description: field("description"),
			AccountID:   field("account_id"),
			Currency:    field("currency"),
		})
	}

	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	return req.ToEntries()
}
