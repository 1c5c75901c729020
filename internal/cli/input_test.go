package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/reconcile/internal/domain/ledger"
)

const sampleCSV = `id,kind,date,amount,description
BT-1,bank,2024-02-20,-50.00,Invoice #INV-001 payment
INV-001,purchase_invoice,2024-02-20,50,Invoice #INV-001
BT-2, bank ,2024-02-25,12.34,interest
`

func TestReadEntriesCSV(t *testing.T) {
	entries, err := ReadEntriesCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "BT-1", entries[0].ID)
	assert.Equal(t, int64(-5000), entries[0].Amount)
	assert.Equal(t, ledger.KindPurchaseInvoice, entries[1].Kind)
	assert.Equal(t, ledger.KindBankTransaction, entries[2].Kind)
	assert.Equal(t, int64(1234), entries[2].Amount)
}

func TestReadEntriesCSV_Errors(t *testing.T) {
	tests := map[string]string{
		"missing column": "id,kind,date\nBT-1,bank,2024-02-20\n",
		"bad amount":     "id,kind,date,amount\nBT-1,bank,2024-02-20,12.345\n",
		"bad date":       "id,kind,date,amount\nBT-1,bank,20/02/2024,12\n",
		"no rows":        "id,kind,date,amount\n",
		"empty":          "",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadEntriesCSV(strings.NewReader(input))
			assert.Error(t, err)
		})
	}
}

func TestReadEntriesJSON(t *testing.T) {
	input := `{"entries": [
		{"id": "BT-1", "kind": "bank", "date": "2024-02-20", "amount_cents": -5000},
		{"id": "INV-001", "kind": "sales", "date": "2024-02-21", "amount": "50.00"}
	]}`

	entries, err := ReadEntriesJSON(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(-5000), entries[0].Amount)
	assert.Equal(t, int64(5000), entries[1].Amount)

	_, err = ReadEntriesJSON(strings.NewReader(`{"entries": [{"id": "X"}]}`))
	assert.Error(t, err)
}

func TestReadEntriesFile(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "entries.CSV")
	require.NoError(t, os.WriteFile(csvPath, []byte(sampleCSV), 0o600))
	entries, err := ReadEntriesFile(csvPath)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	txtPath := filepath.Join(dir, "entries.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte(sampleCSV), 0o600))
	_, err = ReadEntriesFile(txtPath)
	assert.ErrorContains(t, err, "unsupported")

	_, err = ReadEntriesFile(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}
