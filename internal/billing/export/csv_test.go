package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/facilitydesk/facilitydesk/internal/ledger"
)

func day(s string) time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return t
}

func sampleEntries() []ledger.Entry {
	return []ledger.Entry{
		{ID: "invoice-INV-1", Party: "Alpha", Type: ledger.EntryTypeInvoice, Reference: "INV-1", Date: day("2024-01-01"),
			Debit: decimal.NewFromInt(1000), Credit: decimal.Zero, Balance: decimal.NewFromInt(1000),
			Description: "Cleaning - Alpha, Inc", Status: "sent", Site: "Alpha", ServiceType: "cleaning"},
		{ID: "payment-PAY-1", Party: "Alpha", Type: ledger.EntryTypePayment, Reference: "PAY-1", Date: day("2024-01-05"),
			Debit: decimal.Zero, Credit: decimal.NewFromInt(400), Balance: decimal.NewFromInt(600),
			Description: "Payment received - Alpha, Inc (INV-1)", Status: "completed", Site: "Alpha"},
	}
}

func readCSV(t *testing.T, data string) [][]string {
	t.Helper()
	r := csv.NewReader(strings.NewReader(data))
	r.Comment = '#'
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteLedgerCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLedgerCSV(&buf, sampleEntries()))
	require.Contains(t, buf.String(), "\r\n")

	rows := readCSV(t, buf.String())
	require.Len(t, rows, 3)
	require.Equal(t, "balance", rows[0][8])
	require.Equal(t, []string{"invoice-INV-1", "Alpha", "invoice", "INV-1", "2024-01-01", "Cleaning - Alpha, Inc", "1000.00", "0.00", "1000.00", "sent", "Alpha", "cleaning"}, rows[1])
	require.Equal(t, "600.00", rows[2][8])
}

func TestWriteBalancesCSV(t *testing.T) {
	var buf bytes.Buffer
	balances := []ledger.PartyBalance{{
		Party: "Alpha", TotalDebit: decimal.NewFromInt(1000), TotalCredit: decimal.NewFromInt(400),
		CurrentBalance: decimal.NewFromInt(600), LastTransactionDate: day("2024-01-05"), Status: ledger.BalanceDebit, Site: "Alpha",
	}}
	require.NoError(t, WriteBalancesCSV(&buf, balances))

	rows := readCSV(t, buf.String())
	require.Equal(t, []string{"party", "totalDebit", "totalCredit", "currentBalance", "status", "lastTransaction", "site"}, rows[0])
	require.Equal(t, []string{"Alpha", "1000.00", "400.00", "600.00", "debit", "2024-01-05", "Alpha"}, rows[1])
}

func TestWriteStatementCSV(t *testing.T) {
	from := day("2024-01-02")
	st := ledger.BuildStatement(sampleEntries(), "Alpha", &from, nil)

	var buf bytes.Buffer
	require.NoError(t, WriteStatementCSV(&buf, st))
	require.True(t, strings.HasPrefix(buf.String(), "# Statement for Alpha\r\n"))

	rows := readCSV(t, buf.String())
	require.Len(t, rows, 4)
	require.Equal(t, []string{"2024-01-02", "", "", "Opening balance", "", "", "1000.00", ""}, rows[1])
	require.Equal(t, "PAY-1", rows[2][2])
	require.Equal(t, []string{"", "", "", "Closing balance", "0.00", "400.00", "600.00", ""}, rows[3])
}

func TestWriteStatementCSVKeepsPartyOnCommentLine(t *testing.T) {
	entries := sampleEntries()
	for i := range entries {
		entries[i].Party = "Alpha\r\n1,2,3\nX"
	}
	st := ledger.BuildStatement(entries, "Alpha\r\n1,2,3\nX", nil, nil)

	var buf bytes.Buffer
	require.NoError(t, WriteStatementCSV(&buf, st))
	require.True(t, strings.HasPrefix(buf.String(), "# Statement for Alpha 1,2,3 X\r\n"))

	r := csv.NewReader(strings.NewReader(buf.String()))
	r.Comment = '#'
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	require.Equal(t, "date", rows[0][0])
}

func TestWriteLedgerCSVFlushesLargeLedgers(t *testing.T) {
	entries := make([]ledger.Entry, 0, 450)
	for i := 0; i < 450; i++ {
		entries = append(entries, sampleEntries()[i%2])
	}
	var buf bytes.Buffer
	require.NoError(t, WriteLedgerCSV(&buf, entries))
	require.Len(t, readCSV(t, buf.String()), 451)
}
