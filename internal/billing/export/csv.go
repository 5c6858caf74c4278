// Package export renders ledger views as CSV.
package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/facilitydesk/facilitydesk/internal/ledger"
)

// lineBreaks keeps free text inside a single comment line.
var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

const (
	flushEvery = 200
	bufferSize = 32 * 1024
)

// streamer flushes every flushEvery rows so long ledgers reach the client
// without buffering the whole document.
type streamer struct {
	buf     *bufio.Writer
	csv     *csv.Writer
	pending int
}

func newStreamer(w io.Writer) *streamer {
	buf := bufio.NewWriterSize(w, bufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &streamer{buf: buf, csv: writer}
}

func (s *streamer) writeRow(row []string) error {
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pending++
	if s.pending >= flushEvery {
		return s.flush()
	}
	return nil
}

func (s *streamer) flush() error {
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pending = 0
	return nil
}

// WriteLedgerCSV writes every entry with its running balance.
func WriteLedgerCSV(w io.Writer, entries []ledger.Entry) error {
	s := newStreamer(w)
	if err := s.writeRow([]string{"id", "party", "type", "reference", "date", "description", "debit", "credit", "balance", "status", "site", "serviceType"}); err != nil {
		return err
	}
	for _, e := range entries {
		if err := s.writeRow([]string{
			e.ID,
			e.Party,
			string(e.Type),
			e.Reference,
			formatDate(e.Date),
			e.Description,
			formatAmount(e.Debit),
			formatAmount(e.Credit),
			formatAmount(e.Balance),
			e.Status,
			e.Site,
			e.ServiceType,
		}); err != nil {
			return err
		}
	}
	return s.flush()
}

// WriteBalancesCSV writes one row per party.
func WriteBalancesCSV(w io.Writer, balances []ledger.PartyBalance) error {
	s := newStreamer(w)
	if err := s.writeRow([]string{"party", "totalDebit", "totalCredit", "currentBalance", "status", "lastTransaction", "site"}); err != nil {
		return err
	}
	for _, pb := range balances {
		if err := s.writeRow([]string{
			pb.Party,
			formatAmount(pb.TotalDebit),
			formatAmount(pb.TotalCredit),
			formatAmount(pb.CurrentBalance),
			string(pb.Status),
			formatDate(pb.LastTransactionDate),
			pb.Site,
		}); err != nil {
			return err
		}
	}
	return s.flush()
}

// WriteStatementCSV writes a party statement framed by its opening and
// closing balances.
func WriteStatementCSV(w io.Writer, st ledger.Statement) error {
	s := newStreamer(w)
	if _, err := fmt.Fprintf(s.buf, "# Statement for %s\r\n", lineBreaks.Replace(st.Party)); err != nil {
		return err
	}
	if err := s.writeRow([]string{"date", "type", "reference", "description", "debit", "credit", "balance", "status"}); err != nil {
		return err
	}
	if err := s.writeRow([]string{formatBound(st.From), "", "", "Opening balance", "", "", formatAmount(st.OpeningBalance), ""}); err != nil {
		return err
	}
	for _, e := range st.Entries {
		if err := s.writeRow([]string{
			formatDate(e.Date),
			string(e.Type),
			e.Reference,
			e.Description,
			formatAmount(e.Debit),
			formatAmount(e.Credit),
			formatAmount(e.Balance),
			e.Status,
		}); err != nil {
			return err
		}
	}
	if err := s.writeRow([]string{formatBound(st.To), "", "", "Closing balance", formatAmount(st.TotalDebit), formatAmount(st.TotalCredit), formatAmount(st.ClosingBalance), ""}); err != nil {
		return err
	}
	return s.flush()
}

func formatAmount(v decimal.Decimal) string {
	return v.StringFixed(2)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

func formatBound(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatDate(*t)
}
