package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	_ "github.com/facilitydesk/facilitydesk/testing"
)

func amt(v int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromInt(v))
}

func day(raw string) time.Time {
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		panic(err)
	}
	return t
}

func requireAmount(t *testing.T, want int64, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, decimal.NewFromInt(want).Equal(got), "want %d got %s %v", want, got.String(), msgAndArgs)
}

// requireRunningBalances checks the running balance identity for every party.
func requireRunningBalances(t *testing.T, entries []Entry) {
	t.Helper()
	running := map[string]decimal.Decimal{}
	for _, e := range entries {
		want := running[e.Party].Add(e.Debit).Sub(e.Credit)
		require.Truef(t, want.Equal(e.Balance), "entry %s: want balance %s got %s", e.ID, want, e.Balance)
		running[e.Party] = want
	}
}
