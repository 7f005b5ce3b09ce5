package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTournamentBeforeCreateDerivesResultTime(t *testing.T) {
	start := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
	tour := &Tournament{MatchStartTime: start}

	require.NoError(t, tour.BeforeCreate(nil))
	assert.Equal(t, start.Add(15*time.Minute), tour.MatchResultTime)

	explicit := start.Add(time.Hour)
	tour = &Tournament{MatchStartTime: start, MatchResultTime: explicit}
	require.NoError(t, tour.BeforeCreate(nil))
	assert.Equal(t, explicit, tour.MatchResultTime)
}

func TestTournamentPrizePct(t *testing.T) {
	tour := &Tournament{
		PrizeFirstPct:  decimal.RequireFromString("0.5"),
		PrizeSecondPct: decimal.RequireFromString("0.3"),
		PrizeThirdPct:  decimal.RequireFromString("0.2"),
	}

	assert.True(t, tour.PrizePct(1).Equal(decimal.RequireFromString("0.5")))
	assert.True(t, tour.PrizePct(3).Equal(decimal.RequireFromString("0.2")))
	assert.True(t, tour.PrizePct(4).IsZero())
}

func TestTransactionTypeSigns(t *testing.T) {
	assert.Equal(t, int64(-20), TransactionTypeTournamentEntry.Signed(20))
	assert.Equal(t, int64(-5), TransactionTypeDebit.Signed(5))
	assert.Equal(t, int64(67), TransactionTypeTournamentPrize.Signed(67))
	assert.Equal(t, int64(20), TransactionTypeTournamentRefund.Signed(20))

	assert.True(t, TransactionTypeRefund.SettlesOnce())
	assert.False(t, TransactionTypeCredit.SettlesOnce())
	assert.False(t, TransactionType("bonus").Valid())
}

func TestPlayerIdentityMatchesWholeTuple(t *testing.T) {
	id := PlayerIdentity{Name: "ace", Tag: "EU1", Platform: "pc", Region: "eu"}

	assert.True(t, id.Matches("ace", "EU1", "pc", "eu"))
	assert.False(t, id.Matches("ace", "EU1", "pc", "na"))
	assert.Equal(t, "ace#EU1", id.DisplayName())
}
