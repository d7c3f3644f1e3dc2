package ranker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradelens/screener/internal/contracts"
	"github.com/tradelens/screener/pkg/logger"
)

func fptr(v float64) *float64 {
	return &v
}

func mkRow(symbol string, change1m, adr *float64) *contracts.MetricsRow {
	return &contracts.MetricsRow{
		Symbol:      symbol,
		Change1MPct: change1m,
		ADRPct:      adr,
	}
}

func TestRank_Percentiles(t *testing.T) {
	r := NewRanker(logger.NewNop())

	a := mkRow("A", fptr(10.0), fptr(4.0))
	b := mkRow("B", fptr(-5.0), fptr(2.0))
	c := mkRow("C", fptr(2.0), fptr(5.0))

	require.NoError(t, r.Rank([]*contracts.MetricsRow{a, b, c}))

	// ascending by 1M change: B(1), C(2), A(3) of 3
	require.NotNil(t, b.RSPercentile)
	assert.InDelta(t, 100.0/3, *b.RSPercentile, 1e-9)
	require.NotNil(t, c.RSPercentile)
	assert.InDelta(t, 200.0/3, *c.RSPercentile, 1e-9)
	require.NotNil(t, a.RSPercentile)
	assert.InDelta(t, 100.0, *a.RSPercentile, 1e-9)
}

func TestRank_VolatilityAdjusted(t *testing.T) {
	r := NewRanker(logger.NewNop())

	a := mkRow("A", fptr(10.0), fptr(4.0))
	b := mkRow("B", fptr(-5.0), nil)
	c := mkRow("C", fptr(2.0), fptr(0.0))

	require.NoError(t, r.Rank([]*contracts.MetricsRow{a, b, c}))

	// A: pct 100, ADR 4 -> VARS 25, VARW 0
	require.NotNil(t, a.VARS)
	assert.InDelta(t, 25.0, *a.VARS, 1e-9)
	require.NotNil(t, a.VARW)
	assert.InDelta(t, 0.0, *a.VARW, 1e-9)

	// null and zero ADR both leave the scores null
	assert.Nil(t, b.VARS)
	assert.Nil(t, b.VARW)
	assert.Nil(t, c.VARS)
	assert.Nil(t, c.VARW)

	// the percentile itself is still assigned
	assert.NotNil(t, b.RSPercentile)
	assert.NotNil(t, c.RSPercentile)
}

func TestRank_TiesGetAverageRank(t *testing.T) {
	r := NewRanker(logger.NewNop())

	a := mkRow("A", fptr(5.0), nil)
	b := mkRow("B", fptr(5.0), nil)
	c := mkRow("C", fptr(1.0), nil)
	d := mkRow("D", fptr(9.0), nil)

	require.NoError(t, r.Rank([]*contracts.MetricsRow{a, b, c, d}))

	// order: C(1), A/B tied on ranks 2-3 -> 2.5, D(4)
	assert.InDelta(t, 25.0, *c.RSPercentile, 1e-9)
	assert.InDelta(t, 62.5, *a.RSPercentile, 1e-9)
	assert.InDelta(t, 62.5, *b.RSPercentile, 1e-9)
	assert.InDelta(t, 100.0, *d.RSPercentile, 1e-9)
}

func TestRank_OrderIndependent(t *testing.T) {
	r := NewRanker(logger.NewNop())

	mk := func() []*contracts.MetricsRow {
		return []*contracts.MetricsRow{
			mkRow("A", fptr(5.0), nil),
			mkRow("B", fptr(5.0), nil),
			mkRow("C", fptr(-2.0), nil),
		}
	}

	first := mk()
	require.NoError(t, r.Rank(first))

	shuffled := mk()
	shuffled[0], shuffled[2] = shuffled[2], shuffled[0]
	require.NoError(t, r.Rank(shuffled))

	byName := func(rows []*contracts.MetricsRow) map[string]float64 {
		out := make(map[string]float64)
		for _, row := range rows {
			out[row.Symbol] = *row.RSPercentile
		}
		return out
	}
	assert.Equal(t, byName(first), byName(shuffled))
}

func TestRank_SkipsNullChanges(t *testing.T) {
	r := NewRanker(logger.NewNop())

	a := mkRow("A", fptr(3.0), nil)
	b := mkRow("B", nil, nil) // too young for the 1M window

	require.NoError(t, r.Rank([]*contracts.MetricsRow{a, b}))

	assert.Nil(t, b.RSPercentile)
	assert.Nil(t, b.VARS)
	// a raced only against itself
	assert.InDelta(t, 100.0, *a.RSPercentile, 1e-9)
}

func TestRank_EmptyUniverse(t *testing.T) {
	r := NewRanker(logger.NewNop())

	err := r.Rank([]*contracts.MetricsRow{mkRow("A", nil, nil)})
	assert.ErrorIs(t, err, contracts.ErrEmptyUniverse)

	err = r.Rank(nil)
	assert.ErrorIs(t, err, contracts.ErrEmptyUniverse)
}
