package ranker

import (
	"sort"

	"github.com/tradelens/screener/internal/contracts"
	"github.com/tradelens/screener/pkg/logger"
)

// Ranker computes cross-sectional relative-strength metrics for one date.
// It must run only after every symbol's row for the date exists: ranking a
// partial universe would silently shift every percentile.
type Ranker struct {
	logger *logger.Logger
}

// NewRanker creates a new ranker
func NewRanker(log *logger.Logger) *Ranker {
	return &Ranker{logger: log}
}

// Rank fills RSPercentile, VARS and VARW in place on the date's rows.
//
// Symbols are ranked ascending by 1-month change with 1-based ranks, so
// the weakest symbol sits just above 0 and the strongest at exactly 100.
// Symbols sharing an identical change receive the average of the ranks
// they occupy, which keeps the result independent of input order and
// re-runs byte-identical.
//
// Returns ErrEmptyUniverse when no row has a non-null 1-month change.
func (r *Ranker) Rank(rows []*contracts.MetricsRow) error {
	type entry struct {
		row    *contracts.MetricsRow
		change float64
	}

	rankable := make([]entry, 0, len(rows))
	for _, row := range rows {
		if row.Change1MPct != nil {
			rankable = append(rankable, entry{row: row, change: *row.Change1MPct})
		}
	}

	if len(rankable) == 0 {
		return contracts.ErrEmptyUniverse
	}

	sort.SliceStable(rankable, func(i, j int) bool {
		if rankable[i].change != rankable[j].change {
			return rankable[i].change < rankable[j].change
		}
		return rankable[i].row.Symbol < rankable[j].row.Symbol
	})

	total := float64(len(rankable))

	// Walk groups of tied values; each member gets the group's mean rank.
	for i := 0; i < len(rankable); {
		j := i
		for j < len(rankable) && rankable[j].change == rankable[i].change {
			j++
		}
		// 1-based ranks i+1 .. j; mean of an arithmetic run.
		avgRank := float64(i+1+j) / 2.0
		pct := avgRank / total * 100

		for k := i; k < j; k++ {
			row := rankable[k].row
			row.RSPercentile = &pct
			fillVolAdjusted(row, pct)
		}
		i = j
	}

	r.logger.WithFields(map[string]interface{}{
		"universe": len(rows),
		"ranked":   len(rankable),
	}).Debug("Cross-sectional ranking completed")

	return nil
}

// fillVolAdjusted computes VARS and VARW from the percentile and ADR%.
// Both stay nil whenever ADR% is null or zero: "not computable" is a
// value here, never an exception.
func fillVolAdjusted(row *contracts.MetricsRow, pct float64) {
	if row.ADRPct == nil || *row.ADRPct == 0 {
		return
	}
	vars := pct / *row.ADRPct
	varw := (100 - pct) / *row.ADRPct
	row.VARS = &vars
	row.VARW = &varw
}
