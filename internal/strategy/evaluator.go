package strategy

import "kabu/internal/domain"

// Evaluator precomputes the combined signal flags of a rule set over one
// series: a bar carries an entry signal when every entry rule agrees, and
// an exit signal when any exit rule fires.
type Evaluator struct {
	entry []bool
	exit  []bool
}

// NewEvaluator evaluates every rule of rs against the series once.
func NewEvaluator(series *domain.PriceSeries, rs *RuleSet) *Evaluator {
	n := series.Len()
	entry := make([]bool, n)
	exit := make([]bool, n)

	if len(rs.Entry) > 0 {
		for i := range entry {
			entry[i] = true
		}
		for _, rule := range rs.Entry {
			flags := rule.Flags(series)
			for i := range entry {
				entry[i] = entry[i] && flags[i]
			}
		}
	}

	for _, rule := range rs.Exit {
		flags := rule.Flags(series)
		for i := range exit {
			exit[i] = exit[i] || flags[i]
		}
	}

	return &Evaluator{entry: entry, exit: exit}
}

// Entry reports whether bar i carries an entry signal.
func (e *Evaluator) Entry(i int) bool {
	return i >= 0 && i < len(e.entry) && e.entry[i]
}

// Exit reports whether bar i carries an exit signal.
func (e *Evaluator) Exit(i int) bool {
	return i >= 0 && i < len(e.exit) && e.exit[i]
}
